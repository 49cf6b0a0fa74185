package report

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jbatonnet/Rboard/internal/timebucket"
	"github.com/jbatonnet/Rboard/types"
)

// ConfigurationError reports a configured report that could not be loaded.
// The other reports of the snapshot are unaffected.
type ConfigurationError struct {
	Category string
	Name     string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("report %s/%s: %v", e.Category, e.Name, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

var errDuplicate = errors.New("duplicate report name in category")

// Loader builds snapshots from report configuration.
type Loader struct {
	fs       afero.Fs
	baseDir  string
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLoader returns a Loader resolving relative source paths against baseDir.
func NewLoader(fs afero.Fs, baseDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fs:       fs,
		baseDir:  baseDir,
		validate: validator.New(),
		logger:   logger,
	}
}

// Load builds a snapshot. Reports that fail to load are left out and
// described by a *ConfigurationError in the snapshot's Errors.
func (l *Loader) Load(reports map[string][]types.ReportConfig) *Snapshot {
	snap := &Snapshot{index: make(map[Key]Report), loadedAt: time.Now()}

	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)

	title := cases.Title(language.Und, cases.NoLower)

	for _, name := range names {
		cat := Category{Key: strings.ToLower(name), Name: title.String(name)}
		for _, cfg := range reports[name] {
			r, err := l.loadReport(cat.Name, cfg)
			if err == nil {
				if _, dup := snap.index[r.Meta().Key()]; dup {
					err = errDuplicate
				}
			}
			if err != nil {
				cerr := &ConfigurationError{Category: cat.Name, Name: cfg.Name, Err: err}
				l.logger.Error("failed loading report", "category", cat.Name, "report", cfg.Name, "error", err)
				snap.errs = append(snap.errs, cerr)
				continue
			}
			l.logger.Debug("loaded report", "category", cat.Name, "report", cfg.Name)
			snap.index[r.Meta().Key()] = r
			cat.Reports = append(cat.Reports, r)
		}
		if len(cat.Reports) > 0 {
			snap.categories = append(snap.categories, cat)
		}
	}
	return snap
}

func (l *Loader) loadReport(category string, cfg types.ReportConfig) (Report, error) {
	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	info := Info{Category: category, Name: cfg.Name, Author: cfg.Author, Slug: Slugify(cfg.Name)}

	if cfg.Path == "" {
		return &Link{Info: info, URL: cfg.Url}, nil
	}

	doc := &Document{
		Info:            info,
		SourcePath:      cfg.Path,
		RefreshInterval: DefaultRefreshInterval,
		ArchiveInterval: DefaultArchiveInterval,
		DeleteInterval:  DefaultDeleteInterval,
	}
	if !filepath.IsAbs(doc.SourcePath) {
		doc.SourcePath = filepath.Join(l.baseDir, doc.SourcePath)
	}

	for _, iv := range []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"refreshTime", cfg.RefreshTime, &doc.RefreshInterval},
		{"archiveTime", cfg.ArchiveTime, &doc.ArchiveInterval},
		{"deleteTime", cfg.DeleteTime, &doc.DeleteInterval},
	} {
		if iv.value == "" {
			continue
		}
		d, err := timebucket.ParseDuration(iv.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", iv.field, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s: interval must be positive, got %q", iv.field, iv.value)
		}
		*iv.dst = d
	}

	f, err := l.fs.Open(doc.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	src, err := ScanSource(f)
	if err != nil {
		return nil, err
	}
	doc.Orientation = src.Orientation
	doc.Libraries = src.Libraries
	return doc, nil
}
