// Package render turns R Markdown documents into HTML dashboards by invoking
// Rscript and rmarkdown.
package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/types"
)

// ErrExecutableNotFound is returned when Rscript or pandoc cannot be located.
var ErrExecutableNotFound = errors.New("executable not found")

// RenderError reports a render that exited with a non-zero status.
type RenderError struct {
	Source   string
	ExitCode int
	Stderr   string
}

func (e *RenderError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("render %s: exit code %d", filepath.Base(e.Source), e.ExitCode)
	}
	return fmt.Sprintf("render %s: exit code %d: %s", filepath.Base(e.Source), e.ExitCode, msg)
}

const (
	defaultRScript = "Rscript"
	defaultPandoc  = "pandoc"

	// Houdini ships an unrelated rscript binary.
	rscriptPathExclude = "houdini"
)

// runFunc executes name in dir. A process that ran and exited reports its
// exit code with a nil error.
type runFunc func(ctx context.Context, dir, name string, args ...string) (exitCode int, stderr string, err error)

// RScript renders documents with rmarkdown::render. Renders and package
// checks are serialized process-wide.
type RScript struct {
	fs     afero.Fs
	run    runFunc
	logger *slog.Logger
	cfg    atomic.Pointer[types.RConfig]

	renderMu  sync.Mutex
	installMu sync.Mutex
}

// Option configures an RScript.
type Option func(*RScript)

// WithFs sets the filesystem used for intermediate sources and executable lookup.
func WithFs(fs afero.Fs) Option {
	return func(r *RScript) { r.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *RScript) { r.logger = l }
}

func withRunner(run runFunc) Option {
	return func(r *RScript) { r.run = run }
}

// New returns an RScript using cfg.
func New(cfg types.RConfig, opts ...Option) *RScript {
	r := &RScript{
		fs:     afero.NewOsFs(),
		run:    execRun,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.SetConfig(cfg)
	return r
}

// SetConfig replaces the toolchain configuration. Renders already running
// keep the configuration they started with.
func (r *RScript) SetConfig(cfg types.RConfig) {
	r.cfg.Store(&cfg)
}

func (r *RScript) config() types.RConfig {
	return *r.cfg.Load()
}

// RScriptPath locates the Rscript executable.
func (r *RScript) RScriptPath() (string, error) {
	return r.lookPath(r.config().RScriptExecutable, defaultRScript, rscriptPathExclude)
}

// PandocPath locates the pandoc executable.
func (r *RScript) PandocPath() (string, error) {
	return r.lookPath(r.config().PandocExecutable, defaultPandoc, "")
}

// Render renders doc into dst. The document's front matter is replaced by a
// generated flexdashboard header in a sibling <stem>.g.Rmd file, which is
// removed afterwards.
func (r *RScript) Render(ctx context.Context, doc *report.Document, dst string) error {
	rscript, err := r.RScriptPath()
	if err != nil {
		return err
	}
	pandoc, err := r.PandocPath()
	if err != nil {
		return err
	}

	intermediate := filepath.Join(filepath.Dir(doc.SourcePath), doc.Stem()+".g.Rmd")
	if err := r.writeIntermediate(doc, intermediate); err != nil {
		return err
	}
	defer func() {
		if err := r.fs.Remove(intermediate); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to remove intermediate source", "path", intermediate, "error", err)
		}
	}()

	args := []string{
		"-e", fmt.Sprintf("Sys.setenv(RSTUDIO_PANDOC = %s)", rQuote(filepath.Dir(pandoc))),
		"-e", fmt.Sprintf("rmarkdown::render(%s, output_file = %s, quiet = TRUE)", rQuote(intermediate), rQuote(dst)),
	}

	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	r.logger.Debug("rendering report", "source", doc.SourcePath)
	code, stderr, err := r.run(ctx, filepath.Dir(doc.SourcePath), rscript, args...)
	if err != nil {
		return fmt.Errorf("run %s: %w", rscript, err)
	}
	if code != 0 {
		return &RenderError{Source: doc.SourcePath, ExitCode: code, Stderr: stderr}
	}
	r.logger.Debug("rendered report", "source", doc.SourcePath)
	return nil
}

type dashboardOptions struct {
	SelfContained bool   `yaml:"self_contained"`
	LibDir        string `yaml:"lib_dir"`
	CSS           string `yaml:"css"`
	Orientation   string `yaml:"orientation,omitempty"`
}

type renderHeader struct {
	Title  string                      `yaml:"title"`
	Output map[string]dashboardOptions `yaml:"output"`
}

// writeIntermediate copies the source body under a generated header.
func (r *RScript) writeIntermediate(doc *report.Document, path string) error {
	src, err := r.fs.Open(doc.SourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	header := renderHeader{
		Title: doc.Name,
		Output: map[string]dashboardOptions{
			"flexdashboard::flex_dashboard": {
				SelfContained: false,
				LibDir:        "libraries",
				CSS:           "/libraries/flex-custom.css",
				Orientation:   doc.Orientation,
			},
		},
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	buf.WriteString("---\n")

	if err := copyBody(&buf, src); err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	if err := afero.WriteFile(r.fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write intermediate source: %w", err)
	}
	return nil
}

// copyBody copies src to w without its front matter.
func copyBody(w io.Writer, src io.Reader) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first, inHeader := true, false
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.TrimSpace(line) == "---" {
				inHeader = true
				continue
			}
		}
		if inHeader {
			if strings.TrimSpace(line) == "---" {
				inHeader = false
			}
			continue
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return sc.Err()
}

// lookPath resolves name as a file, then on PATH skipping directories that
// contain exclude.
func (r *RScript) lookPath(name, fallback, exclude string) (string, error) {
	if name == "" {
		name = fallback
	}
	if r.isFile(name) {
		return name, nil
	}
	if filepath.Separator == '\\' && filepath.Ext(name) == "" {
		name += ".exe"
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" || (exclude != "" && strings.Contains(strings.ToLower(dir), exclude)) {
			continue
		}
		p := filepath.Join(dir, name)
		if r.isFile(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
}

func (r *RScript) isFile(path string) bool {
	info, err := r.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// rQuote returns s as a single-quoted R string literal.
func rQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func execRun(ctx context.Context, dir, name string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stderr.String(), nil
	}
	if err != nil {
		return -1, stderr.String(), err
	}
	return 0, stderr.String(), nil
}
