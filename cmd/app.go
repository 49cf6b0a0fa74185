package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/jbatonnet/Rboard/internal/archive"
	"github.com/jbatonnet/Rboard/internal/config"
	"github.com/jbatonnet/Rboard/internal/journal"
	"github.com/jbatonnet/Rboard/internal/lifecycle"
	"github.com/jbatonnet/Rboard/internal/logger"
	"github.com/jbatonnet/Rboard/internal/render"
	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/server"
	"github.com/jbatonnet/Rboard/internal/timebucket"
	"github.com/jbatonnet/Rboard/types"
)

// journalRetention is how long generations stay in the journal.
const journalRetention = 30 * timebucket.Day

// App wires the report lifecycle of one configuration.
type App struct {
	Registry    *report.Registry
	Archives    *archive.Store
	Coordinator *lifecycle.Coordinator
	// Journal is nil when the journal is disabled.
	Journal *journal.Store

	fs          afero.Fs
	rscript     *render.RScript
	renderer    lifecycle.Renderer
	usesRScript bool
	logger      *slog.Logger

	mu  sync.RWMutex
	cfg types.AppConfig
}

type appOption func(*App)

// withFs replaces the OS filesystem, e.g. with afero.NewMemMapFs in tests.
func withFs(fs afero.Fs) appOption {
	return func(a *App) { a.fs = fs }
}

// withRenderer replaces the R toolchain.
func withRenderer(r lifecycle.Renderer) appOption {
	return func(a *App) { a.renderer = r }
}

// openApp builds the App of the loaded configuration.
func openApp() (*App, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return newApp(*cfg)
}

func newApp(cfg types.AppConfig, opts ...appOption) (*App, error) {
	a := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	archiveOpts := []archive.Option{archive.WithLogger(a.logger)}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
		a.Archives = archive.NewOsStore(cfg.Rboard.ArchivesDirectory, archiveOpts...)
	} else {
		a.Archives = archive.New(a.fs, cfg.Rboard.ArchivesDirectory, archiveOpts...)
	}

	a.rscript = render.New(cfg.R, render.WithFs(a.fs), render.WithLogger(a.logger))
	if a.renderer == nil {
		a.renderer = a.rscript
		a.usesRScript = true
	}

	dataDir := config.GetDataDir("")
	logger.SetBasePath(dataDir)

	coordOpts := []lifecycle.Option{lifecycle.WithLogger(a.logger)}
	if cfg.Journal.Enabled {
		path := cfg.Journal.Path
		if path == "" {
			path = filepath.Join(dataDir, config.JournalFileName)
		}
		js, err := journal.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.Journal = js
		coordOpts = append(coordOpts, lifecycle.WithRecorder(js))
	}

	a.Coordinator = lifecycle.New(a.fs, a.Archives, a.renderer, coordOpts...)
	a.Registry = report.NewRegistry(report.NewLoader(a.fs, cfg.Rboard.ReportsDirectory, a.logger))
	a.Registry.Reload(cfg.Reports)
	return a, nil
}

// Config returns the configuration currently applied.
func (a *App) Config() types.AppConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Reload applies cfg: the renderer settings first, then the reports. The
// reports directory is fixed for the lifetime of the App.
func (a *App) Reload(cfg types.AppConfig) *report.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg = cfg
	a.rscript.SetConfig(cfg.R)
	snap := a.Registry.Reload(cfg.Reports)
	a.logger.Info("reloaded reports", "documents", len(snap.Documents()), "errors", len(snap.Errors()))
	return snap
}

// Prepare installs the R packages of the current reports.
func (a *App) Prepare(ctx context.Context) error {
	if !a.usesRScript {
		return nil
	}
	return a.rscript.Prepare(ctx, a.Registry.Current().Libraries())
}

// Slideshow returns the slideshow settings of the current configuration.
func (a *App) Slideshow() server.SlideshowSettings {
	cfg := a.Config().Rboard
	d, err := timebucket.ParseDuration(cfg.SlideshowTime)
	if err != nil || d <= 0 {
		d, _ = timebucket.ParseDuration(config.DefaultSlideshowTime)
	}
	mode := cfg.SlideshowMode
	if mode == "" {
		mode = config.DefaultSlideshowMode
	}
	return server.SlideshowSettings{Mode: mode, Seconds: int(d / time.Second)}
}

// SweepInterval is how often every document is rolled over and pruned.
func (a *App) SweepInterval() time.Duration {
	d, err := timebucket.ParseDuration(a.Config().Rboard.SweepInterval)
	if err != nil || d <= 0 {
		d, _ = timebucket.ParseDuration(config.DefaultSweepInterval)
	}
	return d
}

// Sweep archives and prunes every document, then drops old journal entries.
func (a *App) Sweep(ctx context.Context) error {
	err := a.Coordinator.Sweep(ctx, a.Registry.Current().Documents())
	if a.Journal != nil {
		n, perr := a.Journal.Purge(ctx, time.Now().Add(-journalRetention))
		if perr != nil {
			a.logger.Warn("failed to purge journal", "error", perr)
		} else if n > 0 {
			a.logger.Debug("purged journal", "entries", n)
		}
	}
	return err
}

// Close releases the journal.
func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
