/*
Copyright © 2025 The Rboard Authors
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/server"
	"github.com/jbatonnet/Rboard/internal/watch"
)

var (
	servePort    int
	serveNoWatch bool
	serveNoSweep bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reports over HTTP",
	Long: `Serve the configured reports over HTTP.

Reports are rendered on access and archived in the background. The
configuration file is watched and reloaded when it changes.

Examples:
  rboard serve                 # Use the configured port
  rboard serve --port 8080     # Use a custom port
  rboard serve --no-watch      # Do not reload the configuration`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (default from server.port)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "don't reload the configuration when it changes")
	serveCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false, "don't archive and prune in the background")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	app, err := newApp(*cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.Prepare(ctx); err != nil {
			app.logger.Error("failed to install R packages", "error", err)
		}
	}()

	reload := func(ctx context.Context) (*report.Snapshot, error) {
		if viper.ConfigFileUsed() == "" {
			return app.Reload(app.Config()), nil
		}
		next, err := reloadConfig()
		if err != nil {
			return nil, err
		}
		next.Server.Port = cfg.Server.Port
		snap := app.Reload(next)
		go func() {
			if err := app.Prepare(context.WithoutCancel(ctx)); err != nil {
				app.logger.Error("failed to install R packages", "error", err)
			}
		}()
		return snap, nil
	}

	srv := server.New(server.Config{
		Port:      cfg.Server.Port,
		AssetsDir: cfg.Server.AssetsDir,
		Slideshow: app.Slideshow,
		Reload:    reload,
	}, app.Registry, app.Coordinator, serverOptions(app)...)
	srv.Start(&wg, errChan)

	if file := viper.ConfigFileUsed(); file != "" && !serveNoWatch {
		w, err := watch.New([]string{file}, watch.DefaultDelay, func(changed []string) {
			app.logger.Info("configuration changed", "files", changed)
			if _, err := reload(ctx); err != nil {
				app.logger.Error("failed to reload configuration", "error", err)
			}
		}, app.logger)
		if err != nil {
			LogError("config watch disabled", err)
		} else {
			w.Start()
			defer w.Stop()
		}
	}

	if !serveNoSweep {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSweeps(ctx, app)
		}()
	}

	fmt.Fprintf(os.Stderr, "Rboard %s listening on http://localhost%s\n", GetVersion(), srv.Addr())

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "Shutting down...")
	case err := <-errChan:
		stop()
		PrintError("Server stopped unexpectedly", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Server shutdown error: %v\n", err)
	}

	wg.Wait()
	return nil
}

func serverOptions(app *App) []server.Option {
	opts := []server.Option{server.WithLogger(app.logger), server.WithFs(app.fs)}
	if app.Journal != nil {
		opts = append(opts, server.WithHistory(app.Journal))
	}
	return opts
}

// runSweeps archives and prunes every report, once at start and then every
// sweep interval, until ctx is done.
func runSweeps(ctx context.Context, app *App) {
	for {
		if err := app.Sweep(ctx); err != nil && ctx.Err() == nil {
			app.logger.Warn("sweep finished with errors", "error", err)
		}

		timer := time.NewTimer(app.SweepInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
