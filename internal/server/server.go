// Package server exposes reports, their archives and the generation history
// over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/spf13/afero"

	"github.com/jbatonnet/Rboard/internal/journal"
	"github.com/jbatonnet/Rboard/internal/lifecycle"
	"github.com/jbatonnet/Rboard/internal/report"
)

// History lists past generations.
type History interface {
	Recent(ctx context.Context, key *report.Key, limit int) ([]journal.Entry, error)
}

// Config holds the settings of a Server.
type Config struct {
	Port      int
	AssetsDir string
	// Origins allowed to call the API from a browser.
	Origins []string
	// Slideshow returns the current slideshow settings.
	Slideshow func() SlideshowSettings
	// Reload re-reads the report configuration. When nil the reload endpoint
	// only regenerates.
	Reload func(ctx context.Context) (*report.Snapshot, error)
}

type Server struct {
	registry *report.Registry
	coord    *lifecycle.Coordinator
	history  History
	fs       afero.Fs
	cfg      Config
	origins  map[string]struct{}
	logger   *slog.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the history endpoint.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithLogger sets the logger used for requests.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithFs sets the filesystem artifacts and assets are read from.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) { s.fs = fs }
}

func New(cfg Config, registry *report.Registry, coord *lifecycle.Coordinator, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		coord:    coord,
		fs:       afero.NewOsFs(),
		cfg:      cfg,
		origins:  make(map[string]struct{}, len(cfg.Origins)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, o := range cfg.Origins {
		s.origins[o] = struct{}{}
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.registerRoutes(),
	}
	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Addr is the listen address.
func (s *Server) Addr() string { return s.server.Addr }

func (s *Server) Start(wg *sync.WaitGroup, errChan chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
