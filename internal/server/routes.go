package server

import (
	"net/http"
	"path/filepath"

	"github.com/spf13/afero"
)

// registerRoutes sets up all endpoints
func (s *Server) registerRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/reports", s.handleListReports)
	mux.HandleFunc("GET /api/reports/{category}/{name}/archives", s.handleListArchives)
	mux.HandleFunc("POST /api/reports/{category}/{name}/reload", s.handleReload)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Rendered content
	mux.HandleFunc("GET /reports/{category}/{file}", s.handleReport)
	mux.HandleFunc("GET /archives/{category}/{file}", s.handleArchive)

	// Documents reference their libraries relative to themselves
	mux.HandleFunc("GET /reports/{category}/libraries/{path...}", handleLibraryRedirect)
	mux.HandleFunc("GET /archives/{category}/libraries/{path...}", handleLibraryRedirect)

	if s.cfg.AssetsDir != "" {
		assets := afero.NewHttpFs(afero.NewBasePathFs(s.fs, s.cfg.AssetsDir))
		mux.Handle("GET /assets/", http.StripPrefix("/assets", http.FileServer(assets)))
		libraries := afero.NewHttpFs(afero.NewBasePathFs(s.fs, filepath.Join(s.cfg.AssetsDir, "libraries")))
		mux.Handle("GET /libraries/", http.StripPrefix("/libraries", http.FileServer(libraries)))
	}

	return s.requestMiddleware(s.corsMiddleware(mux))
}
