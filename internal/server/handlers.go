package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/jbatonnet/Rboard/internal/journal"
	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/timebucket"
)

// handleListReports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	snap := s.registry.Current()

	resp := ReportsResponse{
		Categories: []CategoryResponse{},
		LoadedAt:   snap.LoadedAt(),
	}
	if s.cfg.Slideshow != nil {
		resp.Slideshow = s.cfg.Slideshow()
	}
	for _, cat := range snap.Categories() {
		c := CategoryResponse{Key: cat.Key, Name: cat.Name}
		for _, rep := range cat.Reports {
			c.Reports = append(c.Reports, s.describe(rep))
		}
		resp.Categories = append(resp.Categories, c)
	}
	for _, err := range snap.Errors() {
		resp.Errors = append(resp.Errors, err.Error())
	}

	writeAPIJSON(w, resp)
}

func (s *Server) describe(rep report.Report) ReportResponse {
	info := rep.Meta()
	resp := ReportResponse{Name: info.Name, Author: info.Author, Slug: info.Slug}

	switch rep := rep.(type) {
	case *report.Document:
		resp.Kind = KindDocument
		resp.URL = reportURL(rep.Key())
		resp.RefreshSeconds = int64(rep.RefreshInterval.Seconds())
		resp.ArchiveSeconds = int64(rep.ArchiveInterval.Seconds())
		resp.DeleteSeconds = int64(rep.DeleteInterval.Seconds())
		resp.Generating = s.coord.Generating(rep)
	case *report.Link:
		resp.Kind = KindLink
		resp.URL = rep.URL
	}
	return resp
}

// handleListArchives
func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.findDocument(w, r.PathValue("category"), r.PathValue("name"))
	if !ok {
		return
	}
	existing, _ := strconv.ParseBool(r.URL.Query().Get("existing"))

	resp := ArchivesResponse{Report: doc.Key().String(), Buckets: []ArchiveBucket{}}
	for bucket := range s.coord.ListArchiveBuckets(doc, existing) {
		date := timebucket.FormatBucket(bucket)
		resp.Buckets = append(resp.Buckets, ArchiveBucket{Date: date, URL: archiveURL(doc.Key(), date)})
	}

	writeAPIJSON(w, resp)
}

// handleReload reloads the configuration, then regenerates the report.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	resp := ReloadResponse{}
	if s.cfg.Reload != nil {
		snap, err := s.cfg.Reload(r.Context())
		if err != nil {
			http.Error(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		for _, err := range snap.Errors() {
			resp.Errors = append(resp.Errors, err.Error())
		}
	}

	rep, ok := s.findReport(w, r.PathValue("category"), r.PathValue("name"))
	if !ok {
		return
	}
	resp.Report = rep.Meta().Key().String()

	if doc, ok := rep.(*report.Document); ok {
		if _, err := s.coord.Access(r.Context(), doc, true); err != nil {
			s.writeRenderError(w, r, doc, err)
			return
		}
	}

	writeAPIJSON(w, resp)
}

// handleHistory
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resp := HistoryResponse{Entries: []journal.Entry{}}
	if s.history == nil {
		writeAPIJSON(w, resp)
		return
	}

	q := r.URL.Query()
	limit := 50
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	var key *report.Key
	if category, name := q.Get("category"), q.Get("name"); category != "" && name != "" {
		key = &report.Key{Category: strings.ToLower(category), Slug: strings.ToLower(name)}
	}

	entries, err := s.history.Recent(r.Context(), key, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries != nil {
		resp.Entries = entries
	}

	writeAPIJSON(w, resp)
}

// handleReport serves the current render of a report. While a regeneration
// runs, the previous render is served unless the request forces a new one.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	slug, ok := strings.CutSuffix(r.PathValue("file"), ".html")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rep, ok := s.findReport(w, r.PathValue("category"), slug)
	if !ok {
		return
	}

	doc, ok := rep.(*report.Document)
	if !ok {
		http.Redirect(w, r, rep.(*report.Link).URL, http.StatusFound)
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	pending := s.coord.Begin(r.Context(), doc, force)

	var path string
	select {
	case <-pending.Done():
	default:
		if !force {
			path, _ = s.coord.LastGenerated(doc)
		}
	}
	if path == "" {
		var err error
		if path, err = pending.Wait(r.Context()); err != nil {
			s.writeRenderError(w, r, doc, err)
			return
		}
	}

	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		http.Error(w, "could not read the generated report", http.StatusInternalServerError)
		return
	}
	writeHTML(w, content)
}

// handleArchive serves an archived render.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	slug, ok := strings.CutSuffix(r.PathValue("file"), ".html")
	if !ok {
		http.NotFound(w, r)
		return
	}
	doc, ok := s.findDocument(w, r.PathValue("category"), slug)
	if !ok {
		return
	}

	bucket, err := timebucket.ParseBucket(r.URL.Query().Get("date"), s.coord.Location())
	if err != nil {
		http.Error(w, "invalid archive date", http.StatusBadRequest)
		return
	}

	content, found, err := s.coord.ReadArchivedArtifact(doc, bucket)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Could not find the specified archive", http.StatusNotFound)
		return
	}
	writeHTML(w, content)
}

func handleLibraryRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/assets/"+r.PathValue("path"), http.StatusMovedPermanently)
}

func (s *Server) findReport(w http.ResponseWriter, category, slug string) (report.Report, bool) {
	rep, ok := s.registry.Current().Find(category, slug)
	if !ok {
		http.Error(w, "Could not find the specified report", http.StatusNotFound)
	}
	return rep, ok
}

func (s *Server) findDocument(w http.ResponseWriter, category, slug string) (*report.Document, bool) {
	rep, ok := s.registry.Current().Find(category, slug)
	doc, isDoc := rep.(*report.Document)
	if !ok || !isDoc {
		http.Error(w, "Could not find the specified report", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}

func (s *Server) writeRenderError(w http.ResponseWriter, r *http.Request, doc *report.Document, err error) {
	if r.Context().Err() != nil {
		return
	}
	s.logger.Error("report generation failed", "report", doc.Key().String(), "error", err)
	http.Error(w, "failed generating report: "+err.Error(), http.StatusBadGateway)
}

func reportURL(key report.Key) string {
	return "/reports/" + url.PathEscape(key.Category) + "/" + url.PathEscape(key.Slug) + ".html"
}

func archiveURL(key report.Key, date string) string {
	return "/archives/" + url.PathEscape(key.Category) + "/" + url.PathEscape(key.Slug) + ".html?date=" + url.QueryEscape(date)
}

func writeHTML(w http.ResponseWriter, content []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(content)
}

func writeAPIJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}
