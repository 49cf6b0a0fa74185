package server

import (
	"time"

	"github.com/jbatonnet/Rboard/internal/journal"
)

// Report kinds
const (
	KindDocument = "document"
	KindLink     = "link"
)

// SlideshowSettings drive the dashboard rotation in the browser.
type SlideshowSettings struct {
	Mode    string `json:"mode"`
	Seconds int    `json:"seconds"`
}

// ReportsResponse is the response for /api/reports
type ReportsResponse struct {
	Categories []CategoryResponse `json:"categories"`
	Slideshow  SlideshowSettings  `json:"slideshow"`
	Errors     []string           `json:"errors,omitempty"`
	LoadedAt   time.Time          `json:"loadedAt"`
}

// CategoryResponse lists the reports of one category
type CategoryResponse struct {
	Key     string           `json:"key"`
	Name    string           `json:"name"`
	Reports []ReportResponse `json:"reports"`
}

// ReportResponse describes a document or a link. URL is where the content
// is served from.
type ReportResponse struct {
	Kind           string `json:"kind"`
	Name           string `json:"name"`
	Author         string `json:"author,omitempty"`
	Slug           string `json:"slug"`
	URL            string `json:"url"`
	RefreshSeconds int64  `json:"refreshSeconds,omitempty"`
	ArchiveSeconds int64  `json:"archiveSeconds,omitempty"`
	DeleteSeconds  int64  `json:"deleteSeconds,omitempty"`
	Generating     bool   `json:"generating,omitempty"`
}

// ArchivesResponse is the response for /api/reports/{category}/{name}/archives
type ArchivesResponse struct {
	Report  string          `json:"report"`
	Buckets []ArchiveBucket `json:"buckets"`
}

// ArchiveBucket is one archived render
type ArchiveBucket struct {
	Date string `json:"date"`
	URL  string `json:"url"`
}

// HistoryResponse is the response for /api/history
type HistoryResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// ReloadResponse is the response for /api/reports/{category}/{name}/reload
type ReloadResponse struct {
	Report string   `json:"report"`
	Errors []string `json:"errors,omitempty"`
}
