// Package report models the configured reports and keeps the current,
// immutable set of them available to concurrent readers.
package report

import (
	"path/filepath"
	"strings"
	"time"
)

// Default lifecycle intervals of a document.
const (
	DefaultRefreshInterval = time.Hour
	DefaultArchiveInterval = 24 * time.Hour
	DefaultDeleteInterval  = 7 * 24 * time.Hour
)

// Key identifies a report within a snapshot.
type Key struct {
	Category string
	Slug     string
}

func (k Key) String() string {
	return k.Category + "/" + k.Slug
}

// Info is the descriptive part shared by every kind of report.
type Info struct {
	Category string
	Name     string
	Author   string
	Slug     string
}

// Key returns the lookup key of the report.
func (i Info) Key() Key {
	return Key{Category: strings.ToLower(i.Category), Slug: i.Slug}
}

// Report is either a *Document or a *Link.
type Report interface {
	Meta() Info
	isReport()
}

// Document is a renderable source whose artifact is lifecycle-managed.
type Document struct {
	Info
	SourcePath      string
	RefreshInterval time.Duration
	ArchiveInterval time.Duration
	DeleteInterval  time.Duration
	Orientation     string
	Libraries       []string
}

func (d *Document) Meta() Info { return d.Info }
func (*Document) isReport()    {}

// Stem is the source base name without extension, spaces replaced by
// underscores. It names the artifact and the document's archive entries.
func (d *Document) Stem() string {
	base := filepath.Base(d.SourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, " ", "_")
}

// ArtifactPath is the location of the current render, next to the source.
func (d *Document) ArtifactPath() string {
	return filepath.Join(filepath.Dir(d.SourcePath), d.Stem()+".html")
}

// Link is an external report. It is only ever redirected to.
type Link struct {
	Info
	URL string
}

func (l *Link) Meta() Info { return l.Info }
func (*Link) isReport()    {}

// Slugify turns a display name into its URL form: lower-case, spaces to
// dashes, runs of dashes collapsed.
func Slugify(name string) string {
	slug := strings.ReplaceAll(strings.TrimSpace(name), " ", "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.ToLower(slug)
}
