package report

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jbatonnet/Rboard/types"
)

// Category groups the reports configured under one name.
type Category struct {
	Key     string
	Name    string
	Reports []Report
}

// Snapshot is an immutable set of loaded reports.
type Snapshot struct {
	categories []Category
	index      map[Key]Report
	errs       []error
	loadedAt   time.Time
}

// Find looks a report up by category and slug, ignoring case.
func (s *Snapshot) Find(category, slug string) (Report, bool) {
	r, ok := s.index[Key{Category: strings.ToLower(category), Slug: strings.ToLower(slug)}]
	return r, ok
}

// Categories returns the categories in name order, reports in configuration order.
func (s *Snapshot) Categories() []Category { return s.categories }

// Documents returns every renderable report.
func (s *Snapshot) Documents() []*Document {
	var docs []*Document
	for _, c := range s.categories {
		for _, r := range c.Reports {
			if d, ok := r.(*Document); ok {
				docs = append(docs, d)
			}
		}
	}
	return docs
}

// Libraries returns the sorted set of packages loaded by the documents.
func (s *Snapshot) Libraries() []string {
	set := map[string]struct{}{}
	for _, d := range s.Documents() {
		for _, lib := range d.Libraries {
			set[lib] = struct{}{}
		}
	}
	libs := make([]string, 0, len(set))
	for lib := range set {
		libs = append(libs, lib)
	}
	sort.Strings(libs)
	return libs
}

// Errors returns the configuration errors met while loading.
func (s *Snapshot) Errors() []error { return s.errs }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Registry publishes the current snapshot. Readers call Current once per
// operation and keep using the snapshot they got.
type Registry struct {
	loader  *Loader
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns a Registry holding an empty snapshot.
func NewRegistry(loader *Loader) *Registry {
	r := &Registry{loader: loader}
	r.current.Store(&Snapshot{index: map[Key]Report{}})
	return r
}

// Reload builds a snapshot from reports and makes it current.
func (r *Registry) Reload(reports map[string][]types.ReportConfig) *Snapshot {
	snap := r.loader.Load(reports)
	r.current.Store(snap)
	return snap
}

// Current returns the snapshot in effect.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}
