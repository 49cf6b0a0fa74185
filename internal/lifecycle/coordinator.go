// Package lifecycle decides, per document, when a render is reused,
// regenerated, archived or pruned.
//
// A document's artifact lives next to its source. When the archive bucket of
// the artifact differs from the bucket of now, the artifact is copied into
// the archive for its own bucket before anything may replace it. New renders
// are written to a temporary sibling and renamed over the artifact.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/jbatonnet/Rboard/internal/archive"
	"github.com/jbatonnet/Rboard/internal/generation"
	"github.com/jbatonnet/Rboard/internal/journal"
	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/timebucket"
)

// Renderer produces the HTML render of a document at dst.
type Renderer interface {
	Render(ctx context.Context, doc *report.Document, dst string) error
}

// Recorder receives the outcome of every generation.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

type docState struct {
	// mu is held for reading while the artifact is archived and for writing
	// while a new render replaces it.
	mu sync.RWMutex
}

// Coordinator serves artifacts and keeps the archive of each document.
type Coordinator struct {
	fs       afero.Fs
	archives *archive.Store
	renderer Renderer
	recorder Recorder
	sched    *generation.Scheduler[report.Key, string]
	now      func() time.Time
	logger   *slog.Logger
	sweepMax int

	mu     sync.Mutex
	states map[report.Key]*docState
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for every freshness and bucket decision.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithRecorder records generation outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithSweepConcurrency bounds the number of documents swept at once.
func WithSweepConcurrency(n int) Option {
	return func(c *Coordinator) { c.sweepMax = n }
}

// New returns a Coordinator whose artifacts live in fsys.
func New(fsys afero.Fs, archives *archive.Store, renderer Renderer, opts ...Option) *Coordinator {
	c := &Coordinator{
		fs:       fsys,
		archives: archives,
		renderer: renderer,
		sched:    generation.New[report.Key, string](),
		now:      time.Now,
		logger:   slog.Default(),
		sweepMax: 4,
		states:   make(map[report.Key]*docState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// clock returns now in the archive location so that bucket comparisons and
// container dates agree.
func (c *Coordinator) clock() time.Time {
	return c.now().In(c.archives.Location())
}

// Location is the time zone buckets are computed in.
func (c *Coordinator) Location() *time.Location { return c.archives.Location() }

func (c *Coordinator) state(key report.Key) *docState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[key]
	if !ok {
		st = &docState{}
		c.states[key] = st
	}
	return st
}

// Access returns the path of an up to date artifact for doc.
//
// An artifact from an earlier archive bucket is archived first. An artifact
// younger than the refresh interval is returned as is unless force is set.
// Otherwise a generation is started or joined. When it fails, callers that
// did not force get the previous artifact if there is one.
func (c *Coordinator) Access(ctx context.Context, doc *report.Document, force bool) (string, error) {
	now := c.clock()
	artifact := doc.ArtifactPath()

	info, err := c.fs.Stat(artifact)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	if exists {
		c.rollover(doc, now)
		if !force && now.Before(info.ModTime().Add(doc.RefreshInterval)) {
			return artifact, nil
		}
	}

	path, err := c.sched.Do(ctx, doc.Key(), force, func(gctx context.Context) (string, error) {
		return c.generate(gctx, doc, force)
	})
	if err != nil {
		if ctx.Err() == nil && !force && exists {
			c.logger.Warn("serving previous render after failed generation", "report", doc.Key().String(), "error", err)
			return artifact, nil
		}
		return "", err
	}
	return path, nil
}

// Pending is an access running in the background.
type Pending struct {
	done chan struct{}
	path string
	err  error
}

// Done is closed when the access finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the access finished or ctx is done.
func (p *Pending) Wait(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return p.path, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Begin starts Access in the background. The access is not cancelled with ctx.
func (c *Coordinator) Begin(ctx context.Context, doc *report.Document, force bool) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.path, p.err = c.Access(context.WithoutCancel(ctx), doc, force)
	}()
	return p
}

// LastGenerated returns the current artifact of doc, if any.
func (c *Coordinator) LastGenerated(doc *report.Document) (string, bool) {
	path := doc.ArtifactPath()
	if _, err := c.fs.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Generating reports whether a generation is running for doc.
func (c *Coordinator) Generating(doc *report.Document) bool {
	return c.sched.InFlight(doc.Key())
}

// generate renders doc and replaces its artifact. It runs once per
// scheduler call. Without force, an artifact that became fresh since the
// caller looked at it is returned as is.
func (c *Coordinator) generate(ctx context.Context, doc *report.Document, force bool) (string, error) {
	key := doc.Key()
	started := c.clock()
	artifact := doc.ArtifactPath()

	if !force {
		fresh, err := c.fresh(doc, started)
		if err != nil {
			return "", err
		}
		if fresh {
			c.rollover(doc, started)
			return artifact, nil
		}
	}
	tmp := filepath.Join(filepath.Dir(artifact), doc.Stem()+".g.html")

	path, err := c.renderAndReplace(ctx, doc, started, artifact, tmp)

	entry := journal.Entry{
		Key:        key,
		StartedAt:  started,
		FinishedAt: c.clock(),
		Status:     journal.StatusSucceeded,
		Artifact:   path,
		Forced:     force,
	}
	if err != nil {
		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
		c.logger.Error("failed generating report", "report", key.String(), "error", err)
	} else {
		c.logger.Info("generated report", "report", key.String(), "duration", entry.Duration())
	}
	if c.recorder != nil {
		if rerr := c.recorder.Record(ctx, entry); rerr != nil {
			c.logger.Warn("failed to record generation", "report", key.String(), "error", rerr)
		}
	}
	return path, err
}

// fresh reports whether the artifact of doc exists and is inside its refresh
// window at now.
func (c *Coordinator) fresh(doc *report.Document, now time.Time) (bool, error) {
	info, err := c.fs.Stat(doc.ArtifactPath())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact: %w", err)
	}
	return now.Before(info.ModTime().Add(doc.RefreshInterval)), nil
}

func (c *Coordinator) renderAndReplace(ctx context.Context, doc *report.Document, now time.Time, artifact, tmp string) (string, error) {
	// The outgoing artifact must be in the archive before it is replaced.
	archived, err := c.archiveStale(doc, now)
	if err != nil {
		return "", fmt.Errorf("archive previous render: %w", err)
	}
	if archived {
		c.prune(doc, now)
	}

	c.logger.Info("generating report", "report", doc.Key().String(), "source", doc.SourcePath)
	if err := c.renderer.Render(ctx, doc, tmp); err != nil {
		if rmErr := c.fs.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			c.logger.Warn("failed to remove partial render", "path", tmp, "error", rmErr)
		}
		return "", err
	}

	st := c.state(doc.Key())
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := c.fs.Rename(tmp, artifact); err != nil {
		return "", fmt.Errorf("replace artifact: %w", err)
	}
	finished := c.clock()
	if err := c.fs.Chtimes(artifact, finished, finished); err != nil {
		return "", fmt.Errorf("stamp artifact: %w", err)
	}
	return artifact, nil
}

// rollover archives an artifact from an earlier bucket and prunes the
// document's archive. Failures are logged.
func (c *Coordinator) rollover(doc *report.Document, now time.Time) {
	archived, err := c.archiveStale(doc, now)
	if err != nil {
		c.logger.Error("failed archiving report", "report", doc.Key().String(), "error", err)
		return
	}
	if archived {
		c.prune(doc, now)
	}
}

func (c *Coordinator) prune(doc *report.Document, now time.Time) {
	if _, err := c.pruneAt(doc, now); err != nil {
		c.logger.Error("failed pruning archives", "report", doc.Key().String(), "error", err)
	}
}

// archiveStale copies the artifact into the archive of its bucket when that
// bucket is not the bucket of now. The artifact is read under the document's
// read lock and its bucket is checked again there, so a newer render is never
// archived in place of the outgoing one.
func (c *Coordinator) archiveStale(doc *report.Document, now time.Time) (bool, error) {
	st := c.state(doc.Key())
	st.mu.RLock()
	defer st.mu.RUnlock()

	artifact := doc.ArtifactPath()
	info, err := c.fs.Stat(artifact)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact: %w", err)
	}

	bucket := timebucket.RoundDown(info.ModTime().In(now.Location()), doc.ArchiveInterval)
	if bucket.Equal(timebucket.RoundDown(now, doc.ArchiveInterval)) {
		return false, nil
	}

	container := archive.ContainerName(bucket)
	entry := archive.EntryName(doc.Stem(), bucket)
	has, err := c.archives.HasEntry(container, entry)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	content, err := afero.ReadFile(c.fs, artifact)
	if err != nil {
		return false, fmt.Errorf("read artifact: %w", err)
	}
	written, err := c.archives.WriteEntry(container, entry, content)
	if err != nil {
		return false, err
	}
	if written {
		c.logger.Info("archived report", "report", doc.Key().String(), "container", container, "entry", entry)
	}
	return written, nil
}
