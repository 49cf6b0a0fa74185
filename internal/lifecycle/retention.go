package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbatonnet/Rboard/internal/archive"
	"github.com/jbatonnet/Rboard/internal/report"
	"github.com/jbatonnet/Rboard/internal/timebucket"
)

// PruneResult summarizes a prune of one document.
type PruneResult struct {
	EntriesRemoved    int
	ContainersDeleted int
}

// horizon is the retention boundary of doc: buckets at or before it are
// deleted, buckets after it are kept.
func horizon(doc *report.Document, now time.Time) time.Time {
	return timebucket.Shift(now, -doc.DeleteInterval)
}

// Prune deletes the archive entries of doc whose bucket is at or before
// now - DeleteInterval, then deletes the containers left empty. A failing
// container does not stop the others; the failures are joined.
func (c *Coordinator) Prune(doc *report.Document) (PruneResult, error) {
	return c.pruneAt(doc, c.clock())
}

func (c *Coordinator) pruneAt(doc *report.Document, now time.Time) (PruneResult, error) {
	var res PruneResult
	h := horizon(doc, now)
	lastDate := timebucket.RoundDown(h, timebucket.Day)
	loc := c.archives.Location()
	stem := doc.Stem()

	containers, err := c.archives.Containers()
	if err != nil {
		return res, err
	}

	var errs []error
	for _, ct := range containers {
		if ct.Date.After(lastDate) {
			continue
		}
		removed, err := c.archives.DeleteEntries(ct.Name, func(entry string) bool {
			s, bucket, ok := archive.ParseEntryName(entry, loc)
			return ok && strings.EqualFold(s, stem) && !bucket.After(h)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", ct.Name, err))
			continue
		}
		res.EntriesRemoved += removed

		deleted, err := c.archives.DeleteContainerIfEmpty(ct.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("reclaim %s: %w", ct.Name, err))
			continue
		}
		if deleted {
			res.ContainersDeleted++
		}
	}
	if res.EntriesRemoved > 0 || res.ContainersDeleted > 0 {
		c.logger.Info("pruned archives", "report", doc.Key().String(),
			"entries", res.EntriesRemoved, "containers", res.ContainersDeleted)
	}
	return res, errors.Join(errs...)
}

// ListArchiveBuckets yields the archive buckets of doc, newest first, from the
// bucket before the current one down to the retention horizon, exclusive.
// With onlyExisting, buckets without an archived entry are skipped.
func (c *Coordinator) ListArchiveBuckets(doc *report.Document, onlyExisting bool) iter.Seq[time.Time] {
	now := c.clock()
	return func(yield func(time.Time) bool) {
		if doc.ArchiveInterval <= 0 {
			return
		}
		h := horizon(doc, now)
		stem := doc.Stem()
		current := timebucket.RoundDown(now, doc.ArchiveInterval)

		for b := timebucket.Shift(current, -doc.ArchiveInterval); b.After(h); b = timebucket.Shift(b, -doc.ArchiveInterval) {
			if onlyExisting {
				ok, err := c.archives.HasEntry(archive.ContainerName(b), archive.EntryName(stem, b))
				if err != nil {
					c.logger.Warn("skipping unreadable archive", "report", doc.Key().String(), "bucket", timebucket.FormatBucket(b), "error", err)
					continue
				}
				if !ok {
					continue
				}
			}
			if !yield(b) {
				return
			}
		}
	}
}

// ReadArchivedArtifact returns the archived render of doc for bucket. ok is
// false when nothing was archived for that bucket.
func (c *Coordinator) ReadArchivedArtifact(doc *report.Document, bucket time.Time) (content []byte, ok bool, err error) {
	bucket = bucket.In(c.archives.Location())
	content, err = c.archives.ReadEntry(archive.ContainerName(bucket), archive.EntryName(doc.Stem(), bucket))
	if errors.Is(err, archive.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// Sweep rolls over and prunes every document. One document failing does not
// stop the others; the failures are joined.
func (c *Coordinator) Sweep(ctx context.Context, docs []*report.Document) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	if c.sweepMax > 0 {
		g.SetLimit(c.sweepMax)
	}
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			now := c.clock()
			if _, err := c.archiveStale(doc, now); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("archive %s: %w", doc.Key(), err))
				mu.Unlock()
			}
			if _, err := c.pruneAt(doc, now); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("prune %s: %w", doc.Key(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
