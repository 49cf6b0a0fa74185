// Package archive stores superseded renders in per-day zip containers.
//
// Containers are replaced atomically: a writer builds the new container in a
// temporary file and renames it over the old one. Readers therefore take no
// lock and always observe a complete container.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned when a container or an entry does not exist.
	ErrNotFound = errors.New("archive entry not found")

	// ErrCorrupt wraps failures to decode an existing container.
	ErrCorrupt = errors.New("archive container is corrupt")
)

const lockFileName = ".lock"

// Store manages the containers of one archives directory.
type Store struct {
	fs     afero.Fs
	dir    string
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the location used to interpret container and entry dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock that stamps entry modification times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store over dir in fsys.
func New(fsys afero.Fs, dir string, opts ...Option) *Store {
	s := &Store{
		fs:     fsys,
		dir:    dir,
		loc:    time.Local,
		now:    time.Now,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOsStore returns a Store over dir on the host filesystem.
func NewOsStore(dir string, opts ...Option) *Store {
	return New(afero.NewOsFs(), dir, opts...)
}

// Dir returns the archives directory.
func (s *Store) Dir() string { return s.dir }

// Location returns the location used for container and entry dates.
func (s *Store) Location() *time.Location { return s.loc }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// EnsureContainer creates an empty container when name does not exist yet.
func (s *Store) EnsureContainer(name string) error {
	return s.rewrite(name, func(_ []*zip.File, _ *zip.Writer, exists bool) (bool, error) {
		return !exists, nil
	})
}

// HasEntry reports whether the container holds entry. A missing container
// holds nothing.
func (s *Store) HasEntry(name, entry string) (bool, error) {
	files, err := s.read(name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return find(files, entry) != nil, nil
}

// WriteEntry stores content under entry unless it is already present.
// written is false when the entry existed; its content is left untouched.
func (s *Store) WriteEntry(name, entry string, content []byte) (written bool, err error) {
	err = s.rewrite(name, func(files []*zip.File, w *zip.Writer, _ bool) (bool, error) {
		if find(files, entry) != nil {
			return false, nil
		}
		for _, f := range files {
			if err := w.Copy(f); err != nil {
				return false, fmt.Errorf("copy entry %s: %w", f.Name, err)
			}
		}
		dst, err := w.CreateHeader(&zip.FileHeader{
			Name:     entry,
			Method:   zip.Deflate,
			Modified: s.now(),
		})
		if err != nil {
			return false, fmt.Errorf("create entry %s: %w", entry, err)
		}
		if _, err := dst.Write(content); err != nil {
			return false, fmt.Errorf("write entry %s: %w", entry, err)
		}
		written = true
		return true, nil
	})
	return written, err
}

// ReadEntry returns the content of entry. It returns ErrNotFound when the
// container or the entry does not exist.
func (s *Store) ReadEntry(name, entry string) ([]byte, error) {
	files, err := s.read(name)
	if err != nil {
		return nil, err
	}
	f := find(files, entry)
	if f == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, entry, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return data, nil
}

// DeleteEntry removes entry from the container.
func (s *Store) DeleteEntry(name, entry string) (bool, error) {
	n, err := s.DeleteEntries(name, func(e string) bool { return e == entry })
	return n > 0, err
}

// DeleteEntries removes every entry for which match returns true and reports
// how many were removed. A missing container removes nothing.
func (s *Store) DeleteEntries(name string, match func(entry string) bool) (int, error) {
	removed := 0
	err := s.rewrite(name, func(files []*zip.File, w *zip.Writer, exists bool) (bool, error) {
		if !exists {
			return false, nil
		}
		for _, f := range files {
			if match(f.Name) {
				removed++
			}
		}
		if removed == 0 {
			return false, nil
		}
		for _, f := range files {
			if match(f.Name) {
				continue
			}
			if err := w.Copy(f); err != nil {
				return false, fmt.Errorf("copy entry %s: %w", f.Name, err)
			}
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteContainerIfEmpty removes the container when it holds no entry.
func (s *Store) DeleteContainerIfEmpty(name string) (bool, error) {
	deleted := false
	err := s.withLock(name, func() error {
		files, err := s.read(name)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(files) > 0 {
			return nil
		}
		if err := s.fs.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove container %s: %w", name, err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Containers lists the containers of the archives directory sorted by date.
// Files whose name is not a container name are skipped.
func (s *Store) Containers() ([]Container, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list archives %s: %w", s.dir, err)
	}
	var out []Container
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		date, ok := ParseContainerName(info.Name(), s.loc)
		if !ok {
			continue
		}
		out = append(out, Container{Name: info.Name(), Date: date})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Entries lists the entry names of a container.
func (s *Store) Entries(name string) ([]string, error) {
	files, err := s.read(name)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// read decodes the current container without locking.
func (s *Store) read(name string) ([]*zip.File, error) {
	data, err := afero.ReadFile(s.fs, s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read container %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	r.RegisterDecompressor(zip.Deflate, flate.NewReader)
	return r.File, nil
}

type rewriteFunc func(files []*zip.File, w *zip.Writer, exists bool) (changed bool, err error)

// rewrite builds a replacement for the container under its write lock. The
// replacement is committed only when fn reports a change.
func (s *Store) rewrite(name string, fn rewriteFunc) error {
	return s.withLock(name, func() error {
		files, err := s.read(name)
		exists := true
		if errors.Is(err, ErrNotFound) {
			exists = false
		} else if err != nil {
			return err
		}

		var buf bytes.Buffer
		w := zip.NewWriter(&buf)
		w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.DefaultCompression)
		})
		changed, err := fn(files, w, exists)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finish container %s: %w", name, err)
		}
		return s.replace(name, buf.Bytes())
	})
}

// replace writes data to a temporary sibling and renames it over name.
func (s *Store) replace(name string, data []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create archives dir %s: %w", s.dir, err)
	}
	tmp := s.path("." + name + "." + uuid.NewString() + ".tmp")
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write container %s: %w", name, err)
	}
	if err := s.fs.Rename(tmp, s.path(name)); err != nil {
		if rmErr := s.fs.Remove(tmp); rmErr != nil {
			s.logger.Warn("failed to remove temporary container", "path", tmp, "error", rmErr)
		}
		return fmt.Errorf("commit container %s: %w", name, err)
	}
	return nil
}

// withLock runs fn holding the in-process lock of the container and, on the
// host filesystem, the directory-wide file lock.
func (s *Store) withLock(name string, fn func() error) error {
	m := s.containerLock(name)
	m.Lock()
	defer m.Unlock()

	if _, ok := s.fs.(*afero.OsFs); !ok {
		return fn()
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create archives dir %s: %w", s.dir, err)
	}
	flk := flock.New(s.path(lockFileName))
	if err := flk.Lock(); err != nil {
		return fmt.Errorf("lock archives: %w", err)
	}
	defer func() {
		if unlockErr := flk.Unlock(); unlockErr != nil {
			s.logger.Warn("failed to unlock archives", "error", unlockErr)
		}
	}()
	return fn()
}

func (s *Store) containerLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	return m
}

func find(files []*zip.File, entry string) *zip.File {
	for _, f := range files {
		if f.Name == entry {
			return f
		}
	}
	return nil
}
