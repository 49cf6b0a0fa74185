// Package watch triggers a callback when watched files change on disk.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is how long changes are collected before the callback runs.
const DefaultDelay = 500 * time.Millisecond

// Watcher watches a set of files through their parent directories, so that
// editors replacing a file by rename are still observed.
type Watcher struct {
	watcher   *fsnotify.Watcher
	files     map[string]bool
	debouncer *Debouncer
	logger    *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// New watches files and calls onChange with the changed paths once they have
// been quiet for delay.
func New(files []string, delay time.Duration, onChange func([]string), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:   fw,
		files:     make(map[string]bool),
		debouncer: NewDebouncer(delay, onChange),
		logger:    logger,
		done:      make(chan struct{}),
	}

	dirs := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Start runs the event loop in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.eventLoop()
}

// Stop stops watching. Pending changes are dropped.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
	w.debouncer.Stop()
	w.wg.Wait()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || !w.files[abs] {
		return
	}
	w.logger.Debug("watched file changed", "path", abs, "op", event.Op.String())
	w.debouncer.Add(abs)
}

// Debouncer collects values and flushes them once no value was added for
// its delay.
type Debouncer struct {
	pending []string
	timer   *time.Timer
	mu      sync.Mutex
	onFlush func([]string)
	delay   time.Duration
	stopped bool
}

// NewDebouncer creates a debouncer flushing to onFlush.
func NewDebouncer(delay time.Duration, onFlush func([]string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{onFlush: onFlush, delay: delay}
}

// Add queues path, deduplicated, and restarts the delay.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if !slices.Contains(d.pending, path) {
		d.pending = append(d.pending, path)
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	paths := d.pending
	d.pending = nil
	stopped := d.stopped
	d.mu.Unlock()

	if !stopped && len(paths) > 0 && d.onFlush != nil {
		d.onFlush(paths)
	}
}

// Stop cancels any pending flush.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
