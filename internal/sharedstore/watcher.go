package sharedstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcherDebounce batches rapid file changes.
const watcherDebounce = 100 * time.Millisecond

// Change reports a commit to the container made by another store handle,
// typically the other process.
type Change struct {
	Path   string
	Writer string
	At     time.Time
}

// Watcher monitors a store's backing file and signals commits made by other
// writers. It is advisory: a consumer that misses an event still reads the
// latest committed values on its next read.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	src       Watchable
	events    chan Change
	stop      chan struct{}
	done      chan struct{}
	logger    *slog.Logger

	stopOnce sync.Once
	mu       sync.Mutex
	stopped  bool
	timer    *time.Timer
}

// NewWatcher starts watching src's container directory.
func NewWatcher(src Watchable, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the parent directory: atomic renames replace the file's inode.
	dir := filepath.Dir(src.WatchPath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsw,
		src:       src,
		events:    make(chan Change, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger,
	}
	go w.run()
	return w, nil
}

// Events returns a channel that receives a Change after each foreign
// commit. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Change {
	return w.events
}

// Stop shuts the watcher down and waits for its goroutine. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.fsWatcher.Close()
	})
	<-w.done
}

// matches reports whether an event name belongs to the watched file,
// including SQLite's -wal and -journal siblings.
func (w *Watcher) matches(name string) bool {
	base := filepath.Base(w.src.WatchPath())
	got := filepath.Base(name)
	if got == base {
		return true
	}
	return strings.HasPrefix(got, base+"-wal") || strings.HasPrefix(got, base+"-journal")
}

func (w *Watcher) run() {
	defer func() {
		w.mu.Lock()
		w.stopped = true
		if w.timer != nil {
			w.timer.Stop()
		}
		close(w.events)
		w.mu.Unlock()
		close(w.done)
	}()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("sharedstore: watch event", "op", event.Op, "name", event.Name)
			w.schedule()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("sharedstore: watch error", "err", err)
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watcherDebounce, w.fire)
}

// fire emits a Change unless the latest commit was this handle's own.
func (w *Watcher) fire() {
	writer := w.src.LastWriter()
	if writer != "" && writer == w.src.WriterID() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- Change{Path: w.src.WatchPath(), Writer: writer, At: time.Now()}:
	default: // Channel full, consumer will re-read anyway
	}
}
