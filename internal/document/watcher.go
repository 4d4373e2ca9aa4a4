package document

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ghostprompt/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher mirrors files under a directory into a Workspace: writes become
// Open/Change events and removals become Close events.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	ws          *Workspace
	dir         string
	filter      func(path string) bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	FilesOpened   int
	FilesChanged  int
	FilesClosed   int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is synced.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounceDur = d }
}

// WithFilter restricts watched files; returning false skips the path.
func WithFilter(f func(path string) bool) WatcherOption {
	return func(w *Watcher) { w.filter = f }
}

// NewWatcher creates a watcher for dir feeding ws.
func NewWatcher(dir string, ws *Workspace, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:     fw,
		ws:          ws,
		dir:         dir,
		filter:      func(string) bool { return true },
		debounceMap: make(map[string]time.Time),
		debounceDur: 100 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds dir and its subdirectories to the watch list and starts the
// event loop. It is non-blocking and idempotent.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Workspace("Watcher: watching %s", w.dir)

	go w.run(ctx)
	return nil
}

// Stop stops the event loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWorkspace).Error("Watcher: error closing watcher: %v", err)
	}
	logging.Workspace("Watcher: stopped")
}

// Stats returns a copy of the watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			logging.Get(logging.CategoryWorkspace).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebouncedEvents()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				logging.WorkspaceWarn("Watcher: cannot watch new dir %s: %v", event.Name, err)
			}
			return
		}
	}
	if !w.filter(event.Name) {
		return
	}

	w.mu.Lock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebouncedEvents() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.sync(path)
	}
}

// sync reconciles a single path with the workspace.
func (w *Watcher) sync(path string) {
	uri := FileURI(path)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.ws.Close(uri)
			w.mu.Lock()
			w.stats.FilesClosed++
			w.mu.Unlock()
			return
		}
		logging.Get(logging.CategoryWorkspace).Error("Watcher: failed to read %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	text := string(content)
	if doc, err := w.ws.Get(context.Background(), uri); err == nil {
		if doc.GetText() == text {
			return
		}
		if _, err := w.ws.Change(uri, text); err == nil {
			w.mu.Lock()
			w.stats.FilesChanged++
			w.mu.Unlock()
		}
		return
	}
	w.ws.Open(uri, LanguageForPath(path), text)
	w.mu.Lock()
	w.stats.FilesOpened++
	w.mu.Unlock()
}

// OpenDir opens every regular file under dir accepted by filter.
func OpenDir(ws *Workspace, dir string, filter func(path string) bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filter != nil && !filter(path) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		ws.Open(FileURI(path), LanguageForPath(path), string(content))
		return nil
	})
}
