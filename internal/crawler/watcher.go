package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher keeps the index current after the initial crawl: filesystem
// events are debounced per path and replayed through the crawler's
// single-file pipeline.
type Watcher struct {
	crawler *Crawler
	fs      *fsnotify.Watcher
	log     *zap.Logger

	mu      sync.Mutex
	pending map[string]string // path -> root
	timer   *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher starts watching every configured root recursively.
func NewWatcher(c *Crawler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		crawler: c,
		fs:      fsw,
		log:     c.log,
		pending: make(map[string]string),
		done:    make(chan struct{}),
	}

	for _, root := range c.cfg.CrawlRoots() {
		if err := w.addRecursive(root); err != nil {
			w.log.Warn("watch registration incomplete", zap.String("root", root), zap.Error(err))
		}
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// addRecursive registers root and every non-excluded subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if path != root && w.crawler.excluded(root, path, true) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// rootOf resolves which configured root contains path.
func (w *Watcher) rootOf(path string) (string, bool) {
	for _, root := range w.crawler.cfg.CrawlRoots() {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}

// loop drains fsnotify events, schedules debounced processing, and
// registers newly created directories.
func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	root, ok := w.rootOf(event.Name)
	if !ok {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.Debug("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	debounce := time.Duration(w.crawler.cfg.Crawler.WatchDebounceMs) * time.Millisecond
	w.mu.Lock()
	w.pending[event.Name] = root
	if w.timer == nil {
		w.timer = time.AfterFunc(debounce, w.flush)
	} else {
		w.timer.Reset(debounce)
	}
	w.mu.Unlock()
}

// flush replays the debounced set through the single-file pipeline.
func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]string)
	w.timer = nil
	w.mu.Unlock()

	for path, root := range batch {
		select {
		case <-w.done:
			return
		default:
		}
		w.crawler.processOne(root, path)
	}
	w.crawler.svc.RefreshDerived()
}

// Close stops event processing.
func (w *Watcher) Close() {
	close(w.done)
	w.fs.Close()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.wg.Wait()
}
