// Package crawler walks the configured roots, reconciles them against
// the index, and feeds extracted documents through a batched single
// writer. Producers parallelize discovery and extraction; one consumer
// owns every index mutation.
package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcplucene/mcplucene/internal/config"
	"github.com/mcplucene/mcplucene/internal/document"
	"github.com/mcplucene/mcplucene/internal/extract"
	"github.com/mcplucene/mcplucene/internal/index"
	"github.com/mcplucene/mcplucene/internal/stats"
)

// State is the crawler lifecycle.
type State string

const (
	StateIdle     State = "Idle"
	StateCrawling State = "Crawling"
	StatePaused   State = "Paused"
	StateWatching State = "Watching"
)

// Mode names for the persisted last-crawl record.
const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)

// pauseCheckInterval is how often blocked workers re-check the pause
// flag; pause is advisory and only observed at safe points.
const pauseCheckInterval = 100 * time.Millisecond

// item is one extracted document queued for the consumer.
type item struct {
	root   string
	id     string
	fields map[string]interface{}
	size   int64
}

// discovered is one file surviving include/exclude matching.
type discovered struct {
	root string
	path string
	info os.FileInfo
}

// Notifier receives progress updates; the MCP layer forwards them to the
// client.
type Notifier func(snapshot stats.CrawlSnapshot)

// Crawler drives discovery, reconciliation, and batched indexing.
type Crawler struct {
	cfg       *config.Config
	svc       *index.Service
	extractor *extract.Extractor
	log       *zap.Logger
	stats     *stats.CrawlStats

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	runDone chan struct{}

	paused  atomic.Bool
	pending atomic.Int64

	watcher *Watcher
	notify  Notifier

	lastNotifyFiles atomic.Int64
	lastNotifyAt    atomic.Int64
}

// New wires a crawler. The index service learns to refuse optimize while
// a crawl is active.
func New(cfg *config.Config, svc *index.Service, extractor *extract.Extractor, log *zap.Logger) *Crawler {
	c := &Crawler{
		cfg:       cfg,
		svc:       svc,
		extractor: extractor,
		log:       log,
		stats:     stats.NewCrawlStats(),
		state:     StateIdle,
	}
	svc.SetCrawlerActiveCheck(func() bool {
		s := c.State()
		return s == StateCrawling || s == StatePaused
	})
	return c
}

// SetNotifier installs the progress callback.
func (c *Crawler) SetNotifier(n Notifier) {
	c.mu.Lock()
	c.notify = n
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Crawler) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats snapshots the current counters.
func (c *Crawler) Stats() stats.CrawlSnapshot {
	return c.stats.Snapshot()
}

// Start launches a crawl over the configured roots. Only Idle and
// Watching accept a start; Watching is wound down first.
func (c *Crawler) Start(fullReindex bool) error {
	c.mu.Lock()
	switch c.state {
	case StateCrawling, StatePaused:
		c.mu.Unlock()
		return fmt.Errorf("crawl already running")
	case StateWatching:
		c.stopWatcherLocked()
	}
	roots := c.cfg.CrawlRoots()
	if len(roots) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("no crawl directories configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.runDone = make(chan struct{})
	c.state = StateCrawling
	c.paused.Store(false)
	c.stats.Reset()
	done := c.runDone
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx, roots, fullReindex)
	}()
	return nil
}

// Pause requests producers and the consumer to hold at their next safe
// point.
func (c *Crawler) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCrawling {
		return fmt.Errorf("crawler is not crawling")
	}
	c.paused.Store(true)
	c.state = StatePaused
	return nil
}

// Resume releases a pause.
func (c *Crawler) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return fmt.Errorf("crawler is not paused")
	}
	c.paused.Store(false)
	c.state = StateCrawling
	return nil
}

// Stop cancels any crawl and watch activity and returns to Idle.
func (c *Crawler) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.runDone
	c.stopWatcherLocked()
	c.paused.Store(false)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			c.log.Warn("crawl did not stop within 10s; abandoning wait")
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	c.cancel = nil
	c.runDone = nil
	c.mu.Unlock()
}

func (c *Crawler) stopWatcherLocked() {
	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}
}

// waitIfPaused blocks at a safe point while the pause flag is set.
func (c *Crawler) waitIfPaused(ctx context.Context) bool {
	for c.paused.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pauseCheckInterval):
		}
	}
	return ctx.Err() == nil
}

// run executes one crawl: snapshot, reconcile, delete, extract, batch.
func (c *Crawler) run(ctx context.Context, roots []string, full bool) {
	mode := ModeIncremental
	if full {
		mode = ModeFull
	}
	c.log.Info("crawl starting", zap.Strings("roots", roots), zap.String("mode", mode))

	fsSnapshot, fileIndex, err := c.discover(ctx, roots)
	if err != nil {
		c.log.Error("discovery failed", zap.Error(err))
		c.finish(ctx, mode, false)
		return
	}

	indexSnapshot, err := c.svc.PathSnapshot()
	if err != nil {
		c.log.Error("index snapshot failed", zap.Error(err))
		c.finish(ctx, mode, false)
		return
	}

	diff := Reconcile(indexSnapshot, fsSnapshot, full)
	c.stats.AddDeleted(int64(len(diff.Delete)))
	for range diff.Skip {
		c.stats.AddSkipped()
	}
	if len(diff.Delete) > 0 {
		if err := c.svc.DeleteByPaths(diff.Delete); err != nil {
			c.log.Error("reconciliation delete failed", zap.Error(err))
		}
	}

	work := append(append([]string{}, diff.Add...), diff.Update...)
	c.pending.Store(int64(len(work)))
	c.svc.SetBulkMode(len(work) > c.cfg.Index.BulkIndexThreshold)
	defer c.svc.SetBulkMode(false)

	c.log.Info("reconciliation complete",
		zap.Int("add", len(diff.Add)),
		zap.Int("update", len(diff.Update)),
		zap.Int("delete", len(diff.Delete)),
		zap.Int("skip", len(diff.Skip)))

	if len(work) > 0 {
		c.process(ctx, work, fileIndex)
	}

	c.finish(ctx, mode, full)
}

// discover walks every root with one producer per root, bounded by the
// worker pool size, building the filesystem snapshot.
func (c *Crawler) discover(ctx context.Context, roots []string) (map[string]int64, map[string]discovered, error) {
	var mu sync.Mutex
	snapshot := make(map[string]int64)
	files := make(map[string]discovered)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Crawler.ThreadPoolSize)
	for _, root := range roots {
		g.Go(func() error {
			return c.walkRoot(gctx, root, func(d discovered) {
				mu.Lock()
				snapshot[d.path] = d.info.ModTime().UnixMilli()
				files[d.path] = d
				mu.Unlock()
				c.stats.AddFound(d.root, 1)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return snapshot, files, nil
}

// walkRoot applies include/exclude globs and the symlink cycle guard.
func (c *Crawler) walkRoot(ctx context.Context, root string, emit func(discovered)) error {
	visited := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			c.log.Debug("walk error; continuing", zap.String("path", path), zap.Error(walkErr))
			return nil
		}
		if !c.waitIfPaused(ctx) {
			return ctx.Err()
		}

		if info.IsDir() {
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				return filepath.SkipDir
			}
			if visited[real] {
				return filepath.SkipDir
			}
			visited[real] = true

			if path != root && c.excluded(root, path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 && !c.cfg.Crawler.FollowSymlinks {
			return nil
		}
		if info.Size() > c.cfg.Crawler.MaxFileSize {
			return nil
		}
		if c.excluded(root, path, false) || !c.included(root, path) {
			return nil
		}

		emit(discovered{root: root, path: path, info: info})
		return nil
	})
}

func (c *Crawler) relSlash(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

// excluded reports whether any exclude glob matches.
func (c *Crawler) excluded(root, path string, isDir bool) bool {
	rel := c.relSlash(root, path)
	for _, pattern := range c.cfg.Crawler.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// included reports whether at least one include glob matches.
func (c *Crawler) included(root, path string) bool {
	rel := c.relSlash(root, path)
	for _, pattern := range c.cfg.Crawler.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// process runs the producer pool and the single consumer over the
// ADD ∪ UPDATE work list.
func (c *Crawler) process(ctx context.Context, work []string, files map[string]discovered) {
	queue := make(chan item, c.cfg.Crawler.QueueCapacity)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.consume(ctx, queue)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Crawler.ThreadPoolSize)
	for _, path := range work {
		d, ok := files[path]
		if !ok {
			continue
		}
		g.Go(func() error {
			if !c.waitIfPaused(gctx) {
				return gctx.Err()
			}
			c.produce(gctx, d, queue)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Debug("producer pool stopped", zap.Error(err))
	}
	close(queue)
	wg.Wait()
}

// produce extracts one file and enqueues the built document. A send on
// the full bounded queue blocks the producing worker itself, which is
// the back-pressure policy: the caller runs (waits) instead of growing
// memory.
func (c *Crawler) produce(ctx context.Context, d discovered, queue chan<- item) {
	defer func() {
		// Restore the base refresh interval once the pending backlog has
		// fallen back to the bulk threshold.
		if c.pending.Add(-1) == int64(c.cfg.Index.BulkIndexThreshold) {
			c.svc.SetBulkMode(false)
		}
	}()

	c.stats.MarkProcessing(d.path)
	src, err := c.extractor.Extract(d.path, d.info)
	if err != nil {
		c.stats.AddFailed(d.root)
		c.log.Debug("extraction failed", zap.String("path", d.path), zap.Error(err))
		return
	}
	c.stats.AddProcessed(d.info.Size())
	c.maybeNotify()

	// Content-hash check happens here, during processing: an unchanged
	// document is never rewritten.
	stored, err := c.svc.StoredContentHash(d.path)
	if err == nil && stored != "" && stored == document.ContentHash(src.Text) {
		c.stats.AddSkipped()
		return
	}

	id, fields := document.Build(src, time.Now())
	select {
	case queue <- item{root: d.root, id: id, fields: fields, size: d.info.Size()}:
	case <-ctx.Done():
	}
}

// consume is the single writer: it drains the queue into batches,
// flushing on size or on timeout since the batch's first item, and
// commits once per flush.
func (c *Crawler) consume(ctx context.Context, queue <-chan item) {
	batchSize := c.cfg.Crawler.BatchSize
	timeout := time.Duration(c.cfg.Crawler.BatchTimeoutMs) * time.Millisecond

	batch := make([]item, 0, batchSize)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		adds := make(map[string]map[string]interface{}, len(batch))
		for _, it := range batch {
			adds[it.id] = it.fields
		}
		if err := c.svc.ApplyBatch(adds, nil); err != nil {
			c.log.Error("batch commit failed", zap.Int("size", len(batch)), zap.Error(err))
			for _, it := range batch {
				c.stats.AddFailed(it.root)
			}
		} else {
			for _, it := range batch {
				c.stats.AddIndexed(it.root, it.size)
			}
		}
		batch = batch[:0]
	}

	for {
		if !c.waitIfPaused(ctx) {
			flush()
			return
		}
		select {
		case it, ok := <-queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, it)
			if len(batch) == 1 {
				timer = time.NewTimer(timeout)
				timerC = timer.C
			}
			if len(batch) >= batchSize {
				flush()
			}
		case <-timerC:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

// maybeNotify emits a progress notification every N processed files or
// every interval, whichever comes first.
func (c *Crawler) maybeNotify() {
	c.mu.Lock()
	notify := c.notify
	c.mu.Unlock()
	if notify == nil {
		return
	}

	processed := c.stats.FilesProcessed()
	nowMs := time.Now().UnixMilli()
	byCount := processed-c.lastNotifyFiles.Load() >= int64(c.cfg.Crawler.ProgressNotificationFiles)
	byTime := nowMs-c.lastNotifyAt.Load() >= int64(c.cfg.Crawler.ProgressNotificationIntervalMs)
	if !byCount && !byTime {
		return
	}
	c.lastNotifyFiles.Store(processed)
	c.lastNotifyAt.Store(nowMs)
	notify(c.stats.Snapshot())
}

// finish refreshes derived caches, records the last-crawl state, and
// settles into Watching or Idle.
func (c *Crawler) finish(ctx context.Context, mode string, full bool) {
	c.svc.RefreshDerived()
	if full {
		c.svc.ClearSchemaUpgrade()
	}

	if rc := c.cfg.Runtime; rc != nil && ctx.Err() == nil {
		count, err := c.svc.DocCount()
		if err == nil {
			if err := rc.RecordCrawl(config.LastCrawl{
				CompletionTimeMs: time.Now().UnixMilli(),
				DocumentCount:    count,
				Mode:             mode,
			}); err != nil {
				c.log.Warn("failed to persist last-crawl state", zap.Error(err))
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		c.state = StateIdle
		return
	}
	if c.cfg.Crawler.WatchMode {
		w, err := NewWatcher(c)
		if err != nil {
			c.log.Error("watch mode unavailable", zap.Error(err))
			c.state = StateIdle
			return
		}
		c.watcher = w
		c.state = StateWatching
		return
	}
	c.state = StateIdle

	snap := c.stats.Snapshot()
	c.log.Info("crawl finished",
		zap.Int64("found", snap.FilesFound),
		zap.Int64("indexed", snap.FilesIndexed),
		zap.Int64("skipped", snap.FilesSkipped),
		zap.Int64("deleted", snap.FilesDeleted),
		zap.Int64("failed", snap.FilesFailed))
}

// WaitIdle blocks until the current crawl run completes, for the CLI's
// one-shot mode and tests.
func (c *Crawler) WaitIdle(timeout time.Duration) bool {
	c.mu.Lock()
	done := c.runDone
	c.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// processOne handles a single changed path from watch mode: a missing
// file deletes, anything else re-extracts and upserts through the same
// hash check.
func (c *Crawler) processOne(root, path string) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if derr := c.svc.DeleteByPaths([]string{path}); derr != nil {
			c.log.Warn("watch delete failed", zap.String("path", path), zap.Error(derr))
			return
		}
		c.stats.AddDeleted(1)
		return
	}
	if err != nil || info.IsDir() {
		return
	}
	if c.excluded(root, path, false) || !c.included(root, path) {
		return
	}
	if info.Size() > c.cfg.Crawler.MaxFileSize {
		return
	}

	src, err := c.extractor.Extract(path, info)
	if err != nil {
		c.stats.AddFailed(root)
		return
	}
	stored, err := c.svc.StoredContentHash(path)
	if err == nil && stored != "" && stored == document.ContentHash(src.Text) {
		c.stats.AddSkipped()
		return
	}
	id, fields := document.Build(src, time.Now())
	if err := c.svc.Upsert(id, fields); err != nil {
		c.stats.AddFailed(root)
		return
	}
	c.stats.AddIndexed(root, info.Size())
}
