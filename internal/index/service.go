// Package index owns the on-disk bleve index: lifecycle, commit
// metadata, the NRT refresh scheduler, bulk mutation, and the admin
// operation state machine. It is the only package that writes documents.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/mcplucene/mcplucene/internal/config"
	"github.com/mcplucene/mcplucene/internal/document"
	"github.com/mcplucene/mcplucene/internal/stats"
	"github.com/mcplucene/mcplucene/internal/version"
)

// Internal metadata keys persisted with every commit.
const (
	metaSchemaVersion   = "schema_version"
	metaSoftwareVersion = "software_version"
)

// LockFileName is the writer lock inside the index directory.
const LockFileName = "write.lock"

// snapshotPageSize pages the reconciliation snapshot scan.
const snapshotPageSize = 1000

// Service holds the index handle and everything derived from it.
type Service struct {
	cfg *config.Config
	log *zap.Logger

	mu   sync.RWMutex // guards idx swap during full purge
	idx  bleve.Index
	path string
	lock *flock.Flock

	schemaUpgradeRequired bool
	openedAt              time.Time

	langDist atomic.Pointer[LanguageDistribution]
	timings  *stats.QueryTimings

	refreshSlow atomic.Bool
	refreshStop chan struct{}
	refreshDone chan struct{}

	admin *adminRunner

	closed atomic.Bool
}

// Open creates the directory if needed, acquires the writer lock, opens
// or creates the index, checks the committed schema version, and stamps
// current metadata.
func Open(cfg *config.Config, log *zap.Logger) (*Service, error) {
	path := cfg.Index.Path
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(path, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index is locked by another process (%s)", lock.Path())
	}

	s := &Service{
		cfg:         cfg,
		log:         log,
		path:        path,
		lock:        lock,
		timings:     stats.NewQueryTimings(),
		refreshStop: make(chan struct{}),
		refreshDone: make(chan struct{}),
		openedAt:    time.Now(),
	}
	s.langDist.Store(emptyDistribution())
	s.admin = newAdminRunner(s, log)

	if err := s.openIndex(); err != nil {
		lock.Unlock()
		return nil, err
	}

	go s.refreshLoop()
	return s, nil
}

// openIndex opens or creates the bleve index at s.path and reconciles
// the committed schema version. Caller must hold the writer lock.
func (s *Service) openIndex() error {
	idx, err := bleve.Open(s.path)
	if err == bleve.ErrorIndexPathDoesNotExist || err == bleve.ErrorIndexMetaMissing {
		im, mErr := document.BuildIndexMapping(s.cfg.Analysis.LemmaLanguages)
		if mErr != nil {
			return mErr
		}
		idx, err = bleve.New(s.path, im)
	}
	if err != nil {
		return fmt.Errorf("open index at %s: %w", s.path, err)
	}

	stored, err := idx.GetInternal([]byte(metaSchemaVersion))
	if err != nil {
		idx.Close()
		return fmt.Errorf("read schema version: %w", err)
	}
	if len(stored) == 0 {
		s.schemaUpgradeRequired = true
		s.log.Warn("no committed schema version; full reindex required")
	} else if v, convErr := strconv.Atoi(string(stored)); convErr != nil || v != document.SchemaVersion {
		s.schemaUpgradeRequired = true
		s.log.Warn("schema version mismatch; full reindex required",
			zap.String("stored", string(stored)),
			zap.Int("current", document.SchemaVersion))
	}

	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()

	if err := s.commitMeta(); err != nil {
		return err
	}
	s.RefreshDerived()
	return nil
}

// commitMeta stamps the current schema and software versions into the
// index's internal metadata; every mutation path calls it.
func (s *Service) commitMeta() error {
	idx, err := s.indexOrErr()
	if err != nil {
		return err
	}
	if err := idx.SetInternal([]byte(metaSchemaVersion), []byte(strconv.Itoa(document.SchemaVersion))); err != nil {
		return fmt.Errorf("commit schema version: %w", err)
	}
	if err := idx.SetInternal([]byte(metaSoftwareVersion), []byte(version.Version)); err != nil {
		return fmt.Errorf("commit software version: %w", err)
	}
	return nil
}

func (s *Service) index() bleve.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// indexOrErr guards the window during a full purge (and after Close)
// where no index handle exists.
func (s *Service) indexOrErr() (bleve.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, fmt.Errorf("index is not open")
	}
	return s.idx, nil
}

// SchemaUpgradeRequired reports whether the committed schema differed at
// open time; the enclosing application reacts with a full reindex.
func (s *Service) SchemaUpgradeRequired() bool {
	return s.schemaUpgradeRequired
}

// ClearSchemaUpgrade acknowledges a completed full reindex.
func (s *Service) ClearSchemaUpgrade() {
	s.schemaUpgradeRequired = false
}

// Path returns the index directory.
func (s *Service) Path() string { return s.path }

// Timings exposes the query runtime tracker to the planner.
func (s *Service) Timings() *stats.QueryTimings { return s.timings }

// DocCount returns the live document count.
func (s *Service) DocCount() (uint64, error) {
	idx, err := s.indexOrErr()
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Search executes a request against the current reader, recording its
// runtime. Reader acquisition and release are handled by the engine on
// every exit path.
func (s *Service) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	idx, err := s.indexOrErr()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := idx.SearchInContext(ctx, req)
	if err == nil {
		s.timings.Record(time.Since(start))
	}
	return res, err
}

// Upsert is a single-document add-or-replace: bleve replaces by id, and
// the id is the file path, so prior versions never survive.
func (s *Service) Upsert(id string, fields map[string]interface{}) error {
	idx, err := s.indexOrErr()
	if err != nil {
		return err
	}
	if err := idx.Index(id, fields); err != nil {
		return err
	}
	return s.commitMeta()
}

// ApplyBatch applies adds and deletes as one writer batch followed by a
// metadata commit.
func (s *Service) ApplyBatch(adds map[string]map[string]interface{}, deletes []string) error {
	idx, err := s.indexOrErr()
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for id, fields := range adds {
		if err := batch.Index(id, fields); err != nil {
			return err
		}
	}
	for _, id := range deletes {
		batch.Delete(id)
	}
	if err := idx.Batch(batch); err != nil {
		return err
	}
	return s.commitMeta()
}

// DeleteByPaths removes documents by path in one batch.
func (s *Service) DeleteByPaths(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.ApplyBatch(nil, paths)
}

// DeleteAll removes every document, paging through the id space in
// batches. The index files stay in place (logical purge).
func (s *Service) DeleteAll() (uint64, error) {
	idx, err := s.indexOrErr()
	if err != nil {
		return 0, err
	}
	var deleted uint64
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), snapshotPageSize, 0, false)
		res, err := idx.Search(req)
		if err != nil {
			return deleted, err
		}
		if len(res.Hits) == 0 {
			break
		}
		batch := idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return deleted, err
		}
		deleted += uint64(len(res.Hits))
	}
	if err := s.commitMeta(); err != nil {
		return deleted, err
	}
	s.RefreshDerived()
	return deleted, nil
}

// PathSnapshot returns {file_path → modified_date} over every indexed
// document, for reconciliation.
func (s *Service) PathSnapshot() (map[string]int64, error) {
	idx, err := s.indexOrErr()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	from := 0
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), snapshotPageSize, from, false)
		req.Fields = []string{document.FieldModifiedDate}
		// Paging over equal scores is unstable; order by id instead.
		req.SortBy([]string{"_id"})
		res, err := idx.Search(req)
		if err != nil {
			return nil, err
		}
		if len(res.Hits) == 0 {
			return out, nil
		}
		for _, hit := range res.Hits {
			var modified int64
			if v, ok := hit.Fields[document.FieldModifiedDate].(float64); ok {
				modified = int64(v)
			}
			out[hit.ID] = modified
		}
		from += len(res.Hits)
	}
}

// StoredContentHash returns the committed content hash for a path, or
// "" when the path is not indexed.
func (s *Service) StoredContentHash(path string) (string, error) {
	q := bleve.NewTermQuery(path)
	q.SetField(document.FieldFilePath)
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = []string{document.FieldContentHash}
	idx, err := s.indexOrErr()
	if err != nil {
		return "", err
	}
	res, err := idx.Search(req)
	if err != nil {
		return "", err
	}
	if len(res.Hits) == 0 {
		return "", nil
	}
	hash, _ := res.Hits[0].Fields[document.FieldContentHash].(string)
	return hash, nil
}

// Document fetches every stored field of the document at path. The
// second return is false when the path is not indexed.
func (s *Service) Document(path string) (map[string]interface{}, bool, error) {
	q := bleve.NewTermQuery(path)
	q.SetField(document.FieldFilePath)
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = []string{"*"}
	idx, err := s.indexOrErr()
	if err != nil {
		return nil, false, err
	}
	res, err := idx.Search(req)
	if err != nil {
		return nil, false, err
	}
	if len(res.Hits) == 0 {
		return nil, false, nil
	}
	return res.Hits[0].Fields, true, nil
}

// DateFieldBounds probes the min and max of one numeric date field via
// two single-hit sorted searches. ok is false on an empty index.
func (s *Service) DateFieldBounds(field string) (min, max int64, ok bool, err error) {
	probe := func(sortExpr string) (int64, bool, error) {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 1, 0, false)
		req.Fields = []string{field}
		req.SortBy([]string{sortExpr})
		idx, ierr := s.indexOrErr()
		if ierr != nil {
			return 0, false, ierr
		}
		res, err := idx.Search(req)
		if err != nil || len(res.Hits) == 0 {
			return 0, false, err
		}
		v, _ := res.Hits[0].Fields[field].(float64)
		return int64(v), true, nil
	}

	min, ok, err = probe(field)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	max, ok, err = probe("-" + field)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	return min, max, true, nil
}

// SetBulkMode switches the refresh scheduler between the base and slow
// intervals while a bulk crawl is in flight.
func (s *Service) SetBulkMode(bulk bool) {
	if s.refreshSlow.Swap(bulk) != bulk {
		s.log.Info("nrt refresh interval switched", zap.Bool("slow", bulk))
	}
}

// refreshLoop recomputes the derived caches at the configured interval.
// The engine itself exposes new readers per search; the scheduled
// refresh keeps the language distribution and doc count snapshots warm.
// Errors are logged and the prior snapshot is retained.
func (s *Service) refreshLoop() {
	defer close(s.refreshDone)
	for {
		interval := time.Duration(s.cfg.Index.NRTRefreshIntervalMs) * time.Millisecond
		if s.refreshSlow.Load() {
			interval = time.Duration(s.cfg.Index.SlowNRTRefreshIntervalMs) * time.Millisecond
		}
		select {
		case <-s.refreshStop:
			return
		case <-time.After(interval):
			s.RefreshDerived()
		}
	}
}

// RefreshDerived recomputes the language distribution cache. Readers see
// either the old or the new snapshot, never a torn value.
func (s *Service) RefreshDerived() {
	idx, err := s.indexOrErr()
	if err != nil {
		return
	}
	dist, err := computeDistribution(idx)
	if err != nil {
		if !s.closed.Load() {
			s.log.Warn("language distribution refresh failed; keeping prior snapshot", zap.Error(err))
		}
		return
	}
	s.langDist.Store(dist)
}

// LanguageDistribution returns the current snapshot.
func (s *Service) LanguageDistribution() *LanguageDistribution {
	return s.langDist.Load()
}

// Meta returns the committed schema and software versions.
func (s *Service) Meta() (schemaVersion string, softwareVersion string, err error) {
	idx, err := s.indexOrErr()
	if err != nil {
		return "", "", err
	}
	sv, err := idx.GetInternal([]byte(metaSchemaVersion))
	if err != nil {
		return "", "", err
	}
	sw, err := idx.GetInternal([]byte(metaSoftwareVersion))
	if err != nil {
		return "", "", err
	}
	return string(sv), string(sw), nil
}

// OpenedAt reports when the service came up, surfaced as the build
// timestamp on the stats tool.
func (s *Service) OpenedAt() time.Time { return s.openedAt }

// Close shuts down in reverse order of construction: refresh scheduler,
// admin executor (hard cut after 30s), then the index and the lock.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.refreshStop)
	<-s.refreshDone

	s.admin.shutdown(30 * time.Second)

	s.mu.Lock()
	idx := s.idx
	s.idx = nil
	s.mu.Unlock()

	var err error
	if idx != nil {
		err = idx.Close()
	}
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}
