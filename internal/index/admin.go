package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
)

// AdminState is the admin operation lifecycle.
type AdminState string

const (
	AdminIdle       AdminState = "Idle"
	AdminOptimizing AdminState = "Optimizing"
	AdminPurging    AdminState = "Purging"
	AdminCompleted  AdminState = "Completed"
	AdminFailed     AdminState = "Failed"
)

// terminalLinger keeps a terminal state observable before the reset.
const terminalLinger = time.Second

// AdminStatus is the snapshot handed to external readers; the state
// tuple itself is single-owner behind the mutex.
type AdminStatus struct {
	State               AdminState `json:"state"`
	OperationID         string     `json:"currentOperationId,omitempty"`
	Operation           string     `json:"operation,omitempty"`
	Progress            int        `json:"progress"`
	Message             string     `json:"message,omitempty"`
	StartedAtMs         int64      `json:"startedAtMs,omitempty"`
	LastOperationResult string     `json:"lastOperationResult,omitempty"`
}

// adminRunner owns the admin state tuple and the single-thread executor
// all admin operations run on.
type adminRunner struct {
	svc *Service
	log *zap.Logger

	mu         sync.Mutex
	state      AdminState
	opID       string
	opName     string
	progress   int
	message    string
	startedAt  time.Time
	lastResult string

	jobs chan func()
	done chan struct{}

	crawlerActive func() bool
}

func newAdminRunner(svc *Service, log *zap.Logger) *adminRunner {
	r := &adminRunner{
		svc:   svc,
		log:   log,
		state: AdminIdle,
		jobs:  make(chan func(), 1),
		done:  make(chan struct{}),
	}
	go r.worker()
	return r
}

func (r *adminRunner) worker() {
	defer close(r.done)
	for job := range r.jobs {
		job()
	}
}

// shutdown drains the executor, hard-cutting after the timeout.
func (r *adminRunner) shutdown(timeout time.Duration) {
	close(r.jobs)
	select {
	case <-r.done:
	case <-time.After(timeout):
		r.log.Warn("admin executor did not drain before timeout", zap.Duration("timeout", timeout))
	}
}

// SetCrawlerActiveCheck wires the crawler-state probe used to reject
// optimize during a crawl; the crawler is a non-owning collaborator.
func (s *Service) SetCrawlerActiveCheck(f func() bool) {
	s.admin.mu.Lock()
	s.admin.crawlerActive = f
	s.admin.mu.Unlock()
}

// AdminStatus snapshots the state tuple.
func (s *Service) AdminStatus() AdminStatus {
	r := s.admin
	r.mu.Lock()
	defer r.mu.Unlock()
	status := AdminStatus{
		State:               r.state,
		OperationID:         r.opID,
		Operation:           r.opName,
		Progress:            r.progress,
		Message:             r.message,
		LastOperationResult: r.lastResult,
	}
	if !r.startedAt.IsZero() {
		status.StartedAtMs = r.startedAt.UnixMilli()
	}
	return status
}

// begin transitions Idle → running, returning the new operation id.
func (r *adminRunner) begin(name string, state AdminState) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != AdminIdle {
		return "", mcperrors.NewAlreadyRunning(r.opID)
	}
	r.state = state
	r.opID = uuid.NewString()
	r.opName = name
	r.progress = 0
	r.message = "starting"
	r.startedAt = time.Now()
	return r.opID, nil
}

func (r *adminRunner) update(opID string, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opID != opID {
		return
	}
	r.progress = progress
	r.message = message
}

// finish records the terminal state, lingers so clients can observe it,
// then resets to Idle only if the operation id still matches. The id
// check guards a newly started operation's state from an old operation's
// cleanup.
func (r *adminRunner) finish(opID string, err error) {
	r.mu.Lock()
	if r.opID == opID {
		if err != nil {
			r.state = AdminFailed
			r.message = err.Error()
			r.lastResult = fmt.Sprintf("%s failed: %v", r.opName, err)
		} else {
			r.state = AdminCompleted
			r.progress = 100
			r.message = "done"
			r.lastResult = r.opName + " completed"
		}
	}
	r.mu.Unlock()

	time.Sleep(terminalLinger)

	r.mu.Lock()
	if r.opID == opID {
		r.state = AdminIdle
		r.opID = ""
		r.opName = ""
		r.progress = 0
		r.message = ""
		r.startedAt = time.Time{}
	}
	r.mu.Unlock()
}

// forceMerger is the optional scorch capability behind Optimize.
type forceMerger interface {
	ForceMerge(ctx context.Context, mp *mergeplan.MergePlanOptions) error
}

// Optimize force-merges the index down to at most maxSegments segments.
// Rejected while the crawler is active.
func (s *Service) Optimize(maxSegments int) (string, error) {
	r := s.admin
	r.mu.Lock()
	active := r.crawlerActive
	r.mu.Unlock()
	if active != nil && active() {
		return "", mcperrors.NewCrawlerActive("optimize")
	}
	if maxSegments <= 0 {
		maxSegments = 1
	}

	opID, err := r.begin("optimize", AdminOptimizing)
	if err != nil {
		return "", err
	}

	r.jobs <- func() {
		r.update(opID, 10, "merging segments")
		err := s.forceMerge(maxSegments)
		if err == nil {
			r.update(opID, 90, "refreshing searcher")
			if cerr := s.commitMeta(); cerr != nil {
				err = cerr
			}
			s.RefreshDerived()
		}
		r.finish(opID, err)
	}
	return opID, nil
}

func (s *Service) forceMerge(maxSegments int) error {
	internal, err := s.index().Advanced()
	if err != nil {
		return err
	}
	merger, ok := internal.(forceMerger)
	if !ok {
		return fmt.Errorf("index engine does not support force-merge")
	}
	opts := mergeplan.SingleSegmentMergePlanOptions
	opts.MaxSegmentsPerTier = maxSegments
	return merger.ForceMerge(context.Background(), &opts)
}

// Purge deletes all documents. full=false is a logical purge (delete-all
// plus fresh metadata, index files stay). full=true closes the index,
// wipes the directory, and reopens with new metadata. confirm must be
// set or the call is rejected without side effects.
func (s *Service) Purge(confirm, full bool) (string, error) {
	if !confirm {
		return "", mcperrors.NewNotConfirmed("purge")
	}

	r := s.admin
	opID, err := r.begin("purge", AdminPurging)
	if err != nil {
		return "", err
	}

	r.jobs <- func() {
		var err error
		if full {
			err = s.fullPurge(opID)
		} else {
			r.update(opID, 20, "deleting documents")
			_, err = s.DeleteAll()
		}
		r.finish(opID, err)
	}
	return opID, nil
}

// fullPurge recreates the index directory from scratch. The writer lock
// file is preserved across the wipe; the flock handle stays valid.
func (s *Service) fullPurge(opID string) error {
	r := s.admin
	r.update(opID, 10, "closing index")

	s.mu.Lock()
	idx := s.idx
	s.idx = nil
	s.mu.Unlock()
	if idx != nil {
		if err := idx.Close(); err != nil {
			return err
		}
	}

	r.update(opID, 40, "removing index files")
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == LockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.path, entry.Name())); err != nil {
			return err
		}
	}

	r.update(opID, 70, "reopening index")
	return s.openIndex()
}

// Unlock removes the writer lock file. Recovery only: the flock held by
// a crashed process dies with it, but the file itself survives. confirm
// must be set.
func (s *Service) Unlock(confirm bool) (removed bool, err error) {
	if !confirm {
		return false, mcperrors.NewNotConfirmed("unlock")
	}
	lockPath := filepath.Join(s.path, LockFileName)
	if _, statErr := os.Stat(lockPath); os.IsNotExist(statErr) {
		return false, nil
	}

	// Release our handle before removing so the recreate below gets a
	// clean inode, then re-acquire immediately.
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			return false, err
		}
	}
	if err := os.Remove(lockPath); err != nil {
		return false, err
	}
	s.lock = flock.New(lockPath)
	locked, lockErr := s.lock.TryLock()
	if lockErr != nil {
		return true, lockErr
	}
	if !locked {
		return true, fmt.Errorf("could not re-acquire writer lock after unlock")
	}
	s.log.Warn("writer lock file removed and re-acquired; misuse can corrupt the index")
	return true, nil
}
