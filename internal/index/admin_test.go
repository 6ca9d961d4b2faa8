package index

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mcperrors "github.com/mcplucene/mcplucene/internal/errors"
	"github.com/mcplucene/mcplucene/internal/logging"
)

func TestPurgeRequiresConfirmation(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	_, err := svc.Purge(false, false)
	require.ErrorIs(t, err, mcperrors.ErrNotConfirmed)

	// A rejected purge leaves the state machine idle.
	require.Equal(t, AdminIdle, svc.AdminStatus().State)
}

func TestUnlockRequiresConfirmation(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	_, err := svc.Unlock(false)
	require.ErrorIs(t, err, mcperrors.ErrNotConfirmed)
}

func TestUnlockRemovesAndReacquires(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	removed, err := svc.Unlock(true)
	require.NoError(t, err)
	require.True(t, removed)

	// The lock is functional again: a second writer is still refused.
	_, err = Open(cfg, logging.Nop())
	require.Error(t, err)
}

func TestAdminSingleOperationAtATime(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	r := svc.admin
	opID, err := r.begin("purge", AdminPurging)
	require.NoError(t, err)

	_, err = r.begin("optimize", AdminOptimizing)
	require.ErrorIs(t, err, mcperrors.ErrAlreadyRunning)

	var toolErr *mcperrors.ToolError
	require.True(t, errors.As(err, &toolErr))
	require.Contains(t, toolErr.Message, opID)

	r.finish(opID, nil)
}

func TestAdminFinishResetsOnlyMatchingOperation(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	r := svc.admin
	opID, err := r.begin("purge", AdminPurging)
	require.NoError(t, err)

	// finish lingers ~1s in Completed before resetting.
	go r.finish(opID, nil)
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, AdminCompleted, svc.AdminStatus().State)

	require.Eventually(t, func() bool {
		return svc.AdminStatus().State == AdminIdle
	}, 3*time.Second, 50*time.Millisecond)

	// A stale finish must not clobber a newer operation's state.
	newID, err := r.begin("optimize", AdminOptimizing)
	require.NoError(t, err)
	r.finish(opID, nil) // stale id: no effect beyond its own linger
	status := svc.AdminStatus()
	require.Equal(t, newID, status.OperationID)
	require.Equal(t, AdminOptimizing, status.State)
	r.finish(newID, nil)
}

func TestOptimizeRejectedWhileCrawling(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	svc.SetCrawlerActiveCheck(func() bool { return true })
	_, err := svc.Optimize(1)
	require.ErrorIs(t, err, mcperrors.ErrCrawlerActive)
}

func TestLogicalPurgeEmptiesIndex(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	id, fields := docFields(t, "/a.txt", "en", "content", time.Now())
	require.NoError(t, svc.Upsert(id, fields))

	opID, err := svc.Purge(true, false)
	require.NoError(t, err)
	require.NotEmpty(t, opID)

	require.Eventually(t, func() bool {
		count, err := svc.DocCount()
		return err == nil && count == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFullPurgeReopensWithFreshMetadata(t *testing.T) {
	cfg := testConfig(t)
	svc := openService(t, cfg)
	defer svc.Close()

	id, fields := docFields(t, "/a.txt", "en", "content", time.Now())
	require.NoError(t, svc.Upsert(id, fields))

	_, err := svc.Purge(true, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		count, err := svc.DocCount()
		return err == nil && count == 0
	}, 10*time.Second, 100*time.Millisecond)

	schema, _, err := svc.Meta()
	require.NoError(t, err)
	require.Equal(t, "5", schema)
}
