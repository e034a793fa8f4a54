package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
)

type fakeBoard struct {
	snap        leaderboard.Snapshot
	err         error
	hasDeadline bool
}

func (b *fakeBoard) Refresh(ctx context.Context) (leaderboard.Snapshot, error) {
	_, b.hasDeadline = ctx.Deadline()
	return b.snap, b.err
}

type fakeReconciler struct {
	res *command.ReconcileAllResult
	err error
}

func (r fakeReconciler) HandleAll(context.Context) (*command.ReconcileAllResult, error) {
	return r.res, r.err
}

// memLocker is an in-process Locker.
type memLocker struct {
	mu       sync.Mutex
	holders  map[string]string
	unlocked []string
}

func newMemLocker() *memLocker { return &memLocker{holders: map[string]string{}} }

func (l *memLocker) TryLock(_ context.Context, name, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[name]; held {
		return false, nil
	}
	l.holders[name] = token
	return true, nil
}

func (l *memLocker) Unlock(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[name] != token {
		return errors.New("not held")
	}
	delete(l.holders, name)
	l.unlocked = append(l.unlocked, name)
	return nil
}

func TestRefreshLeaderboardJob(t *testing.T) {
	board := &fakeBoard{snap: leaderboard.Snapshot{FetchedAt: time.Now()}}
	job := NewRefreshLeaderboardJob(board, time.Second, nil)

	assert.Equal(t, "refresh_leaderboard", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.True(t, board.hasDeadline)

	board.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))
}

func TestReconcileCoinsJob(t *testing.T) {
	job := NewReconcileCoinsJob(fakeReconciler{res: &command.ReconcileAllResult{Scanned: 10, Repaired: 2}}, nil)
	assert.Equal(t, "reconcile_coins", job.Name())
	require.NoError(t, job.Run(context.Background()))

	job = NewReconcileCoinsJob(fakeReconciler{res: &command.ReconcileAllResult{Scanned: 10, Failed: 1}}, nil)
	assert.ErrorContains(t, job.Run(context.Background()), "1 of 10")

	errList := errors.New("list failed")
	job = NewReconcileCoinsJob(fakeReconciler{err: errList}, nil)
	assert.ErrorIs(t, job.Run(context.Background()), errList)
}

func TestLockedJob_RunsOnlyWhenLockIsWon(t *testing.T) {
	locker := newMemLocker()
	runs := 0
	inner := NewReconcileCoinsJob(fakeReconciler{res: &command.ReconcileAllResult{}}, nil)
	counting := &countingJob{ReconcileCoinsJob: inner, runs: &runs}

	job := WithLock(counting, locker, time.Minute, nil)
	assert.Equal(t, "reconcile_coins", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, runs)
	assert.Equal(t, []string{"reconcile_coins"}, locker.unlocked)

	// Another instance holds the lease.
	_, _ = locker.TryLock(context.Background(), "reconcile_coins", "other", time.Minute)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, runs)
}

type countingJob struct {
	*ReconcileCoinsJob
	runs *int
}

func (j *countingJob) Run(ctx context.Context) error {
	*j.runs++
	return j.ReconcileCoinsJob.Run(ctx)
}
