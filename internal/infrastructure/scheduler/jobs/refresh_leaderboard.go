// Package jobs contains the scheduled jobs of the worker process.
package jobs

import (
	"context"
	"time"

	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRefresher reloads the top list and publishes it to the cache.
type LeaderboardRefresher interface {
	Refresh(ctx context.Context) (leaderboard.Snapshot, error)
}

// RefreshLeaderboardJob reloads the leaderboard on the worker so API
// instances serve it from the shared cache.
type RefreshLeaderboardJob struct {
	board   LeaderboardRefresher
	timeout time.Duration
	log     *logger.Logger
}

// NewRefreshLeaderboardJob creates the job. timeout bounds one refresh.
func NewRefreshLeaderboardJob(board LeaderboardRefresher, timeout time.Duration, log *logger.Logger) *RefreshLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RefreshLeaderboardJob{board: board, timeout: timeout, log: log}
}

func (j *RefreshLeaderboardJob) Name() string { return "refresh_leaderboard" }

func (j *RefreshLeaderboardJob) Description() string {
	return "Reloads the top learners by vibe coins and replaces the cached snapshot"
}

// Run refreshes the board. On failure the previous snapshot stays cached.
func (j *RefreshLeaderboardJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	snap, err := j.board.Refresh(ctx)
	if err != nil {
		return err
	}

	j.log.Info("leaderboard refreshed",
		logger.Int("entries", len(snap.Entries)),
		logger.Time("fetched_at", snap.FetchedAt),
	)
	return nil
}
