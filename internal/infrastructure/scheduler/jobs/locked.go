package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vibecoding/vibe-academy/internal/infrastructure/scheduler"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SINGLE-INSTANCE WRAPPER
// ══════════════════════════════════════════════════════════════════════════════

// Locker is a lease-based lock shared by worker instances.
type Locker interface {
	TryLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name, token string) error
}

// LockedJob runs the wrapped job only on the instance that wins the lock.
// Losing instances return nil without running.
type LockedJob struct {
	scheduler.Job
	locker Locker
	ttl    time.Duration
	log    *logger.Logger
}

// WithLock wraps job. ttl must exceed the job's longest run.
func WithLock(job scheduler.Job, locker Locker, ttl time.Duration, log *logger.Logger) *LockedJob {
	if log == nil {
		log = logger.Nop()
	}
	return &LockedJob{Job: job, locker: locker, ttl: ttl, log: log}
}

// Run acquires the lock, runs the job and releases the lock.
func (j *LockedJob) Run(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := j.locker.TryLock(ctx, j.Name(), token, j.ttl)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", j.Name(), err)
	}
	if !ok {
		j.log.Debug("job lock held by another instance", logger.String("job", j.Name()))
		return nil
	}

	defer func() {
		// The run context may already be cancelled on shutdown.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := j.locker.Unlock(unlockCtx, j.Name(), token); err != nil {
			j.log.Warn("failed to release job lock", logger.String("job", j.Name()), logger.Err(err))
		}
	}()

	return j.Job.Run(ctx)
}
