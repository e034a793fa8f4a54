package jobs

import (
	"context"
	"fmt"

	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE COINS JOB
// ══════════════════════════════════════════════════════════════════════════════

// CoinsReconciler recomputes every profile's vibe coins from its completed chapters.
type CoinsReconciler interface {
	HandleAll(ctx context.Context) (*command.ReconcileAllResult, error)
}

// ReconcileCoinsJob repairs vibe-coin totals that drifted from the
// completed chapters.
type ReconcileCoinsJob struct {
	reconciler CoinsReconciler
	log        *logger.Logger
}

// NewReconcileCoinsJob creates the job.
func NewReconcileCoinsJob(reconciler CoinsReconciler, log *logger.Logger) *ReconcileCoinsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileCoinsJob{reconciler: reconciler, log: log}
}

func (j *ReconcileCoinsJob) Name() string { return "reconcile_coins" }

func (j *ReconcileCoinsJob) Description() string {
	return "Recomputes vibe coins from completed chapters and repairs drift"
}

// Run performs a full pass. Per-profile failures are reported in the log and
// fail the run so they show up in the job history.
func (j *ReconcileCoinsJob) Run(ctx context.Context) error {
	res, err := j.reconciler.HandleAll(ctx)
	if err != nil {
		return err
	}

	fields := []logger.Field{
		logger.Int("scanned", res.Scanned),
		logger.Int("repaired", res.Repaired),
		logger.Int("failed", res.Failed),
		logger.Latency(res.Duration),
	}
	if res.Repaired > 0 {
		j.log.Warn("vibe coin drift repaired", fields...)
	} else {
		j.log.Info("vibe coins consistent", fields...)
	}

	if res.Failed > 0 {
		return fmt.Errorf("reconcile_coins: %d of %d profiles failed", res.Failed, res.Scanned)
	}
	return nil
}
