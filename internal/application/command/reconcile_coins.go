package command

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE COINS COMMAND
// The stored vibe coin total is a maintained counter. Reconciliation recomputes
// it from the completed chapters and the current catalog, and repairs drift
// (catalog point changes, clamped un-toggles, historical bugs).
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileCoinsCommand reconciles one profile.
type ReconcileCoinsCommand struct {
	UserID        string
	CorrelationID string
}

// ReconcileCoinsResult describes one reconciliation.
type ReconcileCoinsResult struct {
	UserID   string
	Previous int
	Current  int
	Repaired bool
}

// ReconcileAllResult summarises a full pass.
type ReconcileAllResult struct {
	Scanned  int
	Repaired int
	Failed   int
	Duration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileCoinsHandler handles single and bulk reconciliation.
type ReconcileCoinsHandler struct {
	profiles       profile.Repository
	catalog        *course.Catalog
	eventPublisher shared.EventPublisher

	pageSize    int
	concurrency int
}

// ReconcileCoinsHandlerConfig contains configuration for the handler.
type ReconcileCoinsHandlerConfig struct {
	// PageSize is how many profile IDs are read per page.
	PageSize int

	// Concurrency bounds parallel mutations within a page.
	Concurrency int
}

// DefaultReconcileCoinsHandlerConfig returns default configuration.
func DefaultReconcileCoinsHandlerConfig() ReconcileCoinsHandlerConfig {
	return ReconcileCoinsHandlerConfig{
		PageSize:    500,
		Concurrency: 8,
	}
}

// NewReconcileCoinsHandler creates a new ReconcileCoinsHandler.
func NewReconcileCoinsHandler(
	profiles profile.Repository,
	catalog *course.Catalog,
	eventPublisher shared.EventPublisher,
	config ReconcileCoinsHandlerConfig,
) *ReconcileCoinsHandler {
	defaults := DefaultReconcileCoinsHandlerConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}

	return &ReconcileCoinsHandler{
		profiles:       profiles,
		catalog:        catalog,
		eventPublisher: eventPublisher,
		pageSize:       config.PageSize,
		concurrency:    config.Concurrency,
	}
}

// Handle reconciles a single profile.
func (h *ReconcileCoinsHandler) Handle(ctx context.Context, cmd ReconcileCoinsCommand) (*ReconcileCoinsResult, error) {
	userID, err := profile.ParseUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("reconcile_coins: %w", err)
	}

	result, err := h.reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if result.Repaired {
		event := shared.NewCoinsReconciledEvent(result.UserID, result.Previous, result.Current)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.eventPublisher.Publish(event)
	}
	return result, nil
}

// HandleAll walks every profile page by page and reconciles each one.
// A failure on one profile is counted and does not stop the pass;
// context cancellation does.
func (h *ReconcileCoinsHandler) HandleAll(ctx context.Context) (*ReconcileAllResult, error) {
	start := time.Now()
	var scanned, repaired, failed atomic.Int64

	opts := profile.DefaultListOptions()
	opts.Limit = h.pageSize

	for {
		ids, err := h.profiles.ListIDs(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("reconcile_coins: failed to list profiles: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(h.concurrency)
		for _, id := range ids {
			g.Go(func() error {
				scanned.Add(1)
				res, err := h.reconcile(gctx, id)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed.Add(1)
					return nil
				}
				if res.Repaired {
					repaired.Add(1)
					_ = h.eventPublisher.Publish(shared.NewCoinsReconciledEvent(res.UserID, res.Previous, res.Current))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("reconcile_coins: interrupted: %w", err)
		}

		if len(ids) < opts.Limit {
			break
		}
		opts = opts.WithAfter(ids[len(ids)-1])
	}

	return &ReconcileAllResult{
		Scanned:  int(scanned.Load()),
		Repaired: int(repaired.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}, nil
}

func (h *ReconcileCoinsHandler) reconcile(ctx context.Context, userID profile.UserID) (*ReconcileCoinsResult, error) {
	result := &ReconcileCoinsResult{UserID: userID.String()}

	next, err := h.profiles.MutateProgress(ctx, userID, func(current profile.Progress) (profile.Progress, error) {
		result.Previous = current.VibeCoins
		fixed, changed := current.Reconciled(h.catalog)
		result.Repaired = changed
		if !changed {
			return current, profile.ErrProgressUnchanged
		}
		return fixed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile_coins: %w", err)
	}

	result.Current = next.VibeCoins
	return result, nil
}
