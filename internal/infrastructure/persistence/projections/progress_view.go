// Package projections implements read models for CQRS pattern.
package projections

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vibecoding/vibe-academy/internal/application/saga"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS VIEW - Observable per-user progress store
// ══════════════════════════════════════════════════════════════════════════════

// DefaultEntryTTL is how long a cached entry is served before storage is
// consulted again.
const DefaultEntryTTL = time.Minute

// ProgressLoader reads the stored progress of one user.
type ProgressLoader interface {
	GetProgress(ctx context.Context, id profile.UserID) (profile.Progress, error)
}

// ProgressView keeps the last confirmed progress of each active user and
// pushes every change to the user's open subscriptions (dashboard, module
// page, stream). Entries are loaded lazily, replaced only by snapshots with a
// higher revision and re-read from storage once they are older than the TTL,
// so writes made by other instances show up without an event bus.
type ProgressView struct {
	mu sync.RWMutex

	loader ProgressLoader
	logger *logger.Logger
	ttl    time.Duration
	now    func() time.Time

	// entries holds the known progress indexed by user ID.
	entries map[string]*progressEntry

	// subscribers holds the open subscriptions indexed by user ID.
	subscribers map[string]map[uint64]chan profile.Progress
	nextSubID   uint64

	// version is incremented on each update.
	version int64
}

type progressEntry struct {
	progress profile.Progress
	loadedAt time.Time
}

// ProgressViewOption configures a ProgressView.
type ProgressViewOption func(*ProgressView)

// WithEntryTTL sets how long an entry is trusted without a storage read.
func WithEntryTTL(d time.Duration) ProgressViewOption {
	return func(v *ProgressView) {
		if d > 0 {
			v.ttl = d
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ProgressViewOption {
	return func(v *ProgressView) {
		v.now = now
	}
}

// NewProgressView creates an empty view.
func NewProgressView(loader ProgressLoader, log *logger.Logger, opts ...ProgressViewOption) *ProgressView {
	if log == nil {
		log = logger.Nop()
	}
	v := &ProgressView{
		loader:      loader,
		logger:      log.With(logger.Component("progress_view")),
		ttl:         DefaultEntryTTL,
		now:         time.Now,
		entries:     make(map[string]*progressEntry),
		subscribers: make(map[string]map[uint64]chan profile.Progress),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// READ
// ══════════════════════════════════════════════════════════════════════════════

// Current returns the visible progress for userID. Fresh entries come from
// memory; missing or expired ones are read from storage first. A user without
// a profile sees the empty state. When storage fails and an expired entry
// exists, the expired entry is returned.
func (v *ProgressView) Current(ctx context.Context, userID string) (profile.Progress, error) {
	v.mu.RLock()
	entry, ok := v.entries[userID]
	fresh := ok && v.fresh(entry)
	var cached profile.Progress
	if ok {
		cached = entry.progress.Clone()
	}
	v.mu.RUnlock()
	if fresh {
		return cached, nil
	}

	loaded, err := v.load(ctx, userID)
	if err != nil {
		if ok {
			v.logger.Warn("serving expired progress, storage read failed",
				logger.UserID(userID),
				logger.Err(err),
			)
			return cached, nil
		}
		return profile.Progress{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mergeLocked(userID, loaded).Clone(), nil
}

// Version returns the number of applied updates.
func (v *ProgressView) Version() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Size returns the number of cached users.
func (v *ProgressView) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE
// ══════════════════════════════════════════════════════════════════════════════

// Apply stores a confirmed snapshot and notifies the user's subscribers.
// A snapshot whose revision is not above the stored one arrived late and is
// dropped.
func (v *ProgressView) Apply(userID string, progress profile.Progress) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if entry, ok := v.entries[userID]; ok && !progress.NewerThan(entry.progress) {
		v.logger.Debug("dropped stale progress snapshot",
			logger.UserID(userID),
			logger.Int64("revision", progress.Revision),
			logger.Int64("current_revision", entry.progress.Revision),
		)
		return
	}
	v.storeLocked(userID, progress)
}

// Forget marks the cached entry as expired so the next read goes to storage.
// The stored revision still guards against late snapshots. Subscribers stay
// open.
func (v *ProgressView) Forget(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if entry, ok := v.entries[userID]; ok {
		entry.loadedAt = time.Time{}
	}
}

// OnToggle applies committed saga results. Pending and rolled back toggles
// never change the view.
func (v *ProgressView) OnToggle(state *saga.ChapterToggleState) {
	if state.Step() != saga.StepCommitted {
		return
	}
	v.Apply(state.Input().UserID, state.Visible())
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRY
// ══════════════════════════════════════════════════════════════════════════════

// Sweep handles expired entries: users nobody is watching are evicted, users
// with open subscriptions are re-read from storage and their subscribers get
// the newer snapshot if there is one.
func (v *ProgressView) Sweep(ctx context.Context) (evicted, refreshed int) {
	v.mu.Lock()
	var watched []string
	for userID, entry := range v.entries {
		if v.fresh(entry) {
			continue
		}
		if len(v.subscribers[userID]) == 0 {
			delete(v.entries, userID)
			evicted++
			continue
		}
		watched = append(watched, userID)
	}
	v.mu.Unlock()

	for _, userID := range watched {
		if ctx.Err() != nil {
			break
		}
		loaded, err := v.load(ctx, userID)
		if err != nil {
			v.logger.Warn("failed to refresh progress", logger.UserID(userID), logger.Err(err))
			continue
		}
		v.mu.Lock()
		v.mergeLocked(userID, loaded)
		v.mu.Unlock()
		refreshed++
	}

	if evicted > 0 || refreshed > 0 {
		v.logger.Debug("progress view swept",
			logger.Int("evicted", evicted),
			logger.Int("refreshed", refreshed),
		)
	}
	return evicted, refreshed
}

// Start sweeps once per TTL until ctx is cancelled.
func (v *ProgressView) Start(ctx context.Context) {
	ticker := time.NewTicker(v.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Sweep(ctx)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Subscribe opens a subscription for userID. The channel holds at most one
// pending snapshot; a slow reader only sees the latest one. The returned
// function closes the subscription and is safe to call more than once.
func (v *ProgressView) Subscribe(userID string) (<-chan profile.Progress, func()) {
	ch := make(chan profile.Progress, 1)

	v.mu.Lock()
	id := v.nextSubID
	v.nextSubID++
	if v.subscribers[userID] == nil {
		v.subscribers[userID] = make(map[uint64]chan profile.Progress)
	}
	v.subscribers[userID][id] = ch
	v.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subscribers[userID], id)
			if len(v.subscribers[userID]) == 0 {
				delete(v.subscribers, userID)
			}
			close(ch)
		})
	}

	v.logger.Debug("progress subscription opened", logger.UserID(userID))
	return ch, unsubscribe
}

// SubscriberCount returns the number of open subscriptions for userID.
func (v *ProgressView) SubscriberCount(userID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subscribers[userID])
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (v *ProgressView) load(ctx context.Context, userID string) (profile.Progress, error) {
	loaded, err := v.loader.GetProgress(ctx, profile.UserID(userID))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return profile.Progress{}, err
		}
		loaded = profile.EmptyProgress()
	}
	return loaded, nil
}

func (v *ProgressView) fresh(entry *progressEntry) bool {
	return !entry.loadedAt.IsZero() && v.now().Sub(entry.loadedAt) < v.ttl
}

// mergeLocked folds a storage read into the entry and returns what the user
// sees now. A read that lost the race against a newer applied snapshot only
// renews the entry. Must be called with the view lock held.
func (v *ProgressView) mergeLocked(userID string, loaded profile.Progress) profile.Progress {
	entry, ok := v.entries[userID]
	if !ok {
		v.entries[userID] = &progressEntry{progress: loaded.Clone(), loadedAt: v.now()}
		return loaded
	}
	if loaded.NewerThan(entry.progress) && !sameProgress(loaded, entry.progress) {
		v.storeLocked(userID, loaded)
		return loaded
	}
	entry.loadedAt = v.now()
	return entry.progress
}

// storeLocked replaces the entry and notifies subscribers.
// Must be called with the view lock held.
func (v *ProgressView) storeLocked(userID string, progress profile.Progress) {
	v.entries[userID] = &progressEntry{progress: progress.Clone(), loadedAt: v.now()}
	v.version++

	for _, ch := range v.subscribers[userID] {
		deliverLatest(ch, progress.Clone())
	}
}

func sameProgress(a, b profile.Progress) bool {
	return a.Revision == b.Revision &&
		a.VibeCoins == b.VibeCoins &&
		a.CompletedChapters.Count() == b.CompletedChapters.Count()
}

// deliverLatest replaces any undelivered snapshot with the new one.
// Must be called with the view lock held.
func deliverLatest(ch chan profile.Progress, p profile.Progress) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}
