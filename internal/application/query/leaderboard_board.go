package query

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD BOARD
// Держит последний загруженный топ в памяти. Обновляется раз в час, по запросу
// и после инвалидации. Ошибка загрузки не стирает ранее показанный список.
// Параллельные обновления схлопываются в один запрос к хранилищу.
// ══════════════════════════════════════════════════════════════════════════════

// ListTopUsersQuery содержит параметры запроса топа.
type ListTopUsersQuery struct {
	// Limit - количество записей (0 = по умолчанию, максимум leaderboard.MaxLimit).
	Limit int
}

// ListTopUsersResult - ответ на запрос топа.
type ListTopUsersResult struct {
	Entries   []leaderboard.Entry `json:"entries"`
	FetchedAt time.Time           `json:"fetchedAt"`

	// Stale - true, если последнее обновление не удалось и показан старый список.
	Stale bool `json:"stale"`
}

// LeaderboardBoardConfig - настройки обновления.
type LeaderboardBoardConfig struct {
	// RefreshInterval - период автообновления.
	RefreshInterval time.Duration

	// FetchLimit - сколько записей загружать из хранилища.
	FetchLimit int

	// FetchTimeout - таймаут одной загрузки.
	FetchTimeout time.Duration

	// CacheTTL - время жизни снимка в кеше.
	CacheTTL time.Duration

	// MinInvalidationGap - не перезагружать чаще этого после инвалидации.
	MinInvalidationGap time.Duration
}

// DefaultLeaderboardBoardConfig возвращает настройки по умолчанию.
func DefaultLeaderboardBoardConfig() LeaderboardBoardConfig {
	return LeaderboardBoardConfig{
		RefreshInterval:    time.Hour,
		FetchLimit:         leaderboard.MaxLimit,
		FetchTimeout:       10 * time.Second,
		CacheTTL:           time.Hour,
		MinInvalidationGap: 30 * time.Second,
	}
}

// LeaderboardBoard обслуживает ListTopUsers и RefreshLeaderboard.
type LeaderboardBoard struct {
	repo      leaderboard.Repository
	cache     leaderboard.Cache
	publisher shared.EventPublisher
	log       *logger.Logger
	config    LeaderboardBoardConfig
	now       func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	snapshot    leaderboard.Snapshot
	invalidated bool
	lastErr     error
}

// NewLeaderboardBoard создаёт доску. cache и publisher могут быть nil.
func NewLeaderboardBoard(
	repo leaderboard.Repository,
	cache leaderboard.Cache,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config LeaderboardBoardConfig,
) *LeaderboardBoard {
	defaults := DefaultLeaderboardBoardConfig()
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.FetchLimit <= 0 || config.FetchLimit > leaderboard.MaxLimit {
		config.FetchLimit = defaults.FetchLimit
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if log == nil {
		log = logger.Nop()
	}

	return &LeaderboardBoard{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		log:       log.With(logger.Component("leaderboard_board")),
		config:    config,
		now:       time.Now,
	}
}

// Handle возвращает топ пользователей.
// Если список ещё ни разу не загружался и загрузка не удалась - ошибка.
func (b *LeaderboardBoard) Handle(ctx context.Context, query ListTopUsersQuery) (*ListTopUsersResult, error) {
	limit, err := leaderboard.NormalizeLimit(query.Limit)
	if err != nil {
		return nil, err
	}

	snap := b.current(ctx)
	if snap.IsZero() {
		b.mu.RLock()
		lastErr := b.lastErr
		b.mu.RUnlock()
		if lastErr != nil {
			return nil, lastErr
		}
		return &ListTopUsersResult{Entries: []leaderboard.Entry{}}, nil
	}

	b.mu.RLock()
	stale := b.lastErr != nil
	b.mu.RUnlock()

	return &ListTopUsersResult{
		Entries:   snap.Top(limit),
		FetchedAt: snap.FetchedAt,
		Stale:     stale,
	}, nil
}

// Refresh загружает свежий топ. Параллельные вызовы делят одну загрузку.
// При ошибке возвращается предыдущий снимок и ErrLeaderboardRefresh.
func (b *LeaderboardBoard) Refresh(ctx context.Context) (leaderboard.Snapshot, error) {
	ch := b.group.DoChan("refresh", func() (interface{}, error) {
		// Загрузка не должна обрываться из-за отмены первого из ожидающих.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.FetchTimeout)
		defer cancel()
		return b.fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return b.Snapshot(), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return b.Snapshot(), res.Err
		}
		return res.Val.(leaderboard.Snapshot), nil
	}
}

// Start обновляет топ сразу и затем каждые RefreshInterval, пока ctx не отменён.
func (b *LeaderboardBoard) Start(ctx context.Context) {
	if _, err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
		b.log.Warn("initial leaderboard refresh failed", logger.Err(err))
	}

	ticker := time.NewTicker(b.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
				b.log.Warn("scheduled leaderboard refresh failed", logger.Err(err))
			}
		}
	}
}

// Invalidate помечает снимок устаревшим; следующий запрос перезагрузит топ.
func (b *LeaderboardBoard) Invalidate(ctx context.Context) error {
	b.mu.Lock()
	b.invalidated = true
	b.mu.Unlock()

	if b.cache != nil {
		return b.cache.Invalidate(ctx)
	}
	return nil
}

// Snapshot возвращает последний успешно загруженный снимок.
func (b *LeaderboardBoard) Snapshot() leaderboard.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot
}

// RankOf ищет место пользователя в последнем снимке.
func (b *LeaderboardBoard) RankOf(userID string) (leaderboard.Rank, bool) {
	return b.Snapshot().RankOf(userID)
}

// current возвращает снимок, при необходимости обновив его.
func (b *LeaderboardBoard) current(ctx context.Context) leaderboard.Snapshot {
	b.mu.RLock()
	snap := b.snapshot
	invalidated := b.invalidated
	b.mu.RUnlock()

	now := b.now()
	needsRefresh := snap.IsStale(b.config.RefreshInterval, now) ||
		(invalidated && now.Sub(snap.FetchedAt) >= b.config.MinInvalidationGap)
	if !needsRefresh {
		return snap
	}

	if !invalidated && b.cache != nil {
		cached, ok, err := b.cache.Load(ctx, b.config.FetchLimit)
		if err != nil {
			b.log.Debug("leaderboard cache read failed", logger.Err(err))
		} else if ok && cached.FetchedAt.After(snap.FetchedAt) && !cached.IsStale(b.config.RefreshInterval, now) {
			b.mu.Lock()
			b.snapshot = cached
			b.lastErr = nil
			b.mu.Unlock()
			return cached
		}
	}

	fresh, err := b.Refresh(ctx)
	if err != nil {
		return b.Snapshot()
	}
	return fresh
}

func (b *LeaderboardBoard) fetch(ctx context.Context) (leaderboard.Snapshot, error) {
	start := b.now()

	rows, err := b.repo.TopUsers(ctx, b.config.FetchLimit)
	if err != nil {
		wrapped := shared.WrapError("leaderboard", "Refresh", shared.ErrLeaderboardRefresh, "leaderboard refresh failed", err)
		b.mu.Lock()
		b.lastErr = wrapped
		b.mu.Unlock()
		b.log.Warn("leaderboard fetch failed, keeping previous list", logger.Err(err))
		return leaderboard.Snapshot{}, wrapped
	}

	snap := leaderboard.Snapshot{
		Entries:   leaderboard.Build(rows, b.config.FetchLimit),
		FetchedAt: b.now().UTC(),
	}

	b.mu.Lock()
	b.snapshot = snap
	b.invalidated = false
	b.lastErr = nil
	b.mu.Unlock()

	if b.cache != nil {
		if err := b.cache.Store(ctx, snap, b.config.CacheTTL); err != nil {
			b.log.Warn("leaderboard cache write failed", logger.Err(err))
		}
	}
	if b.publisher != nil {
		_ = b.publisher.Publish(shared.NewLeaderboardRefreshedEvent(len(snap.Entries)))
	}

	b.log.Debug("leaderboard refreshed",
		logger.Int("entries", len(snap.Entries)),
		logger.Latency(b.now().Sub(start)),
	)
	return snap, nil
}
