package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Redis keys for the leaderboard snapshot:
//   - scores: sorted set, member = user ID, score = points
//   - names:  hash, field = user ID, value = display name
//   - meta:   string, fetch time of the snapshot (RFC3339Nano)
const (
	keyLeaderboardScores = PrefixLeaderboard + "scores"
	keyLeaderboardNames  = PrefixLeaderboard + "names"
	keyLeaderboardMeta   = PrefixLeaderboard + "fetched_at"
)

// LeaderboardCache implements leaderboard.Cache on a Redis sorted set, so
// every API instance serves the same snapshot between refreshes.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new leaderboard cache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// Store replaces the cached snapshot atomically.
func (l *LeaderboardCache) Store(ctx context.Context, snapshot leaderboard.Snapshot, ttl time.Duration) error {
	pipe := l.cache.Client().TxPipeline()

	pipe.Del(ctx, keyLeaderboardScores, keyLeaderboardNames, keyLeaderboardMeta)

	if len(snapshot.Entries) > 0 {
		members := make([]redis.Z, 0, len(snapshot.Entries))
		names := make(map[string]any, len(snapshot.Entries))
		for _, e := range snapshot.Entries {
			members = append(members, redis.Z{Score: float64(e.Points), Member: e.ID})
			names[e.ID] = e.Name
		}
		pipe.ZAdd(ctx, keyLeaderboardScores, members...)
		pipe.HSet(ctx, keyLeaderboardNames, names)
		pipe.Expire(ctx, keyLeaderboardScores, ttl)
		pipe.Expire(ctx, keyLeaderboardNames, ttl)
	}
	pipe.Set(ctx, keyLeaderboardMeta, snapshot.FetchedAt.UTC().Format(time.RFC3339Nano), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("leaderboard cache: store: %w", err)
	}
	return nil
}

// Load returns the cached snapshot trimmed to limit. ok is false when the
// cache is empty or expired.
func (l *LeaderboardCache) Load(ctx context.Context, limit int) (leaderboard.Snapshot, bool, error) {
	client := l.cache.Client()

	fetched, err := client.Get(ctx, keyLeaderboardMeta).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return leaderboard.Snapshot{}, false, nil
		}
		return leaderboard.Snapshot{}, false, fmt.Errorf("leaderboard cache: load meta: %w", err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return leaderboard.Snapshot{}, false, nil
	}

	pipe := client.Pipeline()
	scoresCmd := pipe.ZRevRangeWithScores(ctx, keyLeaderboardScores, 0, -1)
	namesCmd := pipe.HGetAll(ctx, keyLeaderboardNames)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return leaderboard.Snapshot{}, false, fmt.Errorf("leaderboard cache: load entries: %w", err)
	}

	return leaderboard.Snapshot{
		Entries:   entriesFromCache(scoresCmd.Val(), namesCmd.Val(), limit),
		FetchedAt: fetchedAt,
	}, true, nil
}

// Invalidate drops the cached snapshot.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	return l.cache.Delete(ctx, keyLeaderboardScores, keyLeaderboardNames, keyLeaderboardMeta)
}

// entriesFromCache joins scores with names. Redis orders equal scores by
// member, so the result is re-ranked with the domain ordering.
func entriesFromCache(scores []redis.Z, names map[string]string, limit int) []leaderboard.Entry {
	entries := make([]leaderboard.Entry, 0, len(scores))
	for _, z := range scores {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, leaderboard.Entry{
			ID:     id,
			Name:   names[id],
			Points: int(z.Score),
		})
	}
	return leaderboard.Build(entries, limit)
}
