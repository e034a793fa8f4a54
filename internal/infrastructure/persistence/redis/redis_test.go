package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/messaging"
)

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "redis://:pw@cache.internal:6380/2"

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)

	_, err = Config{URL: "http://nope"}.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestEntriesFromCache_ReranksTies(t *testing.T) {
	scores := []redis.Z{
		{Score: 10, Member: "c"},
		{Score: 50, Member: "a"},
		{Score: 10, Member: "b"},
	}
	names := map[string]string{"a": "Ann", "b": "Bob", "c": "Ann"}

	got := entriesFromCache(scores, names, 10)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, leaderboard.Rank(1), got[0].Rank)
	// Equal points: by name, then by ID.
	assert.Equal(t, "c", got[1].ID)
	assert.Equal(t, "b", got[2].ID)

	assert.Len(t, entriesFromCache(scores, names, 2), 2)
}

// integrationCache connects to REDIS_TEST_URL; the test is skipped without it.
func integrationCache(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	cfg := DefaultConfig()
	cfg.URL = url
	cache, err := NewCache(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestLeaderboardCache_Integration(t *testing.T) {
	cache := integrationCache(t)
	lc := NewLeaderboardCache(cache)
	ctx := context.Background()
	require.NoError(t, lc.Invalidate(ctx))

	_, ok, err := lc.Load(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	fetchedAt := time.Now().UTC().Truncate(time.Millisecond)
	snapshot := leaderboard.Snapshot{
		Entries:   leaderboard.Build([]leaderboard.Entry{{ID: "u1", Name: "Ann", Points: 50}, {ID: "u2", Name: "Bob", Points: 10}}, 10),
		FetchedAt: fetchedAt,
	}
	require.NoError(t, lc.Store(ctx, snapshot, time.Minute))

	loaded, ok, err := lc.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, fetchedAt.Equal(loaded.FetchedAt))
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, "Ann", loaded.Entries[0].Name)

	require.NoError(t, lc.Invalidate(ctx))
	_, ok, err = lc.Load(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_Integration(t *testing.T) {
	cache := integrationCache(t)
	ctx := context.Background()
	name := "test-" + uuid.NewString()

	ok, err := cache.TryLock(ctx, name, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.TryLock(ctx, name, "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, cache.Unlock(ctx, name, "b"), ErrLockNotHeld)
	require.NoError(t, cache.Unlock(ctx, name, "a"))
}

func TestPubSub_Integration(t *testing.T) {
	cache := integrationCache(t)
	ps := NewPubSub(cache)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := "test:" + uuid.NewString()
	messages, err := ps.Subscribe(ctx, channel)
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, channel, "hello"))

	select {
	case msg := <-messages:
		assert.Equal(t, messaging.PubSubMessage{Channel: channel, Payload: "hello"}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}
