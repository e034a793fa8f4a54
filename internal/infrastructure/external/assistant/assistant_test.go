package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIAL STORE
// ══════════════════════════════════════════════════════════════════════════════

func newTestStore(t *testing.T, passphrase string) *CredentialStore {
	t.Helper()
	store, err := NewCredentialStore(filepath.Join(t.TempDir(), "keys", "assistant.key"), passphrase)
	require.NoError(t, err)
	store.scryptN = 1 << 10
	return store
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	store := newTestStore(t, "correct horse")

	_, err := store.Load()
	assert.ErrorIs(t, err, shared.ErrAssistantNoCredential)

	require.NoError(t, store.Save("  sk-test-123  "))
	key, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", key)

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-test-123")

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = store.Load()
	assert.ErrorIs(t, err, shared.ErrAssistantNoCredential)
}

func TestCredentialStore_WrongPassphrase(t *testing.T) {
	store := newTestStore(t, "one")
	require.NoError(t, store.Save("sk-secret"))

	other, err := NewCredentialStore(store.Path(), "two")
	require.NoError(t, err)
	other.scryptN = store.scryptN

	_, err = other.Load()
	assert.ErrorIs(t, err, ErrCredentialCorrupt)
}

func TestCredentialStore_RejectsEmptyInput(t *testing.T) {
	_, err := NewCredentialStore("/tmp/x", "")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	store := newTestStore(t, "p")
	assert.True(t, shared.IsValidation(store.Save("   ")))
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

func TestRateLimiter_BucketAndHold(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 2, WaitTimeout: 0})
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.TryAllow())
	assert.True(t, rl.TryAllow())
	assert.False(t, rl.TryAllow())

	now = now.Add(time.Second)
	assert.True(t, rl.TryAllow())

	rl.RecordRateLimitHit(10 * time.Second)
	now = now.Add(5 * time.Second)
	assert.False(t, rl.TryAllow())

	err := rl.Wait(context.Background())
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 5*time.Second, rle.RetryAfter)
	assert.ErrorIs(t, err, shared.ErrRateLimited)

	now = now.Add(5 * time.Second)
	assert.True(t, rl.TryAllow())
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		BaseURL:           srv.URL,
		Model:             "test-model",
		RateLimiterConfig: RateLimiterConfig{RequestsPerSecond: 1000, BurstSize: 10, WaitTimeout: time.Second},
		Retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(time.Millisecond),
			retry.WithJitter(0),
			retry.WithRetryIf(retry.IsRetryable),
		),
	})
}

var conversation = []MessageDTO{{Role: RoleUser, Content: "How do I deploy to Vercel?"}}

func TestClient_Complete_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-live", r.Header.Get("Authorization"))

		var req ChatRequestDTO
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, conversation, req.Messages)

		_ = json.NewEncoder(w).Encode(ChatResponseDTO{
			ID:      "cmpl-1",
			Choices: []ChoiceDTO{{Message: MessageDTO{Role: RoleAssistant, Content: "Push to GitHub and import the repo."}}},
		})
	})

	reply, err := client.Complete(context.Background(), "sk-live", conversation)
	require.NoError(t, err)
	assert.Equal(t, "Push to GitHub and import the repo.", reply)
}

func TestClient_Complete_RequiresKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})

	_, err := client.Complete(context.Background(), " ", conversation)
	assert.ErrorIs(t, err, shared.ErrAssistantNoCredential)
}

func TestClient_Complete_RejectedKeyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	})

	_, err := client.Complete(context.Background(), "sk-bad", conversation)
	require.Error(t, err)
	assert.True(t, shared.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "Incorrect API key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Complete_RetriesRateLimitAndServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
		}
	})

	reply, err := client.Complete(context.Background(), "sk-live", conversation)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Complete_EmptyReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Complete(context.Background(), "sk-live", conversation)
	assert.ErrorIs(t, err, shared.ErrAssistantUnavailable)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
}
