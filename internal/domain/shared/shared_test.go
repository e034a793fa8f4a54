package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Classification(t *testing.T) {
	wrapped := fmt.Errorf("toggle: %w", ErrProfileNotFound)

	assert.True(t, IsNotFound(wrapped))
	assert.True(t, errors.Is(wrapped, ErrProfileNotFound))
	assert.False(t, IsAlreadyExists(wrapped))

	assert.True(t, IsAlreadyExists(ErrAlreadyRegistered))
	assert.True(t, IsValidation(ErrInvalidDisplayName))
	assert.True(t, IsValidation(ErrInvalidLimit))
	assert.True(t, IsExternalService(ErrRecommenderUnavailable))
	assert.True(t, IsRetryable(ErrLeaderboardRefresh))
	assert.True(t, IsUnauthorized(ErrAssistantNoCredential))
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("profile", "Toggle", ErrServiceUnavailable, "write failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, "profile.Toggle: write failed: connection reset", err.Error())
}

type genericEvent struct {
	BaseEvent
	payload map[string]interface{}
}

func (e genericEvent) Payload() map[string]interface{} { return e.payload }

func TestDecodeProgressChanged(t *testing.T) {
	t.Run("typed event passes through", func(t *testing.T) {
		ev := NewProgressChangedEvent("u1", "html-css", "intro", true, 10, map[string][]string{"html-css": {"intro"}}).
			WithRevision(3)
		got, ok := DecodeProgressChanged(ev)
		require.True(t, ok)
		assert.Equal(t, ev, got)
		assert.EqualValues(t, 3, got.Revision)
	})

	t.Run("generic payload is decoded", func(t *testing.T) {
		ev := genericEvent{
			BaseEvent: BaseEvent{Type: EventProgressChanged, AggregateId: "u2", Timestamp: time.Now()},
			payload: map[string]interface{}{
				"module_id":          "react-basics",
				"chapter_id":         "hooks",
				"completed":          false,
				"vibe_coins":         float64(40),
				"completed_chapters": map[string]interface{}{"react-basics": []interface{}{"jsx"}},
				"revision":           float64(7),
			},
		}
		got, ok := DecodeProgressChanged(ev)
		require.True(t, ok)
		assert.Equal(t, "u2", got.AggregateID())
		assert.Equal(t, 40, got.VibeCoins)
		assert.False(t, got.Completed)
		assert.Equal(t, []string{"jsx"}, got.CompletedChapters["react-basics"])
		assert.EqualValues(t, 7, got.Revision)
	})

	t.Run("other event types are rejected", func(t *testing.T) {
		_, ok := DecodeProgressChanged(NewAccountDeletedEvent("u3"))
		assert.False(t, ok)
	})
}

func TestNewEmail(t *testing.T) {
	e, err := NewEmail("  Ada@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, Email("ada@example.com"), e)
	assert.Equal(t, "example.com", e.Domain())

	for _, bad := range []string{"", "ada", "ada@", "Ada <ada@example.com>", "ada@localhost"} {
		_, err := NewEmail(bad)
		assert.ErrorIs(t, err, ErrInvalidEmail, bad)
	}
}

func TestIsSlug(t *testing.T) {
	assert.True(t, IsSlug("html-css"))
	assert.True(t, IsSlug("v0"))
	assert.False(t, IsSlug("Html"))
	assert.False(t, IsSlug("a--b"))
	assert.False(t, IsSlug(""))
}
