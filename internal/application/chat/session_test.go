package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

type scriptedAssistant struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	seen    [][]Message
}

func (a *scriptedAssistant) Reply(_ context.Context, history []Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seen = append(a.seen, history)
	i := len(a.seen) - 1
	if i < len(a.errs) && a.errs[i] != nil {
		return "", a.errs[i]
	}
	if i < len(a.replies) {
		return a.replies[i], nil
	}
	return "ok", nil
}

// blockingAssistant waits until its context is cancelled.
type blockingAssistant struct {
	started chan struct{}
}

func (a *blockingAssistant) Reply(ctx context.Context, _ []Message) (string, error) {
	close(a.started)
	<-ctx.Done()
	return "", ctx.Err()
}

func roles(msgs []Message) []Role {
	out := make([]Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestSession_SendAppendsUserAndReply(t *testing.T) {
	a := &scriptedAssistant{replies: []string{"Start with HTML."}}
	s := NewSession(a, WithGreeting("Hi! Ask me anything."))

	require.NoError(t, s.Send(context.Background(), "  where do I start?  "))

	transcript := s.Transcript()
	assert.Equal(t, []Role{RoleAssistant, RoleUser, RoleAssistant}, roles(transcript))
	assert.Equal(t, "where do I start?", transcript[1].Content)
	assert.Equal(t, "Start with HTML.", transcript[2].Content)
	assert.NotEmpty(t, transcript[2].ID)

	require.Len(t, a.seen, 1)
	assert.Len(t, a.seen[0], 2)
}

func TestSession_FailureBecomesInlineError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		notice string
	}{
		{name: "no key", err: shared.ErrAssistantNoCredential, notice: NoticeNoCredential},
		{name: "rejected key", err: shared.WrapError("assistant", "Complete", shared.ErrUnauthorized, "rejected", nil), notice: NoticeRejectedKey},
		{name: "rate limited", err: fmt.Errorf("%w: %w", shared.ErrAssistantUnavailable, shared.ErrRateLimited), notice: NoticeRateLimited},
		{name: "down", err: errors.New("connection refused"), notice: NoticeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(&scriptedAssistant{errs: []error{tt.err}})

			require.NoError(t, s.Send(context.Background(), "hello"))

			transcript := s.Transcript()
			require.Len(t, transcript, 2)
			assert.Equal(t, RoleError, transcript[1].Role)
			assert.Equal(t, tt.notice, transcript[1].Content)
		})
	}
}

func TestSession_ErrorEntriesAreNotSentBack(t *testing.T) {
	a := &scriptedAssistant{errs: []error{errors.New("boom"), nil}, replies: []string{"", "second"}}
	s := NewSession(a)

	require.NoError(t, s.Send(context.Background(), "first"))
	require.NoError(t, s.Send(context.Background(), "again"))

	require.Len(t, a.seen, 2)
	assert.Equal(t, []Role{RoleUser, RoleUser}, roles(a.seen[1]))
	assert.Equal(t, []Role{RoleUser, RoleError, RoleUser, RoleAssistant}, roles(s.Transcript()))
}

func TestSession_HistoryIsTrimmed(t *testing.T) {
	a := &scriptedAssistant{}
	s := NewSession(a, WithMaxHistory(3))

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Send(context.Background(), fmt.Sprintf("msg %d", i)))
	}

	last := a.seen[len(a.seen)-1]
	require.Len(t, last, 3)
	assert.Equal(t, "msg 3", last[2].Content)
}

func TestSession_RejectsInvalidInput(t *testing.T) {
	s := NewSession(&scriptedAssistant{})

	assert.ErrorIs(t, s.Send(context.Background(), "   "), ErrEmptyMessage)
	assert.True(t, shared.IsValidation(s.Send(context.Background(), string(make([]rune, maxMessageRunes+1)))))
	assert.Empty(t, s.Transcript())
}

func TestSession_CloseCancelsInFlightRequest(t *testing.T) {
	a := &blockingAssistant{started: make(chan struct{})}
	s := NewSession(a)

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "hello") }()

	<-a.started
	s.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after Close")
	}

	assert.Equal(t, []Role{RoleUser}, roles(s.Transcript()))
	assert.ErrorIs(t, s.Send(context.Background(), "again"), ErrSessionClosed)
	s.Close()
}

func TestSession_Reset(t *testing.T) {
	s := NewSession(&scriptedAssistant{}, WithGreeting("hey"))
	s.Reset()
	assert.Empty(t, s.Transcript())
}
