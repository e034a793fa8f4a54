// Package chat holds the conversation with the learning assistant. A failed
// request never breaks the conversation: it becomes an error entry in the
// transcript and the learner can keep typing.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Role identifies the author of a transcript entry. RoleError marks an
// inline failure notice; such entries are never sent to the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is one transcript entry.
type Message struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Assistant produces the next reply for a conversation.
type Assistant interface {
	Reply(ctx context.Context, history []Message) (string, error)
}

const (
	defaultMaxHistory = 20
	maxMessageRunes   = 4000
)

// Inline notices shown in place of a reply.
const (
	NoticeNoCredential = "Add your assistant API key in settings to start chatting."
	NoticeRejectedKey  = "The assistant rejected your API key. Check it in settings."
	NoticeRateLimited  = "You're sending messages too fast. Wait a moment and try again."
	NoticeUnavailable  = "The assistant is unavailable right now. Please try again."
)

var (
	ErrSessionClosed  = errors.New("chat session is closed")
	ErrEmptyMessage   = shared.NewDomainError("chat", "Send", shared.ErrEmptyValue, "message is empty")
	ErrMessageTooLong = shared.NewDomainError("chat", "Send", shared.ErrValueOutOfRange, "message is too long")
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is one learner's conversation. It is safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	assistant  Assistant
	messages   []Message
	maxHistory int
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc

	log *logger.Logger
	now func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithGreeting seeds the transcript with an assistant message.
func WithGreeting(text string) Option {
	return func(s *Session) {
		if text != "" {
			s.messages = append(s.messages, s.newMessage(RoleAssistant, text))
		}
	}
}

// WithMaxHistory limits how many past entries are sent with each request.
func WithMaxHistory(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates a session bound to assistant.
func NewSession(assistant Assistant, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		assistant:  assistant,
		maxHistory: defaultMaxHistory,
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("chat"))
	return s
}

// Send appends text to the transcript and waits for the reply. Assistant
// failures are recorded as a RoleError entry and Send returns nil; only
// invalid input and a closed session are reported as errors.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return ErrMessageTooLong
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.messages = append(s.messages, s.newMessage(RoleUser, text))
	history := s.historyLocked()
	s.mu.Unlock()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	start := s.now()
	reply, err := s.assistant.Reply(callCtx, history)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if err != nil {
		s.log.Warn("assistant request failed",
			logger.Err(err),
			logger.Latency(s.now().Sub(start)),
		)
		s.messages = append(s.messages, s.newMessage(RoleError, noticeFor(err)))
		return nil
	}

	s.messages = append(s.messages, s.newMessage(RoleAssistant, reply))
	return nil
}

// Transcript returns a copy of all entries in order.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset clears the transcript.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Close cancels any in-flight request. Later Send calls fail with
// ErrSessionClosed. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// historyLocked returns the last maxHistory non-error entries.
func (s *Session) historyLocked() []Message {
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Role != RoleError {
			out = append(out, m)
		}
	}
	if len(out) > s.maxHistory {
		out = out[len(out)-s.maxHistory:]
	}
	return out
}

func (s *Session) newMessage(role Role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		At:      s.now().UTC(),
	}
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, shared.ErrAssistantNoCredential):
		return NoticeNoCredential
	case shared.IsUnauthorized(err):
		return NoticeRejectedKey
	case errors.Is(err, shared.ErrRateLimited):
		return NoticeRateLimited
	default:
		return NoticeUnavailable
	}
}
