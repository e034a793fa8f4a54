package command

import (
	"context"
	"fmt"

	"github.com/vibecoding/vibe-academy/internal/application/validation"
	"github.com/vibecoding/vibe-academy/internal/domain/earlyaccess"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN EARLY ACCESS COMMAND
// Records a (name, email) pair once. A repeated email is reported as
// ErrAlreadyRegistered and never creates a second row.
// ══════════════════════════════════════════════════════════════════════════════

// JoinEarlyAccessCommand contains the signup form.
type JoinEarlyAccessCommand struct {
	Name          string `json:"name" validate:"notblank,max=100"`
	Email         string `json:"email" validate:"required,email"`
	CorrelationID string `json:"-"`
}

// Validate validates the command.
func (c JoinEarlyAccessCommand) Validate() error {
	return validation.Struct(c)
}

// JoinEarlyAccessResult contains the stored signup.
type JoinEarlyAccessResult struct {
	SignupID string
	Email    string
}

// JoinEarlyAccessHandler handles the JoinEarlyAccessCommand.
type JoinEarlyAccessHandler struct {
	signups        earlyaccess.Repository
	eventPublisher shared.EventPublisher
}

// NewJoinEarlyAccessHandler creates a new JoinEarlyAccessHandler.
func NewJoinEarlyAccessHandler(signups earlyaccess.Repository, eventPublisher shared.EventPublisher) *JoinEarlyAccessHandler {
	return &JoinEarlyAccessHandler{signups: signups, eventPublisher: eventPublisher}
}

// Handle executes the command.
func (h *JoinEarlyAccessHandler) Handle(ctx context.Context, cmd JoinEarlyAccessCommand) (*JoinEarlyAccessResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("join_early_access: %w", err)
	}

	signup, err := earlyaccess.NewSignup(cmd.Name, cmd.Email)
	if err != nil {
		return nil, fmt.Errorf("join_early_access: %w", err)
	}

	if err := h.signups.Insert(ctx, signup); err != nil {
		return nil, fmt.Errorf("join_early_access: %w", err)
	}

	event := shared.NewEarlyAccessJoinedEvent(signup.ID, signup.Name)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &JoinEarlyAccessResult{SignupID: signup.ID, Email: signup.Email.String()}, nil
}
