package command

import (
	"context"
	"fmt"

	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE ACCOUNT COMMAND
// Removes the profile together with its progress. Leaderboard caches are
// invalidated by the event handler reacting to profile.deleted.
// ══════════════════════════════════════════════════════════════════════════════

// DeleteAccountCommand removes a profile.
type DeleteAccountCommand struct {
	UserID        string
	CorrelationID string
}

// Validate validates the command.
func (c DeleteAccountCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("profile", "Delete", shared.ErrValidation, "user id is required")
	}
	return nil
}

// DeleteAccountHandler handles the DeleteAccountCommand.
type DeleteAccountHandler struct {
	profiles       profile.Repository
	eventPublisher shared.EventPublisher
}

// NewDeleteAccountHandler creates a new DeleteAccountHandler.
func NewDeleteAccountHandler(profiles profile.Repository, eventPublisher shared.EventPublisher) *DeleteAccountHandler {
	return &DeleteAccountHandler{profiles: profiles, eventPublisher: eventPublisher}
}

// Handle executes the command.
func (h *DeleteAccountHandler) Handle(ctx context.Context, cmd DeleteAccountCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("delete_account: %w", err)
	}

	userID, err := profile.ParseUserID(cmd.UserID)
	if err != nil {
		return fmt.Errorf("delete_account: %w", err)
	}

	if err := h.profiles.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete_account: failed to delete profile: %w", err)
	}

	event := shared.NewAccountDeletedEvent(userID.String())
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return nil
}
