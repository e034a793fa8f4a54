package command

import (
	"context"
	"fmt"

	"github.com/vibecoding/vibe-academy/internal/application/validation"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE DISPLAY NAME COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UpdateDisplayNameCommand renames a profile.
type UpdateDisplayNameCommand struct {
	UserID        string `json:"userId" validate:"required,uuid"`
	DisplayName   string `json:"displayName" validate:"notblank,max=64"`
	CorrelationID string `json:"-"`
}

// Validate validates the command.
func (c UpdateDisplayNameCommand) Validate() error {
	return validation.Struct(c)
}

// UpdateDisplayNameResult contains the stored name.
type UpdateDisplayNameResult struct {
	DisplayName string
	Changed     bool
}

// UpdateDisplayNameHandler handles the UpdateDisplayNameCommand.
type UpdateDisplayNameHandler struct {
	profiles       profile.Repository
	eventPublisher shared.EventPublisher
}

// NewUpdateDisplayNameHandler creates a new UpdateDisplayNameHandler.
func NewUpdateDisplayNameHandler(profiles profile.Repository, eventPublisher shared.EventPublisher) *UpdateDisplayNameHandler {
	return &UpdateDisplayNameHandler{profiles: profiles, eventPublisher: eventPublisher}
}

// Handle executes the command.
func (h *UpdateDisplayNameHandler) Handle(ctx context.Context, cmd UpdateDisplayNameCommand) (*UpdateDisplayNameResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_display_name: %w", err)
	}

	userID, err := profile.ParseUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("update_display_name: %w", err)
	}

	p, err := h.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("update_display_name: failed to get profile: %w", err)
	}

	oldName := p.DisplayName
	if err := p.Rename(cmd.DisplayName); err != nil {
		return nil, fmt.Errorf("update_display_name: %w", err)
	}
	if p.DisplayName == oldName {
		return &UpdateDisplayNameResult{DisplayName: oldName}, nil
	}

	if err := h.profiles.UpdateDisplayName(ctx, userID, p.DisplayName); err != nil {
		return nil, fmt.Errorf("update_display_name: failed to save: %w", err)
	}

	event := shared.NewProfileRenamedEvent(userID.String(), oldName, p.DisplayName)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &UpdateDisplayNameResult{DisplayName: p.DisplayName, Changed: true}, nil
}
