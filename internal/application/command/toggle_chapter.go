// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/vibecoding/vibe-academy/internal/application/validation"
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE CHAPTER COMMAND
// Flips the completion state of one chapter and adjusts the vibe coin balance.
// The chapter set and the balance are written in a single atomic mutation.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleChapterCommand contains the data to toggle a chapter.
type ToggleChapterCommand struct {
	// UserID is the authenticated user.
	UserID string `json:"userId" validate:"required,uuid"`

	// ModuleID is the catalog module.
	ModuleID string `json:"moduleId" validate:"required,slug"`

	// ChapterID is the chapter inside the module.
	ChapterID string `json:"chapterId" validate:"required,slug"`

	// ChapterPoints is the value the client believes the chapter is worth.
	// Zero means "use the catalog value"; any other value must match it.
	ChapterPoints int `json:"chapterPoints" validate:"gte=0"`

	// CorrelationID for tracing.
	CorrelationID string `json:"-"`
}

// Validate validates the command.
func (c ToggleChapterCommand) Validate() error {
	return validation.Struct(c)
}

// ToggleChapterResult contains the outcome of a toggle.
type ToggleChapterResult struct {
	// Completed is the new state of the chapter.
	Completed bool

	// VibeCoins is the balance after the toggle.
	VibeCoins int

	// Delta is the signed change of the balance.
	Delta int

	// Progress is the full state after the toggle.
	Progress profile.Progress
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ToggleChapterHandler handles the ToggleChapterCommand.
type ToggleChapterHandler struct {
	profiles       profile.Repository
	catalog        *course.Catalog
	eventPublisher shared.EventPublisher
}

// NewToggleChapterHandler creates a new ToggleChapterHandler.
func NewToggleChapterHandler(
	profiles profile.Repository,
	catalog *course.Catalog,
	eventPublisher shared.EventPublisher,
) *ToggleChapterHandler {
	return &ToggleChapterHandler{
		profiles:       profiles,
		catalog:        catalog,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the toggle.
func (h *ToggleChapterHandler) Handle(ctx context.Context, cmd ToggleChapterCommand) (*ToggleChapterResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("toggle_chapter: %w", err)
	}

	userID, err := profile.ParseUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("toggle_chapter: %w", err)
	}

	moduleID := course.ModuleID(cmd.ModuleID)
	chapterID := course.ChapterID(cmd.ChapterID)

	points, err := h.resolvePoints(moduleID, chapterID, cmd.ChapterPoints)
	if err != nil {
		return nil, fmt.Errorf("toggle_chapter: %w", err)
	}

	var outcome profile.ToggleResult
	next, err := h.profiles.MutateProgress(ctx, userID, func(current profile.Progress) (profile.Progress, error) {
		updated, res := current.Toggle(moduleID, chapterID, points)
		outcome = res
		return updated, nil
	})
	if err != nil {
		return nil, fmt.Errorf("toggle_chapter: failed to update progress: %w", err)
	}

	// Publish only after the write is durable.
	event := shared.NewProgressChangedEvent(
		userID.String(), cmd.ModuleID, cmd.ChapterID,
		outcome.Completed, next.VibeCoins, next.CompletedChapters.Snapshot(),
	).WithRevision(next.Revision)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &ToggleChapterResult{
		Completed: outcome.Completed,
		VibeCoins: next.VibeCoins,
		Delta:     outcome.Delta,
		Progress:  next,
	}, nil
}

func (h *ToggleChapterHandler) resolvePoints(moduleID course.ModuleID, chapterID course.ChapterID, claimed int) (int, error) {
	module, ok := h.catalog.Module(moduleID)
	if !ok {
		return 0, shared.ErrModuleNotFound
	}
	chapter, ok := module.Chapter(chapterID)
	if !ok {
		return 0, shared.ErrChapterNotFound
	}
	if claimed != 0 && claimed != chapter.Points {
		return 0, shared.ErrPointsMismatch
	}
	return chapter.Points, nil
}
