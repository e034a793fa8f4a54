// Package saga contains business processes that span a user-visible state
// and a durable write. A saga only exposes new visible state once the write
// has been confirmed, and restores the previous state when it fails.
package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHAPTER TOGGLE SAGA
// Flow: Begin (pending, visible state unchanged) → Toggle command →
//
//	Commit (visible state = confirmed state) | Rollback (visible state restored)
//
// ══════════════════════════════════════════════════════════════════════════════

// ToggleStep is the state of a chapter toggle.
type ToggleStep string

const (
	StepPending    ToggleStep = "pending"
	StepCommitted  ToggleStep = "committed"
	StepRolledBack ToggleStep = "rolled_back"
)

// IsFinal reports whether no further transitions are allowed.
func (s ToggleStep) IsFinal() bool {
	return s == StepCommitted || s == StepRolledBack
}

// ChapterToggleInput identifies the chapter being toggled.
type ChapterToggleInput struct {
	UserID        string
	ModuleID      string
	ChapterID     string
	ChapterPoints int
	CorrelationID string
}

// ChapterToggleState tracks one toggle.
type ChapterToggleState struct {
	mu sync.RWMutex

	step     ToggleStep
	input    ChapterToggleInput
	before   profile.Progress
	preview  profile.Progress
	visible  profile.Progress
	result   *command.ToggleChapterResult
	err      error
	started  time.Time
	finished time.Time
}

// Step returns the current step.
func (s *ChapterToggleState) Step() ToggleStep {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// Visible returns the state a view should render. While pending it is the
// pre-toggle state.
func (s *ChapterToggleState) Visible() profile.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}

// Preview returns the expected state if the write succeeds.
func (s *ChapterToggleState) Preview() profile.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preview
}

// Result returns the confirmed toggle result, nil unless committed.
func (s *ChapterToggleState) Result() *command.ToggleChapterResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Err returns the failure that caused a rollback.
func (s *ChapterToggleState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Input returns the toggle input.
func (s *ChapterToggleState) Input() ChapterToggleInput {
	return s.input
}

// Duration returns how long the saga took; zero while pending.
func (s *ChapterToggleState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.finished.IsZero() {
		return 0
	}
	return s.finished.Sub(s.started)
}

// Begin opens a pending toggle on top of the currently visible state.
func Begin(input ChapterToggleInput, visible profile.Progress, points int) *ChapterToggleState {
	preview, _ := visible.Toggle(course.ModuleID(input.ModuleID), course.ChapterID(input.ChapterID), points)
	return &ChapterToggleState{
		step:    StepPending,
		input:   input,
		before:  visible,
		preview: preview,
		visible: visible,
		started: time.Now(),
	}
}

// Commit finalises the toggle with the state confirmed by storage.
func (s *ChapterToggleState) Commit(result *command.ToggleChapterResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepPending {
		return shared.NewDomainError("saga", "Commit", shared.ErrStateTransition,
			fmt.Sprintf("cannot commit from %s", s.step))
	}
	s.step = StepCommitted
	s.result = result
	s.visible = result.Progress
	s.finished = time.Now()
	return nil
}

// Rollback restores the pre-toggle visible state.
func (s *ChapterToggleState) Rollback(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != StepPending {
		return shared.NewDomainError("saga", "Rollback", shared.ErrStateTransition,
			fmt.Sprintf("cannot roll back from %s", s.step))
	}
	s.step = StepRolledBack
	s.err = cause
	s.visible = s.before
	s.finished = time.Now()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Toggler executes the durable toggle.
type Toggler interface {
	Handle(ctx context.Context, cmd command.ToggleChapterCommand) (*command.ToggleChapterResult, error)
}

// VisibleState supplies the state a user currently sees.
type VisibleState interface {
	Current(ctx context.Context, userID string) (profile.Progress, error)
}

// VisibleStateFunc adapts a function to VisibleState.
type VisibleStateFunc func(ctx context.Context, userID string) (profile.Progress, error)

// Current implements VisibleState.
func (f VisibleStateFunc) Current(ctx context.Context, userID string) (profile.Progress, error) {
	return f(ctx, userID)
}

// Observer is notified about every transition. Implementations must not block.
type Observer interface {
	OnToggle(state *ChapterToggleState)
}

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// ChapterToggleSaga runs Begin → command → Commit/Rollback.
type ChapterToggleSaga struct {
	toggler   Toggler
	state     VisibleState
	catalog   *course.Catalog
	observers []Observer
}

// NewChapterToggleSaga creates a new saga orchestrator.
func NewChapterToggleSaga(toggler Toggler, state VisibleState, catalog *course.Catalog, observers ...Observer) *ChapterToggleSaga {
	return &ChapterToggleSaga{
		toggler:   toggler,
		state:     state,
		catalog:   catalog,
		observers: observers,
	}
}

// Run executes the saga. The returned state is always final; the error is the
// command failure when the saga rolled back.
func (s *ChapterToggleSaga) Run(ctx context.Context, input ChapterToggleInput) (*ChapterToggleState, error) {
	visible, err := s.state.Current(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("chapter_toggle: failed to read visible state: %w", err)
	}

	points := input.ChapterPoints
	if ch, ok := s.catalog.Chapter(course.ModuleID(input.ModuleID), course.ChapterID(input.ChapterID)); ok {
		points = ch.Points
	}

	state := Begin(input, visible, points)
	s.notify(state)

	result, cmdErr := s.toggler.Handle(ctx, command.ToggleChapterCommand{
		UserID:        input.UserID,
		ModuleID:      input.ModuleID,
		ChapterID:     input.ChapterID,
		ChapterPoints: input.ChapterPoints,
		CorrelationID: input.CorrelationID,
	})
	if cmdErr != nil {
		_ = state.Rollback(cmdErr)
		s.notify(state)
		return state, cmdErr
	}

	_ = state.Commit(result)
	s.notify(state)
	return state, nil
}

func (s *ChapterToggleSaga) notify(state *ChapterToggleState) {
	for _, o := range s.observers {
		o.OnToggle(state)
	}
}
