package command

import (
	"context"
	"fmt"

	"github.com/vibecoding/vibe-academy/internal/application/validation"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/recommendation"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE ONBOARDING COMMAND
// Turns the questionnaire into a profile: classifies the learning path,
// creates the profile with empty progress and picks the first modules.
// ══════════════════════════════════════════════════════════════════════════════

// ExperienceInput is the self-assessment block of the questionnaire.
type ExperienceInput struct {
	HTMLCSS    int `json:"htmlCss" validate:"gte=1,lte=5"`
	JavaScript int `json:"javascript" validate:"gte=1,lte=5"`
	React      int `json:"react" validate:"gte=1,lte=5"`
	Backend    int `json:"backend" validate:"gte=1,lte=5"`
}

// CompleteOnboardingCommand contains the questionnaire answers.
type CompleteOnboardingCommand struct {
	// UserID is the authenticated user.
	UserID string `json:"userId" validate:"required,uuid"`

	// Email comes from the identity provider.
	Email string `json:"email" validate:"omitempty,email"`

	// Name is the display name shown on the leaderboard.
	Name string `json:"name" validate:"notblank,max=64"`

	// Experience holds the four ratings.
	Experience ExperienceInput `json:"experience"`

	// VibecodeLevel is familiarity with AI-assisted coding (0-4).
	VibecodeLevel int `json:"vibecodeLevel" validate:"gte=0,lte=4"`

	// DreamProject is the free-text project description.
	DreamProject string `json:"dreamProject" validate:"max=2000"`

	// Path is an explicit choice; empty means "use the classified path".
	Path string `json:"path" validate:"learning_path"`

	// CorrelationID for tracing.
	CorrelationID string `json:"-"`
}

// Validate validates the command.
func (c CompleteOnboardingCommand) Validate() error {
	return validation.Struct(c)
}

// Signals converts the command into domain signals.
func (c CompleteOnboardingCommand) Signals() onboarding.Signals {
	return onboarding.Signals{
		Name: c.Name,
		Experience: onboarding.Experience{
			HTMLCSS:    c.Experience.HTMLCSS,
			JavaScript: c.Experience.JavaScript,
			React:      c.Experience.React,
			Backend:    c.Experience.Backend,
		},
		VibecodeLevel: c.VibecodeLevel,
		DreamProject:  c.DreamProject,
		Path:          onboarding.PathLabel(c.Path),
	}
}

// CompleteOnboardingResult contains the created profile and the first modules.
type CompleteOnboardingResult struct {
	// Profile is the newly created profile.
	Profile *profile.Profile

	// ClassifiedPath is what the classifier suggested, even if the user chose another.
	ClassifiedPath onboarding.PathLabel

	// Recommendation is the personalised module list.
	Recommendation recommendation.Result
}

// ModuleRecommender picks modules for a questionnaire. It never fails:
// remote errors degrade to the local fallback.
type ModuleRecommender interface {
	Recommend(ctx context.Context, signals onboarding.Signals) recommendation.Result
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteOnboardingHandler handles the CompleteOnboardingCommand.
type CompleteOnboardingHandler struct {
	profiles       profile.Repository
	recommender    ModuleRecommender
	eventPublisher shared.EventPublisher
}

// NewCompleteOnboardingHandler creates a new CompleteOnboardingHandler.
func NewCompleteOnboardingHandler(
	profiles profile.Repository,
	recommender ModuleRecommender,
	eventPublisher shared.EventPublisher,
) *CompleteOnboardingHandler {
	return &CompleteOnboardingHandler{
		profiles:       profiles,
		recommender:    recommender,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the command.
func (h *CompleteOnboardingHandler) Handle(ctx context.Context, cmd CompleteOnboardingCommand) (*CompleteOnboardingResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_onboarding: %w", err)
	}

	userID, err := profile.ParseUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("complete_onboarding: %w", err)
	}

	signals := cmd.Signals()
	if err := signals.Validate(); err != nil {
		return nil, fmt.Errorf("complete_onboarding: %w", err)
	}

	classified := onboarding.ClassifyLearningPath(signals.AverageExperience(), signals.VibecodeLevel)
	signals = signals.WithClassifiedPath()

	p, err := profile.NewProfile(profile.NewProfileParams{
		ID:           userID,
		DisplayName:  signals.Name,
		Email:        cmd.Email,
		LearningPath: signals.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("complete_onboarding: %w", err)
	}

	if err := h.profiles.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("complete_onboarding: failed to create profile: %w", err)
	}

	event := shared.NewProfileCreatedEvent(p.ID.String(), p.DisplayName, p.LearningPath.String())
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &CompleteOnboardingResult{
		Profile:        p,
		ClassifiedPath: classified,
		Recommendation: h.recommender.Recommend(ctx, signals),
	}, nil
}
