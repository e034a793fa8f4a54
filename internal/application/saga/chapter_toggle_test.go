package saga

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/persistence/memory"
)

type nopPublisher struct{}

func (nopPublisher) Publish(shared.Event) error { return nil }

type stepRecorder struct {
	mu    sync.Mutex
	steps []ToggleStep
	coins []int
}

func (r *stepRecorder) OnToggle(state *ChapterToggleState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, state.Step())
	r.coins = append(r.coins, state.Visible().VibeCoins)
}

type failingToggler struct{ err error }

func (f failingToggler) Handle(context.Context, command.ToggleChapterCommand) (*command.ToggleChapterResult, error) {
	return nil, f.err
}

func setup(t *testing.T) (*memory.ProfileRepository, profile.UserID, VisibleState) {
	t.Helper()
	repo := memory.NewProfileRepository()
	p, err := profile.NewProfile(profile.NewProfileParams{
		ID:           profile.UserID(uuid.NewString()),
		DisplayName:  "Ada",
		LearningPath: onboarding.PathBeginner,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), p))

	visible := VisibleStateFunc(func(ctx context.Context, userID string) (profile.Progress, error) {
		return repo.GetProgress(ctx, profile.UserID(userID))
	})
	return repo, p.ID, visible
}

func TestChapterToggleSaga_CommitsConfirmedState(t *testing.T) {
	catalog := course.MustDefault()
	repo, id, visible := setup(t)
	rec := &stepRecorder{}
	s := NewChapterToggleSaga(command.NewToggleChapterHandler(repo, catalog, nopPublisher{}), visible, catalog, rec)

	state, err := s.Run(context.Background(), ChapterToggleInput{UserID: id.String(), ModuleID: "v0", ChapterID: "export"})
	require.NoError(t, err)

	assert.Equal(t, StepCommitted, state.Step())
	assert.True(t, state.Step().IsFinal())
	assert.Equal(t, 15, state.Visible().VibeCoins)
	assert.Equal(t, 15, state.Preview().VibeCoins)
	require.NotNil(t, state.Result())
	assert.True(t, state.Result().Completed)

	assert.Equal(t, []ToggleStep{StepPending, StepCommitted}, rec.steps)
	// Pending never shows the optimistic value.
	assert.Equal(t, []int{0, 15}, rec.coins)
}

func TestChapterToggleSaga_RollsBackOnWriteFailure(t *testing.T) {
	catalog := course.MustDefault()
	repo, id, visible := setup(t)
	_, err := repo.MutateProgress(context.Background(), id, func(cur profile.Progress) (profile.Progress, error) {
		next, _ := cur.Toggle("v0", "first-ui", 20)
		return next, nil
	})
	require.NoError(t, err)

	rec := &stepRecorder{}
	s := NewChapterToggleSaga(failingToggler{err: shared.ErrServiceUnavailable}, visible, catalog, rec)

	state, err := s.Run(context.Background(), ChapterToggleInput{UserID: id.String(), ModuleID: "v0", ChapterID: "first-ui"})
	require.ErrorIs(t, err, shared.ErrServiceUnavailable)

	assert.Equal(t, StepRolledBack, state.Step())
	assert.ErrorIs(t, state.Err(), shared.ErrServiceUnavailable)
	assert.Equal(t, 20, state.Visible().VibeCoins)
	assert.True(t, state.Visible().CompletedChapters.Has("v0", "first-ui"))
	assert.Zero(t, state.Preview().VibeCoins)
	assert.Equal(t, []int{20, 20}, rec.coins)
}

func TestChapterToggleState_TransitionsAreOneShot(t *testing.T) {
	state := Begin(ChapterToggleInput{ModuleID: "v0", ChapterID: "export"}, profile.EmptyProgress(), 15)
	assert.Equal(t, StepPending, state.Step())
	assert.Zero(t, state.Duration())

	require.NoError(t, state.Rollback(assert.AnError))
	assert.ErrorIs(t, state.Commit(&command.ToggleChapterResult{}), shared.ErrStateTransition)
	assert.ErrorIs(t, state.Rollback(assert.AnError), shared.ErrStateTransition)
	assert.Equal(t, StepRolledBack, state.Step())
}
