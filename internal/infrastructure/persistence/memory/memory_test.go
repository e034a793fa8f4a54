package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/domain/earlyaccess"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

func newProfile(t *testing.T, name string) *profile.Profile {
	t.Helper()
	p, err := profile.NewProfile(profile.NewProfileParams{
		ID:           profile.UserID(uuid.NewString()),
		DisplayName:  name,
		LearningPath: onboarding.PathBeginner,
	})
	require.NoError(t, err)
	return p
}

func TestProfileRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository()
	p := newProfile(t, "Ada")

	require.NoError(t, repo.Create(ctx, p))
	assert.ErrorIs(t, repo.Create(ctx, p), shared.ErrAlreadyExists)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)

	require.NoError(t, repo.UpdateDisplayName(ctx, p.ID, "Grace"))
	got, _ = repo.GetByID(ctx, p.ID)
	assert.Equal(t, "Grace", got.DisplayName)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.GetByID(ctx, p.ID)
	assert.True(t, shared.IsNotFound(err))
	assert.True(t, shared.IsNotFound(repo.Delete(ctx, p.ID)))
}

func TestProfileRepository_MutateProgressSerializes(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository()
	p := newProfile(t, "Ada")
	require.NoError(t, repo.Create(ctx, p))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.MutateProgress(ctx, p.ID, func(cur profile.Progress) (profile.Progress, error) {
				cur.VibeCoins++
				return cur, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	progress, err := repo.GetProgress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, progress.VibeCoins)
}

func TestProfileRepository_MutationErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository()
	p := newProfile(t, "Ada")
	require.NoError(t, repo.Create(ctx, p))

	_, err := repo.MutateProgress(ctx, p.ID, func(cur profile.Progress) (profile.Progress, error) {
		cur.VibeCoins = 999
		return cur, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	progress, _ := repo.GetProgress(ctx, p.ID)
	assert.Zero(t, progress.VibeCoins)
}

func TestProfileRepository_ListIDsPages(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newProfile(t, "user")))
	}

	first, err := repo.ListIDs(ctx, profile.ListOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)

	rest, err := repo.ListIDs(ctx, profile.ListOptions{Limit: 3}.WithAfter(first[2]))
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.Less(t, string(first[2]), string(rest[0]))
}

func TestProfileRepository_TopUsersSkipsNameless(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository()
	a := newProfile(t, "A")
	b := newProfile(t, "B")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	repo.SetVibeCoins(a.ID, 10)
	repo.SetVibeCoins(b.ID, 50)
	require.NoError(t, repo.UpdateDisplayName(ctx, a.ID, " "))

	top, err := repo.TopUsers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "B", top[0].Name)
}

func TestEarlyAccessRepository_RejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewEarlyAccessRepository()

	first, err := earlyaccess.NewSignup("Ada", "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, first))

	second, err := earlyaccess.NewSignup("Someone", "ADA@example.com")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Insert(ctx, second), shared.ErrAlreadyRegistered)
	assert.Equal(t, 1, repo.Count())
}
