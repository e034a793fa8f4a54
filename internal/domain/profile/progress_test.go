package profile

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

func TestToggle_RoundTripRestoresTotal(t *testing.T) {
	catalog := course.MustDefault()

	start := Progress{CompletedChapters: CompletedChapters{}, VibeCoins: 42}
	for _, m := range catalog.Modules() {
		for _, ch := range m.Chapters {
			done, res := start.Toggle(m.ID, ch.ID, ch.Points)
			require.True(t, res.Completed)
			assert.Equal(t, start.VibeCoins+ch.Points, done.VibeCoins)
			assert.True(t, done.CompletedChapters.Has(m.ID, ch.ID))

			back, res := done.Toggle(m.ID, ch.ID, ch.Points)
			require.False(t, res.Completed)
			assert.Equal(t, start.VibeCoins, back.VibeCoins)
			assert.False(t, back.CompletedChapters.Has(m.ID, ch.ID))
		}
	}
}

func TestToggle_DoesNotMutateReceiver(t *testing.T) {
	p := EmptyProgress()
	next, _ := p.Toggle("html-css", "layout", 20)

	assert.False(t, p.CompletedChapters.Has("html-css", "layout"))
	assert.Zero(t, p.VibeCoins)
	assert.True(t, next.CompletedChapters.Has("html-css", "layout"))
}

func TestToggle_UncompleteClampsAtZero(t *testing.T) {
	p := Progress{
		CompletedChapters: NewCompletedChapters(map[string][]string{"api": {"endpoints"}}),
		VibeCoins:         5,
	}

	next, res := p.Toggle("api", "endpoints", 20)
	assert.False(t, res.Completed)
	assert.Equal(t, 0, next.VibeCoins)
	assert.Equal(t, -5, res.Delta)
	assert.NotContains(t, next.CompletedChapters, course.ModuleID("api"))
}

func TestToggle_RandomSequencesNeverNegative(t *testing.T) {
	catalog := course.MustDefault()
	modules := catalog.Modules()
	rng := rand.New(rand.NewSource(7))

	p := EmptyProgress()
	for i := 0; i < 2000; i++ {
		m := modules[rng.Intn(len(modules))]
		ch := m.Chapters[rng.Intn(len(m.Chapters))]
		p, _ = p.Toggle(m.ID, ch.ID, ch.Points)

		require.GreaterOrEqual(t, p.VibeCoins, 0)
		require.Equal(t, p.CompletedChapters.Points(catalog), p.VibeCoins)
	}
}

func TestComplete_IsIdempotent(t *testing.T) {
	p := EmptyProgress()

	p, changed := p.Complete("v0", "first-ui", 20)
	require.True(t, changed)
	for i := 0; i < 5; i++ {
		p, changed = p.Complete("v0", "first-ui", 20)
		assert.False(t, changed)
	}

	assert.Equal(t, 20, p.VibeCoins)
	assert.Equal(t, []course.ChapterID{"first-ui"}, p.CompletedChapters.InModule("v0"))
	assert.Equal(t, 1, p.CompletedChapters.Count())
}

func TestCompletedChapters_JSONDeduplicates(t *testing.T) {
	var cc CompletedChapters
	require.NoError(t, json.Unmarshal([]byte(`{"html-css":["layout","structure","layout"],"ghost":["x"]}`), &cc))

	assert.Equal(t, 3, cc.Count())
	assert.Equal(t, []course.ChapterID{"layout", "structure"}, cc.InModule("html-css"))

	raw, err := json.Marshal(cc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"html-css":["layout","structure"],"ghost":["x"]}`, string(raw))
}

func TestCompletedChapters_PointsIgnoresUnknownModules(t *testing.T) {
	catalog := course.MustDefault()
	cc := NewCompletedChapters(map[string][]string{
		"html-css":       {"layout", "structure"},
		"retired-module": {"anything"},
		"javascript":     {"no-such-chapter"},
	})

	assert.Equal(t, 35, cc.Points(catalog))
}

func TestReconciled(t *testing.T) {
	catalog := course.MustDefault()
	p := Progress{
		CompletedChapters: NewCompletedChapters(map[string][]string{"html-css": {"layout"}}),
		VibeCoins:         999,
	}

	fixed, changed := p.Reconciled(catalog)
	assert.True(t, changed)
	assert.Equal(t, 20, fixed.VibeCoins)

	_, changed = fixed.Reconciled(catalog)
	assert.False(t, changed)
}

func TestForModule(t *testing.T) {
	catalog := course.MustDefault()
	m, ok := catalog.Module("html-css")
	require.True(t, ok)

	p := Progress{CompletedChapters: NewCompletedChapters(map[string][]string{"html-css": {"layout"}})}
	mp := p.ForModule(m)

	assert.Equal(t, 1, mp.CompletedCount)
	assert.Equal(t, 2, mp.TotalChapters)
	assert.Equal(t, 20, mp.EarnedPoints)
	assert.Equal(t, 35, mp.TotalPoints)
	assert.Equal(t, 50, mp.Percent)
	assert.False(t, mp.IsCompleted())
	require.Len(t, mp.Chapters, 2)
	assert.False(t, mp.Chapters[0].Completed)
	assert.True(t, mp.Chapters[1].Completed)
}

func TestNewProfile(t *testing.T) {
	id := UserID("8f14e45f-ceea-467a-9af0-4b2b4a1c2d3e")

	p, err := NewProfile(NewProfileParams{
		ID:           id,
		DisplayName:  "  Ada  ",
		Email:        "Ada@Example.com",
		LearningPath: onboarding.PathBuilder,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Zero(t, p.Progress.VibeCoins)
	assert.True(t, p.HasPublicName())

	_, err = NewProfile(NewProfileParams{ID: "not-a-uuid", DisplayName: "x", LearningPath: onboarding.PathBuilder})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = NewProfile(NewProfileParams{ID: id, DisplayName: "   ", LearningPath: onboarding.PathBuilder})
	assert.ErrorIs(t, err, shared.ErrInvalidDisplayName)

	_, err = NewProfile(NewProfileParams{ID: id, DisplayName: "x", LearningPath: "wizard"})
	assert.True(t, shared.IsValidation(err))
}

func TestParseUserID(t *testing.T) {
	id, err := ParseUserID(" 8F14E45F-CEEA-467A-9AF0-4B2B4A1C2D3E ")
	require.NoError(t, err)
	assert.Equal(t, UserID("8f14e45f-ceea-467a-9af0-4b2b4a1c2d3e"), id)

	_, err = ParseUserID("42")
	assert.True(t, shared.IsValidation(err))
}
