package earlyaccess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

func TestNewSignup(t *testing.T) {
	s, err := NewSignup("  Grace ", "Grace@Hopper.dev")
	require.NoError(t, err)
	assert.Equal(t, "Grace", s.Name)
	assert.Equal(t, shared.Email("grace@hopper.dev"), s.Email)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestNewSignup_Validation(t *testing.T) {
	_, err := NewSignup("", "grace@hopper.dev")
	assert.True(t, shared.IsValidation(err))

	_, err = NewSignup("Grace", "not-an-email")
	assert.ErrorIs(t, err, shared.ErrInvalidEmail)
	assert.True(t, shared.IsValidation(err))
}
