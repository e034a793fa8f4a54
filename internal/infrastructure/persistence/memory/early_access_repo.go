package memory

import (
	"context"
	"sync"

	"github.com/vibecoding/vibe-academy/internal/domain/earlyaccess"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// EarlyAccessRepository implements earlyaccess.Repository with a unique email index.
type EarlyAccessRepository struct {
	mu      sync.Mutex
	byEmail map[shared.Email]earlyaccess.Signup
}

// NewEarlyAccessRepository creates an empty repository.
func NewEarlyAccessRepository() *EarlyAccessRepository {
	return &EarlyAccessRepository{byEmail: make(map[shared.Email]earlyaccess.Signup)}
}

// Insert stores the signup unless the email is taken.
func (r *EarlyAccessRepository) Insert(ctx context.Context, s *earlyaccess.Signup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[s.Email]; ok {
		return shared.ErrAlreadyRegistered
	}
	r.byEmail[s.Email] = *s
	return nil
}

// Count returns the number of stored signups.
func (r *EarlyAccessRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEmail)
}
