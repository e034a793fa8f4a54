// Package memory provides in-process repositories used when no database is
// configured and in tests. All operations are safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ProfileRepository implements profile.Repository and leaderboard.Repository.
type ProfileRepository struct {
	mu       sync.Mutex
	profiles map[profile.UserID]*profile.Profile

	writes  int
	skipped int
}

// NewProfileRepository creates an empty repository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[profile.UserID]*profile.Profile)}
}

// Create stores a new profile.
func (r *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.ID]; ok {
		return shared.ErrProfileAlreadyExists
	}
	r.profiles[p.ID] = clone(p)
	return nil
}

// GetByID returns a copy of the profile.
func (r *ProfileRepository) GetByID(ctx context.Context, id profile.UserID) (*profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return clone(p), nil
}

// GetProgress returns a copy of the progress.
func (r *ProfileRepository) GetProgress(ctx context.Context, id profile.UserID) (profile.Progress, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return profile.Progress{}, err
	}
	return p.Progress, nil
}

// MutateProgress runs mutation under the repository lock and bumps the
// revision on every write.
func (r *ProfileRepository) MutateProgress(ctx context.Context, id profile.UserID, mutation profile.ProgressMutation) (profile.Progress, error) {
	if err := ctx.Err(); err != nil {
		return profile.Progress{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return profile.Progress{}, shared.ErrProfileNotFound
	}

	current := p.Progress.Clone()
	next, err := mutation(current)
	if errors.Is(err, profile.ErrProgressUnchanged) {
		r.skipped++
		return current, nil
	}
	if err != nil {
		return profile.Progress{}, err
	}

	next.Revision = current.Revision + 1
	p.Progress = next.Clone()
	p.UpdatedAt = time.Now().UTC()
	r.writes++
	return next, nil
}

// Writes returns how many progress mutations were written and how many
// were skipped as unchanged.
func (r *ProfileRepository) Writes() (written, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes, r.skipped
}

// UpdateDisplayName changes the stored name.
func (r *ProfileRepository) UpdateDisplayName(ctx context.Context, id profile.UserID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return shared.ErrProfileNotFound
	}
	p.DisplayName = name
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the profile.
func (r *ProfileRepository) Delete(ctx context.Context, id profile.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return shared.ErrProfileNotFound
	}
	delete(r.profiles, id)
	return nil
}

// ListIDs pages through profile IDs in ascending order.
func (r *ProfileRepository) ListIDs(ctx context.Context, opts profile.ListOptions) ([]profile.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	ids := make([]profile.UserID, 0, len(r.profiles))
	for id := range r.profiles {
		if opts.After == "" || id > opts.After {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	return ids, nil
}

// TopUsers returns named profiles ordered by balance.
func (r *ProfileRepository) TopUsers(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	candidates := make([]leaderboard.Entry, 0, len(r.profiles))
	for _, p := range r.profiles {
		candidates = append(candidates, leaderboard.Entry{
			ID:     p.ID.String(),
			Name:   p.DisplayName,
			Points: p.Progress.VibeCoins,
		})
	}
	r.mu.Unlock()

	return leaderboard.Build(candidates, limit), nil
}

// SetVibeCoins overwrites the stored balance without touching chapters.
// Used to simulate drift.
func (r *ProfileRepository) SetVibeCoins(id profile.UserID, coins int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		p.Progress.VibeCoins = coins
	}
}

func clone(p *profile.Profile) *profile.Profile {
	cp := *p
	cp.Progress = p.Progress.Clone()
	return &cp
}
