package postgres

import (
	"context"

	"github.com/vibecoding/vibe-academy/internal/domain/earlyaccess"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// EarlyAccessRepository implements earlyaccess.Repository for PostgreSQL.
type EarlyAccessRepository struct {
	conn *Connection
}

// NewEarlyAccessRepository creates a new EarlyAccessRepository.
func NewEarlyAccessRepository(conn *Connection) *EarlyAccessRepository {
	return &EarlyAccessRepository{conn: conn}
}

// Insert stores the signup. The unique email constraint turns a second
// signup for the same address into ErrAlreadyRegistered.
func (r *EarlyAccessRepository) Insert(ctx context.Context, s *earlyaccess.Signup) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO early_access (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`, s.ID, s.Name, s.Email.String(), s.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyRegistered
		}
		return wrapStoreError("early_access", "Insert", err)
	}
	return nil
}

// Count returns the number of stored signups.
func (r *EarlyAccessRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM early_access`).Scan(&n); err != nil {
		return 0, wrapStoreError("early_access", "Count", err)
	}
	return n, nil
}
