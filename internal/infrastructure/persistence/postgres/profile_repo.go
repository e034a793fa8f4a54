package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Repository for PostgreSQL.
type ProfileRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewProfileRepository creates a new ProfileRepository. Progress transactions
// that lose a lock race or a serialization check are retried.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{
		conn:    conn,
		retrier: retry.DatabaseRetrier(IsTransient),
	}
}

const profileColumns = `id::text, name, email, learning_path, completed_chapters, vibe_coins, progress_revision, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new profile with empty progress.
func (r *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	chapters, err := json.Marshal(p.Progress.CompletedChapters)
	if err != nil {
		return fmt.Errorf("failed to marshal completed chapters: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO profiles (id, name, email, learning_path, completed_chapters, vibe_coins, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
	`,
		p.ID.String(),
		p.DisplayName,
		p.Email,
		string(p.LearningPath),
		chapters,
		p.Progress.VibeCoins,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProfileAlreadyExists
		}
		return r.wrap("Create", err)
	}
	return nil
}

// GetByID returns a profile by user ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id profile.UserID) (*profile.Profile, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id.String())
	p, err := scanProfile(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, r.wrap("GetByID", err)
	}
	return p, nil
}

// GetProgress reads only the progress columns.
func (r *ProfileRepository) GetProgress(ctx context.Context, id profile.UserID) (profile.Progress, error) {
	row := r.conn.QueryRow(ctx, `SELECT completed_chapters, vibe_coins, progress_revision FROM profiles WHERE id = $1`, id.String())
	progress, err := scanProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return profile.Progress{}, shared.ErrProfileNotFound
		}
		return profile.Progress{}, r.wrap("GetProgress", err)
	}
	return progress, nil
}

// MutateProgress reads, mutates and writes progress in one transaction. The
// row lock serializes concurrent toggles of the same user, and the chapter
// set and coin total are always written together with a bumped revision.
// A mutation returning profile.ErrProgressUnchanged skips the write. mutation
// may run more than once when the transaction is retried.
func (r *ProfileRepository) MutateProgress(ctx context.Context, id profile.UserID, mutation profile.ProgressMutation) (profile.Progress, error) {
	var next profile.Progress

	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			return r.mutateInTx(ctx, tx, id, mutation, &next)
		})
	})
	if err != nil {
		if isDomainError(err) {
			return profile.Progress{}, err
		}
		return profile.Progress{}, r.wrap("MutateProgress", err)
	}

	return next, nil
}

func (r *ProfileRepository) mutateInTx(ctx context.Context, tx pgx.Tx, id profile.UserID, mutation profile.ProgressMutation, next *profile.Progress) error {
	row := tx.QueryRow(ctx, `SELECT completed_chapters, vibe_coins, progress_revision FROM profiles WHERE id = $1 FOR UPDATE`, id.String())
	current, err := scanProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrProfileNotFound
		}
		return err
	}

	mutated, err := mutation(current)
	if errors.Is(err, profile.ErrProgressUnchanged) {
		*next = current
		return nil
	}
	if err != nil {
		return err
	}

	chapters, err := json.Marshal(mutated.CompletedChapters)
	if err != nil {
		return fmt.Errorf("failed to marshal completed chapters: %w", err)
	}

	err = tx.QueryRow(ctx, `
		UPDATE profiles
		SET completed_chapters = $1, vibe_coins = $2, progress_revision = progress_revision + 1, updated_at = $3
		WHERE id = $4
		RETURNING progress_revision
	`, chapters, mutated.VibeCoins, time.Now().UTC(), id.String()).Scan(&mutated.Revision)
	if err != nil {
		return err
	}

	*next = mutated
	return nil
}

// UpdateDisplayName sets a new display name.
func (r *ProfileRepository) UpdateDisplayName(ctx context.Context, id profile.UserID, name string) error {
	tag, err := r.conn.Exec(ctx, `UPDATE profiles SET name = $1, updated_at = $2 WHERE id = $3`,
		name, time.Now().UTC(), id.String())
	if err != nil {
		return r.wrap("UpdateDisplayName", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// Delete removes the profile row.
func (r *ProfileRepository) Delete(ctx context.Context, id profile.UserID) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id.String())
	if err != nil {
		return r.wrap("Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// ListIDs pages through profile IDs in ascending order.
func (r *ProfileRepository) ListIDs(ctx context.Context, opts profile.ListOptions) ([]profile.UserID, error) {
	if opts.Limit <= 0 {
		opts.Limit = profile.DefaultListOptions().Limit
	}

	var (
		rows pgx.Rows
		err  error
	)
	if opts.After == "" {
		rows, err = r.conn.Query(ctx, `SELECT id::text FROM profiles ORDER BY id LIMIT $1`, opts.Limit)
	} else {
		rows, err = r.conn.Query(ctx, `SELECT id::text FROM profiles WHERE id > $1 ORDER BY id LIMIT $2`,
			opts.After.String(), opts.Limit)
	}
	if err != nil {
		return nil, r.wrap("ListIDs", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.UserID, error) {
		var id string
		err := row.Scan(&id)
		return profile.UserID(id), err
	})
	if err != nil {
		return nil, r.wrap("ListIDs", err)
	}
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanProfile(row pgx.Row) (*profile.Profile, error) {
	var (
		p        profile.Profile
		id       string
		name     *string
		email    *string
		path     string
		chapters []byte
	)

	err := row.Scan(&id, &name, &email, &path, &chapters, &p.Progress.VibeCoins, &p.Progress.Revision, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.ID = profile.UserID(id)
	p.LearningPath = onboarding.PathLabel(path)
	if name != nil {
		p.DisplayName = *name
	}
	if email != nil {
		p.Email = *email
	}
	if err := decodeChapters(chapters, &p.Progress); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProgress(row pgx.Row) (profile.Progress, error) {
	var (
		progress profile.Progress
		chapters []byte
	)
	if err := row.Scan(&chapters, &progress.VibeCoins, &progress.Revision); err != nil {
		return profile.Progress{}, err
	}
	if err := decodeChapters(chapters, &progress); err != nil {
		return profile.Progress{}, err
	}
	return progress, nil
}

func decodeChapters(raw []byte, into *profile.Progress) error {
	into.CompletedChapters = profile.CompletedChapters{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &into.CompletedChapters); err != nil {
		return fmt.Errorf("failed to unmarshal completed chapters: %w", err)
	}
	return nil
}

// wrap classifies driver errors: lock conflicts and lost connections are
// transient, everything else is an unavailable store.
func (r *ProfileRepository) wrap(op string, err error) error {
	return wrapStoreError("profile", op, err)
}

func wrapStoreError(domain, op string, err error) error {
	kind := shared.ErrServiceUnavailable
	if IsTransient(err) {
		kind = shared.ErrConcurrentModification
	}
	return shared.WrapError(domain, op, kind, "database operation failed", err)
}

func isDomainError(err error) bool {
	var de *shared.DomainError
	return errors.As(err, &de)
}
