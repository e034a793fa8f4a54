package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository for PostgreSQL.
// The leaderboard is a read over profiles; nothing is stored separately.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

// TopUsers returns up to limit named profiles by coins, highest first.
// Profiles with a null or blank name never appear.
func (r *LeaderboardRepository) TopUsers(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	limit, err := leaderboard.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id::text, name, vibe_coins
		FROM profiles
		WHERE name IS NOT NULL AND btrim(name) <> ''
		ORDER BY vibe_coins DESC, name ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, wrapStoreError("leaderboard", "TopUsers", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (leaderboard.Entry, error) {
		var e leaderboard.Entry
		err := row.Scan(&e.ID, &e.Name, &e.Points)
		return e, err
	})
	if err != nil {
		return nil, wrapStoreError("leaderboard", "TopUsers", err)
	}

	// Build assigns ranks with the same ordering the query used.
	return leaderboard.Build(entries, limit), nil
}
