package leaderboard

import (
	"context"
	"time"
)

// Repository читает топ пользователей из основного хранилища.
type Repository interface {
	// TopUsers возвращает до limit профилей с непустым именем,
	// упорядоченных по очкам по убыванию.
	TopUsers(ctx context.Context, limit int) ([]Entry, error)
}

// Cache - быстрый кеш последнего снимка (например, Redis).
type Cache interface {
	// Store сохраняет снимок целиком.
	Store(ctx context.Context, snapshot Snapshot, ttl time.Duration) error

	// Load возвращает сохранённый снимок. ok=false, если кеш пуст.
	Load(ctx context.Context, limit int) (snapshot Snapshot, ok bool, err error)

	// Invalidate сбрасывает кеш.
	Invalidate(ctx context.Context) error
}
