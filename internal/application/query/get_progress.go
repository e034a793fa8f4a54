// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"

	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Возвращает завершённые главы и баланс пользователя.
// Новый пользователь без профиля получает пустое состояние, а не ошибку.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery содержит параметры запроса прогресса.
type GetProgressQuery struct {
	// UserID - идентификатор пользователя.
	UserID string
}

// GetProgressResult содержит прогресс пользователя.
type GetProgressResult struct {
	// Progress - завершённые главы и баланс.
	Progress profile.Progress `json:"progress"`

	// HasProfile - false, если пользователь ещё не прошёл онбординг.
	HasProfile bool `json:"hasProfile"`
}

// GetProgressHandler обрабатывает запрос прогресса.
type GetProgressHandler struct {
	profiles profile.Repository
}

// NewGetProgressHandler создаёт новый обработчик.
func NewGetProgressHandler(profiles profile.Repository) *GetProgressHandler {
	return &GetProgressHandler{profiles: profiles}
}

// Handle выполняет запрос.
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*GetProgressResult, error) {
	userID, err := profile.ParseUserID(query.UserID)
	if err != nil {
		return nil, err
	}

	progress, err := h.profiles.GetProgress(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return &GetProgressResult{Progress: profile.EmptyProgress()}, nil
		}
		return nil, shared.WrapError("query", "GetProgress", shared.ErrServiceUnavailable, "failed to load progress", err)
	}

	if progress.CompletedChapters == nil {
		progress.CompletedChapters = profile.CompletedChapters{}
	}
	return &GetProgressResult{Progress: progress, HasProfile: true}, nil
}
