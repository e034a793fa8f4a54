package query

import (
	"context"

	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MODULE PROGRESS QUERY
// Проекция для страницы модуля: какие главы пройдены и сколько очков набрано.
// ══════════════════════════════════════════════════════════════════════════════

// GetModuleProgressQuery содержит параметры запроса.
type GetModuleProgressQuery struct {
	UserID   string
	ModuleID string
}

// GetModuleProgressHandler обрабатывает запрос.
type GetModuleProgressHandler struct {
	progress *GetProgressHandler
	catalog  *course.Catalog
}

// NewGetModuleProgressHandler создаёт новый обработчик.
func NewGetModuleProgressHandler(profiles profile.Repository, catalog *course.Catalog) *GetModuleProgressHandler {
	return &GetModuleProgressHandler{
		progress: NewGetProgressHandler(profiles),
		catalog:  catalog,
	}
}

// Handle выполняет запрос. Неизвестный модуль - ErrModuleNotFound.
func (h *GetModuleProgressHandler) Handle(ctx context.Context, query GetModuleProgressQuery) (*profile.ModuleProgress, error) {
	module, ok := h.catalog.Module(course.ModuleID(query.ModuleID))
	if !ok {
		return nil, shared.ErrModuleNotFound
	}

	res, err := h.progress.Handle(ctx, GetProgressQuery{UserID: query.UserID})
	if err != nil {
		return nil, err
	}

	mp := res.Progress.ForModule(module)
	return &mp, nil
}
