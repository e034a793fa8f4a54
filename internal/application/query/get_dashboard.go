package query

import (
	"context"

	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD SUMMARY QUERY
// Главная страница кабинета: баланс, общий прогресс, проценты по модулям
// в порядке каталога и место в топе, если пользователь в него попал.
// ══════════════════════════════════════════════════════════════════════════════

// RankLookup ищет место пользователя в последнем снимке лидерборда.
type RankLookup interface {
	RankOf(userID string) (leaderboard.Rank, bool)
}

// GetDashboardQuery содержит параметры запроса.
type GetDashboardQuery struct {
	UserID string
}

// ModuleSummaryDTO - строка модуля на главной.
type ModuleSummaryDTO struct {
	ModuleID       string `json:"moduleId"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	CompletedCount int    `json:"completedCount"`
	TotalChapters  int    `json:"totalChapters"`
	Percent        int    `json:"percent"`
}

// DashboardSummary - результат запроса.
type DashboardSummary struct {
	// HasProfile - false до завершения онбординга.
	HasProfile bool `json:"hasProfile"`

	// DisplayName - имя пользователя.
	DisplayName string `json:"displayName,omitempty"`

	// LearningPath - учебный трек.
	LearningPath onboarding.PathLabel `json:"learningPath,omitempty"`

	// VibeCoins - текущий баланс.
	VibeCoins int `json:"vibeCoins"`

	// CompletedChapters - всего пройдено глав.
	CompletedChapters int `json:"completedChapters"`

	// TotalChapters - всего глав в каталоге.
	TotalChapters int `json:"totalChapters"`

	// TotalPoints - максимально возможный баланс.
	TotalPoints int `json:"totalPoints"`

	// Rank - место в топе (0, если пользователя нет в топе).
	Rank int `json:"rank,omitempty"`

	// Modules - прогресс по модулям в порядке каталога.
	Modules []ModuleSummaryDTO `json:"modules"`
}

// GetDashboardHandler обрабатывает запрос.
type GetDashboardHandler struct {
	profiles profile.Repository
	catalog  *course.Catalog
	ranks    RankLookup
}

// NewGetDashboardHandler создаёт новый обработчик. ranks может быть nil.
func NewGetDashboardHandler(profiles profile.Repository, catalog *course.Catalog, ranks RankLookup) *GetDashboardHandler {
	return &GetDashboardHandler{profiles: profiles, catalog: catalog, ranks: ranks}
}

// Handle выполняет запрос.
func (h *GetDashboardHandler) Handle(ctx context.Context, query GetDashboardQuery) (*DashboardSummary, error) {
	userID, err := profile.ParseUserID(query.UserID)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{TotalPoints: h.catalog.TotalPoints()}
	progress := profile.EmptyProgress()

	p, err := h.profiles.GetByID(ctx, userID)
	switch {
	case err == nil:
		summary.HasProfile = true
		summary.DisplayName = p.DisplayName
		summary.LearningPath = p.LearningPath
		progress = p.Progress
	case shared.IsNotFound(err):
		// Пустой кабинет для нового пользователя
	default:
		return nil, shared.WrapError("query", "GetDashboard", shared.ErrServiceUnavailable, "failed to load profile", err)
	}

	summary.VibeCoins = progress.VibeCoins

	modules := h.catalog.Modules()
	summary.Modules = make([]ModuleSummaryDTO, 0, len(modules))
	for _, m := range modules {
		mp := progress.ForModule(m)
		summary.CompletedChapters += mp.CompletedCount
		summary.TotalChapters += mp.TotalChapters
		summary.Modules = append(summary.Modules, ModuleSummaryDTO{
			ModuleID:       m.ID.String(),
			Title:          m.Title,
			Category:       string(m.Category),
			CompletedCount: mp.CompletedCount,
			TotalChapters:  mp.TotalChapters,
			Percent:        mp.Percent,
		})
	}

	if h.ranks != nil {
		if rank, ok := h.ranks.RankOf(userID.String()); ok {
			summary.Rank = int(rank)
		}
	}

	return summary, nil
}
