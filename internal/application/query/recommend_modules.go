package query

import (
	"context"
	"time"

	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/onboarding"
	"github.com/vibecoding/vibe-academy/internal/domain/recommendation"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMEND MODULES QUERY
// Сначала спрашиваем внешний сервис. Его ответ принимается, только если в нём
// не меньше пяти модулей из каталога; иначе - локальный детерминированный подбор.
// ══════════════════════════════════════════════════════════════════════════════

// RecommendModulesQuery содержит анкету.
type RecommendModulesQuery struct {
	Signals onboarding.Signals
}

// RecommendModulesHandler обрабатывает запрос рекомендаций.
type RecommendModulesHandler struct {
	remote  recommendation.Remote
	catalog *course.Catalog
	log     *logger.Logger
	timeout time.Duration
}

// NewRecommendModulesHandler создаёт обработчик. remote может быть nil:
// тогда всегда используется локальный подбор.
func NewRecommendModulesHandler(
	remote recommendation.Remote,
	catalog *course.Catalog,
	log *logger.Logger,
	timeout time.Duration,
) *RecommendModulesHandler {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RecommendModulesHandler{
		remote:  remote,
		catalog: catalog,
		log:     log.With(logger.Component("recommend_modules")),
		timeout: timeout,
	}
}

// Handle проверяет анкету и возвращает рекомендацию.
func (h *RecommendModulesHandler) Handle(ctx context.Context, query RecommendModulesQuery) (*recommendation.Result, error) {
	if err := query.Signals.Validate(); err != nil {
		return nil, err
	}

	res := h.Recommend(ctx, query.Signals)
	return &res, nil
}

// Recommend никогда не возвращает ошибку: любые проблемы с сервисом
// приводят к локальному подбору.
func (h *RecommendModulesHandler) Recommend(ctx context.Context, signals onboarding.Signals) recommendation.Result {
	signals = signals.WithClassifiedPath()

	if h.remote != nil {
		callCtx, cancel := context.WithTimeout(ctx, h.timeout)
		remote, err := h.remote.Recommend(callCtx, signals)
		cancel()

		switch {
		case err != nil:
			h.log.Warn("recommendation service failed, using fallback", logger.Err(err))
		default:
			if modules, ok := recommendation.AcceptRemote(remote.Modules, h.catalog); ok {
				return recommendation.Result{
					Modules:      modules,
					Method:       recommendation.MethodRemote,
					RemoteMethod: remote.Method,
				}
			}
			h.log.Info("recommendation service returned too few modules, using fallback",
				logger.Int("returned", len(remote.Modules)),
			)
		}
	}

	return recommendation.Result{
		Modules: recommendation.Fallback(signals, h.catalog),
		Method:  recommendation.MethodFallback,
	}
}
