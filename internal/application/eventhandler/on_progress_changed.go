// Package eventhandler содержит обработчики доменных событий.
// Обработчики - "реактивная" часть системы: они обновляют проекции
// и сбрасывают кеши после того, как запись в хранилище подтверждена.
package eventhandler

import (
	"context"
	"time"

	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Событие несёт полный снимок прогресса после записи, поэтому проекция
// обновляется без повторного чтения из базы. Лидерборд помечается устаревшим.
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardInvalidator сбрасывает закешированный топ.
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ProgressSink - проекция прогресса, на которую подписаны открытые вьюхи.
type ProgressSink interface {
	Apply(userID string, progress profile.Progress)
	Forget(userID string)
}

// ProgressChangedConfig содержит конфигурацию обработчика.
type ProgressChangedConfig struct {
	// InvalidateTimeout - таймаут сброса кеша лидерборда.
	InvalidateTimeout time.Duration
}

// DefaultProgressChangedConfig возвращает конфигурацию по умолчанию.
func DefaultProgressChangedConfig() ProgressChangedConfig {
	return ProgressChangedConfig{InvalidateTimeout: 3 * time.Second}
}

// OnProgressChangedHandler обрабатывает события прогресса и профиля.
type OnProgressChangedHandler struct {
	leaderboard LeaderboardInvalidator
	view        ProgressSink
	logger      *logger.Logger
	config      ProgressChangedConfig
}

// NewOnProgressChangedHandler создаёт обработчик. Любая зависимость может быть nil.
func NewOnProgressChangedHandler(
	leaderboard LeaderboardInvalidator,
	view ProgressSink,
	log *logger.Logger,
	config ProgressChangedConfig,
) *OnProgressChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if config.InvalidateTimeout <= 0 {
		config = DefaultProgressChangedConfig()
	}

	return &OnProgressChangedHandler{
		leaderboard: leaderboard,
		view:        view,
		logger:      log.With(logger.Component("on_progress_changed")),
		config:      config,
	}
}

// Register подписывает обработчик на нужные типы событий.
func (h *OnProgressChangedHandler) Register(subscriber shared.EventSubscriber) error {
	subscriptions := map[shared.EventType]shared.EventHandler{
		shared.EventProgressChanged: h.HandleProgressChanged,
		shared.EventCoinsReconciled: h.HandleProfileChanged,
		shared.EventProfileCreated:  h.HandleProfileChanged,
		shared.EventProfileRenamed:  h.HandleProfileChanged,
		shared.EventAccountDeleted:  h.HandleAccountDeleted,
	}
	for eventType, handler := range subscriptions {
		if err := subscriber.Subscribe(eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

// HandleProgressChanged применяет снимок к проекции и сбрасывает топ.
func (h *OnProgressChangedHandler) HandleProgressChanged(event shared.Event) error {
	changed, ok := shared.DecodeProgressChanged(event)
	if !ok {
		h.logger.Warn("received malformed progress event",
			logger.String("event_type", string(event.EventType())),
		)
		return nil
	}

	if h.view != nil {
		// Снимок мог опоздать: проекция отбросит его, если уже видела ревизию новее.
		h.view.Apply(changed.AggregateID(), profile.Progress{
			CompletedChapters: profile.NewCompletedChapters(changed.CompletedChapters),
			VibeCoins:         changed.VibeCoins,
			Revision:          changed.Revision,
		})
	}

	h.logger.Debug("progress changed",
		logger.UserID(changed.AggregateID()),
		logger.ModuleID(changed.ModuleID),
		logger.ChapterID(changed.ChapterID),
		logger.Bool("completed", changed.Completed),
		logger.Coins(changed.VibeCoins),
	)

	return h.invalidate()
}

// HandleProfileChanged сбрасывает топ: имя или баланс могли измениться.
func (h *OnProgressChangedHandler) HandleProfileChanged(event shared.Event) error {
	if h.view != nil && event.EventType() == shared.EventCoinsReconciled {
		// Баланс изменился без снимка глав: пусть проекция перечитает состояние.
		h.view.Forget(event.AggregateID())
	}
	return h.invalidate()
}

// HandleAccountDeleted удаляет пользователя из проекции и сбрасывает топ.
func (h *OnProgressChangedHandler) HandleAccountDeleted(event shared.Event) error {
	if h.view != nil {
		h.view.Forget(event.AggregateID())
	}
	return h.invalidate()
}

func (h *OnProgressChangedHandler) invalidate() error {
	if h.leaderboard == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.InvalidateTimeout)
	defer cancel()

	if err := h.leaderboard.Invalidate(ctx); err != nil {
		// Топ всё равно обновится по таймеру.
		h.logger.Warn("failed to invalidate leaderboard", logger.Err(err))
	}
	return nil
}
