// Package main - точка входа HTTP API Vibe Academy.
//
// API обслуживает каталог курса, онбординг, отметки о прохождении глав,
// монеты, лидерборд и поток прогресса (SSE) для веб-клиента.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/vibecoding/vibe-academy/config"
	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/application/eventhandler"
	"github.com/vibecoding/vibe-academy/internal/application/query"
	"github.com/vibecoding/vibe-academy/internal/application/saga"
	"github.com/vibecoding/vibe-academy/internal/bootstrap"
	"github.com/vibecoding/vibe-academy/internal/domain/recommendation"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/external/recommender"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/persistence/projections"
	httpserver "github.com/vibecoding/vibe-academy/internal/interface/http"
	"github.com/vibecoding/vibe-academy/internal/interface/http/handlers"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(config.ComponentAPI)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg).With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	log.Info("starting Vibe Academy API", logger.String("timezone", cfg.App.Timezone))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИНФРАСТРУКТУРА (хранилище, Redis, шина событий)
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ВНЕШНИЕ КЛИЕНТЫ
	// ─────────────────────────────────────────────────────────────────────────
	// Интерфейсная переменная остаётся nil без удалённого сервиса.
	var remote recommendation.Remote
	if cfg.Recommender.URL != "" && cfg.Features.IsEnabled(config.FeatureRemoteRecommendations, nil) {
		recCfg := recommender.DefaultClientConfig(cfg.Recommender.URL)
		recCfg.APIKey = cfg.Recommender.APIKey
		recCfg.Timeout = cfg.Recommender.Timeout
		recCfg.Logger = log

		client, err := recommender.NewClient(recCfg)
		if err != nil {
			return fmt.Errorf("failed to create recommender client: %w", err)
		}
		remote = client
		log.Info("remote recommendations enabled", logger.String("url", cfg.Recommender.URL))
	} else {
		log.Info("remote recommendations disabled, using local fallback")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	catalog := infra.Catalog
	bus := infra.Bus

	recommend := query.NewRecommendModulesHandler(remote, catalog, log, cfg.Recommender.Timeout)
	board := query.NewLeaderboardBoard(infra.Leaderboard, infra.LeaderboardCache, bus, log, query.LeaderboardBoardConfig{
		RefreshInterval:    cfg.Leaderboard.RefreshInterval,
		FetchLimit:         cfg.Leaderboard.FetchLimit,
		CacheTTL:           cfg.Leaderboard.CacheTTL,
		MinInvalidationGap: cfg.Leaderboard.MinInvalidationGap,
	})
	view := projections.NewProgressView(infra.Profiles, log, projections.WithEntryTTL(cfg.Course.ProgressTTL))

	toggle := command.NewToggleChapterHandler(infra.Profiles, catalog, bus)
	toggleSaga := saga.NewChapterToggleSaga(toggle, view, catalog, view)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	progressHandler := eventhandler.NewOnProgressChangedHandler(board, view, log, eventhandler.DefaultProgressChangedConfig())
	if err := progressHandler.Register(bus); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	auth, err := handlers.NewAuthenticator(handlers.AuthConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	health := handlers.NewHealthChecker(cfg.App.Version)
	if infra.DB != nil {
		health.AddCheck("postgres", handlers.PingCheck(infra.DB))
	}
	if infra.Cache != nil {
		health.AddCheck("redis", handlers.PingCheck(infra.Cache))
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpCfg.AdminToken = cfg.HTTP.AdminToken
	httpCfg.StreamHeartbeat = cfg.HTTP.StreamHeartbeat
	if cfg.IsDevelopment() {
		httpCfg.Mode = gin.DebugMode
	}

	srv, err := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Catalog:            catalog,
		JoinEarlyAccess:    command.NewJoinEarlyAccessHandler(infra.EarlyAccess, bus),
		CompleteOnboarding: command.NewCompleteOnboardingHandler(infra.Profiles, recommend, bus),
		UpdateDisplayName:  command.NewUpdateDisplayNameHandler(infra.Profiles, bus),
		DeleteAccount:      command.NewDeleteAccountHandler(infra.Profiles, bus),
		ReconcileCoins:     command.NewReconcileCoinsHandler(infra.Profiles, catalog, bus, command.DefaultReconcileCoinsHandlerConfig()),
		ToggleChapter:      toggleSaga,
		RecommendModules:   recommend,
		Leaderboard:        board,
		GetProgress:        query.NewGetProgressHandler(infra.Profiles),
		GetDashboard:       query.NewGetDashboardHandler(infra.Profiles, catalog, board),
		GetModuleProgress:  query.NewGetModuleProgressHandler(infra.Profiles, catalog),
		Progress:           view,
		StreamEnabled: func(userID string) bool {
			return cfg.Features.IsEnabled(config.FeatureProgressStream, config.ForUser(userID))
		},
		Auth:   auth,
		Health: health,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	// Автообновление лидерборда раз в RefreshInterval.
	g.Go(func() error {
		board.Start(gctx)
		return nil
	})

	// Простаивающие записи прогресса вытесняются, у открытых подписок перечитываются.
	g.Go(func() error {
		view.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	log.Info("Vibe Academy API is running", logger.String("http_address", httpCfg.Address()))

	start := time.Now()
	err = g.Wait()
	log.Info("Vibe Academy API stopped", logger.Duration("uptime", time.Since(start)))
	return err
}
