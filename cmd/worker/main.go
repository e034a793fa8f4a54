// Package main - точка входа фонового Worker Vibe Academy.
//
// Worker выполняет периодические задачи:
//   - обновление лидерборда и публикация снимка в общий кеш;
//   - сверка монет с пройденными главами (ремонт расхождений).
//
// При нескольких экземплярах задача выполняется только на том, который
// взял блокировку в Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vibecoding/vibe-academy/config"
	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/application/query"
	"github.com/vibecoding/vibe-academy/internal/bootstrap"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/scheduler"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/scheduler/jobs"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

func main() {
	runOnce := flag.String("run", "", "run one job by name and exit (refresh_leaderboard, reconcile_coins)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *runOnce); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, runOnce string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(config.ComponentWorker)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting Vibe Academy Worker", logger.String("timezone", cfg.App.Timezone))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	if !cfg.UsesPostgres() {
		log.Warn("worker is running on in-memory storage; jobs only see this process's data")
	}
	if infra.Cache == nil {
		log.Warn("Redis is disabled; jobs run without a cross-instance lock")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	board := query.NewLeaderboardBoard(infra.Leaderboard, infra.LeaderboardCache, infra.Bus, log, query.LeaderboardBoardConfig{
		RefreshInterval: cfg.Leaderboard.RefreshInterval,
		FetchLimit:      cfg.Leaderboard.FetchLimit,
		CacheTTL:        cfg.Leaderboard.CacheTTL,
	})
	reconciler := command.NewReconcileCoinsHandler(infra.Profiles, infra.Catalog, infra.Bus, command.DefaultReconcileCoinsHandlerConfig())

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})
	sched.OnJobComplete(func(res scheduler.JobResult) {
		if res.Error != nil {
			log.Error("job failed", logger.String("job", res.JobName), logger.Err(res.Error))
		}
	})

	if err := registerJobs(sched, cfg, infra, board, reconciler, log); err != nil {
		return err
	}

	// Разовый запуск: worker -run reconcile_coins
	if runOnce != "" {
		res, err := sched.RunNow(ctx, runOnce)
		if err != nil {
			return fmt.Errorf("run %s: %w", runOnce, err)
		}
		log.Info("job finished", logger.String("job", res.JobName), logger.Duration("duration", res.Duration))
		return res.Error
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled by SCHEDULER_ENABLED=false, waiting for shutdown")
		<-ctx.Done()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gctx.Done()
		log.Info("shutting down scheduler...")
		return sched.Stop()
	})

	for _, info := range sched.ListJobs() {
		log.Info("job registered",
			logger.String("job", info.Name),
			logger.String("schedule", info.Schedule),
			logger.Bool("enabled", info.Enabled),
		)
	}
	log.Info("Vibe Academy Worker is running")

	return g.Wait()
}

// registerJobs adds the leaderboard refresh and coin reconciliation jobs.
func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	infra *bootstrap.Infra,
	board *query.LeaderboardBoard,
	reconciler *command.ReconcileCoinsHandler,
	log *logger.Logger,
) error {
	lock := func(job scheduler.Job) scheduler.Job {
		if infra.Cache == nil {
			return job
		}
		return jobs.WithLock(job, infra.Cache, cfg.Scheduler.LockTTL, log)
	}

	refreshSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.LeaderboardSchedule)
	if err != nil {
		return fmt.Errorf("leaderboard schedule: %w", err)
	}
	refresh := jobs.NewRefreshLeaderboardJob(board, cfg.Scheduler.JobTimeout, log)
	if err := sched.Register(lock(refresh), refreshSchedule, scheduler.RunOnStart()); err != nil {
		return fmt.Errorf("register %s: %w", refresh.Name(), err)
	}

	reconcileSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.ReconcileSchedule)
	if err != nil {
		return fmt.Errorf("reconcile schedule: %w", err)
	}
	var opts []scheduler.JobOption
	if !cfg.Features.IsEnabled(config.FeatureCoinReconciliation, nil) {
		opts = append(opts, scheduler.Disabled())
	}
	reconcile := jobs.NewReconcileCoinsJob(reconciler, log)
	if err := sched.Register(lock(reconcile), reconcileSchedule, opts...); err != nil {
		return fmt.Errorf("register %s: %w", reconcile.Name(), err)
	}

	return nil
}
