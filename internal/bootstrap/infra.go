// Package bootstrap wires storage, cache and the event bus from configuration.
// Both the API and the worker build their process on top of Infra.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vibecoding/vibe-academy/config"
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/earlyaccess"
	"github.com/vibecoding/vibe-academy/internal/domain/leaderboard"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/messaging"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/persistence/memory"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/persistence/postgres"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/persistence/redis"
	"github.com/vibecoding/vibe-academy/pkg/logger"
)

// EventBus is implemented by both the in-memory and the Redis bus.
type EventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

// Infra holds the process-wide infrastructure.
type Infra struct {
	Catalog     *course.Catalog
	Profiles    profile.Repository
	Leaderboard leaderboard.Repository
	EarlyAccess earlyaccess.Repository

	// LeaderboardCache and Cache are nil when Redis is disabled.
	LeaderboardCache leaderboard.Cache
	Cache            *redis.Cache

	// DB is nil in memory mode.
	DB *postgres.Connection

	Bus EventBus

	log     *logger.Logger
	closers []func()
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if strings.EqualFold(cfg.Observability.LogFormat, string(logger.FormatConsole)) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
}

// LoadCatalog returns the embedded catalog or the one at cfg.Course.CatalogPath.
func LoadCatalog(cfg *config.Config) (*course.Catalog, error) {
	if cfg.Course.CatalogPath == "" {
		return course.Default()
	}
	return course.LoadFile(cfg.Course.CatalogPath)
}

// Open connects everything cfg asks for. On error, whatever was already
// opened is closed again.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Infra, err error) {
	infra := &Infra{log: log}
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	if infra.Catalog, err = LoadCatalog(cfg); err != nil {
		return nil, fmt.Errorf("load course catalog: %w", err)
	}
	log.Info("course catalog loaded", logger.Int("modules", infra.Catalog.Len()))

	// ─────────────────────────────────────────────────────────────────────────
	// STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.UsesPostgres() {
		if err = infra.openPostgres(ctx, cfg); err != nil {
			return nil, err
		}
	} else {
		log.Warn("DATABASE_URL is empty, using in-memory storage")
		profiles := memory.NewProfileRepository()
		infra.Profiles = profiles
		infra.Leaderboard = profiles
		infra.EarlyAccess = memory.NewEarlyAccessRepository()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		if err = infra.openRedis(cfg); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	if err = infra.openEventBus(cfg); err != nil {
		return nil, err
	}

	return infra, nil
}

func (i *Infra) openPostgres(ctx context.Context, cfg *config.Config) error {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	i.log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, pgCfg, i.log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	i.DB = conn
	i.closers = append(i.closers, func() {
		i.log.Info("closing database connection...")
		conn.Close()
	})

	if cfg.Database.AutoMigrate {
		migrator := postgres.NewMigrator(conn, i.log)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		if status, err := migrator.Status(ctx); err != nil {
			i.log.Warn("failed to get migration status", logger.Err(err))
		} else {
			applied := 0
			for _, m := range status {
				if m.IsApplied {
					applied++
				}
			}
			i.log.Info("migrations completed", logger.Int("applied", applied), logger.Int("total", len(status)))
		}
	}

	i.Profiles = postgres.NewProfileRepository(conn)
	i.Leaderboard = postgres.NewLeaderboardRepository(conn)
	i.EarlyAccess = postgres.NewEarlyAccessRepository(conn)
	return nil
}

func (i *Infra) openRedis(cfg *config.Config) error {
	redisCfg := redis.DefaultConfig()
	redisCfg.URL = cfg.Redis.URL
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	i.log.Info("connecting to Redis...")
	cache, err := redis.NewCache(redisCfg, i.log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	i.Cache = cache
	i.LeaderboardCache = redis.NewLeaderboardCache(cache)
	i.closers = append(i.closers, func() {
		i.log.Info("closing Redis connection...")
		_ = cache.Close()
	})
	return nil
}

func (i *Infra) openEventBus(cfg *config.Config) error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = i.log

	if cfg.Features.IsEnabled(config.FeatureRedisEventBus, nil) {
		if i.Cache == nil {
			i.log.Warn("redis event bus requested but Redis is disabled, using in-memory bus")
		} else {
			bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
				Client:         redis.NewPubSub(i.Cache),
				ChannelName:    cfg.App.Name + ":events",
				LocalBusConfig: local,
				Logger:         i.log,
			})
			if err != nil {
				return fmt.Errorf("start redis event bus: %w", err)
			}
			i.setBus(bus)
			return nil
		}
	}

	i.setBus(messaging.NewInMemoryEventBus(local))
	return nil
}

func (i *Infra) setBus(bus EventBus) {
	i.Bus = bus
	i.closers = append(i.closers, func() {
		i.log.Info("closing event bus...")
		_ = bus.Close()
	})
}

// Close releases resources in reverse order of opening.
func (i *Infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}
