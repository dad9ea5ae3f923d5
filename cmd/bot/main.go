// Package main is the entry point of the olymp queue bot.
//
// The process runs the Telegram bot (long polling or webhook) and a small HTTP
// server with health probes and a read-only status API. State lives in
// PostgreSQL; without DATABASE_URL an in-memory store is used.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hselingforschool/olymp-queue-bot/config"

	// Application layer
	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/port"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/query"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/matching"

	// Infrastructure layer
	tgapi "github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/locking"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/persistence/memory"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/persistence/postgres"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/persistence/redis"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/storage"

	// Interface layer
	httpserver "github.com/hselingforschool/olymp-queue-bot/internal/interface/http"
	"github.com/hselingforschool/olymp-queue-bot/internal/interface/http/handlers"
	"github.com/hselingforschool/olymp-queue-bot/internal/interface/telegram"

	// Packages
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
	"github.com/hselingforschool/olymp-queue-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

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
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:     cfg.Observability.LogLevel,
		JSON:      cfg.Observability.LogFormat == "json",
		AddSource: cfg.App.Debug,
	})
	slog.SetDefault(log)

	log.Info("starting olymp queue bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"lock_backend", cfg.Matching.LockBackend,
		"busyness_order", cfg.Matching.BusynessOrder,
	)

	health := handlers.NewHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORE
	// ─────────────────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. LOCKER
	// ─────────────────────────────────────────────────────────────────────────
	locker, closeLocker, err := openLocker(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeLocker()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. TELEGRAM CLIENT & ANNOUNCER
	// ─────────────────────────────────────────────────────────────────────────
	var linker storage.Linker
	storageCfg := storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		AccountID:       cfg.Storage.AccountID,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Bucket:          cfg.Storage.Bucket,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		LinkTTL:         cfg.Storage.LinkTTL,
	}
	if storageCfg.Enabled() {
		linker, err = storage.New(ctx, storageCfg)
		if err != nil {
			return fmt.Errorf("failed to init block storage: %w", err)
		}
		log.Info("block storage configured", "bucket", cfg.Storage.Bucket)
	} else {
		log.Warn("block storage not configured, blocks are announced as text")
	}

	clientCfg := tgapi.DefaultClientConfig(cfg.Telegram.Token)
	clientCfg.PollingTimeout = cfg.Telegram.PollingTimeout
	clientCfg.Timeout = cfg.Telegram.PollingTimeout + cfg.Telegram.RequestTimeout
	clientCfg.Debug = cfg.App.Debug
	clientCfg.Logger = log
	client := tgapi.NewClient(clientCfg)

	announcer := tgapi.NewAnnouncer(client, linker, tgapi.AnnouncerConfig{
		BroadcastConcurrency: cfg.Telegram.BroadcastConcurrency,
		MutePhaseChanges:     !cfg.Features.IsEnabled(config.FeaturePhaseBroadcasts),
		Breaker:              tgapi.NewSendBreaker(log),
		Logger:               log,
	})

	health.AddCheck("telegram", func(ctx context.Context) error {
		_, err := client.GetMe(ctx)
		return err
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	var distributor port.Distributor
	if cfg.Features.IsEnabled(config.FeatureBlockDistribution) {
		distributor = announcer
	}

	policy := matching.Policy{Order: cfg.Matching.BusynessOrder}
	engine := command.NewEngine(command.Deps{
		Store:       store,
		Locker:      locker,
		Announcer:   announcer,
		Policy:      policy,
		Logger:      log,
		Distributor: distributor,
	})
	if err := engine.Contexts().Load(ctx, store); err != nil {
		return fmt.Errorf("failed to load current olymp: %w", err)
	}
	if oc := engine.Contexts().Get(); oc.OlympID != 0 {
		log.Info("resuming olymp", logger.OlympID(oc.OlympID), "name", oc.Name, "status", oc.Status)
	}

	queries := query.NewService(store, policy)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	botCfg := telegram.DefaultBotConfig()
	botCfg.OwnerID = cfg.Telegram.OwnerID
	botCfg.OwnerHandle = cfg.Telegram.OwnerHandle
	botCfg.Debug = cfg.App.Debug
	botCfg.Logger = log
	botCfg.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botCfg.GracefulShutdownTimeout = cfg.App.ShutdownTimeout
	botCfg.MergeTTL = cfg.Telegram.MergeTTL
	botCfg.MuteOwnerReports = !cfg.Features.IsEnabled(config.FeatureOwnerErrorReports)

	bot, err := telegram.NewBot(botCfg, telegram.BotDependencies{
		API:     client,
		Engine:  engine,
		Queries: queries,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	var httpServer *httpserver.Server
	if cfg.HTTP.Enabled {
		httpCfg := httpserver.DefaultConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port
		httpCfg.APIKeys = cfg.HTTP.APIKeys
		httpCfg.DisableAPI = !cfg.Features.IsEnabled(config.FeatureStatusAPI)

		deps := httpserver.Dependencies{
			Queries:       queries,
			Contexts:      engine.Contexts(),
			Bot:           bot,
			HealthChecker: health,
			Logger:        log,
		}
		if cfg.Telegram.UseWebhook {
			deps.Webhook = handlers.NewTelegramWebhook(cfg.Telegram.WebhookSecret, bot.HandleUpdate, log)
		}

		httpServer, err = httpserver.NewServer(httpCfg, deps)
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. START SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 2)

	if httpServer != nil {
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server error: %w", err)
			}
		}()
	}

	if cfg.Telegram.UseWebhook {
		if err := startWebhook(ctx, client, cfg); err != nil {
			return err
		}
		log.Info("receiving updates via webhook", "url", cfg.Telegram.WebhookURL)
	} else {
		if err := client.DeleteWebhook(ctx); err != nil {
			log.Warn("failed to delete webhook", logger.Err(err))
		}
		go func() {
			if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("telegram bot error: %w", err)
			}
		}()
		log.Info("receiving updates via long polling")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	}

	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := bot.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop bot gracefully", logger.Err(err))
		shutdownErr = err
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop HTTP server gracefully", logger.Err(err))
			shutdownErr = err
		}
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// openStore connects to PostgreSQL, or falls back to memory when no URL is set.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger, health *handlers.HealthChecker) (port.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is not set, state is kept in memory and lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	opts := postgres.DefaultPoolOptions()
	opts.MaxConns = int32(cfg.Database.MaxConns)
	opts.MinConns = int32(cfg.Database.MinConns)
	opts.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	opts.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	var conn *postgres.Connection
	err := retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
		var err error
		conn, err = postgres.NewConnection(ctx, cfg.Database.URL, opts)
		if err != nil {
			log.Warn("database not ready", logger.Err(err))
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations applied")
	}

	store := postgres.NewStore(conn)
	health.AddCheck("postgres", handlers.NewPingCheck(store))
	return store, func() {
		log.Info("closing database connection")
		conn.Close()
	}, nil
}

// openLocker returns the in-process locker or a Redis one for several replicas.
func openLocker(ctx context.Context, cfg *config.Config, log *slog.Logger, health *handlers.HealthChecker) (port.Locker, func(), error) {
	if cfg.Matching.LockBackend != config.LockBackendRedis {
		return locking.NewLocalLocker(), func() {}, nil
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	var client *redis.Client
	err := retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
		var err error
		client, err = redis.NewClient(ctx, redisCfg)
		if err != nil {
			log.Warn("redis not ready", logger.Err(err))
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("redis connection established", "addr", redisCfg.Addr())

	lockerCfg := redis.DefaultLockerConfig()
	lockerCfg.TTL = cfg.Matching.LockTTL
	lockerCfg.MaxWait = cfg.Matching.LockMaxWait

	health.AddCheck("redis", handlers.NewPingCheck(client))
	return redis.NewLocker(client, lockerCfg, log), func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis", logger.Err(err))
		}
	}, nil
}

// startWebhook registers the webhook URL with Telegram.
func startWebhook(ctx context.Context, client *tgapi.Client, cfg *config.Config) error {
	setCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.SetWebhook(setCtx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}
