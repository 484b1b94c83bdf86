// Package main is the entry point of the student fees API.
//
// The API keeps one fee account per student: fees are added with an amount
// and an expiration date, paid one by one, and read back as an outstanding
// balance, a list of expired unpaid fees and an access decision.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/music-school/student-fees/config"
	"github.com/music-school/student-fees/internal/application/command"
	"github.com/music-school/student-fees/internal/application/query"
	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/infrastructure/metrics"
	"github.com/music-school/student-fees/internal/infrastructure/persistence/memory"
	"github.com/music-school/student-fees/internal/infrastructure/persistence/postgres"
	"github.com/music-school/student-fees/internal/infrastructure/persistence/redis"
	httpapi "github.com/music-school/student-fees/internal/interface/http"
	"github.com/music-school/student-fees/internal/interface/http/handlers"
	"github.com/music-school/student-fees/pkg/logger"
	"github.com/music-school/student-fees/pkg/timeutil"
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
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting student fees API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store", string(cfg.Store.Driver)),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	m := metrics.New()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ACCOUNT STORE
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	var (
		accounts fees.Repository
		reads    fees.Reader
	)
	switch cfg.Store.Driver {
	case config.StorePostgres:
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database connection")
			conn.Close()
		}()

		accounts = postgres.NewAccountRepository(conn, log)
		health.AddCheck("postgres", handlers.NewPingCheck(conn))

	case config.StoreMemory:
		log.Warn("using in-memory account store, data is lost on restart")
		repo := memory.NewAccountRepository()
		accounts = repo
		health.AddCheck("memory", handlers.NewPingCheck(repo))
	}
	reads = accounts

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ACCOUNT CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Enabled {
		cache, err := redis.NewCache(redisConfig(cfg))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer func() { _ = cache.Close() }()

			cached := redis.NewCachedRepository(accounts, redis.NewAccountCache(cache), nil, log)
			accounts, reads = cached, cached.Reader()
			health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
			log.Info("account cache enabled", logger.String("addr", cache.Config().Addr()))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock()

	deps := httpapi.Dependencies{
		AddFeeHandler:         command.NewAddFeeHandler(accounts, m, log),
		PayFeeHandler:         command.NewPayFeeHandler(accounts, m, log),
		GetBalanceHandler:     query.NewGetBalanceHandler(reads),
		GetExpiredFeesHandler: query.NewGetExpiredFeesHandler(reads, clock),
		GetAccessHandler:      query.NewGetAccessHandler(reads, clock),
		Logger:                log,
		HealthChecker:         health,
		Metrics:               m,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(serverConfig(cfg), deps)
	log.Info("http limits",
		logger.Int64("max_body_bytes", cfg.HTTP.MaxBodyBytes),
		logger.Duration("request_timeout", cfg.HTTP.RequestTimeout),
		logger.Int("rate_limit_per_minute", cfg.HTTP.RateLimitPerMinute),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		return server.RateLimiter().Run(gctx)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped with error", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.Observability.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}

	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

func connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	log.Info("connecting to database")

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := postgres.NewConnectionFromURL(connectCtx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		MaxConnLifetime:   cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime:   cfg.Database.ConnMaxIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		applied, err := postgres.NewMigrator(conn).Migrate(connectCtx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
	}

	return conn, nil
}

func redisConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	rc.AccountTTL = cfg.Redis.AccountTTL
	return rc
}

func serverConfig(cfg *config.Config) httpapi.Config {
	sc := httpapi.DefaultConfig()
	sc.Host = cfg.HTTP.Host
	sc.Port = cfg.HTTP.Port
	sc.ReadTimeout = cfg.HTTP.ReadTimeout
	sc.WriteTimeout = cfg.HTTP.WriteTimeout
	sc.IdleTimeout = cfg.HTTP.IdleTimeout
	sc.RequestTimeout = cfg.HTTP.RequestTimeout
	sc.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	sc.EnableCORS = cfg.HTTP.EnableCORS
	sc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	sc.EnableMetrics = cfg.Observability.MetricsEnabled
	sc.APIKeyHeader = cfg.HTTP.APIKeyHeader
	sc.APIKeyHashes = cfg.HTTP.APIKeyHashes
	sc.RateLimit.RequestsPerMinute = cfg.HTTP.RateLimitPerMinute
	sc.RateLimit.BurstSize = cfg.HTTP.RateLimitBurst
	sc.RateLimit.KeyHeader = cfg.HTTP.APIKeyHeader
	sc.Version = cfg.App.Version
	return sc
}
