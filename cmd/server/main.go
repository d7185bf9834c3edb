// Package main is the entry point for the GuardiaPass server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jgutierrezgil/guardiapass/internal/config"
	"github.com/jgutierrezgil/guardiapass/internal/crypto"
	"github.com/jgutierrezgil/guardiapass/internal/database"
	"github.com/jgutierrezgil/guardiapass/internal/handlers"
	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/metrics"
	"github.com/jgutierrezgil/guardiapass/internal/middleware"
	"github.com/jgutierrezgil/guardiapass/internal/services"
	"github.com/jgutierrezgil/guardiapass/internal/session"
	"github.com/jgutierrezgil/guardiapass/internal/store"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.Security.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting GuardiaPass",
		"version", version,
		"env", cfg.Security.Environment,
		"store", cfg.Store.Driver,
		"key_storage", cfg.Security.KeyStorage,
		"envelope_mode", cfg.Security.EnvelopeMode,
	)
	if cfg.Security.KeyStorage == config.KeyStorageStored {
		logger.Warn("vault keys are persisted with user accounts; anyone who can read the store can decrypt records")
	}
	if cfg.Security.EnvelopeMode == crypto.ModeLegacyBlock {
		logger.Warn("new accounts use the unauthenticated legacy envelope")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the store
	st, sqlDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	// Connect to Redis when configured; otherwise keep sessions in memory
	var (
		redisClient   *redis.Client
		sessions      session.Store
		memSessions   *session.MemoryStore
		rateLimiter   middleware.Limiter
		memRateLimits *middleware.MemoryRateLimiter
	)
	if cfg.Redis.URL != "" {
		logger.Info("connecting to Redis")
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opt.MaxRetries = cfg.Redis.MaxRetries
		opt.PoolSize = cfg.Redis.PoolSize
		opt.MinIdleConns = cfg.Redis.MinIdleConns
		redisClient = redis.NewClient(opt)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping Redis: %w", err)
		}
		logger.Info("connected to Redis")

		sessions = session.NewRedisStore(redisClient, cfg.Security.SessionLifetime)
		rateLimiter = middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		logger.Info("no Redis URL configured, keeping sessions in memory")
		memSessions = session.NewMemoryStore(cfg.Security.SessionLifetime)
		memRateLimits = middleware.NewMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		sessions = memSessions
		rateLimiter = memRateLimits
	}

	// Initialize services
	userService := services.NewUserService(st, store.KeyStorage(cfg.Security.KeyStorage), cfg.Security.EnvelopeMode)
	authService := services.NewAuthService(userService, sessions, cfg.Security.MaxLoginAttempts, cfg.Security.LockoutDuration)
	recordService := services.NewRecordService(st)
	auditService := services.NewAuditService(st)

	// Create router
	deps := &handlers.Dependencies{
		Config:        cfg,
		Store:         st,
		Redis:         redisClient,
		RateLimiter:   rateLimiter,
		Logger:        logger,
		UserService:   userService,
		AuthService:   authService,
		RecordService: recordService,
		AuditService:  auditService,
	}

	router := handlers.NewRouter(deps)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background tasks
	go func() {
		ticker := time.NewTicker(cfg.Security.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				authService.CleanupLoginAttempts()
				if memSessions != nil {
					if n := memSessions.Sweep(); n > 0 {
						logger.Debug("expired sessions removed", "count", n)
					}
				}
				if memRateLimits != nil {
					memRateLimits.Cleanup()
				}
			}
		}
	}()

	// Start metrics collector
	go metrics.StartCollector(ctx, st, sqlDB, cfg.Security.MetricsInterval)

	// Start server in goroutine
	go func() {
		logger.Info("server listening",
			"addr", cfg.ServerAddr(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore opens the configured store. The returned *sql.DB is nil for
// the bolt driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, *sql.DB, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("connected to PostgreSQL")

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db.Conn); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.Info("migrations applied")
		}
		return store.NewPostgresStore(db.Conn), db.Conn, nil

	default:
		logger.Info("opening bolt store", "path", cfg.Store.Path)
		st, err := store.NewBoltStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		return st, nil, nil
	}
}
