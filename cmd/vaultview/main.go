package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/vaultview/vaultview/internal/actors"
	"github.com/vaultview/vaultview/internal/app"
	"github.com/vaultview/vaultview/internal/auth"
	"github.com/vaultview/vaultview/internal/observability"
	"github.com/vaultview/vaultview/internal/platform/cache"
	"github.com/vaultview/vaultview/internal/platform/db"
	"github.com/vaultview/vaultview/internal/rbac"
	"github.com/vaultview/vaultview/internal/shared"
	"github.com/vaultview/vaultview/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPoolSize)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "vaultview_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	roleRepo := rbac.NewRepository(dbpool)
	roleCache := rbac.NewRoleCache(roleRepo)
	resolver := rbac.NewResolver(roleCache, logger, metrics, cfg.ResolverTimeout)
	rbacService := rbac.NewService(roleRepo, roleCache, auditLogger, logger)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService, resolver)

	actorRepo := actors.NewRepository(dbpool)
	credentials := auth.NewCredentialService(actorRepo, logger)
	actorService := actors.NewService(actorRepo, credentials, auditLogger, logger)
	actorsHandler := actors.NewHandler(logger, actorService)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(credentials, roleCache, authRepo, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	// Startup work that needs the database. A failed credential warm is
	// tolerable since Verify falls back to the store on cache misses.
	g, startupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.BootstrapAdmin(startupCtx, cfg, roleRepo, actorRepo, logger)
	})
	g.Go(func() error {
		if err := credentials.WarmCache(startupCtx); err != nil {
			logger.Warn("warm credential cache", slog.Any("error", err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("startup", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		RBACHandler:    rbacHandler,
		ActorsHandler:  actorsHandler,
		JobHandler:     jobHandler,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
