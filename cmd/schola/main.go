package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/schola-erp/schola/internal/app"
	"github.com/schola-erp/schola/internal/auth"
	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/gateway"
	"github.com/schola-erp/schola/internal/guard"
	"github.com/schola-erp/schola/internal/observability"
	"github.com/schola-erp/schola/internal/platform/cache"
	"github.com/schola-erp/schola/internal/platform/db"
	"github.com/schola-erp/schola/internal/policy"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
	"github.com/schola-erp/schola/jobs"
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

	upstreamURL, err := url.Parse(cfg.UpstreamBaseURL)
	if err != nil {
		logger.Error("parse upstream base url", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "schola_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	resolver := realm.NewResolver()
	credStore := credentials.NewStore(redisClient, cfg.CredentialTTL)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(&http.Client{Timeout: cfg.UpstreamTimeout}, cfg.UpstreamBaseURL, resolver, authRepo)

	redirectGuard := gateway.NewRedirectGuard(cfg.RedirectGuardWindow, nil)
	invalidator := gateway.NewInvalidator(credStore, sessionManager, resolver, redirectGuard, authService, metrics, logger)

	classifier := gateway.NewClassifier(resolver, cfg.InvalidTokenPhrases)
	transport := &gateway.Transport{
		Base:     http.DefaultTransport,
		Resolver: resolver,
		Store:    credStore,
	}
	proxy := gateway.NewProxy(upstreamURL, transport, resolver, credStore, classifier, invalidator, logger)

	engine := policy.NewEngine()
	authHandler := auth.NewHandler(logger, authService, credStore, sessionManager, engine, resolver, invalidator)
	auditHandler := auth.NewAuditHandler(authRepo, logger)

	guards := guard.Middleware{
		Store:    credStore,
		Engine:   engine,
		Resolver: resolver,
		Logger:   logger,
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Proxy:          proxy,
		Guards:         guards,
		GuardRelease:   invalidator,
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
