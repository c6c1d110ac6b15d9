package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-pos/vantage-pos/internal/app"
	"github.com/vantage-pos/vantage-pos/internal/audit"
	audithttp "github.com/vantage-pos/vantage-pos/internal/audit/http"
	"github.com/vantage-pos/vantage-pos/internal/auth"
	"github.com/vantage-pos/vantage-pos/internal/identity"
	"github.com/vantage-pos/vantage-pos/internal/observability"
	"github.com/vantage-pos/vantage-pos/internal/platform/cache"
	"github.com/vantage-pos/vantage-pos/internal/platform/db"
	"github.com/vantage-pos/vantage-pos/internal/policy"
	"github.com/vantage-pos/vantage-pos/internal/rbac"
	"github.com/vantage-pos/vantage-pos/internal/shared"
	"github.com/vantage-pos/vantage-pos/internal/twofactor"
	"github.com/vantage-pos/vantage-pos/jobs"
)

type principalLookup struct {
	users *identity.Service
}

func (l principalLookup) GetPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	user, err := l.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, rbac.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func currentPrincipal(ctx context.Context) rbac.Principal {
	if user := identity.UserFromContext(ctx); user != nil {
		return user
	}
	return nil
}

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

	sessionManager := shared.NewSessionManager(redisClient, "vantage_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditRecorder := audit.NewRecorder(pool)
	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, auditService)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo)

	rbacRepo := rbac.NewRepository(pool)
	if err := rbac.EnsureCatalog(ctx, rbacRepo); err != nil {
		logger.Error("seed permission catalog", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := rbac.NewResolver(rbacRepo)
	synchronizer := rbac.NewSynchronizer(auditRecorder, logger)

	sessionStore := auth.NewSessionStore(pool)
	tokenStore := auth.NewTokenStore(pool)
	guard := auth.NewGuard(sessionManager, sessionStore, tokenStore, logger)

	rbacService := rbac.NewService(rbacRepo, synchronizer, guard, auditRecorder, logger)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Current: currentPrincipal, Logger: logger}

	codeStore := twofactor.NewCodeStore(pool)
	twofactorService := twofactor.NewService(identityRepo, codeStore, auditRecorder, cfg.TOTPIssuer, logger)
	twofactorHandler := twofactor.NewHandler(logger, twofactorService)

	authService := auth.NewService(identityRepo, sessionStore, auditRecorder, logger)
	authMiddleware := auth.Middleware{Logger: logger, Service: authService, Tokens: tokenStore}
	authHandler := auth.NewHandler(logger, authService, sessionManager, tokenStore, twofactorService, cfg.APITokenTTL)

	metrics := observability.NewMetrics()

	registry := policy.NewRegistry()
	if err := policy.RegisterDefaults(registry); err != nil {
		logger.Error("register policy resources", slog.Any("error", err))
		os.Exit(1)
	}
	engine := policy.NewEngine(registry, resolver, auditRecorder, metrics, logger)
	policyHandler := policy.NewHandler(logger, registry, engine, currentPrincipal)

	rbacHandler := rbac.NewHandler(logger, rbacService, principalLookup{users: identityService}, rbacMiddleware)
	usersHandler := identity.NewHandler(logger, identityService, rbacMiddleware.RequireAny)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthMiddleware:   authMiddleware,
		RBACMiddleware:   rbacMiddleware,
		AuthHandler:      authHandler,
		TwoFactorHandler: twofactorHandler,
		RBACHandler:      rbacHandler,
		PolicyHandler:    policyHandler,
		UsersHandler:     usersHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
