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

	"github.com/labgig/labgig-crm/internal/app"
	"github.com/labgig/labgig-crm/internal/audit"
	"github.com/labgig/labgig-crm/internal/auth"
	"github.com/labgig/labgig-crm/internal/crm"
	"github.com/labgig/labgig-crm/internal/dashboard"
	"github.com/labgig/labgig-crm/internal/integration"
	"github.com/labgig/labgig-crm/internal/inventory"
	"github.com/labgig/labgig-crm/internal/masterdata/companies"
	"github.com/labgig/labgig-crm/internal/masterdata/products"
	"github.com/labgig/labgig-crm/internal/observability"
	"github.com/labgig/labgig-crm/internal/platform/cache"
	"github.com/labgig/labgig-crm/internal/platform/db"
	"github.com/labgig/labgig-crm/internal/rbac"
	"github.com/labgig/labgig-crm/internal/sales"
	"github.com/labgig/labgig-crm/internal/shared"
	"github.com/labgig/labgig-crm/internal/users"
	"github.com/labgig/labgig-crm/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "labgig_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	for _, scope := range shared.AllScopes() {
		if _, err := rbacService.EnsurePermission(ctx, scope, ""); err != nil {
			logger.Warn("ensure permission", slog.String("scope", scope), slog.Any("error", err))
		}
	}

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	hooks := integration.NewHooks(jobClient, logger)

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersService := users.NewService(users.NewRepository(dbpool))
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	rolesHandler := rbac.NewRolesHandler(logger, rbacService, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	companiesService := companies.NewService(companies.NewRepository(dbpool))
	companiesHandler := companies.NewHandler(logger, companiesService, rbacMiddleware)

	productsService := products.NewService(products.NewRepository(dbpool))
	productsHandler := products.NewHandler(logger, productsService, rbacMiddleware)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, approvalRecorder, shared.NewIdempotencyStore(dbpool), hooks)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, metrics, rbacMiddleware)

	crmService := crm.NewService(crm.NewRepository(dbpool), auditLogger)
	crmHandler := crm.NewHandler(logger, crmService, rbacMiddleware)

	salesService := sales.NewService(sales.NewRepository(dbpool), auditLogger)
	salesHandler := sales.NewHandler(logger, salesService, rbacMiddleware)

	dashboardService := dashboard.NewService(dbpool, dashboard.NewCache(redisClient, 5*time.Minute))
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, rbacMiddleware)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		CompaniesHandler:   companiesHandler,
		ProductsHandler:    productsHandler,
		InventoryHandler:   inventoryHandler,
		CRMHandler:         crmHandler,
		SalesHandler:       salesHandler,
		DashboardHandler:   dashboardHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
