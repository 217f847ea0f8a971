package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/mailprobe/internal"
	"github.com/DukeRupert/mailprobe/internal/csrf"
	"github.com/DukeRupert/mailprobe/internal/handler"
	"github.com/DukeRupert/mailprobe/internal/metrics"
	"github.com/DukeRupert/mailprobe/internal/middleware"
	"github.com/DukeRupert/mailprobe/internal/repository"
	"github.com/DukeRupert/mailprobe/internal/service"
	"github.com/DukeRupert/mailprobe/internal/session"
	"github.com/DukeRupert/mailprobe/internal/worker"
	"github.com/DukeRupert/mailprobe/web"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	store := repository.NewStore(db, "pgx")

	healthChecks := map[string]handler.Pinger{"database": db}

	// Session storage
	var sessions session.Store
	switch cfg.SessionStore {
	case "redis":
		rc, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer rc.Close()
		redisStore := session.NewRedisStore(rc)
		sessions = redisStore
		healthChecks["redis"] = redisStore
	default:
		sessions = session.NewPostgresStore(store.Queries)
	}
	logger.Info("Session store ready", "backend", cfg.SessionStore)

	// Outbound delivery
	transport, err := internal.NewMailTransport(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mail transport initialization failed: %w", err)
	}
	logger.Info("Mail transport ready", "transport", transport.Name())

	// Initialize services
	userService := service.NewUserService(store.Queries, sessions, service.UserServiceConfig{
		SessionDuration: cfg.SessionDuration,
	}, logger)
	settingsService := service.NewSettingsService(store, transport, logger)
	templateService := service.NewTemplateService(store.Queries, logger)
	mailService := service.NewMailService(settingsService, templateService, transport, store.Queries, logger)
	activityService := service.NewActivityService(store.Queries, cfg.LogsPageSize, logger)

	if params, ok := cfg.BootstrapSMTP(); ok {
		seeded, err := settingsService.Bootstrap(ctx, params)
		if err != nil {
			return fmt.Errorf("smtp bootstrap failed: %w", err)
		}
		if seeded {
			logger.Info("Seeded SMTP configuration from environment", "host", params.Host)
		}
	}

	// Initialize template renderer
	isDev := cfg.IsDevelopment()
	renderer, err := handler.NewRenderer(handler.RendererConfig{
		FS:           web.Templates(),
		TemplatesDir: "web/templates",
		Logger:       logger,
		IsDev:        isDev,
	})
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	logger.Info("Templates loaded", "count", len(renderer.ListTemplates()))

	// Background maintenance
	maintenance, err := worker.New(worker.DefaultConfig(), logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	maintenance.Register(worker.TaskFunc{
		TaskName: "delete_expired_sessions",
		Fn: func(ctx context.Context) error {
			n, err := userService.DeleteExpiredSessions(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("Deleted expired sessions", "count", n)
			}
			return nil
		},
	})

	// Initialize middleware
	isSecure := !isDev
	authMw := middleware.NewAuthMiddleware(userService, logger, isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loginThrottle := middleware.NewLoginThrottle(cfg.LoginRateLimit, cfg.LoginRateWindow, logger)
	probeLimiter := middleware.NewRateLimitMiddleware(
		middleware.NewRateLimiter(cfg.LoginRateLimit*2, time.Minute, logger), logger,
	)
	metricsAuth := middleware.NewBasicAuthMiddleware("metrics", cfg.MetricsUsername, cfg.MetricsPassword, logger)
	if !metricsAuth.Enabled() {
		logger.Warn("METRICS_USERNAME/METRICS_PASSWORD not set; /metrics is unprotected")
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(userService, renderer, logger, isSecure)
	sendHandler := handler.NewSendHandler(mailService, templateService, renderer, logger)
	settingsHandler := handler.NewSettingsHandler(settingsService, renderer, logger)
	activityHandler := handler.NewActivityHandler(activityService, settingsService, renderer, logger)
	healthHandler := handler.NewHealthHandler(healthChecks, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	// Operational endpoints
	mux.Handle("GET /health", healthHandler)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	// Create middleware stacks
	guest := middleware.Stack(authMw.WithUser, authMw.RedirectIfAuthenticated)
	app := middleware.Stack(authMw.WithUser, authMw.RequireUser)

	authHandler.RegisterRoutes(mux, guest, loginThrottle.Handler, app)
	sendHandler.RegisterRoutes(mux, app)
	settingsHandler.RegisterRoutes(mux, app, probeLimiter.Limit)
	activityHandler.RegisterRoutes(mux, app)

	csrfFail := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ForbiddenResponse(w, r, logger)
	})

	// metrics.Middleware sits directly on the mux so it sees the matched
	// route pattern.
	root := middleware.Stack(
		loggingMw.Handler,
		securityMw.Handler,
		csrf.Middleware(isSecure, csrfFail),
		metrics.Middleware,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		// Bulk sends run inside the request; leave room for many deliveries.
		WriteTimeout: 10 * time.Minute,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	maintenance.Start(workerCtx)

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	maintenance.Stop()

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
