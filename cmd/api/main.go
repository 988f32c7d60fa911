package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/covernote/internal/auth"
	"github.com/BradenHooton/covernote/internal/background"
	"github.com/BradenHooton/covernote/internal/config"
	"github.com/BradenHooton/covernote/internal/database"
	"github.com/BradenHooton/covernote/internal/handlers"
	middlewareCustom "github.com/BradenHooton/covernote/internal/middleware"
	"github.com/BradenHooton/covernote/internal/models"
	"github.com/BradenHooton/covernote/internal/repositories"
	"github.com/BradenHooton/covernote/internal/routes"
	"github.com/BradenHooton/covernote/internal/services"
	"github.com/BradenHooton/covernote/internal/storage"
	pkgauth "github.com/BradenHooton/covernote/pkg/auth"
	pkghttp "github.com/BradenHooton/covernote/pkg/http"
	pkglogger "github.com/BradenHooton/covernote/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Schema migrations
	if cfg.Database.AutoMigrate {
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := database.Migrate(migrateCtx, &cfg.Database, logger)
		migrateCancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)

	// Trusted proxies decide which forwarded headers are believed
	ipConfig, invalidProxies := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	for _, p := range invalidProxies {
		logger.Warn("ignoring invalid trusted proxy", slog.String("value", p))
	}

	// Security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	lockoutService := services.NewLockoutService(loginAttemptRepo, models.DefaultLockoutPolicy(), logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	notifier, err := newLockoutNotifier(cfg.Alert, logger)
	if err != nil {
		logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
		os.Exit(1)
	}

	authService := services.NewAuthService(
		userRepo,
		tokenManager,
		lockoutService,
		notifier,
		services.LoginPolicy{FailClosed: cfg.Lockout.FailClosed},
		logger,
		auditLogger,
	)

	// Upload pipeline
	uploadValidator := services.NewUploadValidator(logger)
	fileStore, err := storage.NewLocalStore(cfg.Upload.Dir)
	if err != nil {
		logger.Error("failed to initialize upload storage", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	uploadHandler := handlers.NewUploadHandler(uploadValidator, fileStore, ipConfig, logger, auditLogger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, uploadHandler, tokenManager, routes.RateLimits{
		LoginPerMinute:  cfg.Auth.LoginRequestsPerMin,
		UploadPerMinute: cfg.Auth.UploadRequestsPerMin,
	}, ipConfig)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start login attempt retention task
	cleanupManager := background.NewCleanupManager(lockoutService, logger, cfg.Lockout.RetentionDays, cfg.Lockout.CleanupInterval)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLockoutNotifier emails alerts through SES when a recipient is configured
func newLockoutNotifier(cfg config.AlertConfig, logger *slog.Logger) (services.LockoutNotifier, error) {
	if cfg.ToAddress == "" {
		logger.Info("ALERT_EMAIL_TO not set, lockout alerts will only be logged")
		return services.NewLogLockoutNotifier(logger), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return services.NewSESLockoutNotifier(ctx, cfg.AWSRegion, cfg.FromAddress, cfg.ToAddress, logger)
}

// ensureAdminUser creates the first admin user if ADMIN_USERNAME and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminPassword == "" {
		logger.Info("no ADMIN_USERNAME or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByUsername(ctx, adminUsername)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Username:     adminUsername,
		PasswordHash: hashedPassword,
		Role:         "admin",
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
