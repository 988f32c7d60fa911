//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/covernote/internal/auth"
	"github.com/BradenHooton/covernote/internal/database"
	"github.com/BradenHooton/covernote/internal/handlers"
	middlewareCustom "github.com/BradenHooton/covernote/internal/middleware"
	"github.com/BradenHooton/covernote/internal/models"
	"github.com/BradenHooton/covernote/internal/routes"
	"github.com/BradenHooton/covernote/internal/services"
	"github.com/BradenHooton/covernote/internal/storage"
	pkglogger "github.com/BradenHooton/covernote/pkg/logger"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Notifier *services.MockLockoutNotifier
	Store    *storage.LocalStore
	Lockout  *services.LockoutService
}

// NewTestServer initializes a complete HTTP server with real database and a recording notifier
func NewTestServer(db *database.DB, uploadDir string) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	userRepo, loginAttemptRepo := InitializeRepositories(db)

	auditLogger := pkglogger.NewAuditLogger(logger)
	notifier := &services.MockLockoutNotifier{}
	lockoutService := services.NewLockoutService(loginAttemptRepo, models.DefaultLockoutPolicy(), logger)
	tokenManager := auth.NewTokenManager(testJWTSecret, 15*time.Minute)

	authService := services.NewAuthService(
		userRepo,
		tokenManager,
		lockoutService,
		notifier,
		services.LoginPolicy{FailClosed: true},
		logger,
		auditLogger,
	)

	store, err := storage.NewLocalStore(uploadDir)
	if err != nil {
		return nil, err
	}

	authHandler := handlers.NewAuthHandler(authService, nil)
	uploadHandler := handlers.NewUploadHandler(services.NewUploadValidator(logger), store, nil, logger, auditLogger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(r, authHandler, uploadHandler, tokenManager, routes.RateLimits{
		LoginPerMinute:  1000,
		UploadPerMinute: 1000,
	}, nil)

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Notifier: notifier,
		Store:    store,
		Lockout:  lockoutService,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Login posts credentials to /auth/login
func (ts *TestServer) Login(username, password string) (*http.Response, error) {
	body, err := json.Marshal(handlers.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	return http.Post(ts.Server.URL+"/auth/login", "application/json", bytes.NewReader(body))
}

// Upload posts one file as multipart field "file" with a bearer token
func (ts *TestServer) Upload(accessToken, filename string, content []byte) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/uploads", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return http.DefaultClient.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// DrainAndClose discards the body so the connection can be reused
func DrainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
