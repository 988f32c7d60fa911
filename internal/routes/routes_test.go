package routes_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/covernote/internal/auth"
	"github.com/BradenHooton/covernote/internal/handlers"
	"github.com/BradenHooton/covernote/internal/models"
	"github.com/BradenHooton/covernote/internal/routes"
	"github.com/BradenHooton/covernote/internal/services"
	pkglogger "github.com/BradenHooton/covernote/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "routes-test-secret-with-enough-length-0123456789"

func newTestRouter(t *testing.T, limits routes.RateLimits) (http.Handler, *auth.TokenManager, *handlers.MockFileStore) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm := auth.NewTokenManager(testSecret, 15*time.Minute)
	store := &handlers.MockFileStore{}

	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, username, password, ipAddress, userAgent string) (*services.AuthResponse, error) {
			return nil, models.ErrUnauthorized
		},
	}

	authHandler := handlers.NewAuthHandler(mockAuth, nil)
	uploadHandler := handlers.NewUploadHandler(services.NewUploadValidator(logger), store, nil, logger,
		pkglogger.NewAuditLogger(logger))

	router := chi.NewRouter()
	routes.RegisterRoutes(router, authHandler, uploadHandler, tm, limits, nil)
	return router, tm, store
}

func TestRoutes_NotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, routes.RateLimits{LoginPerMinute: 10, UploadPerMinute: 10})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"not_found"`)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	router, _, _ := newTestRouter(t, routes.RateLimits{LoginPerMinute: 10, UploadPerMinute: 10})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/auth/login", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRoutes_UploadRequiresToken(t *testing.T) {
	router, _, store := newTestRouter(t, routes.RateLimits{LoginPerMinute: 10, UploadPerMinute: 10})

	req := handlers.NewMultipartRequest(t, "/uploads", "file", "photo.png", []byte("\x89PNG\r\n\x1a\nrest"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, store.Files)
}

func TestRoutes_UploadWithToken(t *testing.T) {
	router, tm, store := newTestRouter(t, routes.RateLimits{LoginPerMinute: 10, UploadPerMinute: 10})

	token, _, err := tm.GenerateAccessToken("user-1", "broker")
	require.NoError(t, err)

	req := handlers.NewMultipartRequest(t, "/uploads", "file", "photo.png", []byte("\x89PNG\r\n\x1a\nrest"))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, store.Files, 1)
}

func TestRoutes_LoginRateLimited(t *testing.T) {
	router, _, _ := newTestRouter(t, routes.RateLimits{LoginPerMinute: 2, UploadPerMinute: 10})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
			Username: "broker",
			Password: "wrong-password",
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{401, 401, 429}, codes)
}

func TestRoutes_LoginDefaultRateLimit(t *testing.T) {
	router, _, _ := newTestRouter(t, routes.RateLimits{UploadPerMinute: 10})

	limited := 0
	for i := 0; i < 21; i++ {
		req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
			Username: "broker",
			Password: "wrong-password",
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 1, limited, "an unset login limit falls back to the default of 20 per minute")
}
