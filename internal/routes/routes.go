package routes

import (
	"net/http"

	"github.com/BradenHooton/covernote/internal/auth"
	"github.com/BradenHooton/covernote/internal/handlers"
	"github.com/BradenHooton/covernote/internal/middleware"
	pkghttp "github.com/BradenHooton/covernote/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RateLimits holds the per-minute request ceilings for public and upload routes
type RateLimits struct {
	LoginPerMinute  int
	UploadPerMinute int
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	uploadHandler *handlers.UploadHandler,
	tokenManager *auth.TokenManager,
	limits RateLimits,
	ipConfig *pkghttp.IPConfig,
) {
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Resource not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	// Public routes - no authentication required
	loginLimit := middleware.DefaultAuthRateLimit()
	if limits.LoginPerMinute > 0 {
		loginLimit.RequestsPerMinute = limits.LoginPerMinute
	}
	router.With(middleware.RateLimitByIP(loginLimit, ipConfig)).Post("/auth/login", authHandler.Login)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		uploadLimit := middleware.RateLimitConfig{RequestsPerMinute: limits.UploadPerMinute}
		r.With(middleware.RateLimitByUser(uploadLimit, ipConfig)).Post("/uploads", uploadHandler.Upload)
	})
}
