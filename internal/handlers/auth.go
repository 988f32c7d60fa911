package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/covernote/internal/models"
	"github.com/BradenHooton/covernote/internal/services"
	pkghttp "github.com/BradenHooton/covernote/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, ipAddress, userAgent string) (*services.AuthResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64,printascii"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginBlockedResponse is returned while the caller's address is locked out
type LoginBlockedResponse struct {
	Error             string    `json:"error"`
	Message           string    `json:"message"`
	UnblockTime       time.Time `json:"unblock_time"`
	RetryAfterMinutes int       `json:"retry_after_minutes"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} LoginBlockedResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	authResp, err := h.service.Login(r.Context(), req.Username, req.Password, ipAddress, userAgent)
	if err != nil {
		var lockoutErr *models.LockoutError
		switch {
		case errors.As(err, &lockoutErr):
			writeLoginBlocked(w, lockoutErr.UnblockTime)
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid username or password")
		case errors.Is(err, models.ErrLockoutCheckUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Login is temporarily unavailable. Please try again shortly.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

func writeLoginBlocked(w http.ResponseWriter, unblockTime time.Time) {
	remaining := time.Until(unblockTime)
	minutes := max(1, int(math.Ceil(remaining.Minutes())))
	seconds := max(1, int(math.Ceil(remaining.Seconds())))

	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	pkghttp.WriteJSON(w, http.StatusForbidden, LoginBlockedResponse{
		Error:             "login_blocked",
		Message:           "Too many failed login attempts. Try again in " + pluralMinutes(minutes) + ".",
		UnblockTime:       unblockTime.UTC(),
		RetryAfterMinutes: minutes,
	})
}

func pluralMinutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return strconv.Itoa(n) + " minutes"
}
