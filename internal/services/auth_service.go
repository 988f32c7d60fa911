package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/covernote/internal/models"
	pkgauth "github.com/BradenHooton/covernote/pkg/auth"
	pkglogger "github.com/BradenHooton/covernote/pkg/logger"
)

// UserRepository defines the user lookups needed for login
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// TokenIssuer issues access tokens for authenticated users
type TokenIssuer interface {
	GenerateAccessToken(userID, username string) (string, time.Time, error)
}

// LockoutGuard is the brute-force guard contract used by the login flow
type LockoutGuard interface {
	IsBlocked(ctx context.Context, ipAddress string) (bool, *time.Time, error)
	RecordAttempt(ctx context.Context, ipAddress, username string, success bool, userAgent string) (*models.LoginAttempt, error)
}

// LoginPolicy controls how the login flow treats an unreadable attempt log
type LoginPolicy struct {
	FailClosed bool
}

// AuthService handles authentication business logic
type AuthService struct {
	users       UserRepository
	tokens      TokenIssuer
	guard       LockoutGuard
	notifier    LockoutNotifier
	policy      LoginPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	tokens TokenIssuer,
	guard LockoutGuard,
	notifier LockoutNotifier,
	policy LoginPolicy,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:       users,
		tokens:      tokens,
		guard:       guard,
		notifier:    notifier,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// AuthResponse represents the response from a successful login
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

// Login checks the lockout state of ipAddress, verifies credentials and records
// the attempt. A locked address gets a *models.LockoutError without the
// credentials being checked.
func (s *AuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*AuthResponse, error) {
	blocked, unblockTime, err := s.guard.IsBlocked(ctx, ipAddress)
	if err != nil {
		s.logger.Error("lockout check failed",
			slog.String("ip_address", ipAddress),
			slog.Bool("fail_closed", s.policy.FailClosed),
			slog.Any("error", err))
		if s.policy.FailClosed {
			return nil, fmt.Errorf("%w: %v", models.ErrLockoutCheckUnavailable, err)
		}
	}
	if blocked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			Username:      username,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "ip_locked_out",
		})
		return nil, &models.LockoutError{IPAddress: ipAddress, UnblockTime: *unblockTime}
	}

	user, verifyErr := s.verifyCredentials(ctx, username, password)
	if verifyErr != nil && !errors.Is(verifyErr, models.ErrUnauthorized) {
		return nil, verifyErr
	}
	success := verifyErr == nil

	if _, err := s.guard.RecordAttempt(ctx, ipAddress, username, success, userAgent); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return nil, err
	}

	if !success {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "invalid_credentials",
		})
		s.detectNewLockout(ctx, username, ipAddress, userAgent)
		return nil, models.ErrUnauthorized
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_succeeded",
		Username:  username,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Username:    user.Username,
		Role:        user.Role,
	}, nil
}

// verifyCredentials returns models.ErrUnauthorized for unknown users and wrong
// passwords alike; other errors come from the user store.
func (s *AuthService) verifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = pkgauth.CompareDummy(password)
			return nil, models.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrUnauthorized
	}

	return user, nil
}

// detectNewLockout re-runs the lockout check after a recorded failure. The
// address was not blocked before this attempt, so a block now means this
// failure started it.
func (s *AuthService) detectNewLockout(ctx context.Context, username, ipAddress, userAgent string) {
	blocked, unblockTime, err := s.guard.IsBlocked(ctx, ipAddress)
	if err != nil {
		s.logger.Warn("post-failure lockout check failed",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return
	}
	if !blocked {
		return
	}

	s.auditLogger.LogLockout(ipAddress, username, *unblockTime)

	notice := LockoutNotice{
		IPAddress:   ipAddress,
		Username:    username,
		UserAgent:   userAgent,
		UnblockTime: *unblockTime,
	}
	if err := s.notifier.NotifyLockout(ctx, notice); err != nil {
		s.logger.Error("failed to send lockout notification",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
	}
}
