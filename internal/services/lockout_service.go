package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/covernote/internal/models"
)

// DefaultRetentionDays is used by CleanupOldAttempts when no positive age is given
const DefaultRetentionDays = 30

// LoginAttemptRepository defines the attempt log operations the lockout service needs
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	ListFailedByIPSince(ctx context.Context, ipAddress string, since time.Time) ([]models.LoginAttempt, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LockoutService is the brute-force guard: it decides whether an IP is locked
// out from its recent failed logins and appends new attempts to the log.
//
// Storage errors are returned to the caller unchanged in meaning; deciding
// whether to fail open or closed belongs to the login flow.
type LockoutService struct {
	repo   LoginAttemptRepository
	policy models.LockoutPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LoginAttemptRepository, policy models.LockoutPolicy, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source, for tests and replay tooling
func (s *LockoutService) SetClock(now func() time.Time) {
	s.now = now
}

// IsBlocked reports whether ipAddress is locked out and, if so, when the lockout ends.
//
// Every run of MaxFailures consecutive failures (newest first) is tested; a run
// spanning at most DetectionWindow is a cluster, and the lockout is anchored on
// the cluster's oldest failure. Clusters are scanned newest first and the first
// one still active wins.
func (s *LockoutService) IsBlocked(ctx context.Context, ipAddress string) (bool, *time.Time, error) {
	now := s.now()
	lookbackTime := now.Add(-s.policy.Lookback())

	attempts, err := s.repo.ListFailedByIPSince(ctx, ipAddress, lookbackTime)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load login attempts: %w", err)
	}

	n := s.policy.MaxFailures
	if len(attempts) < n {
		return false, nil, nil
	}

	for i := 0; i <= len(attempts)-n; i++ {
		newest := attempts[i]
		oldest := attempts[i+n-1]

		if newest.AttemptTime.Sub(oldest.AttemptTime) > s.policy.DetectionWindow {
			continue
		}

		unblockTime := oldest.AttemptTime.Add(s.policy.LockoutDuration)
		if now.Before(unblockTime) {
			s.logger.Debug("ip locked out",
				slog.String("ip_address", ipAddress),
				slog.Time("unblock_time", unblockTime))
			return true, &unblockTime, nil
		}
	}

	return false, nil, nil
}

// RecordAttempt appends one attempt stamped with the current time
func (s *LockoutService) RecordAttempt(ctx context.Context, ipAddress, username string, success bool, userAgent string) (*models.LoginAttempt, error) {
	attempt := &models.LoginAttempt{
		IPAddress:   ipAddress,
		Username:    username,
		AttemptTime: s.now(),
		Success:     success,
		UserAgent:   userAgent,
	}

	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}

	return attempt, nil
}

// CleanupOldAttempts deletes attempts older than the given number of days
func (s *LockoutService) CleanupOldAttempts(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old login attempts: %w", err)
	}

	s.logger.Info("old login attempts removed",
		slog.Int("retention_days", days),
		slog.Int64("rows_deleted", deleted))

	return deleted, nil
}
