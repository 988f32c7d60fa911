package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// runTimeout bounds a single retention pass
const runTimeout = 30 * time.Second

// LoginAttemptCleaner deletes login attempts older than a number of days
type LoginAttemptCleaner interface {
	CleanupOldAttempts(ctx context.Context, days int) (int64, error)
}

// CleanupManager periodically prunes the login attempt log
type CleanupManager struct {
	cleaner       LoginAttemptCleaner
	logger        *slog.Logger
	retentionDays int
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	cleaner LoginAttemptCleaner,
	logger *slog.Logger,
	retentionDays int,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		cleaner:       cleaner,
		logger:        logger,
		retentionDays: retentionDays,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start runs a pass immediately and then once per interval until Stop is
// called or ctx is cancelled. It blocks; run it in its own goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes login attempts past the retention period
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Debug("starting login attempt cleanup", slog.Int("retention_days", cm.retentionDays))

	cleanupCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	rowsDeleted, err := cm.cleaner.CleanupOldAttempts(cleanupCtx, cm.retentionDays)
	if err != nil {
		cm.logger.Error("failed to cleanup login attempts", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("login attempt cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopCh)
	})
}
