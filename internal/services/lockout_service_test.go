package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/covernote/internal/models"
	"github.com/BradenHooton/covernote/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLockoutService() (*services.LockoutService, *services.InMemoryLoginAttemptRepository, *services.FixedClock) {
	repo := services.NewInMemoryLoginAttemptRepository()
	clock := services.NewFixedClock(baseNow)
	svc := services.NewLockoutService(repo, models.DefaultLockoutPolicy(), discardLogger())
	svc.SetClock(clock.Now)
	return svc, repo, clock
}

func failedAt(ip string, at time.Time) models.LoginAttempt {
	return models.LoginAttempt{IPAddress: ip, Username: "agent", AttemptTime: at, Success: false}
}

func succeededAt(ip string, at time.Time) models.LoginAttempt {
	return models.LoginAttempt{IPAddress: ip, Username: "agent", AttemptTime: at, Success: true}
}

// ago returns baseNow minus minutes and seconds
func ago(minutes, seconds int) time.Time {
	return baseNow.Add(-time.Duration(minutes)*time.Minute - time.Duration(seconds)*time.Second)
}

func TestIsBlocked_NoAttempts(t *testing.T) {
	svc, _, _ := newTestLockoutService()

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Nil(t, unblock)
}

func TestIsBlocked_Threshold(t *testing.T) {
	for n := 0; n <= 7; n++ {
		t.Run(fmt.Sprintf("%d failures", n), func(t *testing.T) {
			svc, repo, _ := newTestLockoutService()
			for i := 0; i < n; i++ {
				repo.Seed(failedAt("10.0.0.1", ago(2*i, 0)))
			}

			blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

			require.NoError(t, err)
			assert.Equal(t, n >= 5, blocked)
			if n >= 5 {
				require.NotNil(t, unblock)
				// newest window: attempts 0..4, oldest at 8 minutes ago
				assert.Equal(t, ago(8, 0).Add(30*time.Minute), *unblock)
			} else {
				assert.Nil(t, unblock)
			}
		})
	}
}

func TestIsBlocked_WindowBoundaryInclusive(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	repo.Seed(
		failedAt("10.0.0.1", ago(15, 0)),
		failedAt("10.0.0.1", ago(10, 0)),
		failedAt("10.0.0.1", ago(5, 0)),
		failedAt("10.0.0.1", ago(2, 0)),
		failedAt("10.0.0.1", baseNow),
	)

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.True(t, blocked)
	require.NotNil(t, unblock)
	assert.Equal(t, baseNow.Add(15*time.Minute), *unblock)
}

func TestIsBlocked_WindowJustOverBoundary(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	repo.Seed(
		failedAt("10.0.0.1", ago(15, 1)),
		failedAt("10.0.0.1", ago(10, 0)),
		failedAt("10.0.0.1", ago(5, 0)),
		failedAt("10.0.0.1", ago(2, 0)),
		failedAt("10.0.0.1", baseNow),
	)

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Nil(t, unblock)
}

func TestIsBlocked_UnblockTiming(t *testing.T) {
	clusterStart := baseNow
	wantUnblock := clusterStart.Add(30 * time.Minute)

	tests := []struct {
		name        string
		now         time.Time
		wantBlocked bool
	}{
		{"right after the fifth failure", clusterStart.Add(40 * time.Second), true},
		{"one second before unblock", wantUnblock.Add(-time.Second), true},
		{"at the unblock instant", wantUnblock, false},
		{"after unblock", wantUnblock.Add(time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, clock := newTestLockoutService()
			for i := 0; i < 5; i++ {
				repo.Seed(failedAt("10.0.0.1", clusterStart.Add(time.Duration(i)*10*time.Second)))
			}
			clock.Set(tt.now)

			blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

			require.NoError(t, err)
			assert.Equal(t, tt.wantBlocked, blocked)
			if tt.wantBlocked {
				require.NotNil(t, unblock)
				assert.Equal(t, wantUnblock, *unblock)
			} else {
				assert.Nil(t, unblock)
			}
		})
	}
}

func TestIsBlocked_SuccessfulAttemptsNeverBlock(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	for i := 0; i < 50; i++ {
		repo.Seed(succeededAt("10.0.0.1", ago(0, i)))
	}

	blocked, _, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestIsBlocked_PerIPIsolation(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	for i := 0; i < 5; i++ {
		repo.Seed(failedAt("10.0.0.1", ago(i, 0)))
	}

	blockedA, _, err := svc.IsBlocked(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	blockedB, _, err := svc.IsBlocked(context.Background(), "10.0.0.2")
	require.NoError(t, err)

	assert.True(t, blockedA)
	assert.False(t, blockedB)
}

func TestIsBlocked_OldAttemptsIgnored(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	// A dense burst that ended 46 minutes ago
	for i := 0; i < 8; i++ {
		repo.Seed(failedAt("10.0.0.1", ago(46+i, 0)))
	}

	blocked, _, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestIsBlocked_ExpiredClusterInsideLookback(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	for i := 0; i < 5; i++ {
		repo.Seed(failedAt("10.0.0.1", ago(40+i, 0)))
	}

	blocked, _, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, blocked, "cluster anchored 44 minutes ago expired 14 minutes ago")
}

func TestIsBlocked_OnlyFailuresCount(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	for i := 0; i < 4; i++ {
		repo.Seed(failedAt("10.0.0.1", ago(2*i, 0)))
		repo.Seed(succeededAt("10.0.0.1", ago(2*i, 30)))
		repo.Seed(succeededAt("10.0.0.1", ago(2*i+1, 0)))
	}

	blocked, _, err := svc.IsBlocked(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, blocked, "four failures among successes must not block")

	repo.Seed(failedAt("10.0.0.1", ago(9, 0)))

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, blocked)
	require.NotNil(t, unblock)
	assert.Equal(t, ago(9, 0).Add(30*time.Minute), *unblock)
}

func TestIsBlocked_ScenarioFailuresWithinFifteenMinutes(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	repo.Seed(
		failedAt("10.0.0.1", ago(14, 59)),
		failedAt("10.0.0.1", ago(14, 0)),
		failedAt("10.0.0.1", ago(10, 0)),
		failedAt("10.0.0.1", ago(5, 0)),
		failedAt("10.0.0.1", ago(0, 1)),
	)

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.True(t, blocked)
	require.NotNil(t, unblock)
	assert.Equal(t, ago(14, 59).Add(30*time.Minute), *unblock)
}

func TestIsBlocked_ScenarioSpanJustOverFifteenMinutes(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	newest := ago(0, 1)
	repo.Seed(
		failedAt("10.0.0.1", newest.Add(-15*time.Minute-time.Second)),
		failedAt("10.0.0.1", ago(14, 0)),
		failedAt("10.0.0.1", ago(10, 0)),
		failedAt("10.0.0.1", ago(5, 0)),
		failedAt("10.0.0.1", newest),
	)

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Nil(t, unblock)
}

func TestIsBlocked_FirstActiveClusterInScanOrderWins(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	// Older dense burst followed by two sparse failures
	for _, m := range []int{20, 19, 18, 17, 16, 10, 1} {
		repo.Seed(failedAt("10.0.0.1", ago(m, 0)))
	}

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.True(t, blocked)
	require.NotNil(t, unblock)
	// window [-1, -18] spans 17m and is skipped; window [-10, -19] qualifies first
	assert.Equal(t, ago(19, 0).Add(30*time.Minute), *unblock)
}

func TestIsBlocked_StorageErrorPropagates(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	storageErr := errors.New("connection refused")
	repo.ListErr = storageErr

	blocked, unblock, err := svc.IsBlocked(context.Background(), "10.0.0.1")

	assert.ErrorIs(t, err, storageErr)
	assert.False(t, blocked)
	assert.Nil(t, unblock)
}

func TestRecordAttempt_StampsClockTime(t *testing.T) {
	svc, repo, _ := newTestLockoutService()

	attempt, err := svc.RecordAttempt(context.Background(), "10.0.0.1", "broker", false, "Mozilla/5.0")

	require.NoError(t, err)
	assert.NotEmpty(t, attempt.ID)
	assert.Equal(t, baseNow, attempt.AttemptTime)
	assert.Equal(t, "10.0.0.1", attempt.IPAddress)
	assert.Equal(t, "broker", attempt.Username)
	assert.Equal(t, "Mozilla/5.0", attempt.UserAgent)
	assert.False(t, attempt.Success)
	assert.Equal(t, 1, repo.Len())
}

func TestRecordAttempt_FiveFailuresBlock(t *testing.T) {
	svc, _, clock := newTestLockoutService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.RecordAttempt(ctx, "10.0.0.1", "broker", false, "")
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	blocked, unblock, err := svc.IsBlocked(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, blocked)
	require.NotNil(t, unblock)
	assert.Equal(t, baseNow.Add(30*time.Minute), *unblock)
}

func TestRecordAttempt_StorageErrorPropagates(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	repo.RecordErr = errors.New("disk full")

	attempt, err := svc.RecordAttempt(context.Background(), "10.0.0.1", "broker", true, "")

	assert.ErrorIs(t, err, repo.RecordErr)
	assert.Nil(t, attempt)
}

func TestCleanupOldAttempts(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	day := 24 * time.Hour
	repo.Seed(
		failedAt("10.0.0.1", baseNow.Add(-40*day)),
		succeededAt("10.0.0.1", baseNow.Add(-31*day)),
		failedAt("10.0.0.1", baseNow.Add(-29*day)),
		failedAt("10.0.0.2", baseNow),
	)

	deleted, err := svc.CleanupOldAttempts(context.Background(), 30)

	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 2, repo.Len())

	deleted, err = svc.CleanupOldAttempts(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted, "cleanup is idempotent")
}

func TestCleanupOldAttempts_NonPositiveDaysUsesDefault(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	day := 24 * time.Hour
	repo.Seed(
		failedAt("10.0.0.1", baseNow.Add(-31*day)),
		failedAt("10.0.0.1", baseNow.Add(-2*day)),
	)

	deleted, err := svc.CleanupOldAttempts(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestCleanupOldAttempts_StorageErrorPropagates(t *testing.T) {
	svc, repo, _ := newTestLockoutService()
	repo.DeleteErr = errors.New("timeout")

	_, err := svc.CleanupOldAttempts(context.Background(), 30)

	assert.ErrorIs(t, err, repo.DeleteErr)
}
