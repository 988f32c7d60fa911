//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/covernote/internal/models"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = SetupTestDatabase(ctx)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func TestLoginAttemptRepository_RecordAndList(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, repo := InitializeRepositories(testDB.DB)

	now := time.Now().UTC().Truncate(time.Microsecond)
	attempts := []models.LoginAttempt{
		{IPAddress: "10.0.0.1", Username: "a", AttemptTime: now.Add(-50 * time.Minute)},
		{IPAddress: "10.0.0.1", Username: "a", AttemptTime: now.Add(-10 * time.Minute)},
		{IPAddress: "10.0.0.1", Username: "a", AttemptTime: now.Add(-5 * time.Minute)},
		{IPAddress: "10.0.0.1", Username: "a", AttemptTime: now.Add(-4 * time.Minute), Success: true},
		{IPAddress: "10.0.0.2", Username: "b", AttemptTime: now.Add(-3 * time.Minute)},
		{IPAddress: "10.0.0.1", Username: "a", AttemptTime: now.Add(-1 * time.Minute), UserAgent: "curl/8"},
	}
	for i := range attempts {
		require.NoError(t, repo.RecordAttempt(ctx, &attempts[i]))
		assert.NotEmpty(t, attempts[i].ID)
	}

	got, err := repo.ListFailedByIPSince(ctx, "10.0.0.1", now.Add(-45*time.Minute))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.True(t, got[0].AttemptTime.Equal(now.Add(-1*time.Minute)))
	assert.True(t, got[1].AttemptTime.Equal(now.Add(-5*time.Minute)))
	assert.True(t, got[2].AttemptTime.Equal(now.Add(-10*time.Minute)))
	assert.Equal(t, "curl/8", got[0].UserAgent)
	for _, a := range got {
		assert.False(t, a.Success)
		assert.Equal(t, "10.0.0.1", a.IPAddress)
	}
}

func TestLoginAttemptRepository_ListEmpty(t *testing.T) {
	resetTables(t)
	_, repo := InitializeRepositories(testDB.DB)

	got, err := repo.ListFailedByIPSince(context.Background(), "192.0.2.1", time.Now().Add(-time.Hour))

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoginAttemptRepository_DeleteOlderThan(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	_, repo := InitializeRepositories(testDB.DB)

	now := time.Now().UTC()
	day := 24 * time.Hour
	for _, at := range []time.Time{now.Add(-40 * day), now.Add(-31 * day), now.Add(-29 * day), now} {
		require.NoError(t, SeedFailedAttempt(ctx, testDB.Pool, "10.0.0.9", at))
	}

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-30*day))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining int
	require.NoError(t, testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM login_attempts").Scan(&remaining))
	assert.Equal(t, 2, remaining)
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	username, password := TestUser("repo")
	created, err := SeedUser(ctx, testDB.DB, username, password)
	require.NoError(t, err)
	assert.Equal(t, "agent", created.Role)

	userRepo, _ := InitializeRepositories(testDB.DB)
	got, err := userRepo.GetByUsername(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = userRepo.GetByUsername(ctx, "missing-user")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = SeedUser(ctx, testDB.DB, username, password)
	assert.ErrorIs(t, err, models.ErrConflict)
}
