package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/covernote/internal/database"
	"github.com/BradenHooton/covernote/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt and fills in its generated ID
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (ip_address, username, attempt_time, success, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.IPAddress,
		attempt.Username,
		attempt.AttemptTime,
		attempt.Success,
		attempt.UserAgent,
	).Scan(&attempt.ID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// ListFailedByIPSince returns failed attempts for an IP at or after since, newest first
func (r *LoginAttemptRepository) ListFailedByIPSince(ctx context.Context, ipAddress string, since time.Time) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, ip_address, username, attempt_time, success, user_agent
		FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempt_time >= $2
		ORDER BY attempt_time DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, ipAddress, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.LoginAttempt])
	if err != nil {
		return nil, fmt.Errorf("failed to scan login attempts: %w", err)
	}

	return attempts, nil
}

// DeleteOlderThan removes attempts recorded before cutoff and returns the number removed
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempt_time < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
