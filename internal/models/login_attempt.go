package models

import "time"

// LoginAttempt is one row of the attempt log. Rows are append-only; the only
// mutation is bulk deletion by the retention job.
type LoginAttempt struct {
	ID          string    `db:"id"`
	IPAddress   string    `db:"ip_address"`
	Username    string    `db:"username"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
	UserAgent   string    `db:"user_agent"`
}

// LockoutPolicy holds the thresholds for IP lockout decisions
type LockoutPolicy struct {
	MaxFailures     int           // Failures needed to form a cluster
	DetectionWindow time.Duration // Max span between first and last failure of a cluster
	LockoutDuration time.Duration // Lockout length, anchored on the oldest failure of the cluster
}

// DefaultLockoutPolicy returns 5 failures within 15 minutes locking for 30 minutes
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailures:     5,
		DetectionWindow: 15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
	}
}

// Lookback is the furthest point in the past at which a still-active lockout
// could have originated.
func (p LockoutPolicy) Lookback() time.Duration {
	return p.DetectionWindow + p.LockoutDuration
}
