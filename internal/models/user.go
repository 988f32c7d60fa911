package models

import (
	"time"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string // e.g., "agent", "admin"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
