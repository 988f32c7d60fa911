package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Lockout errors
	ErrIPBlocked               = errors.New("login temporarily blocked for this address")
	ErrLockoutCheckUnavailable = errors.New("lockout check unavailable")

	// Upload errors
	ErrUploadUnreadable = errors.New("upload content could not be read")
)

// LockoutError reports an active IP lockout and when it ends
type LockoutError struct {
	IPAddress   string
	UnblockTime time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("login blocked for %s until %s", e.IPAddress, e.UnblockTime.UTC().Format(time.RFC3339))
}

func (e *LockoutError) Unwrap() error {
	return ErrIPBlocked
}
