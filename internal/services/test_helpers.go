package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/covernote/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByUsernameFunc func(ctx context.Context, username string) (*models.User, error)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	GenerateAccessTokenFunc func(userID, username string) (string, time.Time, error)
}

func (m *MockTokenIssuer) GenerateAccessToken(userID, username string) (string, time.Time, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(userID, username)
	}
	return "token-" + userID, time.Now().Add(15 * time.Minute), nil
}

// MockLockoutNotifier records every notice it receives
type MockLockoutNotifier struct {
	mu      sync.Mutex
	Notices []LockoutNotice
	Err     error
}

func (m *MockLockoutNotifier) NotifyLockout(ctx context.Context, notice LockoutNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notices = append(m.Notices, notice)
	return m.Err
}

// InMemoryLoginAttemptRepository implements LoginAttemptRepository over a slice.
// The Err fields force the matching operation to fail.
type InMemoryLoginAttemptRepository struct {
	mu       sync.Mutex
	attempts []models.LoginAttempt
	nextID   int

	RecordErr error
	ListErr   error
	DeleteErr error
}

func NewInMemoryLoginAttemptRepository() *InMemoryLoginAttemptRepository {
	return &InMemoryLoginAttemptRepository{}
}

func (r *InMemoryLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.RecordErr != nil {
		return r.RecordErr
	}

	r.nextID++
	attempt.ID = fmt.Sprintf("attempt-%d", r.nextID)
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *InMemoryLoginAttemptRepository) ListFailedByIPSince(ctx context.Context, ipAddress string, since time.Time) ([]models.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ListErr != nil {
		return nil, r.ListErr
	}

	var out []models.LoginAttempt
	for _, a := range r.attempts {
		if a.IPAddress == ipAddress && !a.Success && !a.AttemptTime.Before(since) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttemptTime.After(out[j].AttemptTime)
	})
	return out, nil
}

func (r *InMemoryLoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.DeleteErr != nil {
		return 0, r.DeleteErr
	}

	kept := r.attempts[:0]
	var deleted int64
	for _, a := range r.attempts {
		if a.AttemptTime.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return deleted, nil
}

// Len returns the number of stored attempts
func (r *InMemoryLoginAttemptRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// Seed stores attempts as-is, bypassing the clock of any service
func (r *InMemoryLoginAttemptRepository) Seed(attempts ...models.LoginAttempt) {
	for i := range attempts {
		_ = r.RecordAttempt(context.Background(), &attempts[i])
	}
}

// FixedClock returns a settable time source for deterministic tests
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
