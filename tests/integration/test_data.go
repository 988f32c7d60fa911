//go:build integration

package integration

import (
	"fmt"
	"time"
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (username, password string) {
	username = fmt.Sprintf("user-%d-%s", time.Now().UnixNano(), suffix)
	password = "TestPassword123!"
	return
}
