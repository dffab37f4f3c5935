package repositories

import (
	"context"
	"time"
)

// CooldownRepository gates repeated work on the same key
type CooldownRepository interface {
	// Claim reports whether key is ready at now and, if so, reserves it for one period.
	// Concurrent claims on the same key succeed at most once per window.
	Claim(ctx context.Context, key string, now time.Time) (bool, error)
}
