package services

import (
	"context"
	"sync"
	"time"

	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
)

// Ensure Cooldown implements the interface
var _ repositories.CooldownRepository = (*Cooldown)(nil)

// Cooldown is the in-process cooldown store. A key is ready when its window has
// elapsed; claiming it starts a new window.
type Cooldown struct {
	mu      sync.Mutex
	period  time.Duration
	readyAt map[string]time.Time
}

// NewCooldown creates an in-process cooldown; a non-positive period is always ready
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{
		period:  period,
		readyAt: make(map[string]time.Time),
	}
}

// Claim checks and reserves key in one step
func (c *Cooldown) Claim(_ context.Context, key string, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if readyAt, ok := c.readyAt[key]; ok && readyAt.After(now) {
		return false, nil
	}
	c.readyAt[key] = now.Add(c.period)
	return true, nil
}
