package services

import (
	"context"
	"testing"
	"time"
)

func TestCooldown_Claim(t *testing.T) {
	c := NewCooldown(time.Minute)
	ctx := context.Background()

	tests := []struct {
		name     string
		key      string
		at       time.Duration
		expected bool
	}{
		{"first claim", "a", 0, true},
		{"inside window", "a", 30 * time.Second, false},
		{"other key", "b", 30 * time.Second, true},
		{"window elapsed", "a", time.Minute, true},
		{"new window started", "a", 90 * time.Second, false},
	}

	for _, tt := range tests {
		got, err := c.Claim(ctx, tt.key, fixedTime.Add(tt.at))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, got)
		}
	}
}

func TestCooldown_ZeroPeriodAlwaysReady(t *testing.T) {
	c := NewCooldown(0)
	for i := 0; i < 3; i++ {
		ok, _ := c.Claim(context.Background(), marketsCooldownKey, fixedTime)
		if !ok {
			t.Fatalf("claim %d: expected ready", i)
		}
	}
}
