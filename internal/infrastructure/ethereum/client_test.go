package ethereum

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func fixedPending(n uint64) func(ctx context.Context) (uint64, error) {
	return func(ctx context.Context) (uint64, error) { return n, nil }
}

func TestNonceTracker_ConcurrentReservationsAreDistinct(t *testing.T) {
	var tracker nonceTracker

	const senders = 20
	nonces := make(chan uint64, senders)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := tracker.reserve(context.Background(), fixedPending(7))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			nonces <- n
		}()
	}
	wg.Wait()
	close(nonces)

	seen := make(map[uint64]bool)
	for n := range nonces {
		if seen[n] {
			t.Errorf("nonce %d handed out twice", n)
		}
		if n < 7 || n >= 7+senders {
			t.Errorf("expected nonce in [7, %d), got %d", 7+senders, n)
		}
		seen[n] = true
	}
	if len(seen) != senders {
		t.Errorf("expected %d nonces, got %d", senders, len(seen))
	}
}

func TestNonceTracker_FollowsNode(t *testing.T) {
	tests := []struct {
		name    string
		pending []uint64
		resetAt int
		want    []uint64
	}{
		{
			name:    "local counter ahead of node",
			pending: []uint64{3, 3, 3},
			resetAt: -1,
			want:    []uint64{3, 4, 5},
		},
		{
			name:    "node ahead of local counter",
			pending: []uint64{3, 10},
			resetAt: -1,
			want:    []uint64{3, 10},
		},
		{
			name:    "reset falls back to node",
			pending: []uint64{3, 3, 3},
			resetAt: 1,
			want:    []uint64{3, 4, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tracker nonceTracker
			for i, p := range tt.pending {
				got, err := tracker.reserve(context.Background(), fixedPending(p))
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want[i] {
					t.Errorf("reservation %d: expected %d, got %d", i, tt.want[i], got)
				}
				if i == tt.resetAt {
					tracker.reset()
				}
			}
		})
	}
}

func TestNonceTracker_PendingError(t *testing.T) {
	var tracker nonceTracker
	rpcErr := errors.New("rpc down")

	_, err := tracker.reserve(context.Background(), func(ctx context.Context) (uint64, error) {
		return 0, rpcErr
	})
	if !errors.Is(err, rpcErr) {
		t.Errorf("expected %v, got %v", rpcErr, err)
	}

	got, err := tracker.reserve(context.Background(), fixedPending(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
}
