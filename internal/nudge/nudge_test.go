package nudge

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatcher_DeliversNudges(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)

	d := NewDispatcher(func(ctx context.Context, payeeID string) error {
		mu.Lock()
		seen = append(seen, payeeID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, 8, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	if !d.Enqueue("tutor-1") || !d.Enqueue("tutor-2") {
		t.Fatal("expected enqueues to succeed")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for nudge delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "tutor-1" || seen[1] != "tutor-2" {
		t.Errorf("delivered = %v, want [tutor-1 tutor-2]", seen)
	}
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	// No worker running: the buffer fills and the next enqueue drops.
	d := NewDispatcher(func(ctx context.Context, payeeID string) error {
		return nil
	}, 1, testLogger())

	if !d.Enqueue("tutor-1") {
		t.Fatal("expected first enqueue to succeed")
	}
	if d.Enqueue("tutor-2") {
		t.Error("expected enqueue into full queue to report a drop")
	}
}

func TestDispatcher_RetryFailureIsSwallowed(t *testing.T) {
	done := make(chan struct{}, 2)
	d := NewDispatcher(func(ctx context.Context, payeeID string) error {
		done <- struct{}{}
		return errors.New("retry failed")
	}, 8, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	d.Enqueue("tutor-1")
	d.Enqueue("tutor-2")

	// Both nudges run despite the first failing.
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for nudge delivery")
		}
	}
}
