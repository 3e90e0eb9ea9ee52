package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutZeroRunsDirect(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), 0, "op", func(ctx context.Context) error {
		called = true
		if _, hasDeadline := ctx.Deadline(); hasDeadline {
			t.Error("context gained a deadline despite zero timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !called {
		t.Fatal("fn not invoked")
	}
}

func TestWithTimeoutDeadlineExceeded(t *testing.T) {
	err := WithTimeout(context.Background(), 5*time.Millisecond, "slow-op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestWithTimeoutParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTimeout(ctx, time.Second, "op", func(ctx context.Context) error {
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
}

func TestWithTimeoutWrapsFailureWithName(t *testing.T) {
	boom := errors.New("boom")
	err := WithTimeout(context.Background(), time.Second, "flaky-op", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if got := err.Error(); got != "flaky-op: boom" {
		t.Errorf("err text = %q", got)
	}
}
