package poller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestRun_StopsOnTerminalStatus(t *testing.T) {
	p := New(time.Millisecond, 10, zaptest.NewLogger(t))

	calls := 0
	var final string
	err := p.Run(context.Background(), func(ctx context.Context) (string, bool, error) {
		calls++
		if calls == 3 {
			return "confirmed", true, nil
		}
		return "payment_pending", false, nil
	}, func(status string) {
		final = status
	})

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 checks, got %d", calls)
	}
	if final != "confirmed" {
		t.Errorf("Expected terminal callback with confirmed, got %q", final)
	}
}

func TestRun_TimesOutAfterMaxAttempts(t *testing.T) {
	p := New(time.Millisecond, 5, zaptest.NewLogger(t))

	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) (string, bool, error) {
		calls++
		return "payment_pending", false, nil
	}, func(string) {
		t.Error("Terminal callback must not fire on timeout")
	})

	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("Expected ErrPollTimeout, got %v", err)
	}
	if calls != 5 {
		t.Errorf("Expected exactly 5 checks, got %d", calls)
	}
}

func TestRun_CheckErrorsCountAsAttempts(t *testing.T) {
	p := New(time.Millisecond, 3, zaptest.NewLogger(t))

	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) (string, bool, error) {
		calls++
		return "", false, fmt.Errorf("transient network error")
	}, nil)

	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("Expected ErrPollTimeout, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	p := New(50*time.Millisecond, 100, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Run(ctx, func(ctx context.Context) (string, bool, error) {
		return "payment_pending", false, nil
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
