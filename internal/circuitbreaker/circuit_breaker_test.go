package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var errUpstream = errors.New("upstream boom")

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	cb := New("test", Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Second,
	}, zap.NewNop())
	clock := time.Unix(1700000000, 0)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return errUpstream })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return nil })
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		if err := fail(cb); !errors.Is(err, errUpstream) {
			t.Fatalf("attempt %d: expected upstream error, got %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if err := fail(cb); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t)

	_ = fail(cb)
	_ = fail(cb)
	_ = succeed(cb)
	_ = fail(cb)
	_ = fail(cb)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after interleaved success, got %s", cb.State())
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		_ = fail(cb)
	}
	*clock = clock.Add(2 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}

	_ = succeed(cb)
	_ = succeed(cb)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after success threshold, got %s", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		_ = fail(cb)
	}
	*clock = clock.Add(2 * time.Second)
	_ = fail(cb)
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened, got %s", cb.State())
	}
}

func TestContextCancelledBeforeCall(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if err == nil {
		t.Fatal("expected context error")
	}
	if called {
		t.Fatal("fn must not run after cancellation")
	}
}
