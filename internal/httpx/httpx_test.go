package httpx

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestResultIsSuccess(t *testing.T) {
	cases := []struct {
		state State
		want  bool
	}{
		{StateFresh, true},
		{StateCached, true},
		{StateRecovered, true},
		{StateStale, false},
		{StateError, false},
	}
	for _, c := range cases {
		r := Result[string]{State: c.state}
		if got := r.IsSuccess(); got != c.want {
			t.Errorf("State=%v IsSuccess()=%v, want %v", c.state, got, c.want)
		}
	}
}

func TestResultMustBeHandled(t *testing.T) {
	if !(Result[int]{State: StateError}).MustBeHandled() {
		t.Error("ERROR must be handled")
	}
	if !(Result[int]{State: StateStale}).MustBeHandled() {
		t.Error("STALE must be handled")
	}
	if (Result[int]{State: StateFresh}).MustBeHandled() {
		t.Error("FRESH need not be handled")
	}
}

func TestErrorCategoryIsRetryable(t *testing.T) {
	retryable := map[ErrorCategory]bool{
		ErrorCategoryNone:           false,
		ErrorCategoryNetwork:        true,
		ErrorCategoryServer:         true,
		ErrorCategoryClient:         false,
		ErrorCategoryInvalidContent: false,
		ErrorCategoryConfiguration:  false,
	}
	for cat, want := range retryable {
		if got := cat.IsRetryable(); got != want {
			t.Errorf("%v.IsRetryable()=%v, want %v", cat, got, want)
		}
	}
}

func TestRetryStrategyBaseDelayGrowsExponentiallyAndCaps(t *testing.T) {
	s := DefaultRetryStrategy()
	if got := s.BaseDelay(0); got != time.Second {
		t.Errorf("BaseDelay(0)=%v, want 1s", got)
	}
	if got := s.BaseDelay(1); got != 2*time.Second {
		t.Errorf("BaseDelay(1)=%v, want 2s", got)
	}
	if got := s.BaseDelay(2); got != 4*time.Second {
		t.Errorf("BaseDelay(2)=%v, want 4s", got)
	}
	// 1s * 2^10 = 1024s, well past the 60s ceiling.
	if got := s.BaseDelay(10); got != s.MaxDelay {
		t.Errorf("BaseDelay(10)=%v, want capped at %v", got, s.MaxDelay)
	}
}

func TestRetryStrategyJitteredDelayStaysWithinBounds(t *testing.T) {
	s := DefaultRetryStrategy()
	rng := rand.New(rand.NewSource(1))
	base := s.BaseDelay(3)
	lower := time.Duration(float64(base) * (1 - s.Jitter))
	upper := time.Duration(float64(base) * (1 + s.Jitter))
	for i := 0; i < 50; i++ {
		d := s.JitteredDelay(3, rng)
		if d < lower || d > upper {
			t.Fatalf("JitteredDelay=%v outside [%v, %v]", d, lower, upper)
		}
	}
}

func TestRunStopsOnFirstSuccess(t *testing.T) {
	strategy := RetryStrategy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond, Jitter: 0}
	calls := 0
	result := Run(context.Background(), strategy, func(ctx context.Context, attempt int) Result[string] {
		calls++
		return Result[string]{State: StateFresh, Payload: "ok"}
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if !result.IsSuccess() || result.Payload != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunStopsOnNonRetryableError(t *testing.T) {
	strategy := RetryStrategy{MaxAttempts: 5, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond, Jitter: 0}
	calls := 0
	result := Run(context.Background(), strategy, func(ctx context.Context, attempt int) Result[string] {
		calls++
		return Result[string]{State: StateError, Category: ErrorCategoryClient}
	})
	if calls != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got %d", calls)
	}
	if result.IsSuccess() {
		t.Fatal("expected failure result")
	}
}

func TestRunExhaustsMaxAttemptsOnPersistentRetryableError(t *testing.T) {
	strategy := RetryStrategy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond, Jitter: 0}
	calls := 0
	result := Run(context.Background(), strategy, func(ctx context.Context, attempt int) Result[string] {
		calls++
		return Result[string]{State: StateError, Category: ErrorCategoryNetwork}
	})
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if result.Category != ErrorCategoryNetwork {
		t.Fatalf("unexpected final category: %v", result.Category)
	}
}

func TestRunHonoursContextCancellationDuringBackoff(t *testing.T) {
	strategy := RetryStrategy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second, Jitter: 0}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	result := Run(ctx, strategy, func(ctx context.Context, attempt int) Result[string] {
		calls++
		return Result[string]{State: StateError, Category: ErrorCategoryNetwork}
	})
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt before cancellation, got %d", calls)
	}
	if result.State != StateError || result.Category != ErrorCategoryNetwork {
		t.Fatalf("unexpected result on cancellation: %+v", result)
	}
}

func TestRetryMonotonicityProperty(t *testing.T) {
	s := DefaultRetryStrategy()
	rng := rand.New(rand.NewSource(42))
	for attempt := 0; attempt < 5; attempt++ {
		base := s.BaseDelay(attempt)
		lowerBound := time.Duration(float64(base) * (1 - s.Jitter))
		for i := 0; i < 20; i++ {
			d := s.JitteredDelay(attempt, rng)
			if d < lowerBound {
				t.Fatalf("attempt %d: delay %v below monotonicity bound %v", attempt, d, lowerBound)
			}
		}
	}
}
