package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestWithRetryTransientEventuallySucceeds(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := withRetry(context.Background(), noSleep, "op", func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("%w: flaky", contractx.ErrAdapterTransient)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryNonTransientReturnsImmediately(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := withRetry(context.Background(), noSleep, "op", func() error {
		attempts++
		return fmt.Errorf("%w: bad request", contractx.ErrAdapterNonTransient)
	})
	if !errors.Is(err, contractx.ErrAdapterNonTransient) {
		t.Fatalf("withRetry() error = %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	slept := []time.Duration{}
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	err := withRetry(context.Background(), sleep, "op", func() error {
		attempts++
		return fmt.Errorf("%w: down", contractx.ErrAdapterTransient)
	})
	if !errors.Is(err, contractx.ErrAdapterTransient) {
		t.Fatalf("withRetry() error = %v", err)
	}
	if attempts != maxRetryAttempts {
		t.Fatalf("attempts = %d, want %d", attempts, maxRetryAttempts)
	}
	want := []time.Duration{baseRetryDelay, 2 * baseRetryDelay}
	if len(slept) != len(want) || slept[0] != want[0] || slept[1] != want[1] {
		t.Fatalf("backoff = %v, want %v", slept, want)
	}
}

func TestWithRetryStopsWhenSleepCancelled(t *testing.T) {
	t.Parallel()

	attempts := 0
	sleep := func(context.Context, time.Duration) error { return context.Canceled }

	err := withRetry(context.Background(), sleep, "op", func() error {
		attempts++
		return fmt.Errorf("%w: down", contractx.ErrAdapterTransient)
	})
	if !errors.Is(err, contractx.ErrAdapterTransient) {
		t.Fatalf("withRetry() error = %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("withRetry() error = %v, want context.Canceled in chain", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusCreated, nil},
		{http.StatusConflict, contractx.ErrSlotConflict},
		{http.StatusNotFound, contractx.ErrBookingNotFound},
		{http.StatusTooManyRequests, contractx.ErrAdapterTransient},
		{http.StatusBadGateway, contractx.ErrAdapterTransient},
		{http.StatusBadRequest, contractx.ErrAdapterNonTransient},
		{http.StatusUnauthorized, contractx.ErrAdapterNonTransient},
	}

	for _, tc := range tests {
		err := classifyHTTPStatus(tc.status, "")
		if tc.want == nil {
			if err != nil {
				t.Fatalf("classifyHTTPStatus(%d) = %v, want nil", tc.status, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("classifyHTTPStatus(%d) = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()

	if err := classifyTransportError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context reclassified: %v", err)
	}
	if err := classifyTransportError(errors.New("connection reset")); !errors.Is(err, contractx.ErrAdapterTransient) {
		t.Fatalf("transport error not transient: %v", err)
	}
}
