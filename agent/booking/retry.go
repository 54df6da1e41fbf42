package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/frontdesk-ai/frontdesk/agent/contract"
)

const (
	maxRetryAttempts = 3
	baseRetryDelay   = 250 * time.Millisecond
)

// sleepFunc is swapped out in tests to avoid real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry runs fn up to maxRetryAttempts times, backing off exponentially
// between attempts. Only errors classified transient are retried;
// non-transient errors return immediately so the model can self-correct.
func withRetry(ctx context.Context, sleep sleepFunc, op string, fn func() error) error {
	if sleep == nil {
		sleep = sleepWithContext
	}

	var err error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, contractx.ErrAdapterTransient) {
			return err
		}
		if attempt == maxRetryAttempts {
			break
		}

		delay := baseRetryDelay << (attempt - 1)
		log.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("adapter_retry")
		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%w: %w", contractx.ErrAdapterTransient, serr)
		}
	}
	return err
}

// classifyHTTPStatus maps an HTTP response code onto the adapter error
// taxonomy. 409 means the slot was taken, 404 means the record does not
// exist, other 4xx are caller mistakes, everything 5xx (and 429) is worth
// retrying.
func classifyHTTPStatus(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict:
		return fmt.Errorf("%w: status=%d body=%s", contractx.ErrSlotConflict, status, body)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status=%d body=%s", contractx.ErrBookingNotFound, status, body)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status=%d body=%s", contractx.ErrAdapterTransient, status, body)
	default:
		return fmt.Errorf("%w: status=%d body=%s", contractx.ErrAdapterNonTransient, status, body)
	}
}

// classifyTransportError wraps network-level failures as transient unless the
// context itself is done.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Everything else at the transport layer (DNS, reset, timeout) is
	// worth retrying.
	return fmt.Errorf("%w: %v", contractx.ErrAdapterTransient, err)
}
