package api

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// ErrRetryable marks an attempt that may be repeated.
var ErrRetryable = &iotcerr.IotcError{
	Code:     "RETRYABLE_ERROR",
	Message:  "retryable error",
	ExitCode: iotcerr.ExitGeneral,
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
}

// DefaultRetryConfig returns the default retry configuration:
// 1 initial attempt + 3 retries with delays of roughly 100ms, 200ms, 400ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// retryStatuses are the gateway/server statuses that are worth repeating.
var retryStatuses = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// idempotent reports whether method may be repeated without side effects.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// RetryWithConfig executes the operation with the specified retry configuration.
// The result of the last attempt is returned along with the error.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}

		if !IsRetryable(err) {
			return result, err
		}

		// Don't delay after the last attempt
		if attempt < cfg.MaxAttempts-1 {
			delay := calculateDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, err)
}

// calculateDelay calculates the delay for the given attempt using exponential backoff with jitter.
func calculateDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	// Double until maxDelay so large attempt counts cannot overflow.
	delay := baseDelay
	for i := 0; i < attempt && delay > 0 && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	// Cryptographic randomness is not needed for retry jitter.
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}

// IsRetryable returns true if the error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable)
}

// WrapRetryable wraps an error to mark it as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

// ParseRetryAfter parses the Retry-After header value.
// Returns the duration to wait, or 0 if parsing fails.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
