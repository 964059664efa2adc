package providers

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"
)

// RetryConfig bounds the exponential backoff applied to retriable provider
// errors (429, 5xx, transient network failures).
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the teacher's defaults: three attempts,
// 500ms-8s exponential backoff with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// HTTPError wraps a non-2xx provider HTTP response.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string { return e.Body }

// Retriable reports whether the error is worth retrying: 429, 5xx, or a
// bare network-level failure with no HTTPError at all. 4xx other than 429
// is terminal — retrying a bad request or an auth failure just wastes the
// attempt budget.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 429 || httpErr.Status >= 500
	}
	return true
}

// ParseRetryAfter parses a Retry-After header value, which may be either an
// integer seconds count or an HTTP-date. Unparseable or empty values return 0.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
	}
	return 0
}

// RetryDo runs fn up to cfg.MaxAttempts times, backing off exponentially
// with jitter between attempts, honoring a RetryAfter hint from an
// HTTPError and the context's cancellation. The last error is returned
// unwrapped so callers can type-assert *HTTPError out of it.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := delay
			var httpErr *HTTPError
			if errors.As(lastErr, &httpErr) && httpErr.RetryAfter > 0 {
				wait = httpErr.RetryAfter
			}
			wait += time.Duration(rand.Int63n(int64(wait/4 + 1)))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !Retriable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
