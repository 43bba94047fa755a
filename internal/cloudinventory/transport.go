package cloudinventory

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// retryTransport wraps an http.RoundTripper with the provider's retry
// discipline: 429 responses sleep for Retry-After (or a default) without
// consuming the backoff counter; 5xx responses and transport errors sleep
// with exponential backoff plus jitter; everything else passes through
// after its own backoff-and-retry budget is exhausted. A token-bucket
// limiter caps the steady-state request rate independently of retries, so
// a burst of allocate calls cannot itself trigger the 429s this transport
// is built to absorb.
type retryTransport struct {
	next              http.RoundTripper
	maxAttempts       int
	baseDelay         time.Duration
	maxDelay          time.Duration
	defaultRetryAfter time.Duration
	sleep             func(time.Duration)
	limiter           *rate.Limiter
}

func newRetryTransport(next http.RoundTripper, maxAttempts int) *retryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &retryTransport{
		next:              next,
		maxAttempts:       maxAttempts,
		baseDelay:         1 * time.Second,
		maxDelay:          60 * time.Second,
		defaultRetryAfter: 5 * time.Second,
		sleep:             time.Sleep,
		limiter:           rate.NewLimiter(rate.Limit(5), 5),
	}
}

// RoundTrip implements http.RoundTripper. Request bodies are buffered so
// they can be replayed across retries.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, newTransientFailure(err)
		}
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	backoffAttempt := 0
	var lastErr error
	for attempt := 0; attempt < t.maxAttempts; {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := t.next.RoundTrip(req)
		if err != nil {
			lastErr = err
			attempt++
			backoffAttempt++
			t.sleep(t.backoffDelay(backoffAttempt))
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			// Does not consume the attempt budget: a sustained throttle
			// should keep honoring Retry-After rather than surface a
			// failure after maxAttempts, which would only add more load
			// right when the provider is asking for less.
			t.sleep(retryAfterDelay(resp.Header.Get("Retry-After"), t.defaultRetryAfter))
			resp.Body.Close()
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			attempt++
			backoffAttempt++
			t.sleep(t.backoffDelay(backoffAttempt))
			continue
		case resp.StatusCode >= 400:
			// Retried with backoff: some deployments front the API with a
			// gateway that returns 4xx transiently.
			if attempt == t.maxAttempts-1 {
				return resp, nil
			}
			resp.Body.Close()
			attempt++
			backoffAttempt++
			t.sleep(t.backoffDelay(backoffAttempt))
			continue
		default:
			return resp, nil
		}
	}
	if lastErr != nil {
		return nil, newTransientFailure(lastErr)
	}
	return nil, newTransientFailure(errRetryBudgetExhausted)
}

func (t *retryTransport) backoffDelay(attempt int) time.Duration {
	delay := t.baseDelay * time.Duration(1<<uint(attempt-1))
	if delay > t.maxDelay {
		delay = t.maxDelay
	}
	jitter := time.Duration((0.1 + rand.Float64()*0.4) * float64(time.Second))
	return delay + jitter
}

func retryAfterDelay(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

var errRetryBudgetExhausted = &retryBudgetExhaustedError{}

type retryBudgetExhaustedError struct{}

func (*retryBudgetExhaustedError) Error() string { return "retry budget exhausted" }
