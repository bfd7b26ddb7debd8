// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the source adapters.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNetwork reports a transient network failure that survived the
// retry budget.
var ErrNetwork = errors.New("network failure")

// BackoffCap bounds a single backoff wait.
const BackoffCap = 30 * time.Second

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
)

// DoWithRetry executes an HTTP request, retrying transient failures:
// network errors, HTTP 429, and HTTP 5xx. The delay starts at baseDelay
// and doubles each attempt, capped at BackoffCap.
//
// Zero maxRetries or baseDelay select the defaults (3 retries, 2 s). On
// each retried response the body is drained and closed before sleeping.
// If the context is cancelled during a wait, ctx.Err() is returned.
// After exhausting retries the last response (or a wrapped ErrNetwork)
// is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int, baseDelay time.Duration) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else if !retryable(resp.StatusCode) {
			return resp, nil
		} else {
			lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
		}

		if attempt >= maxRetries {
			if resp != nil {
				// Exhausted retries on a retryable status; hand the
				// response back as-is.
				return resp, nil
			}
			return nil, fmt.Errorf("%w: %v (after %d retries)", ErrNetwork, lastErr, maxRetries)
		}

		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		backoff := baseDelay << attempt
		if backoff > BackoffCap {
			backoff = BackoffCap
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
