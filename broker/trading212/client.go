// Package trading212 is the brokerage REST client. Every call goes through
// a bounded retry loop: rate-limit and server-side unavailability responses
// are retried with backoff, anything else non-2xx is terminal immediately.
package trading212

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rustyeddy/gapfill/metrics"
	"github.com/rustyeddy/gapfill/session"
)

const (
	// maxAttempts bounds the retry loop for a single logical call.
	maxAttempts = 6

	requestTimeout = 15 * time.Second
)

// APIError is a terminal brokerage failure: either a non-retryable status,
// or a retryable one that survived the whole retry budget. The last response
// is attached.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
	Attempts   int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trading212: %s returned %d after %d attempt(s): %s",
		e.Path, e.StatusCode, e.Attempts, e.Body)
}

// Client talks to the brokerage REST API with Basic auth.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client

	// sleep is replaceable in tests so retry paths run instantly.
	sleep func(ctx context.Context, d time.Duration) error

	// jitter returns the random backoff fraction in [0, 0.5) seconds.
	jitter func() time.Duration
}

// NewClient builds a client from a base URL and credential pair. Missing
// credentials are a configuration error: the process must not start without
// them.
func NewClient(baseURL, apiKey, apiSecret string) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("trading212: missing API credentials")
	}

	token := base64.StdEncoding.EncodeToString([]byte(apiKey + ":" + apiSecret))
	return &Client{
		baseURL:    baseURL,
		authHeader: "Basic " + token,
		httpClient: &http.Client{Timeout: requestTimeout},
		sleep:      session.Sleep,
		jitter: func() time.Duration {
			return time.Duration(rand.Float64() * 0.5 * float64(time.Second))
		},
	}, nil
}

// retryable reports whether a status code is transient: rate-limited or
// server-side unavailable.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// execute issues one logical request, retrying transient responses up to
// maxAttempts times. A server-supplied Retry-After hint (integer seconds)
// overrides the exponential schedule exactly; otherwise the wait doubles
// each attempt with a little jitter to avoid thundering-herd retries.
func (c *Client) execute(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("trading212: marshal %s %s: %w", method, path, err)
		}
	}

	var lastStatus int
	var lastBody string

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("trading212: build %s %s: %w", method, path, err)
		}
		req.Header.Set("Authorization", c.authHeader)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("trading212: %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("trading212: read %s %s response: %w", method, path, readErr)
		}

		if !retryable(resp.StatusCode) {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return respBody, nil
			}
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Path:       path,
				Body:       string(respBody),
				Attempts:   attempt + 1,
			}
		}

		lastStatus = resp.StatusCode
		lastBody = string(respBody)

		if attempt == maxAttempts-1 {
			break
		}

		wait := c.backoff(attempt, resp.Header.Get("Retry-After"))
		log.Printf("[RATE-LIMIT] %d %s, retry %d/%d in %s", resp.StatusCode, path, attempt+1, maxAttempts, wait)
		metrics.IncRequestRetry()
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, &APIError{
		StatusCode: lastStatus,
		Path:       path,
		Body:       lastBody,
		Attempts:   maxAttempts,
	}
}

// backoff computes the wait before the next attempt. A valid non-negative
// integer Retry-After wins exactly; otherwise exponential base 2 plus jitter.
func (c *Client) backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<uint(attempt))*time.Second + c.jitter()
}
