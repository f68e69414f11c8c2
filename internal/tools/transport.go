// Package tools holds the external gathering clients: the book catalog, the
// web search API and the geocoder. Every client runs its calls through a
// rate limiter, a circuit breaker and the classified retry policy; an
// explicit empty result set is a success, not an error.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/storyland-ai/storyland/internal/circuitbreaker"
	"github.com/storyland-ai/storyland/internal/interceptors"
	"github.com/storyland-ai/storyland/internal/metrics"
	"github.com/storyland-ai/storyland/internal/retry"
	"github.com/storyland-ai/storyland/internal/tracing"
)

// StatusError is a non-2xx response from a tool API.
type StatusError struct {
	Tool string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.Tool, e.Code)
}

// DecodeError marks an unparseable tool response. Never retried: the same
// request will produce the same garbage.
type DecodeError struct {
	Tool string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Tool, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Classify maps tool errors to retry classes: rate limits, 5xx and transport
// timeouts are retryable; auth failures, bad requests and malformed responses
// are fatal.
func Classify(err error) retry.Class {
	var status *StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return retry.ClassRetryable
		default:
			return retry.ClassFatal
		}
	}

	var decode *DecodeError
	if errors.As(err, &decode) {
		return retry.ClassFatal
	}

	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return retry.ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.ClassRetryable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return retry.ClassRetryable
	}
	return retry.ClassFatal
}

// transport is the shared call plumbing for all tool clients.
type transport struct {
	name    string
	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	policy  retry.Policy
	logger  *zap.Logger
}

func newTransport(name string, client *http.Client, rps float64, policy retry.Policy, logger *zap.Logger) transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts == 0 {
		policy = retry.Default()
	}
	client.Transport = interceptors.NewWorkflowRoundTripper(client.Transport)
	return transport{
		name:    name,
		http:    circuitbreaker.NewHTTPWrapper(client, name, logger),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		policy:  policy,
		logger:  logger,
	}
}

// getJSON performs a rate-limited, retried GET and decodes the body into out.
func (t *transport) getJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	return t.roundTrip(ctx, http.MethodGet, rawURL, headers, nil, out)
}

// postJSON performs a rate-limited, retried POST with a JSON body.
func (t *transport) postJSON(ctx context.Context, rawURL string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", t.name, err)
	}
	return t.roundTrip(ctx, http.MethodPost, rawURL, headers, payload, out)
}

func (t *transport) roundTrip(ctx context.Context, method, rawURL string, headers map[string]string, body []byte, out any) error {
	ctx, span := tracing.StartHTTPSpan(ctx, method, rawURL)
	defer span.End()

	start := time.Now()
	attempt := 0

	err := t.policy.Do(ctx, func(ctx context.Context) error {
		if attempt > 0 {
			metrics.ToolRetries.WithLabelValues(t.name).Inc()
			t.logger.Debug("Retrying tool call",
				zap.String("tool", t.name),
				zap.Int("attempt", attempt),
			)
		}
		attempt++

		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", t.name, err)
		}
		tracing.InjectTraceparent(ctx, req)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{Tool: t.name, Code: resp.StatusCode}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &DecodeError{Tool: t.name, Err: err}
		}
		return nil
	}, Classify)

	metrics.ToolCallDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.ToolCalls.WithLabelValues(t.name, outcome).Inc()
	return err
}
