// Package webhook delivers task outcome events to the external backend.
//
// Delivery is at-least-once with bounded retries. A failed callback never
// rolls back vector-store writes already committed; the caller logs the
// failure and moves on.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	headerSecret = "X-Webhook-Secret"
	headerSource = "X-Webhook-Source"
	sourceName   = "ai-service"
)

// Config holds notifier configuration. The zero values of the tuning fields
// give the production schedule: 3 attempts, 15s/25s/35s timeouts, 2^attempt
// seconds of backoff between retryable failures.
type Config struct {
	// Secret is sent verbatim in the X-Webhook-Secret header. The receiver
	// compares it exactly; there is no HMAC signing.
	Secret string

	MaxAttempts int
	BaseTimeout time.Duration
	TimeoutStep time.Duration
	BackoffUnit time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseTimeout == 0 {
		c.BaseTimeout = 15 * time.Second
	}
	if c.TimeoutStep == 0 {
		c.TimeoutStep = 10 * time.Second
	}
	if c.BackoffUnit == 0 {
		c.BackoffUnit = time.Second
	}
}

// Notifier posts JSON events to callback URLs.
type Notifier struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewNotifier creates a notifier. Per-attempt timeouts are applied via
// request contexts, so the underlying client carries no timeout itself.
func NewNotifier(config Config, logger *zap.Logger) *Notifier {
	config.ApplyDefaults()
	return &Notifier{
		config: config,
		client: &http.Client{},
		logger: logger,
	}
}

// Deliver posts the payload to url, retrying per the configured schedule.
//
// Outcome handling per attempt:
//   - 2xx: success, stop.
//   - 4xx: terminal; the receiver rejected the payload itself, retrying is
//     pointless. Stop without further attempts.
//   - anything else (timeout, connection error, 5xx): retryable; wait
//     2^attempt backoff units and try again.
//
// The per-attempt timeout grows with each attempt so a slow receiver gets
// more room before the notifier gives up.
//
// Returns false when all attempts are exhausted or a terminal response was
// received.
func (n *Notifier) Deliver(ctx context.Context, url string, payload any) bool {
	if url == "" {
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to marshal webhook payload", zap.String("url", url), zap.Error(err))
		return false
	}

	for attempt := 1; attempt <= n.config.MaxAttempts; attempt++ {
		timeout := n.config.BaseTimeout + time.Duration(attempt-1)*n.config.TimeoutStep
		code, err := n.post(ctx, url, body, timeout)

		switch {
		case err == nil && code >= 200 && code < 300:
			n.logger.Info("webhook delivered",
				zap.String("url", url),
				zap.Int("status", code),
				zap.Int("attempt", attempt))
			return true

		case err == nil && code >= 400 && code < 500:
			n.logger.Warn("webhook rejected, not retrying",
				zap.String("url", url),
				zap.Int("status", code),
				zap.Int("attempt", attempt))
			return false

		default:
			n.logger.Warn("webhook attempt failed",
				zap.String("url", url),
				zap.Int("status", code),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		if attempt == n.config.MaxAttempts {
			break
		}

		backoff := time.Duration(1<<attempt) * n.config.BackoffUnit
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
	}

	n.logger.Error("webhook delivery exhausted all attempts",
		zap.String("url", url),
		zap.Int("attempts", n.config.MaxAttempts))
	return false
}

// post performs one delivery attempt. Returns the HTTP status code when a
// response was received, or an error for transport failures.
func (n *Notifier) post(ctx context.Context, url string, body []byte, timeout time.Duration) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSecret, n.config.Secret)
	req.Header.Set(headerSource, sourceName)

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
