package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 2 * time.Second
	defaultRateLimit   = 2 // requests per second toward the provider
	defaultBurst       = 4
)

// Config holds configuration for the HTTP extraction client.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
}

// Client is an HTTP implementation of Provider. Transient failures (network
// errors, 5xx) are retried with exponential backoff; 4xx responses are
// permanent and returned immediately.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewClient creates an extraction client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("extraction base URL required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	limit := config.RateLimit
	if limit == 0 {
		limit = defaultRateLimit
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

// extractRequest is the request body for the collaborator's extract endpoint.
type extractRequest struct {
	DocumentURL      string         `json:"document_url"`
	Metadata         Metadata       `json:"metadata"`
	CompanyInfo      map[string]any `json:"company_info,omitempty"`
	TargetCategories []string       `json:"target_categories"`
}

// Extract sends the document reference to the collaborator and returns its
// raw structured result.
func (c *Client) Extract(ctx context.Context, documentURL string, meta Metadata, companyInfo map[string]any, categories []string) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(extractRequest{
		DocumentURL:      documentURL,
		Metadata:         meta,
		CompanyInfo:      companyInfo,
		TargetCategories: categories,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling extract request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, ctx.Err())
			}
		}

		result, retryable, err := c.doExtract(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, lastErr)
}

func (c *Client) doExtract(ctx context.Context, body []byte) (map[string]any, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("decoding response: %w", err)
	}

	return result, false, nil
}

var _ Provider = (*Client)(nil)
