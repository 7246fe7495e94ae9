package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the external scoring provider settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultTimeout bounds the external call when no timeout is configured.
const DefaultTimeout = 8 * time.Second

// Client queries the external scoring provider over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient constructs a provider client. The HTTP client carries no
// timeout of its own; every request deadline comes from the context so
// expiry is classified explicitly.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		logger:     logger,
	}
}

// FetchFromProvider calls GET <base>/<apiKey>/<address> and decodes the
// report. Deadline expiry surfaces as ErrorTimeout; a success=false body is
// ErrorRejected carrying the provider's message verbatim.
func (c *Client) FetchFromProvider(ctx context.Context, address string) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/" + url.PathEscape(c.apiKey) + "/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(ErrorBadData, "build request", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewError(ErrorTimeout, fmt.Sprintf("provider call exceeded %s", c.timeout), err)
		}
		return nil, NewError(ErrorOutage, "provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrorBadData, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, NewError(ErrorBadData, "decode response", err)
	}

	if !report.Success {
		msg := report.Message
		if msg == "" {
			msg = "provider reported failure"
		}
		return nil, NewError(ErrorRejected, msg, nil)
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "provider report fetched",
			"address", address,
			"fraud_score", report.FraudScore,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return &report, nil
}
