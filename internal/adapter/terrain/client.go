package terrain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/atei-etl/internal/domain"
	"github.com/couchcryptid/atei-etl/internal/observability"
)

const defaultMaxRetries = 3

// Client implements pipeline.TerrainProvider against an HTTP terrain service.
// Each derivative is a POST of the DEM window to /v1/derivatives/{kind}; the
// response is the derived grid in the same JSON layout. Slope and aspect are
// in degrees, aspect is -1 on flat cells.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a terrain service client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: defaultMaxRetries,
		metrics:    metrics,
		logger:     logger,
	}
}

// Derive requests one derivative of dem. Transport errors and 5xx responses
// are retried with exponential backoff; 4xx responses are not.
func (c *Client) Derive(ctx context.Context, kind domain.Derivative, dem *domain.Grid) (*domain.Grid, error) {
	body, err := json.Marshal(dem)
	if err != nil {
		return nil, fmt.Errorf("encode dem: %w", err)
	}

	start := time.Now()
	var out *domain.Grid
	op := func() error {
		g, err := c.doRequest(ctx, kind, body)
		if err != nil {
			return err
		}
		out = g
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("terrain request failed, retrying",
			"derivative", kind,
			"error", err,
			"backoff", wait,
		)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	err = backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx), notify)
	c.metrics.TerrainAPIDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.TerrainRequests.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}
	c.metrics.TerrainRequests.WithLabelValues(string(kind), "success").Inc()
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, kind domain.Derivative, body []byte) (*domain.Grid, error) {
	u := fmt.Sprintf("%s/v1/derivatives/%s", c.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("terrain API error: %s: status %d: %s", kind, resp.StatusCode, bytes.TrimSpace(msg))
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var g domain.Grid
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode %s response: %w", kind, err))
	}
	if err := g.Validate(); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%s response: %w", kind, err))
	}
	return &g, nil
}
