package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
)

type ClientConfig struct {
	Name    string
	BaseURL string
	Timeout time.Duration

	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// Client performs GET requests against one provider behind a circuit breaker.
type Client struct {
	name    string
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
	metrics *metrics.Collector
}

func NewClient(cfg ClientConfig, log *zap.Logger, m *metrics.Collector) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	fails := uint32(cfg.BreakerFailures)
	c := &Client{
		name:    cfg.Name,
		base:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
		metrics: m,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= fails
		},
		// i 4xx sono errori del chiamante, non dell'upstream
		IsSuccessful: func(err error) bool {
			var ue *apperr.UpstreamError
			if errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500 && ue.StatusCode != http.StatusTooManyRequests {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

func (c *Client) Name() string { return c.name }

func (c *Client) BreakerState() gobreaker.State { return c.breaker.State() }

// GetJSON issues GET base+path?query and decodes the JSON body into out.
// bearer is optional. Non-2xx answers become *apperr.UpstreamError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, bearer string, out any) error {
	endpoint := "/" + strings.TrimLeft(path, "/")
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, endpoint, query, bearer, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.ObserveUpstream(c.name, endpoint, "breaker_open", 0)
		return &apperr.UpstreamError{Provider: c.name, Endpoint: endpoint, Err: err}
	}
	return err
}

func (c *Client) do(ctx context.Context, endpoint string, query url.Values, bearer string, out any) error {
	u := c.base + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.metrics.ObserveUpstream(c.name, endpoint, "network_error", latency)
		c.log.Warn("upstream call failed",
			zap.String("provider", c.name),
			zap.String("endpoint", endpoint),
			zap.Duration("latency", latency),
			zap.Error(err))
		return &apperr.UpstreamError{Provider: c.name, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.log.Info("upstream call",
		zap.String("provider", c.name),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.ObserveUpstream(c.name, endpoint, fmt.Sprintf("%dxx", resp.StatusCode/100), latency)
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &apperr.UpstreamError{
			Provider:   c.name,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	c.metrics.ObserveUpstream(c.name, endpoint, "ok", latency)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s decode error: %w", c.name, endpoint, err)
	}
	return nil
}
