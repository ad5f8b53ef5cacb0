package upstream

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = 30 * time.Second
)

type RetryConfig struct {
	Attempts  int           // total attempts, first call included
	BaseDelay time.Duration // delay before the 2nd attempt; doubles after each retry
	MaxDelay  time.Duration // cap on a single delay
}

// Retryer runs an operation with capped exponential backoff.
type Retryer struct {
	cfg     RetryConfig
	log     *zap.Logger
	metrics *metrics.Collector
}

func NewRetryer(cfg RetryConfig, log *zap.Logger, m *metrics.Collector) *Retryer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retryer{cfg: cfg, log: log, metrics: m}
}

func (r *Retryer) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0 // base × 2^(attempt−1), deterministico
	bo.MaxInterval = r.cfg.MaxDelay
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.Attempts-1)), ctx)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted; the last error is returned.
func (r *Retryer) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		r.metrics.RecordRetry(op)
		r.log.Warn("upstream call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.Attempts),
			zap.Duration("next_delay", next),
			zap.Error(err))
	}
	return backoff.RetryNotify(operation, r.newBackOff(ctx), notify)
}

// Retryable reports whether err is worth another attempt: network errors,
// timeouts, 5xx and 429. Auth, validation and rate-limit failures, other 4xx
// and an open breaker are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var (
		ae *apperr.AuthError
		ve *apperr.ValidationError
		re *apperr.RateLimitError
		ue *apperr.UpstreamError
		ne net.Error
	)
	switch {
	case errors.As(err, &ae), errors.As(err, &ve), errors.As(err, &re):
		return false
	case errors.As(err, &ue):
		return ue.Retryable()
	case errors.As(err, &ne), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
