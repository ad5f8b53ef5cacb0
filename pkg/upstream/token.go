package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
)

const (
	DefaultTokenMargin = 10 * time.Minute
	defaultTokenTTL    = time.Hour
)

type TokenConfig struct {
	Provider     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Margin is subtracted from the provider TTL: the token is refreshed this
	// long before it actually expires.
	Margin  time.Duration
	Timeout time.Duration
}

// authToken never leaves the manager except as the bare bearer value.
type authToken struct {
	value     string
	expiresAt time.Time
}

// TokenManager obtains and caches a client-credentials bearer token.
// Concurrent callers with no valid token share a single exchange.
type TokenManager struct {
	cfg     TokenConfig
	client  *http.Client
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	token authToken
	group singleflight.Group
}

func NewTokenManager(cfg TokenConfig, log *zap.Logger, m *metrics.Collector) *TokenManager {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultTokenMargin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenManager{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		now:     time.Now,
		log:     log,
		metrics: m,
	}
}

func (t *TokenManager) WithClock(now func() time.Time) *TokenManager {
	t.now = now
	return t
}

func (t *TokenManager) cached() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token.value != "" && t.now().Before(t.token.expiresAt) {
		return t.token.value, true
	}
	return "", false
}

// Token returns a bearer token valid for at least the configured margin.
func (t *TokenManager) Token(ctx context.Context) (string, error) {
	if v, ok := t.cached(); ok {
		return v, nil
	}
	ch := t.group.DoChan("token", func() (any, error) {
		// un altro flight può aver appena aggiornato il token
		if v, ok := t.cached(); ok {
			return v, nil
		}
		// lo scambio non deve morire con il primo chiamante: gli altri lo attendono
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.Timeout)
		defer cancel()
		tok, err := t.exchange(fctx)
		if err != nil {
			t.metrics.RecordTokenRefresh(t.cfg.Provider, "error")
			return "", err
		}
		t.mu.Lock()
		t.token = tok
		t.mu.Unlock()
		t.metrics.RecordTokenRefresh(t.cfg.Provider, "ok")
		t.log.Info("token refreshed",
			zap.String("provider", t.cfg.Provider),
			zap.Time("expires_at", tok.expiresAt))
		return tok.value, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token, e.g. after the provider answered 401.
func (t *TokenManager) Invalidate() {
	t.mu.Lock()
	t.token = authToken{}
	t.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   json.Number `json:"expires_in"`
}

func (t *TokenManager) exchange(ctx context.Context) (authToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.cfg.ClientID)
	form.Set("client_secret", t.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return authToken{}, &apperr.AuthError{Provider: t.cfg.Provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := t.now()
	resp, err := t.client.Do(req)
	if err != nil {
		return authToken{}, &apperr.AuthError{Provider: t.cfg.Provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		t.log.Warn("token exchange rejected",
			zap.String("provider", t.cfg.Provider),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(b)))
		return authToken{}, &apperr.AuthError{Provider: t.cfg.Provider, StatusCode: resp.StatusCode}
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return authToken{}, &apperr.AuthError{Provider: t.cfg.Provider, Err: fmt.Errorf("decode token: %w", err)}
	}
	if out.AccessToken == "" {
		return authToken{}, &apperr.AuthError{Provider: t.cfg.Provider, Err: fmt.Errorf("empty access_token")}
	}

	ttl := defaultTokenTTL
	if out.ExpiresIn != "" {
		if secs, err := out.ExpiresIn.Float64(); err == nil && secs > 0 {
			ttl = time.Duration(secs * float64(time.Second))
		}
	}
	life := ttl - t.cfg.Margin
	if life <= 0 {
		// TTL più corto del margine: rinnova a metà vita
		life = ttl / 2
	}
	return authToken{value: out.AccessToken, expiresAt: start.Add(life)}, nil
}
