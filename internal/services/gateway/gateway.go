// Package gateway is the External Data Gateway: typed weather and soil
// accessors in front of the upstream providers. Every accessor goes through
// the same pipeline: response cache, rate limiter, token, retry executor,
// canonical transform. When a provider stays down it answers with synthetic
// data tagged as such.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/cache"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/upstream"
)

// data classes: cache TTL, metric label
const (
	classCurrent  = "current"
	classForecast = "forecast"
	classHistory  = "history"
	classSoil     = "soil"
)

const (
	DefaultForecastDays = 7
	MaxForecastDays     = 16
	MaxHistoryDays      = 30
)

type Config struct {
	TTLCurrent  time.Duration
	TTLForecast time.Duration
	TTLHistory  time.Duration
	TTLSoil     time.Duration

	// SyntheticFallback masks provider outages with generated data. When
	// false the accessors fail with apperr.ErrUpstreamUnavailable.
	SyntheticFallback bool
}

func (c Config) withDefaults() Config {
	if c.TTLCurrent <= 0 {
		c.TTLCurrent = 30 * time.Minute
	}
	if c.TTLForecast <= 0 {
		c.TTLForecast = time.Hour
	}
	if c.TTLHistory <= 0 {
		c.TTLHistory = 24 * time.Hour
	}
	if c.TTLSoil <= 0 {
		c.TTLSoil = 24 * time.Hour
	}
	return c
}

func (c Config) ttl(class string) time.Duration {
	switch class {
	case classCurrent:
		return c.TTLCurrent
	case classForecast:
		return c.TTLForecast
	case classHistory:
		return c.TTLHistory
	default:
		return c.TTLSoil
	}
}

// Deps are the shared, process-wide collaborators. Limiter, Cache and
// Tokens hold mutable state and may be shared by several gateways.
type Deps struct {
	Weather       *upstream.Client
	WeatherAPIKey string
	Soil          *upstream.Client
	Tokens        *upstream.TokenManager
	Limiter       *upstream.RateLimiter
	Cache         cache.Store
	Retry         *upstream.Retryer
	Log           *zap.Logger
	Metrics       *metrics.Collector
}

type Gateway struct {
	cfg     Config
	owm     *owmProvider
	soil    *soilProvider
	limiter *upstream.RateLimiter
	cache   cache.Store
	retry   *upstream.Retryer
	synth   Synthetic
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Collector
}

func New(cfg Config, d Deps) *Gateway {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Cache == nil {
		d.Cache = cache.NewMemory(0)
	}
	if d.Limiter == nil {
		d.Limiter = upstream.NewRateLimiter(0, 0)
	}
	if d.Retry == nil {
		d.Retry = upstream.NewRetryer(upstream.RetryConfig{}, d.Log, d.Metrics)
	}
	return &Gateway{
		cfg:     cfg.withDefaults(),
		owm:     &owmProvider{client: d.Weather, apiKey: d.WeatherAPIKey},
		soil:    &soilProvider{client: d.Soil, tokens: d.Tokens, log: d.Log},
		limiter: d.Limiter,
		cache:   d.Cache,
		retry:   d.Retry,
		synth:   NewSyntheticGenerator(),
		now:     time.Now,
		log:     d.Log,
		metrics: d.Metrics,
	}
}

// WithSynthetic replaces the fallback data source (tests).
func (g *Gateway) WithSynthetic(s Synthetic) *Gateway {
	g.synth = s
	return g
}

func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// request describes one logical fetch through the pipeline.
type request[T any] struct {
	class     string
	op        string // operation name for logs and retry metrics
	key       string
	calls     int // upstream calls issued by one attempt, 1 when zero
	fetch     func(ctx context.Context) (T, error)
	synthetic func() T
}

// fetch runs the accessor pipeline. Cache hits return the stored value as is
// and consume no rate-limit slot; a miss reserves one slot per upstream call
// before the first one is issued. Synthetic results are never cached.
func fetch[T any](ctx context.Context, g *Gateway, r request[T]) (T, error) {
	var zero T

	if b, ok := g.cache.Get(ctx, r.key); ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			g.metrics.RecordCacheLookup(r.class, true)
			return v, nil
		}
		// voce corrotta: la trattiamo come miss e la sovrascriviamo
		g.log.Warn("cache entry undecodable", zap.String("key", r.key))
	}
	g.metrics.RecordCacheLookup(r.class, false)

	if err := g.limiter.AllowN(max(r.calls, 1)); err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			return zero, err
		}
		g.metrics.RecordRateLimited()
		g.log.Warn("upstream fetch rate limited", zap.String("operation", r.op), zap.Error(err))
		return zero, err
	}

	var out T
	err := g.retry.Do(ctx, r.op, func(ctx context.Context) error {
		v, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err == nil {
		if b, mErr := json.Marshal(out); mErr == nil {
			g.cache.Set(ctx, r.key, b, g.cfg.ttl(r.class))
		}
		return out, nil
	}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return zero, err
	}
	// richiesta annullata dal chiamante: nessuno aspetta la risposta.
	// La scadenza invece è un timeout come gli altri e si maschera.
	if errors.Is(ctx.Err(), context.Canceled) {
		return zero, ctx.Err()
	}
	if !g.cfg.SyntheticFallback {
		g.log.Error("upstream unavailable", zap.String("operation", r.op), zap.Error(err))
		return zero, fmt.Errorf("%w: %s: %v", apperr.ErrUpstreamUnavailable, r.op, err)
	}

	g.metrics.RecordSyntheticFallback(r.class)
	g.log.Warn("upstream failed, serving synthetic data",
		zap.String("operation", r.op),
		zap.String("kind", apperr.Kind(err)),
		zap.Error(err))
	return r.synthetic(), nil
}

func pointParams(p entities.GeoPoint) map[string]string {
	r := p.Rounded()
	return map[string]string{
		"lat": fmt.Sprintf("%.4f", r.Latitude),
		"lon": fmt.Sprintf("%.4f", r.Longitude),
	}
}

// CurrentWeather returns the weather observed now at p.
func (g *Gateway) CurrentWeather(ctx context.Context, p entities.GeoPoint) (entities.WeatherSnapshot, error) {
	if err := p.Validate(); err != nil {
		return entities.WeatherSnapshot{}, err
	}
	return fetch(ctx, g, request[entities.WeatherSnapshot]{
		class: classCurrent,
		op:    "weather.current",
		key:   cache.Key("owm/current", pointParams(p)),
		fetch: func(ctx context.Context) (entities.WeatherSnapshot, error) {
			return g.owm.current(ctx, p)
		},
		synthetic: func() entities.WeatherSnapshot {
			return g.synth.CurrentWeather(p, g.now())
		},
	})
}

// Forecast returns days daily entries, today first. days == 0 means
// DefaultForecastDays.
func (g *Gateway) Forecast(ctx context.Context, p entities.GeoPoint, days int) (entities.Forecast, error) {
	if err := p.Validate(); err != nil {
		return entities.Forecast{}, err
	}
	if days == 0 {
		days = DefaultForecastDays
	}
	if days < 1 || days > MaxForecastDays {
		return entities.Forecast{}, apperr.NewValidation("days", fmt.Sprintf("must be between 1 and %d", MaxForecastDays))
	}
	params := pointParams(p)
	params["days"] = fmt.Sprint(days)
	return fetch(ctx, g, request[entities.Forecast]{
		class: classForecast,
		op:    "weather.forecast",
		key:   cache.Key("owm/forecast", params),
		fetch: func(ctx context.Context) (entities.Forecast, error) {
			return g.owm.forecast(ctx, p, days)
		},
		synthetic: func() entities.Forecast {
			return g.synth.Forecast(p, days, g.now())
		},
	})
}

// History returns one entry per calendar day (UTC) in [from, to].
func (g *Gateway) History(ctx context.Context, p entities.GeoPoint, from, to time.Time) (entities.History, error) {
	if err := p.Validate(); err != nil {
		return entities.History{}, err
	}
	from, to = truncateDay(from), truncateDay(to)
	switch {
	case from.IsZero() || to.IsZero():
		return entities.History{}, apperr.NewValidation("range", "from and to are required")
	case to.Before(from):
		return entities.History{}, apperr.NewValidation("range", "to precedes from")
	case to.After(truncateDay(g.now())):
		return entities.History{}, apperr.NewValidation("to", "must not be in the future")
	case historyDays(from, to) > MaxHistoryDays:
		return entities.History{}, apperr.NewValidation("range", fmt.Sprintf("at most %d days", MaxHistoryDays))
	}
	params := pointParams(p)
	params["from"] = from.Format(time.DateOnly)
	params["to"] = to.Format(time.DateOnly)
	return fetch(ctx, g, request[entities.History]{
		class: classHistory,
		op:    "weather.history",
		key:   cache.Key("owm/history", params),
		calls: historyDays(from, to),
		fetch: func(ctx context.Context) (entities.History, error) {
			return g.owm.history(ctx, p, from, to)
		},
		synthetic: func() entities.History {
			return g.synth.History(p, from, to)
		},
	})
}

func (g *Gateway) SoilProfile(ctx context.Context, p entities.GeoPoint) (entities.SoilProfile, error) {
	if err := p.Validate(); err != nil {
		return entities.SoilProfile{}, err
	}
	return fetch(ctx, g, request[entities.SoilProfile]{
		class: classSoil,
		op:    "soil.profile",
		key:   cache.Key("soil/properties", pointParams(p)),
		fetch: func(ctx context.Context) (entities.SoilProfile, error) {
			return g.soil.profile(ctx, p)
		},
		synthetic: func() entities.SoilProfile { return g.synth.SoilProfile(p) },
	})
}

func (g *Gateway) SoilComposition(ctx context.Context, p entities.GeoPoint) (entities.SoilComposition, error) {
	if err := p.Validate(); err != nil {
		return entities.SoilComposition{}, err
	}
	return fetch(ctx, g, request[entities.SoilComposition]{
		class: classSoil,
		op:    "soil.composition",
		key:   cache.Key("soil/composition", pointParams(p)),
		fetch: func(ctx context.Context) (entities.SoilComposition, error) {
			return g.soil.composition(ctx, p)
		},
		synthetic: func() entities.SoilComposition { return g.synth.SoilComposition(p) },
	})
}

func (g *Gateway) SoilHealth(ctx context.Context, p entities.GeoPoint) (entities.SoilHealth, error) {
	if err := p.Validate(); err != nil {
		return entities.SoilHealth{}, err
	}
	return fetch(ctx, g, request[entities.SoilHealth]{
		class: classSoil,
		op:    "soil.health",
		key:   cache.Key("soil/health", pointParams(p)),
		fetch: func(ctx context.Context) (entities.SoilHealth, error) {
			return g.soil.health(ctx, p)
		},
		synthetic: func() entities.SoilHealth { return g.synth.SoilHealth(p) },
	})
}

// historyDays counts the calendar days in [from, to], one day_summary call each.
func historyDays(from, to time.Time) int {
	return int(to.Sub(from).Hours()/24) + 1
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
