// Package config reads the advisor configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/rabbitmq"
)

type Config struct {
	HTTPPort int
	GRPCPort int
	LogLevel string
	LogJSON  bool

	// RequestTimeout è la scadenza di una richiesta di raccomandazione,
	// UpstreamTimeout quella di una singola chiamata al provider.
	RequestTimeout  time.Duration
	UpstreamTimeout time.Duration

	// Provider meteo (OpenWeatherMap One Call 3.0)
	OWMBaseURL string
	OWMAPIKey  string

	// Provider suolo, autenticato con client credentials
	SoilBaseURL      string
	SoilTokenURL     string
	SoilClientID     string
	SoilClientSecret string
	TokenMargin      time.Duration

	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RateLimit       int
	RateWindow      time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration

	CacheBackend      string
	CacheMaxEntries   int
	CacheSweepSpec    string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	TTLCurrent        time.Duration
	TTLForecast       time.Duration
	TTLHistory        time.Duration
	TTLSoil           time.Duration
	SyntheticFallback bool

	DefaultDaysSince int
	MoistureBaseline float64
	WaterCostPerL    float64
	EnergyCostPerL   float64
	CO2PerL          float64
	Currency         string

	// MQTT (RabbitMQ con plugin MQTT); disabilitato se MQTTEnabled è false
	MQTTEnabled   bool
	Rabbit        rabbitmq.RabbitMQConfig
	RequestTopics []string
	ResultTopic   string
	DedupTTL      time.Duration

	// InfluxDB; disabilitato se InfluxURL è vuoto
	InfluxURL      string
	InfluxToken    string
	InfluxOrg      string
	InfluxBucket   string
	InfluxBatch    int
	InfluxFlush    time.Duration
	ReadinessGrace time.Duration
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// envDuration accetta sia "30s" sia un numero di secondi.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envList(key, def string) []string {
	parts := strings.Split(env(key, def), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Load reads every key with its default; call Validate before use.
func Load() Config {
	return Config{
		HTTPPort: envInt("PORT", 8080),
		GRPCPort: envInt("GRPC_PORT", 50051),
		LogLevel: env("LOG_LEVEL", "info"),
		LogJSON:  envBool("LOG_JSON", true),

		RequestTimeout:  envDuration("REQUEST_TIMEOUT", 45*time.Second),
		UpstreamTimeout: envDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		OWMBaseURL: env("OWM_BASE_URL", "https://api.openweathermap.org/data/3.0"),
		OWMAPIKey:  os.Getenv("OWM_API_KEY"),

		SoilBaseURL:      env("SOIL_BASE_URL", ""),
		SoilTokenURL:     env("SOIL_TOKEN_URL", ""),
		SoilClientID:     os.Getenv("SOIL_CLIENT_ID"),
		SoilClientSecret: os.Getenv("SOIL_CLIENT_SECRET"),
		TokenMargin:      envDuration("TOKEN_MARGIN", 10*time.Minute),

		RetryAttempts:   envInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay:  envDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:   envDuration("RETRY_MAX_DELAY", 10*time.Second),
		RateLimit:       envInt("RATE_LIMIT", 50),
		RateWindow:      envDuration("RATE_WINDOW", time.Minute),
		BreakerFailures: envInt("BREAKER_FAILURES", 5),
		BreakerOpenFor:  envDuration("BREAKER_OPEN_FOR", 30*time.Second),

		CacheBackend:      strings.ToLower(env("CACHE_BACKEND", "memory")),
		CacheMaxEntries:   envInt("CACHE_MAX_ENTRIES", 10000),
		CacheSweepSpec:    env("CACHE_SWEEP_SPEC", "@every 5m"),
		RedisAddr:         env("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           envInt("REDIS_DB", 0),
		TTLCurrent:        envDuration("CACHE_TTL_CURRENT", 30*time.Minute),
		TTLForecast:       envDuration("CACHE_TTL_FORECAST", time.Hour),
		TTLHistory:        envDuration("CACHE_TTL_HISTORY", 24*time.Hour),
		TTLSoil:           envDuration("CACHE_TTL_SOIL", 24*time.Hour),
		SyntheticFallback: envBool("SYNTHETIC_FALLBACK", true),

		DefaultDaysSince: envInt("DEFAULT_DAYS_SINCE_IRRIGATION", 7),
		MoistureBaseline: envFloat("MOISTURE_BASELINE", 0.8),
		WaterCostPerL:    envFloat("WATER_COST_PER_L", 0.002),
		EnergyCostPerL:   envFloat("ENERGY_COST_PER_L", 0.0005),
		CO2PerL:          envFloat("CO2_PER_L", 0.0003),
		Currency:         env("CURRENCY", "USD"),

		MQTTEnabled: envBool("MQTT_ENABLED", true),
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:            env("RABBITMQ_HOST", "localhost"),
			Port:            envInt("RABBITMQ_PORT", 1883),
			User:            env("RABBITMQ_USER", "guest"),
			Password:        env("RABBITMQ_PASSWORD", "guest"),
			ClientID:        env("RABBITMQ_CLIENTID", env("HOSTNAME", "irrigation-advisor")),
			ConnectAttempts: envInt("RABBITMQ_CONNECT_ATTEMPTS", 10),
		},
		RequestTopics: envList("ADVISORY_REQUEST_TOPICS", "advisory/request/+"),
		ResultTopic:   env("ADVISORY_RESULT_TOPIC", "advisory/recommendation/{field}"),
		DedupTTL:      envDuration("DEDUP_TTL", 10*time.Minute),

		InfluxURL:      env("INFLUX_URL", ""),
		InfluxToken:    os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:      env("INFLUX_ORG", "msut"),
		InfluxBucket:   env("INFLUX_BUCKET", "advisory"),
		InfluxBatch:    envInt("INFLUX_BATCH_SIZE", 10),
		InfluxFlush:    envDuration("INFLUX_FLUSH_INTERVAL", 200*time.Millisecond),
		ReadinessGrace: envDuration("READINESS_GRACE", 5*time.Second),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.HTTPPort > 0 && c.HTTPPort < 65536, "PORT: invalid port %d", c.HTTPPort)
	check(c.GRPCPort >= 0 && c.GRPCPort < 65536, "GRPC_PORT: invalid port %d", c.GRPCPort)
	check(c.RequestTimeout > 0, "REQUEST_TIMEOUT: must be positive")
	check(c.UpstreamTimeout > 0, "UPSTREAM_TIMEOUT: must be positive")
	if c.RequestTimeout > 0 && c.UpstreamTimeout > 0 && c.RetryAttempts >= 1 {
		budget := c.UpstreamBudget()
		check(c.RequestTimeout >= budget,
			"REQUEST_TIMEOUT: %s does not cover the upstream budget %s (token + RETRY_ATTEMPTS x UPSTREAM_TIMEOUT + backoff)",
			c.RequestTimeout, budget)
	}
	check(c.RetryAttempts >= 1, "RETRY_ATTEMPTS: must be at least 1")
	check(c.RetryBaseDelay > 0 && c.RetryMaxDelay >= c.RetryBaseDelay, "RETRY_*_DELAY: need 0 < base <= max")
	check(c.RateLimit > 0, "RATE_LIMIT: must be positive")
	check(c.RateWindow > 0, "RATE_WINDOW: must be positive")
	check(c.BreakerFailures > 0, "BREAKER_FAILURES: must be positive")
	check(c.CacheBackend == "memory" || c.CacheBackend == "redis", "CACHE_BACKEND: %q is not memory|redis", c.CacheBackend)
	check(c.CacheBackend != "redis" || c.RedisAddr != "", "REDIS_ADDR: required with redis backend")
	check(c.TTLCurrent > 0 && c.TTLForecast > 0 && c.TTLHistory > 0 && c.TTLSoil > 0, "CACHE_TTL_*: must be positive")
	check(c.DefaultDaysSince >= 0, "DEFAULT_DAYS_SINCE_IRRIGATION: must not be negative")
	check(c.MoistureBaseline > 0 && c.MoistureBaseline <= 1, "MOISTURE_BASELINE: must be in (0, 1]")
	check(c.WaterCostPerL >= 0 && c.EnergyCostPerL >= 0 && c.CO2PerL >= 0, "*_PER_L: must not be negative")
	if c.SoilBaseURL != "" {
		check(c.SoilTokenURL != "" && c.SoilClientID != "" && c.SoilClientSecret != "",
			"SOIL_TOKEN_URL, SOIL_CLIENT_ID and SOIL_CLIENT_SECRET are required with SOIL_BASE_URL")
	}
	if c.MQTTEnabled {
		check(len(c.RequestTopics) > 0, "ADVISORY_REQUEST_TOPICS: at least one topic")
		check(strings.Contains(c.ResultTopic, "{field}"), "ADVISORY_RESULT_TOPIC: must contain {field}")
	}
	return errors.Join(errs...)
}

// UpstreamBudget is the worst-case time one fetch spends upstream before it
// falls back: a token exchange, every attempt timing out, and the backoff
// delays between attempts.
func (c Config) UpstreamBudget() time.Duration {
	budget := time.Duration(c.RetryAttempts+1) * c.UpstreamTimeout
	delay := c.RetryBaseDelay
	for i := 1; i < c.RetryAttempts; i++ {
		budget += min(delay, c.RetryMaxDelay)
		delay *= 2
	}
	return budget
}

// WeatherConfigured reports whether the weather provider can be called.
func (c Config) WeatherConfigured() bool { return c.OWMBaseURL != "" && c.OWMAPIKey != "" }

// SoilConfigured reports whether the soil provider can be called.
func (c Config) SoilConfigured() bool { return c.SoilBaseURL != "" }
