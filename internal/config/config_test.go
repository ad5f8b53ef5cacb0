package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "RATE_LIMIT", "CACHE_BACKEND", "SYNTHETIC_FALLBACK", "REQUEST_TIMEOUT", "UPSTREAM_TIMEOUT", "OWM_API_KEY", "SOIL_BASE_URL", "INFLUX_URL"} {
		t.Setenv(k, "")
	}
	c := Load()

	assert.Equal(t, 8080, c.HTTPPort)
	assert.Equal(t, 50, c.RateLimit)
	assert.Equal(t, time.Minute, c.RateWindow)
	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, 45*time.Second, c.RequestTimeout)
	assert.Equal(t, 10*time.Second, c.UpstreamTimeout)
	// 10s token + 3×10s tentativi + 1s + 2s di backoff
	assert.Equal(t, 43*time.Second, c.UpstreamBudget())
	assert.Equal(t, 30*time.Minute, c.TTLCurrent)
	assert.Equal(t, time.Hour, c.TTLForecast)
	assert.Equal(t, 24*time.Hour, c.TTLHistory)
	assert.Equal(t, 24*time.Hour, c.TTLSoil)
	assert.Equal(t, 10*time.Minute, c.TokenMargin)
	assert.Equal(t, "memory", c.CacheBackend)
	assert.True(t, c.SyntheticFallback)
	assert.Equal(t, 7, c.DefaultDaysSince)
	assert.Equal(t, 0.8, c.MoistureBaseline)
	assert.Equal(t, []string{"advisory/request/+"}, c.RequestTopics)
	assert.False(t, c.WeatherConfigured())
	assert.False(t, c.SoilConfigured())
	require.NoError(t, c.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT", "10")
	t.Setenv("RATE_WINDOW", "30s")
	t.Setenv("CACHE_TTL_CURRENT", "120")
	t.Setenv("CACHE_BACKEND", "Redis")
	t.Setenv("SYNTHETIC_FALLBACK", "false")
	t.Setenv("MOISTURE_BASELINE", "0.65")
	t.Setenv("OWM_API_KEY", "k")
	t.Setenv("ADVISORY_REQUEST_TOPICS", " advisory/request/+ , ,farm/+/ask ")
	t.Setenv("RETRY_ATTEMPTS", "not-a-number")

	c := Load()
	assert.Equal(t, 9090, c.HTTPPort)
	assert.Equal(t, 10, c.RateLimit)
	assert.Equal(t, 30*time.Second, c.RateWindow)
	assert.Equal(t, 2*time.Minute, c.TTLCurrent)
	assert.Equal(t, "redis", c.CacheBackend)
	assert.False(t, c.SyntheticFallback)
	assert.Equal(t, 0.65, c.MoistureBaseline)
	assert.True(t, c.WeatherConfigured())
	assert.Equal(t, []string{"advisory/request/+", "farm/+/ask"}, c.RequestTopics)
	assert.Equal(t, 3, c.RetryAttempts, "unparsable values keep the default")
}

func TestValidate(t *testing.T) {
	t.Setenv("SOIL_BASE_URL", "")
	base := Load()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"port":       func(c *Config) { c.HTTPPort = 0 },
		"attempts":   func(c *Config) { c.RetryAttempts = 0 },
		"delays":     func(c *Config) { c.RetryMaxDelay = c.RetryBaseDelay / 2 },
		"rate":       func(c *Config) { c.RateLimit = 0 },
		"backend":    func(c *Config) { c.CacheBackend = "memcached" },
		"redis addr": func(c *Config) { c.CacheBackend, c.RedisAddr = "redis", "" },
		"ttl":        func(c *Config) { c.TTLSoil = 0 },
		"baseline":   func(c *Config) { c.MoistureBaseline = 1.5 },
		"soil creds": func(c *Config) { c.SoilBaseURL = "https://soil.example" },
		"topic":      func(c *Config) { c.ResultTopic = "advisory/out" },
		"budget":     func(c *Config) { c.RequestTimeout = c.UpstreamTimeout },
		"upstream":   func(c *Config) { c.UpstreamTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	slow := base
	slow.UpstreamTimeout = 20 * time.Second
	err := slow.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
	slow.RequestTimeout = slow.UpstreamBudget()
	assert.NoError(t, slow.Validate())

	multi := base
	multi.HTTPPort = -1
	multi.RateLimit = 0
	err = multi.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "RATE_LIMIT")
}
