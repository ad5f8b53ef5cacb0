package gateway

import (
	"errors"
	"strconv"
	"strings"
)

var errNotConfigured = errors.New("provider not configured")

// ---------- Provider payloads ----------

// payload is a provider object decoded loosely: field names drift between
// API versions and numbers sometimes arrive as strings.
type payload map[string]any

func (p payload) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		mv, ok := p[k]
		if !ok || mv == nil {
			continue
		}
		switch x := mv.(type) {
		case float64:
			return x, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f, true
			}
		case bool:
			if x {
				return 1, true
			}
			return 0, true
		case map[string]any:
			// {"value": 6.5, "unit": "pH"}
			if f, ok := payload(x).num("value", "mean"); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func (p payload) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// obj returns the first nested object found under keys, or p itself when
// the provider answered with a flat document.
func (p payload) obj(keys ...string) payload {
	for _, k := range keys {
		if v, ok := p[k].(map[string]any); ok {
			return payload(v)
		}
	}
	return p
}

// OpenWeatherMap One Call 3.0 (units=metric).

type owmRain struct {
	OneHour float64 `json:"1h"`
}

type owmCurrent struct {
	Dt        int64    `json:"dt"`
	Temp      float64  `json:"temp"`
	Humidity  float64  `json:"humidity"`
	WindSpeed float64  `json:"wind_speed"`
	Rain      *owmRain `json:"rain"`
}

type owmDaily struct {
	Dt   int64 `json:"dt"`
	Temp struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
		Day float64 `json:"day"`
	} `json:"temp"`
	Humidity  float64 `json:"humidity"`
	WindSpeed float64 `json:"wind_speed"`
	Rain      float64 `json:"rain"`
	Summary   string  `json:"summary"`
	Weather   []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

type owmOneCall struct {
	Current *owmCurrent `json:"current"`
	Daily   []owmDaily  `json:"daily"`
}

type owmDaySummary struct {
	Date     string `json:"date"`
	Humidity struct {
		Afternoon float64 `json:"afternoon"`
	} `json:"humidity"`
	Temperature struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"temperature"`
	Precipitation struct {
		Total float64 `json:"total"`
	} `json:"precipitation"`
	Wind struct {
		Max struct {
			Speed float64 `json:"speed"`
		} `json:"max"`
	} `json:"wind"`
}
