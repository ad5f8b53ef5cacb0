package entities

import "time"

// DataSource tags where a dataset came from so degraded answers can be told
// apart from real observations.
type DataSource string

const (
	SourceProvider  DataSource = "provider"
	SourceSynthetic DataSource = "synthetic"
)

// WeatherSnapshot is the current weather at a point. SolarRadiation is in
// MJ/m²/day, nil when the provider does not report it.
type WeatherSnapshot struct {
	Temperature    float64    `json:"temperature_c"`
	Humidity       float64    `json:"humidity_pct"`
	WindSpeed      float64    `json:"wind_speed_ms"`
	SolarRadiation *float64   `json:"solar_radiation,omitempty"`
	Precipitation  *float64   `json:"precipitation_mm,omitempty"`
	ObservedAt     time.Time  `json:"observed_at"`
	Source         DataSource `json:"source"`
}

type TemperatureRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

type ForecastDay struct {
	Date          time.Time        `json:"date"`
	Temperature   TemperatureRange `json:"temperature"`
	Precipitation float64          `json:"precipitation_mm"`
	Humidity      float64          `json:"humidity_pct"`
	WindSpeed     float64          `json:"wind_speed_ms"`
	Summary       string           `json:"summary"`
}

// Forecast is ordered by date, today first.
type Forecast struct {
	Days   []ForecastDay `json:"days"`
	Source DataSource    `json:"source"`
}

// UpcomingRain sums precipitation over the first n days.
func (f Forecast) UpcomingRain(n int) float64 {
	sum := 0.0
	for i := 0; i < n && i < len(f.Days); i++ {
		sum += f.Days[i].Precipitation
	}
	return sum
}

type HistoricalDay struct {
	Date           time.Time `json:"date"`
	TemperatureMin float64   `json:"temperature_min_c"`
	TemperatureMax float64   `json:"temperature_max_c"`
	Precipitation  float64   `json:"precipitation_mm"`
	Humidity       float64   `json:"humidity_pct"`
	WindSpeed      float64   `json:"wind_speed_ms"`
}

type History struct {
	Days   []HistoricalDay `json:"days"`
	Source DataSource      `json:"source"`
}

func (h History) TotalPrecipitation() float64 {
	sum := 0.0
	for _, d := range h.Days {
		sum += d.Precipitation
	}
	return sum
}
