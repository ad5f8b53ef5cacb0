package gateway

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
)

// Synthetic produces stand-in datasets when a provider is unavailable.
// Every value it returns carries Source = entities.SourceSynthetic.
type Synthetic interface {
	CurrentWeather(p entities.GeoPoint, at time.Time) entities.WeatherSnapshot
	Forecast(p entities.GeoPoint, days int, from time.Time) entities.Forecast
	History(p entities.GeoPoint, from, to time.Time) entities.History
	SoilProfile(p entities.GeoPoint) entities.SoilProfile
	SoilComposition(p entities.GeoPoint) entities.SoilComposition
	SoilHealth(p entities.GeoPoint) entities.SoilHealth
}

// ====== Range ======
const (
	minTemp, maxTemp           = 15.0, 35.0 // °C
	minHumidity, maxHumidity   = 35.0, 90.0 // %
	maxWind                    = 8.0        // m/s
	minRadiation, maxRadiation = 10.0, 25.0 // MJ/m²/day
	maxDailyRain               = 8.0        // mm
	rainChance                 = 0.3
)

// SyntheticGenerator is deterministic per location and day: the PRNG is
// seeded from the rounded coordinates, so two calls for the same point give
// the same data and tests can assert on it.
type SyntheticGenerator struct{}

func NewSyntheticGenerator() *SyntheticGenerator { return &SyntheticGenerator{} }

func rngFor(p entities.GeoPoint, salt string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(p.Rounded().String()))
	h.Write([]byte{0})
	h.Write([]byte(salt))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func between(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func dailyRain(r *rand.Rand) float64 {
	if r.Float64() >= rainChance {
		return 0
	}
	return round1(between(r, 0.1, maxDailyRain))
}

func (SyntheticGenerator) CurrentWeather(p entities.GeoPoint, at time.Time) entities.WeatherSnapshot {
	r := rngFor(p, "current/"+at.UTC().Format(time.DateOnly))
	radiation := round1(between(r, minRadiation, maxRadiation))
	rain := dailyRain(r)
	return entities.WeatherSnapshot{
		Temperature:    round1(between(r, minTemp, maxTemp)),
		Humidity:       round1(between(r, minHumidity, maxHumidity)),
		WindSpeed:      round1(between(r, 0, maxWind)),
		SolarRadiation: &radiation,
		Precipitation:  &rain,
		ObservedAt:     at.UTC(),
		Source:         entities.SourceSynthetic,
	}
}

func (SyntheticGenerator) Forecast(p entities.GeoPoint, days int, from time.Time) entities.Forecast {
	start := truncateDay(from)
	fc := entities.Forecast{Days: make([]entities.ForecastDay, 0, days), Source: entities.SourceSynthetic}
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		r := rngFor(p, "day/"+day.Format(time.DateOnly))
		lo := between(r, minTemp, maxTemp-5)
		hi := lo + between(r, 3, 10)
		if hi > maxTemp {
			hi = maxTemp
		}
		rain := dailyRain(r)
		summary := "clear"
		if rain > 0 {
			summary = "rain"
		}
		fc.Days = append(fc.Days, entities.ForecastDay{
			Date:          day,
			Temperature:   entities.TemperatureRange{Min: round1(lo), Max: round1(hi), Avg: round1((lo + hi) / 2)},
			Precipitation: rain,
			Humidity:      round1(between(r, minHumidity, maxHumidity)),
			WindSpeed:     round1(between(r, 0, maxWind)),
			Summary:       summary,
		})
	}
	return fc
}

func (g SyntheticGenerator) History(p entities.GeoPoint, from, to time.Time) entities.History {
	from, to = truncateDay(from), truncateDay(to)
	h := entities.History{Source: entities.SourceSynthetic}
	n := int(to.Sub(from).Hours()/24) + 1
	for _, d := range g.Forecast(p, n, from).Days {
		h.Days = append(h.Days, entities.HistoricalDay{
			Date:           d.Date,
			TemperatureMin: d.Temperature.Min,
			TemperatureMax: d.Temperature.Max,
			Precipitation:  d.Precipitation,
			Humidity:       d.Humidity,
			WindSpeed:      d.WindSpeed,
		})
	}
	return h
}

var syntheticSoils = []entities.SoilType{
	entities.SoilSandy, entities.SoilSandyLoam, entities.SoilLoam,
	entities.SoilSiltLoam, entities.SoilClayLoam, entities.SoilClay,
}

func (SyntheticGenerator) SoilProfile(p entities.GeoPoint) entities.SoilProfile {
	r := rngFor(p, "soil")
	t := syntheticSoils[r.Intn(len(syntheticSoils))]
	prof := entities.SoilProfile{Source: entities.SourceSynthetic}.WithType(t)
	prof.PH = round2(between(r, 5.5, 7.5))
	prof.OrganicMatter = round2(between(r, 1, 5))
	return prof
}

func (SyntheticGenerator) SoilComposition(p entities.GeoPoint) entities.SoilComposition {
	r := rngFor(p, "composition")
	sand := between(r, 10, 80)
	clay := between(r, 5, 100-sand-5)
	silt := 100 - sand - clay
	return entities.SoilComposition{
		Sand:    round1(sand),
		Silt:    round1(silt),
		Clay:    round1(clay),
		Texture: entities.ClassifyTexture(sand, silt, clay),
		Source:  entities.SourceSynthetic,
	}
}

func (SyntheticGenerator) SoilHealth(p entities.GeoPoint) entities.SoilHealth {
	r := rngFor(p, "health")
	score := between(r, 40, 90)
	return entities.SoilHealth{
		Score:      round1(score),
		Nitrogen:   round1(between(r, 10, 60)),
		Phosphorus: round1(between(r, 5, 40)),
		Potassium:  round1(between(r, 80, 250)),
		Moisture:   round1(between(r, 15, 45)),
		Rating:     entities.HealthRating(score),
		Source:     entities.SourceSynthetic,
	}
}
