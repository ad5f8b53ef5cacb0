// Package irrigation turns weather, soil and crop data into an irrigation
// recommendation: ET estimate, soil water balance, ordered decision rules.
// Everything except Service is pure and performs no I/O.
package irrigation

import (
	"fmt"
	"math"
	"strings"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

// Crop coefficients per growth stage (FAO-56, rounded).
var cropCoefficients = map[string]entities.StageParams{
	"maize":      {Initial: 0.3, Development: 0.7, Mid: 1.2, Late: 0.6},
	"wheat":      {Initial: 0.3, Development: 0.7, Mid: 1.15, Late: 0.4},
	"rice":       {Initial: 1.05, Development: 1.1, Mid: 1.2, Late: 0.9},
	"tomato":     {Initial: 0.6, Development: 0.8, Mid: 1.15, Late: 0.8},
	"potato":     {Initial: 0.5, Development: 0.75, Mid: 1.15, Late: 0.75},
	"beans":      {Initial: 0.4, Development: 0.7, Mid: 1.15, Late: 0.55},
	"cassava":    {Initial: 0.3, Development: 0.6, Mid: 0.8, Late: 0.3},
	"sorghum":    {Initial: 0.3, Development: 0.7, Mid: 1.0, Late: 0.55},
	"cotton":     {Initial: 0.35, Development: 0.7, Mid: 1.15, Late: 0.6},
	"vegetables": {Initial: 0.7, Development: 0.85, Mid: 1.05, Late: 0.95},
}

// DefaultCropCoefficients apply to crop types missing from the table.
var DefaultCropCoefficients = entities.StageParams{Initial: 0.5, Development: 0.8, Mid: 1.0, Late: 0.7}

// CropCoefficient looks up Kc for crop and stage. The crop name is matched
// case-insensitively; unknown crops use DefaultCropCoefficients.
func CropCoefficient(cropType string, stage entities.GrowthStage) (float64, error) {
	params, ok := cropCoefficients[strings.ToLower(strings.TrimSpace(cropType))]
	if !ok {
		params = DefaultCropCoefficients
	}
	kc, ok := params.For(stage)
	if !ok {
		return 0, apperr.NewValidation("growth_stage", fmt.Sprintf("unknown growth stage %q", stage))
	}
	return kc, nil
}

// ComputeETc estimates reference (ET0) and crop (ETc) evapotranspiration in
// mm/day. This is a bounded empirical index, not Penman-Monteith: every
// factor is clamped so ET0 is never negative.
func ComputeETc(w entities.WeatherSnapshot, crop entities.CropContext) (entities.ETResult, error) {
	if err := validateWeather(w); err != nil {
		return entities.ETResult{}, err
	}
	kc, err := CropCoefficient(crop.CropType, crop.GrowthStage)
	if err != nil {
		return entities.ETResult{}, err
	}

	tempFactor := math.Max(0, (w.Temperature-5)/30)
	humidityFactor := math.Max(0.3, (100-w.Humidity)/100)
	windFactor := math.Min(2, 1+w.WindSpeed/10)
	radiationFactor := 1.0
	if w.SolarRadiation != nil {
		radiationFactor = *w.SolarRadiation / 25
	}

	et0 := round2(tempFactor * humidityFactor * windFactor * radiationFactor * 5)
	return entities.ETResult{
		ET0: et0,
		ETc: round2(et0 * kc),
		Kc:  kc,
	}, nil
}

func validateWeather(w entities.WeatherSnapshot) error {
	switch {
	case math.IsNaN(w.Temperature) || math.IsInf(w.Temperature, 0):
		return apperr.NewValidation("temperature", "missing or not finite")
	case math.IsNaN(w.Humidity) || w.Humidity < 0 || w.Humidity > 100:
		return apperr.NewValidation("humidity", fmt.Sprintf("%v outside 0..100", w.Humidity))
	case math.IsNaN(w.WindSpeed) || w.WindSpeed < 0:
		return apperr.NewValidation("wind_speed", fmt.Sprintf("%v must not be negative", w.WindSpeed))
	case w.SolarRadiation != nil && (math.IsNaN(*w.SolarRadiation) || *w.SolarRadiation < 0):
		return apperr.NewValidation("solar_radiation", "must not be negative")
	}
	return nil
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
