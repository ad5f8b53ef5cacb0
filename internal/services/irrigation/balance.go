package irrigation

import (
	"math"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

const (
	DefaultBaselineFraction = 0.8
	DefaultCriticalFraction = 0.3
	DefaultOptimalFraction  = 0.7
	DefaultDaysSince        = 7
)

// BalanceModel holds the thresholds of the bucket model. BaselineFraction
// is the share of capacity the last irrigation is assumed to have reached:
// an assumption, not a measurement, hence configurable.
type BalanceModel struct {
	BaselineFraction float64
	CriticalFraction float64
	OptimalFraction  float64
	// DefaultDays replaces an unknown days-since-irrigation.
	DefaultDays int
}

func DefaultBalanceModel() BalanceModel {
	return BalanceModel{
		BaselineFraction: DefaultBaselineFraction,
		CriticalFraction: DefaultCriticalFraction,
		OptimalFraction:  DefaultOptimalFraction,
		DefaultDays:      DefaultDaysSince,
	}
}

func (m BalanceModel) withDefaults() BalanceModel {
	d := DefaultBalanceModel()
	if m.BaselineFraction <= 0 {
		m.BaselineFraction = d.BaselineFraction
	}
	if m.CriticalFraction <= 0 {
		m.CriticalFraction = d.CriticalFraction
	}
	if m.OptimalFraction <= 0 {
		m.OptimalFraction = d.OptimalFraction
	}
	if m.DefaultDays <= 0 {
		m.DefaultDays = d.DefaultDays
	}
	return m
}

// ComputeBalance estimates the root-zone water content. daysSinceIrrigation
// < 0 means unknown and is replaced by DefaultDays. Rain gained is the sum
// over the first daysSinceIrrigation forecast entries.
func (m BalanceModel) ComputeBalance(etc float64, forecast entities.Forecast, soil entities.SoilProfile, rootDepth float64, daysSinceIrrigation int) (entities.WaterBalance, error) {
	m = m.withDefaults()
	if math.IsNaN(etc) || etc < 0 {
		return entities.WaterBalance{}, apperr.NewValidation("etc", "must not be negative")
	}
	if daysSinceIrrigation < 0 {
		daysSinceIrrigation = m.DefaultDays
	}

	totalCapacity := soil.WaterHoldingCapacity * rootDepth
	if !(totalCapacity > 0) {
		return entities.WaterBalance{}, apperr.NewCalculation(
			"total capacity %.2f mm (capacity %.2f mm/m × depth %.2f m)", totalCapacity, soil.WaterHoldingCapacity, rootDepth)
	}

	waterLoss := etc * float64(daysSinceIrrigation)
	waterGain := forecast.UpcomingRain(daysSinceIrrigation)
	current := math.Max(0, totalCapacity*m.BaselineFraction-waterLoss+waterGain)

	return entities.WaterBalance{
		CurrentMoisture:     round2(current),
		TotalCapacity:       round2(totalCapacity),
		MoisturePercentage:  round2(current / totalCapacity * 100),
		WaterLoss:           round2(waterLoss),
		WaterGain:           round2(waterGain),
		IsCritical:          current < totalCapacity*m.CriticalFraction,
		IsOptimal:           current >= totalCapacity*m.OptimalFraction,
		DaysSinceIrrigation: daysSinceIrrigation,
	}, nil
}
