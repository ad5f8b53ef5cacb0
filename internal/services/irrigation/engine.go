package irrigation

import (
	"fmt"
	"math"
	"time"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

// rain thresholds over the next 3 days, mm
const (
	rainLookaheadDays = 3
	heavyRainMM       = 10.0
	someRainMM        = 5.0
	lowMoisturePct    = 50.0
)

// mm of depth × hectares → liters, as used by the amount formulas.
const litersPerMMHectare = 10.0

type EngineConfig struct {
	// RefillFraction is the target share of capacity for urgent irrigation,
	// TopUpFraction the one for a scheduled irrigation.
	RefillFraction float64
	TopUpFraction  float64
	Cost           CostConfig
}

// Engine applies the ordered decision rules. It is stateless apart from the
// clock used for NextAssessmentAt.
type Engine struct {
	cfg EngineConfig
	now func() time.Time
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.RefillFraction <= 0 {
		cfg.RefillFraction = DefaultBaselineFraction
	}
	if cfg.TopUpFraction <= 0 {
		cfg.TopUpFraction = DefaultOptimalFraction
	}
	cfg.Cost = cfg.Cost.withDefaults()
	return &Engine{cfg: cfg, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Recommend picks the first matching rule:
//
//  1. critical and < 10 mm rain in 3 days → urgent
//  2. moisture < 50 % and < 5 mm rain     → needed
//  3. ≥ 10 mm rain in 3 days              → skip
//  4. optimal moisture                    → optimal
//  5. otherwise                           → monitor
func (e *Engine) Recommend(b entities.WaterBalance, fc entities.Forecast, et entities.ETResult, w entities.WeatherSnapshot, fieldSizeHectares float64) (entities.IrrigationRecommendation, error) {
	if math.IsNaN(fieldSizeHectares) || fieldSizeHectares <= 0 {
		return entities.IrrigationRecommendation{}, apperr.NewValidation("field_size_hectares", "must be greater than 0")
	}
	if !(b.TotalCapacity > 0) {
		return entities.IrrigationRecommendation{}, apperr.NewCalculation("total capacity %.2f mm", b.TotalCapacity)
	}

	rain := round2(fc.UpcomingRain(rainLookaheadDays))
	deficit := func(fraction float64) float64 {
		return round2(math.Max(0, b.TotalCapacity*fraction-b.CurrentMoisture) * fieldSizeHectares * litersPerMMHectare)
	}

	rec := entities.IrrigationRecommendation{
		Balance:        b,
		ET:             et,
		UpcomingRainMM: rain,
	}
	saved := 0.0

	switch {
	case b.IsCritical && rain < heavyRainMM:
		rec.Status, rec.Priority, rec.Action = entities.StatusUrgent, entities.PriorityHigh, entities.ActionIrrigateNow
		rec.WaterAmountLiters = deficit(e.cfg.RefillFraction)
		rec.TimingWindow = "within 2 hours"
		rec.Reason = fmt.Sprintf("Soil moisture is critically low (%.1f%% of capacity) and only %.1f mm of rain is expected in the next %d days.",
			b.MoisturePercentage, rain, rainLookaheadDays)

	case b.MoisturePercentage < lowMoisturePct && rain < someRainMM:
		rec.Status, rec.Priority, rec.Action = entities.StatusNeeded, entities.PriorityMedium, entities.ActionIrrigateSoon
		rec.WaterAmountLiters = deficit(e.cfg.TopUpFraction)
		rec.TimingWindow = "within 24 hours"
		rec.Reason = fmt.Sprintf("Soil moisture is below half of capacity (%.1f%%) with little rain expected (%.1f mm).",
			b.MoisturePercentage, rain)

	case rain >= heavyRainMM:
		rec.Status, rec.Priority, rec.Action = entities.StatusSkip, entities.PriorityLow, entities.ActionWaitForRain
		rec.TimingWindow = "after rainfall"
		rec.Reason = fmt.Sprintf("%.1f mm of rain is expected in the next %d days, enough to replenish the soil.", rain, rainLookaheadDays)
		saved = deficit(e.cfg.TopUpFraction)

	case b.IsOptimal:
		rec.Status, rec.Priority, rec.Action = entities.StatusOptimal, entities.PriorityLow, entities.ActionMonitor
		rec.TimingWindow = "next assessment in 2-3 days"
		rec.Reason = fmt.Sprintf("Soil moisture is in the optimal range (%.1f%% of capacity).", b.MoisturePercentage)

	default:
		rec.Status, rec.Priority, rec.Action = entities.StatusMonitor, entities.PriorityLow, entities.ActionAssessTomorrow
		rec.TimingWindow = "tomorrow"
		rec.Reason = fmt.Sprintf("Soil moisture is adequate (%.1f%% of capacity); check again tomorrow.", b.MoisturePercentage)
	}

	now := e.now().UTC()
	rec.OptimalTimes = OptimalTimes(w.Temperature)
	rec.ConservationTips = ConservationTips(rec.Status, w.WindSpeed)
	rec.NextAssessmentAt = NextAssessment(rec.Status, now)
	rec.CostEstimate = e.cfg.Cost.Estimate(rec.WaterAmountLiters)
	rec.EnvironmentalImpact = e.cfg.Cost.Impact(rec.Status, rec.WaterAmountLiters, saved)
	rec.GeneratedAt = now
	return rec, nil
}
