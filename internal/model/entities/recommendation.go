package entities

import "time"

// WaterBalance is recomputed on every request; values in mm except the
// percentage.
type WaterBalance struct {
	CurrentMoisture     float64 `json:"current_moisture_mm"`
	TotalCapacity       float64 `json:"total_capacity_mm"`
	MoisturePercentage  float64 `json:"moisture_pct"`
	WaterLoss           float64 `json:"water_loss_mm"`
	WaterGain           float64 `json:"water_gain_mm"`
	IsCritical          bool    `json:"is_critical"`
	IsOptimal           bool    `json:"is_optimal"`
	DaysSinceIrrigation int     `json:"days_since_irrigation"`
}

type ETResult struct {
	ET0 float64 `json:"et0_mm_day"`
	ETc float64 `json:"etc_mm_day"`
	Kc  float64 `json:"kc"`
}

type Status string

const (
	StatusUrgent  Status = "urgent"
	StatusNeeded  Status = "needed"
	StatusSkip    Status = "skip"
	StatusOptimal Status = "optimal"
	StatusMonitor Status = "monitor"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Action string

const (
	ActionIrrigateNow    Action = "irrigate_now"
	ActionIrrigateSoon   Action = "irrigate_soon"
	ActionWaitForRain    Action = "wait_for_rain"
	ActionMonitor        Action = "monitor"
	ActionAssessTomorrow Action = "assess_tomorrow"
)

// TimeWindow is a local time-of-day window ("05:30"-"07:00").
type TimeWindow struct {
	Label      string  `json:"label"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Efficiency float64 `json:"efficiency_pct"`
	Avoid      bool    `json:"avoid,omitempty"`
}

type CostEstimate struct {
	WaterCost  float64 `json:"water_cost"`
	EnergyCost float64 `json:"energy_cost"`
	Total      float64 `json:"total"`
	Currency   string  `json:"currency"`
}

type EnvironmentalImpact struct {
	CO2Kg                float64 `json:"co2_kg"`
	WaterSavedLiters     float64 `json:"water_saved_liters"`
	SustainabilityRating string  `json:"sustainability_rating"`
}

// IrrigationRecommendation has no identity: the persisting layer assigns one.
type IrrigationRecommendation struct {
	Status              Status                `json:"status"`
	Priority            Priority              `json:"priority"`
	Action              Action                `json:"action"`
	WaterAmountLiters   float64               `json:"water_amount_liters"`
	TimingWindow        string                `json:"timing_window"`
	Reason              string                `json:"reason"`
	OptimalTimes        []TimeWindow          `json:"optimal_times"`
	ConservationTips    []string              `json:"conservation_tips"`
	NextAssessmentAt    time.Time             `json:"next_assessment_at"`
	CostEstimate        CostEstimate          `json:"cost_estimate"`
	EnvironmentalImpact EnvironmentalImpact   `json:"environmental_impact"`
	Balance             WaterBalance          `json:"water_balance"`
	ET                  ETResult              `json:"evapotranspiration"`
	UpcomingRainMM      float64               `json:"upcoming_rain_mm"`
	Degraded            bool                  `json:"degraded"`
	DataSources         map[string]DataSource `json:"data_sources,omitempty"`
	GeneratedAt         time.Time             `json:"generated_at"`
}
