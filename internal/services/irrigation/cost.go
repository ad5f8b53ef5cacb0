package irrigation

import (
	"math"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
)

const (
	DefaultWaterCostPerLiter  = 0.002
	DefaultEnergyCostPerLiter = 0.0005
	DefaultCO2PerLiter        = 0.0003 // kg, pumping
	DefaultCurrency           = "USD"
)

type CostConfig struct {
	WaterPerLiter  float64
	EnergyPerLiter float64
	CO2PerLiter    float64
	Currency       string
}

func (c CostConfig) withDefaults() CostConfig {
	if c.WaterPerLiter <= 0 {
		c.WaterPerLiter = DefaultWaterCostPerLiter
	}
	if c.EnergyPerLiter <= 0 {
		c.EnergyPerLiter = DefaultEnergyCostPerLiter
	}
	if c.CO2PerLiter <= 0 {
		c.CO2PerLiter = DefaultCO2PerLiter
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	return c
}

func (c CostConfig) Estimate(liters float64) entities.CostEstimate {
	water := round2(liters * c.WaterPerLiter)
	energy := round2(liters * c.EnergyPerLiter)
	return entities.CostEstimate{
		WaterCost:  water,
		EnergyCost: energy,
		Total:      round2(water + energy),
		Currency:   c.Currency,
	}
}

var sustainability = map[entities.Status]string{
	entities.StatusUrgent: "low",
	entities.StatusNeeded: "medium",
}

// Impact estimates the pumping footprint. savedLiters is the water a
// skipped irrigation would have used.
func (c CostConfig) Impact(status entities.Status, liters, savedLiters float64) entities.EnvironmentalImpact {
	rating, ok := sustainability[status]
	if !ok {
		rating = "high"
	}
	return entities.EnvironmentalImpact{
		CO2Kg:                math.Round(liters*c.CO2PerLiter*1000) / 1000,
		WaterSavedLiters:     round2(savedLiters),
		SustainabilityRating: rating,
	}
}
