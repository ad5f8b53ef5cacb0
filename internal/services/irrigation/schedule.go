package irrigation

import (
	"time"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
)

const (
	hotThreshold  = 30.0 // °C: evening window moves later
	coldThreshold = 15.0 // °C: evening window moves earlier
	windyTip      = 5.0  // m/s
)

// OptimalTimes returns the two recommended windows plus the midday window
// to avoid. Times are local to the field.
func OptimalTimes(temperature float64) []entities.TimeWindow {
	evening := entities.TimeWindow{Label: "evening", Start: "18:00", End: "19:30", Efficiency: 85}
	switch {
	case temperature > hotThreshold:
		evening.Start, evening.End = "18:30", "20:00"
	case temperature < coldThreshold:
		evening.Start, evening.End = "17:30", "19:00"
	}
	return []entities.TimeWindow{
		{Label: "early_morning", Start: "05:30", End: "07:00", Efficiency: 95},
		evening,
		{Label: "midday", Start: "11:00", End: "15:00", Efficiency: 45, Avoid: true},
	}
}

var staticTips = []string{
	"Irrigate early in the morning to reduce evaporation losses.",
	"Mulch around plants to keep moisture in the root zone.",
	"Check pipes and emitters for leaks before each irrigation.",
}

// ConservationTips returns the static tips plus the ones triggered by wind
// and urgency.
func ConservationTips(status entities.Status, windSpeed float64) []string {
	tips := append([]string(nil), staticTips...)
	if windSpeed > windyTip {
		tips = append(tips, "Wind is strong: prefer drip irrigation or wait for calmer conditions to avoid drift.")
	}
	if status == entities.StatusUrgent {
		tips = append(tips, "Split the application into short cycles so dry soil can absorb it without runoff.")
	}
	return tips
}

var assessmentDelay = map[entities.Status]time.Duration{
	entities.StatusUrgent: 6 * time.Hour,
	entities.StatusNeeded: 24 * time.Hour,
	entities.StatusSkip:   72 * time.Hour,
}

// NextAssessment is when the field should be looked at again.
func NextAssessment(status entities.Status, now time.Time) time.Time {
	d, ok := assessmentDelay[status]
	if !ok {
		d = 48 * time.Hour
	}
	return now.Add(d)
}
