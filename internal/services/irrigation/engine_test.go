package irrigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

var fixedNow = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	return NewEngine(EngineConfig{}).WithClock(func() time.Time { return fixedNow })
}

func rainForecast(mm ...float64) entities.Forecast {
	fc := entities.Forecast{Source: entities.SourceProvider}
	for i, v := range mm {
		fc.Days = append(fc.Days, entities.ForecastDay{Date: fixedNow.AddDate(0, 0, i), Precipitation: v})
	}
	return fc
}

func balance(current, total float64) entities.WaterBalance {
	m := DefaultBalanceModel()
	return entities.WaterBalance{
		CurrentMoisture:    current,
		TotalCapacity:      total,
		MoisturePercentage: current / total * 100,
		IsCritical:         current < total*m.CriticalFraction,
		IsOptimal:          current >= total*m.OptimalFraction,
	}
}

var mildWeather = entities.WeatherSnapshot{Temperature: 22, Humidity: 50, WindSpeed: 2}

func TestRecommend_CriticalAndDry(t *testing.T) {
	rec, err := testEngine().Recommend(balance(40, 200), rainForecast(0, 0, 0), entities.ETResult{}, mildWeather, 1)
	require.NoError(t, err)

	assert.Equal(t, entities.StatusUrgent, rec.Status)
	assert.Equal(t, entities.ActionIrrigateNow, rec.Action)
	assert.Equal(t, entities.PriorityHigh, rec.Priority)
	assert.Equal(t, 1200.0, rec.WaterAmountLiters)
	assert.Equal(t, "within 2 hours", rec.TimingWindow)
	assert.NotEmpty(t, rec.Reason)

	assert.Equal(t, fixedNow.Add(6*time.Hour), rec.NextAssessmentAt)
	assert.Equal(t, 2.4, rec.CostEstimate.WaterCost)
	assert.Equal(t, 0.6, rec.CostEstimate.EnergyCost)
	assert.Equal(t, 3.0, rec.CostEstimate.Total)
	assert.Equal(t, 0.36, rec.EnvironmentalImpact.CO2Kg)
	assert.Equal(t, "low", rec.EnvironmentalImpact.SustainabilityRating)
	assert.Len(t, rec.ConservationTips, len(staticTips)+1)
}

func TestRecommend_HeavyRainSkips(t *testing.T) {
	rec, err := testEngine().Recommend(balance(100, 200), rainForecast(5, 15, 5, 30), entities.ETResult{}, mildWeather, 1)
	require.NoError(t, err)

	assert.Equal(t, entities.StatusSkip, rec.Status)
	assert.Equal(t, entities.ActionWaitForRain, rec.Action)
	assert.Equal(t, entities.PriorityLow, rec.Priority)
	assert.Zero(t, rec.WaterAmountLiters)
	assert.Equal(t, 25.0, rec.UpcomingRainMM)
	assert.Equal(t, fixedNow.Add(72*time.Hour), rec.NextAssessmentAt)
	assert.Equal(t, 400.0, rec.EnvironmentalImpact.WaterSavedLiters)
	assert.Equal(t, "high", rec.EnvironmentalImpact.SustainabilityRating)
}

func TestRecommend_Optimal(t *testing.T) {
	b := balance(150, 200)
	require.True(t, b.IsOptimal)

	rec, err := testEngine().Recommend(b, rainForecast(0, 0, 0), entities.ETResult{}, mildWeather, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusOptimal, rec.Status)
	assert.Equal(t, entities.ActionMonitor, rec.Action)
	assert.Zero(t, rec.WaterAmountLiters)
	assert.Equal(t, fixedNow.Add(48*time.Hour), rec.NextAssessmentAt)
}

func TestRecommend_NeededAndMonitor(t *testing.T) {
	rec, err := testEngine().Recommend(balance(80, 200), rainForecast(1, 1), entities.ETResult{}, mildWeather, 2)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusNeeded, rec.Status)
	assert.Equal(t, entities.PriorityMedium, rec.Priority)
	assert.Equal(t, 1200.0, rec.WaterAmountLiters) // (140-80) × 2 ha × 10
	assert.Equal(t, "medium", rec.EnvironmentalImpact.SustainabilityRating)
	assert.Equal(t, fixedNow.Add(24*time.Hour), rec.NextAssessmentAt)

	rec, err = testEngine().Recommend(balance(110, 200), rainForecast(3), entities.ETResult{}, mildWeather, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusMonitor, rec.Status)
	assert.Equal(t, entities.ActionAssessTomorrow, rec.Action)
	assert.Equal(t, "tomorrow", rec.TimingWindow)
}

func TestRecommend_CriticalTakesPrecedence(t *testing.T) {
	hot := entities.WeatherSnapshot{Temperature: 40, Humidity: 5, WindSpeed: 12}
	for _, rain := range []float64{0, 4.9, 9.99} {
		b := balance(10, 200)
		b.IsOptimal = true // incoerente di proposito: la regola 1 vince comunque
		rec, err := testEngine().Recommend(b, rainForecast(rain), entities.ETResult{ET0: 9}, hot, 3.5)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusUrgent, rec.Status, "rain %.2f", rain)
	}
}

func TestRecommend_InvalidInput(t *testing.T) {
	_, err := testEngine().Recommend(balance(40, 200), rainForecast(), entities.ETResult{}, mildWeather, 0)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = testEngine().Recommend(entities.WaterBalance{}, rainForecast(), entities.ETResult{}, mildWeather, 1)
	var ce *apperr.CalculationError
	require.ErrorAs(t, err, &ce)
}

func TestOptimalTimes(t *testing.T) {
	cases := []struct {
		temp       float64
		start, end string
	}{
		{32, "18:30", "20:00"},
		{30, "18:00", "19:30"},
		{22, "18:00", "19:30"},
		{10, "17:30", "19:00"},
	}
	for _, c := range cases {
		w := OptimalTimes(c.temp)
		require.Len(t, w, 3)
		assert.Equal(t, "05:30", w[0].Start)
		assert.Equal(t, 95.0, w[0].Efficiency)
		assert.Equal(t, c.start, w[1].Start, "temp %.0f", c.temp)
		assert.Equal(t, c.end, w[1].End, "temp %.0f", c.temp)
		assert.Equal(t, 85.0, w[1].Efficiency)
		assert.True(t, w[2].Avoid)
		assert.Equal(t, 45.0, w[2].Efficiency)
	}
}

func TestConservationTips(t *testing.T) {
	assert.Len(t, ConservationTips(entities.StatusOptimal, 3), len(staticTips))
	assert.Len(t, ConservationTips(entities.StatusOptimal, 6), len(staticTips)+1)
	assert.Len(t, ConservationTips(entities.StatusUrgent, 6), len(staticTips)+2)
	// la slice statica non deve essere modificata
	_ = ConservationTips(entities.StatusUrgent, 9)
	assert.Len(t, staticTips, 3)
}

func TestCostConfig_Custom(t *testing.T) {
	c := CostConfig{WaterPerLiter: 0.01, Currency: "EUR"}.withDefaults()
	est := c.Estimate(1000)
	assert.Equal(t, 10.0, est.WaterCost)
	assert.Equal(t, 0.5, est.EnergyCost)
	assert.Equal(t, 10.5, est.Total)
	assert.Equal(t, "EUR", est.Currency)
}
