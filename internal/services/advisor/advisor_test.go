package advisor

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/services/irrigation"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

var fixedNow = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

type fakeRecommender struct {
	mu   sync.Mutex
	rec  entities.IrrigationRecommendation
	err  error
	last irrigation.Request
	hits int
}

func (f *fakeRecommender) ComputeIrrigationRecommendation(_ context.Context, req irrigation.Request) (entities.IrrigationRecommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	f.last = req
	return f.rec, f.err
}

func (f *fakeRecommender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func urgentRec() entities.IrrigationRecommendation {
	return entities.IrrigationRecommendation{
		Status:            entities.StatusUrgent,
		Priority:          entities.PriorityHigh,
		Action:            entities.ActionIrrigateNow,
		WaterAmountLiters: 1200,
		Balance:           entities.WaterBalance{CurrentMoisture: 40, TotalCapacity: 200, MoisturePercentage: 20, IsCritical: true},
		ET:                entities.ETResult{ET0: 6, ETc: 7.2, Kc: 1.2},
		CostEstimate:      entities.CostEstimate{Total: 3, Currency: "USD"},
		GeneratedAt:       fixedNow,
	}
}

func sampleRequest() model.RecommendationRequest {
	return model.RecommendationRequest{
		FieldID:           "field_1",
		Latitude:          -1.2921,
		Longitude:         36.8219,
		CropType:          "maize",
		GrowthStage:       "mid",
		FieldSizeHectares: 1,
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []model.RecommendationEvent
}

func (l *eventLog) sink(evt model.RecommendationEvent) {
	l.mu.Lock()
	l.events = append(l.events, evt)
	l.mu.Unlock()
}

func (l *eventLog) all() []model.RecommendationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.RecommendationEvent(nil), l.events...)
}

func newTestAdvisor(svc Recommender, log *eventLog) *Advisor {
	a := NewAdvisor(svc, nil, nil, log.sink).WithClock(func() time.Time { return fixedNow })
	n := 0
	a.newID = func() string {
		n++
		return "id-" + strconv.Itoa(n)
	}
	return a
}

func TestAdvise_Success(t *testing.T) {
	svc := &fakeRecommender{rec: urgentRec()}
	log := &eventLog{}
	evt, err := newTestAdvisor(svc, log).Advise(context.Background(), "test", sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "id-2", evt.ID)
	assert.Equal(t, "id-1", evt.RequestID)
	assert.Equal(t, "field_1", evt.FieldID)
	assert.Equal(t, fixedNow, evt.Timestamp)
	require.NotNil(t, evt.Recommendation)
	assert.Equal(t, entities.StatusUrgent, evt.Recommendation.Status)
	assert.Empty(t, evt.Error)

	require.Len(t, log.all(), 1)
	assert.Equal(t, evt, log.all()[0])
}

func TestAdvise_KeepsCallerRequestID(t *testing.T) {
	req := sampleRequest()
	req.RequestID = "req-42"
	evt, err := newTestAdvisor(&fakeRecommender{rec: urgentRec()}, &eventLog{}).Advise(context.Background(), "test", req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", evt.RequestID)
	assert.Equal(t, "id-1", evt.ID)
}

func TestAdvise_InvalidStageNeverReachesPipeline(t *testing.T) {
	svc := &fakeRecommender{rec: urgentRec()}
	log := &eventLog{}
	req := sampleRequest()
	req.GrowthStage = "ripening"

	evt, err := newTestAdvisor(svc, log).Advise(context.Background(), "test", req)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, svc.calls())
	assert.Nil(t, evt.Recommendation)
	assert.Equal(t, apperr.KindValidation, evt.ErrorKind)
	assert.NotEmpty(t, evt.Error)
	assert.Len(t, log.all(), 1)
}

func TestAdvise_RateLimitCarriesRetryAfter(t *testing.T) {
	svc := &fakeRecommender{err: &apperr.RateLimitError{RetryAfter: 40 * time.Second}}
	evt, err := newTestAdvisor(svc, &eventLog{}).Advise(context.Background(), "test", sampleRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, evt.ErrorKind)
	assert.Equal(t, 40.0, evt.RetryAfterSec)
}

func TestAdvise_CancelledNotRecorded(t *testing.T) {
	log := &eventLog{}
	svc := &fakeRecommender{err: context.Canceled}
	_, err := newTestAdvisor(svc, log).Advise(context.Background(), "test", sampleRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log.all())
}

func TestToRequest(t *testing.T) {
	loc := time.FixedZone("EAT", 3*3600)
	last := time.Date(2024, 6, 29, 11, 0, 0, 0, loc)
	hint := "Clay Loam"

	r := sampleRequest()
	r.GrowthStage = " MID "
	r.CropType = " maize "
	r.RootDepthMeters = 1.2
	r.SoilType = &hint
	r.LastIrrigationAt = &last

	req, err := ToRequest(r)
	require.NoError(t, err)
	assert.Equal(t, entities.StageMid, req.Crop.GrowthStage)
	assert.Equal(t, "maize", req.Crop.CropType)
	assert.Equal(t, 1.2, req.Crop.RootDepthMeters)
	assert.Equal(t, &hint, req.SoilTypeHint)
	require.NotNil(t, req.LastIrrigationAt)
	assert.Equal(t, time.UTC, req.LastIrrigationAt.Location())
	assert.True(t, last.Equal(*req.LastIrrigationAt))
	assert.Equal(t, entities.GeoPoint{Latitude: -1.2921, Longitude: 36.8219}, req.Location)
}
