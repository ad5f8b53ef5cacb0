// Package advisor exposes the recommendation pipeline over HTTP, gRPC and
// MQTT, and records every served request as a RecommendationEvent.
package advisor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/services/irrigation"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
)

// Recommender is implemented by irrigation.Service.
type Recommender interface {
	ComputeIrrigationRecommendation(ctx context.Context, req irrigation.Request) (entities.IrrigationRecommendation, error)
}

// Sink receives every event produced by the advisor (Influx recorder, tests).
type Sink func(evt model.RecommendationEvent)

// Advisor is the transport-independent entry point: it converts the wire
// request, runs the pipeline and builds the outbound event.
type Advisor struct {
	svc     Recommender
	sinks   []Sink
	now     func() time.Time
	newID   func() string
	log     *zap.Logger
	metrics *metrics.Collector
}

func NewAdvisor(svc Recommender, log *zap.Logger, m *metrics.Collector, sinks ...Sink) *Advisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Advisor{
		svc:     svc,
		sinks:   sinks,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     log,
		metrics: m,
	}
}

func (a *Advisor) WithClock(now func() time.Time) *Advisor {
	a.now = now
	return a
}

// ToRequest converts the wire payload into the pipeline input.
func ToRequest(r model.RecommendationRequest) (irrigation.Request, error) {
	stage, err := entities.ParseGrowthStage(r.GrowthStage)
	if err != nil {
		return irrigation.Request{}, err
	}
	req := irrigation.Request{
		Location: entities.GeoPoint{Latitude: r.Latitude, Longitude: r.Longitude},
		Crop: entities.CropContext{
			CropType:        strings.TrimSpace(r.CropType),
			GrowthStage:     stage,
			RootDepthMeters: r.RootDepthMeters,
		},
		SoilTypeHint:      r.SoilType,
		FieldSizeHectares: r.FieldSizeHectares,
	}
	if r.LastIrrigationAt != nil {
		t := r.LastIrrigationAt.UTC()
		req.LastIrrigationAt = &t
	}
	return req, nil
}

// Advise runs one request end to end. The returned event is always filled
// in, also on failure, so transports can publish it as is.
func (a *Advisor) Advise(ctx context.Context, transport string, r model.RecommendationRequest) (model.RecommendationEvent, error) {
	if strings.TrimSpace(r.RequestID) == "" {
		r.RequestID = a.newID()
	}
	evt := model.RecommendationEvent{
		ID:          a.newID(),
		RequestID:   r.RequestID,
		FieldID:     r.FieldID,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		CropType:    r.CropType,
		GrowthStage: r.GrowthStage,
	}

	req, err := ToRequest(r)
	if err == nil {
		var rec entities.IrrigationRecommendation
		rec, err = a.svc.ComputeIrrigationRecommendation(ctx, req)
		if err == nil {
			evt.Recommendation = &rec
		}
	}
	evt.Timestamp = a.now().UTC()

	outcome := "ok"
	if err != nil {
		outcome = apperr.Kind(err)
		evt.Error = err.Error()
		evt.ErrorKind = outcome
		var rle *apperr.RateLimitError
		if errors.As(err, &rle) {
			evt.RetryAfterSec = rle.RetryAfter.Seconds()
		}
		a.log.Warn("recommendation failed",
			zap.String("transport", transport),
			zap.String("request_id", evt.RequestID),
			zap.String("field_id", evt.FieldID),
			zap.String("kind", outcome),
			zap.Error(err))
	}
	a.metrics.RecordRequest(transport, outcome)

	// il client ha abbandonato: niente evento da registrare
	if !errors.Is(err, context.Canceled) {
		for _, sink := range a.sinks {
			sink(evt)
		}
	}
	return evt, err
}
