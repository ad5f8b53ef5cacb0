package advisor

import (
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
)

// Measurement is the InfluxDB measurement written by the recorder.
const Measurement = "irrigation_recommendation"

// Recorder writes recommendation events to InfluxDB through the async
// WriteAPI and tracks the last write error for /healthz and /readyz.
type Recorder struct {
	api     api.WriteAPI
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
	now     func() time.Time
	log     *zap.Logger
}

// NewRecorder starts the listener of the asynchronous Influx errors; it ends
// when the client is closed.
func NewRecorder(w api.WriteAPI, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		api:    w,
		counts: make(map[string]int64),
		now:    time.Now,
		log:    log,
	}
	r.lastErr = r.now().Add(-24 * time.Hour) // di default "lontano nel tempo"
	go func() {
		for err := range w.Errors() {
			if err != nil {
				r.mu.Lock()
				r.lastErr = r.now()
				r.mu.Unlock()
				r.log.Warn("influx write error", zap.Error(err))
			}
		}
	}()
	return r
}

// Record is an advisor Sink.
func (r *Recorder) Record(evt model.RecommendationEvent) {
	r.api.WritePoint(EventToPoint(evt))

	key := "ok"
	if evt.ErrorKind != "" {
		key = evt.ErrorKind
	}
	r.mu.Lock()
	r.counts[key]++
	r.mu.Unlock()
}

// LastErrorAge returns how long ago the last write error happened.
func (r *Recorder) LastErrorAge() time.Duration {
	if r == nil {
		return 99999 * time.Hour
	}
	r.mu.RLock()
	t := r.lastErr
	r.mu.RUnlock()
	return r.now().Sub(t)
}

// Count returns how many events were recorded with outcome "ok" or the
// given error kind.
func (r *Recorder) Count(outcome string) int64 {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[outcome]
}

func (r *Recorder) Flush() { r.api.Flush() }

// EventToPoint normalises a RecommendationEvent into an Influx point.
func EventToPoint(evt model.RecommendationEvent) *write.Point {
	// Tag (solo stringhe, cardinalità bassa)
	tags := map[string]string{
		"crop_type":    evt.CropType,
		"growth_stage": evt.GrowthStage,
	}
	if evt.FieldID != "" {
		tags["field_id"] = evt.FieldID
	}

	fields := map[string]interface{}{
		"event_id":   evt.ID,
		"request_id": evt.RequestID,
		"lat":        evt.Latitude,
		"lon":        evt.Longitude,
		"count":      int64(1),
	}

	if rec := evt.Recommendation; rec != nil {
		tags["status"] = string(rec.Status)
		tags["priority"] = string(rec.Priority)
		tags["degraded"] = strconv.FormatBool(rec.Degraded)

		fields["water_amount_liters"] = rec.WaterAmountLiters
		fields["moisture_pct"] = rec.Balance.MoisturePercentage
		fields["current_moisture_mm"] = rec.Balance.CurrentMoisture
		fields["total_capacity_mm"] = rec.Balance.TotalCapacity
		fields["et0_mm_day"] = rec.ET.ET0
		fields["etc_mm_day"] = rec.ET.ETc
		fields["upcoming_rain_mm"] = rec.UpcomingRainMM
		fields["cost_total"] = rec.CostEstimate.Total
		fields["co2_kg"] = rec.EnvironmentalImpact.CO2Kg
		fields["water_saved_liters"] = rec.EnvironmentalImpact.WaterSavedLiters
	} else {
		tags["status"] = "error"
		tags["error_kind"] = evt.ErrorKind
		fields["error"] = evt.Error
		if evt.RetryAfterSec > 0 {
			fields["retry_after_s"] = evt.RetryAfterSec
		}
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return influxdb2.NewPoint(Measurement, tags, fields, ts)
}
