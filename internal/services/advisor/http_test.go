package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

type fakeData struct {
	err      error
	soilErr  error
	lastDays int
	from, to time.Time
}

func (f *fakeData) CurrentWeather(_ context.Context, p entities.GeoPoint) (entities.WeatherSnapshot, error) {
	return entities.WeatherSnapshot{Temperature: 24, Humidity: 55, Source: entities.SourceProvider}, f.err
}

func (f *fakeData) Forecast(_ context.Context, _ entities.GeoPoint, days int) (entities.Forecast, error) {
	f.lastDays = days
	return entities.Forecast{Days: make([]entities.ForecastDay, max(days, 1)), Source: entities.SourceProvider}, f.err
}

func (f *fakeData) History(_ context.Context, _ entities.GeoPoint, from, to time.Time) (entities.History, error) {
	f.from, f.to = from, to
	return entities.History{Source: entities.SourceSynthetic}, f.err
}

func (f *fakeData) SoilProfile(context.Context, entities.GeoPoint) (entities.SoilProfile, error) {
	return entities.SoilProfile{Source: entities.SourceProvider}.WithType(entities.SoilLoam), f.soilErr
}

func (f *fakeData) SoilComposition(context.Context, entities.GeoPoint) (entities.SoilComposition, error) {
	return entities.SoilComposition{Sand: 40, Silt: 40, Clay: 20, Texture: entities.SoilLoam}, nil
}

func (f *fakeData) SoilHealth(context.Context, entities.GeoPoint) (entities.SoilHealth, error) {
	return entities.SoilHealth{Score: 72}, nil
}

func newTestRouter(svc Recommender, data DataSource) *mux.Router {
	r := mux.NewRouter()
	NewHTTPHandler(newTestAdvisor(svc, &eventLog{}), data, time.Second, nil).RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/recommendations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHTTP_RecommendOK(t *testing.T) {
	raw, err := json.Marshal(sampleRequest())
	require.NoError(t, err)

	rr := postJSON(t, newTestRouter(&fakeRecommender{rec: urgentRec()}, &fakeData{}), string(raw))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var evt model.RecommendationEvent
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&evt))
	require.NotNil(t, evt.Recommendation)
	assert.Equal(t, 1200.0, evt.Recommendation.WaterAmountLiters)
	assert.Equal(t, "field_1", evt.FieldID)
	assert.NotEmpty(t, evt.ID)
}

func TestHTTP_RecommendErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"validation", apperr.NewValidation("field_size_hectares", "must be greater than 0"), http.StatusBadRequest, apperr.KindValidation},
		{"rate limited", &apperr.RateLimitError{RetryAfter: 39200 * time.Millisecond}, http.StatusTooManyRequests, apperr.KindRateLimited},
		{"upstream", fmt.Errorf("%w: forecast: boom", apperr.ErrUpstreamUnavailable), http.StatusServiceUnavailable, apperr.KindUpstream},
		{"calculation", apperr.NewCalculation("total capacity is zero"), http.StatusUnprocessableEntity, apperr.KindCalculation},
		{"internal", errors.New("boom"), http.StatusInternalServerError, apperr.KindInternal},
	}
	raw, _ := json.Marshal(sampleRequest())
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := postJSON(t, newTestRouter(&fakeRecommender{err: c.err}, &fakeData{}), string(raw))
			assert.Equal(t, c.code, rr.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, c.kind, body.Error)
			assert.Equal(t, c.code, body.Code)
			if c.code == http.StatusTooManyRequests {
				assert.Equal(t, "40", rr.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rr.Header().Get("Retry-After"))
			}
		})
	}
}

func TestHTTP_RecommendBadJSON(t *testing.T) {
	svc := &fakeRecommender{rec: urgentRec()}
	rr := postJSON(t, newTestRouter(svc, &fakeData{}), `{"lat": "north"`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, svc.calls())
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&fakeRecommender{}, &fakeData{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHTTP_CurrentWeather(t *testing.T) {
	h := newTestRouter(&fakeRecommender{}, &fakeData{})

	rr := get(t, h, "/v1/weather/current?lat=-1.29&lon=36.82")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap entities.WeatherSnapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	assert.Equal(t, 24.0, snap.Temperature)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/weather/current?lat=abc&lon=36").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/weather/current?lat=91&lon=36").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/weather/current?lat=1").Code)
}

func TestHTTP_ForecastDays(t *testing.T) {
	data := &fakeData{}
	h := newTestRouter(&fakeRecommender{}, data)

	require.Equal(t, http.StatusOK, get(t, h, "/v1/weather/forecast?lat=1&lon=2&days=5").Code)
	assert.Equal(t, 5, data.lastDays)

	require.Equal(t, http.StatusOK, get(t, h, "/v1/weather/forecast?lat=1&lon=2").Code)
	assert.Equal(t, 0, data.lastDays)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/weather/forecast?lat=1&lon=2&days=x").Code)

	data.err = &apperr.RateLimitError{RetryAfter: time.Second}
	rr := get(t, h, "/v1/weather/forecast?lat=1&lon=2")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestHTTP_History(t *testing.T) {
	data := &fakeData{}
	h := newTestRouter(&fakeRecommender{}, data)

	rr := get(t, h, "/v1/weather/history?lat=1&lon=2&from=2024-06-01&to=2024-06-03")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), data.from)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), data.to)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/weather/history?lat=1&lon=2&from=yesterday&to=2024-06-03").Code)
}

func TestHTTP_Soil(t *testing.T) {
	data := &fakeData{}
	h := newTestRouter(&fakeRecommender{}, data)

	rr := get(t, h, "/v1/soil?lat=1&lon=2")
	require.Equal(t, http.StatusOK, rr.Code)
	var rep SoilReport
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rep))
	assert.Equal(t, entities.SoilLoam, rep.Profile.Type)
	assert.Equal(t, 40.0, rep.Composition.Sand)
	assert.Equal(t, 72.0, rep.Health.Score)

	data.soilErr = fmt.Errorf("%w: soil profile", apperr.ErrUpstreamUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/v1/soil?lat=1&lon=2").Code)
}

type fakeBreaker struct {
	name  string
	state gobreaker.State
}

func (f fakeBreaker) Name() string                  { return f.name }
func (f fakeBreaker) BreakerState() gobreaker.State { return f.state }

func TestHealth(t *testing.T) {
	client := &fakeClient{connected: true}
	cfg := HealthConfig{
		MQTT:      client,
		Providers: []BreakerReporter{fakeBreaker{"owm", gobreaker.StateClosed}, fakeBreaker{"soil", gobreaker.StateOpen}},
	}

	rr := get(t, NewHealthHandler(cfg), "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	var st map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	assert.Equal(t, "degraded", st["status"])
	assert.Equal(t, map[string]any{"owm": "closed", "soil": "open"}, st["breakers"])

	// open breakers do not make the service unready
	assert.Equal(t, http.StatusOK, get(t, NewReadyHandler(cfg), "/readyz").Code)

	client.connected = false
	assert.Equal(t, http.StatusServiceUnavailable, get(t, NewReadyHandler(cfg), "/readyz").Code)

	rr = get(t, NewHealthHandler(HealthConfig{}), "/healthz")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHTTP_RequestBodyLimit(t *testing.T) {
	svc := &fakeRecommender{rec: urgentRec()}
	big := bytes.Repeat([]byte(" "), maxBodyBytes+10)
	rr := postJSON(t, newTestRouter(svc, &fakeData{}), string(big)+`{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, svc.calls())
}
