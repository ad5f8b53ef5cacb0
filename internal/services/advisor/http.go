package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

// DataSource is the part of the data gateway exposed for diagnostics.
type DataSource interface {
	CurrentWeather(ctx context.Context, p entities.GeoPoint) (entities.WeatherSnapshot, error)
	Forecast(ctx context.Context, p entities.GeoPoint, days int) (entities.Forecast, error)
	History(ctx context.Context, p entities.GeoPoint, from, to time.Time) (entities.History, error)
	SoilProfile(ctx context.Context, p entities.GeoPoint) (entities.SoilProfile, error)
	SoilComposition(ctx context.Context, p entities.GeoPoint) (entities.SoilComposition, error)
	SoilHealth(ctx context.Context, p entities.GeoPoint) (entities.SoilHealth, error)
}

const maxBodyBytes = 1 << 20

// HTTPHandler serves the REST API.
type HTTPHandler struct {
	advisor *Advisor
	data    DataSource
	timeout time.Duration
	log     *zap.Logger
}

func NewHTTPHandler(a *Advisor, data DataSource, timeout time.Duration, log *zap.Logger) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPHandler{advisor: a, data: data, timeout: timeout, log: log}
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/recommendations", h.Recommend).Methods(http.MethodPost)
	r.HandleFunc("/v1/weather/current", h.CurrentWeather).Methods(http.MethodGet)
	r.HandleFunc("/v1/weather/forecast", h.Forecast).Methods(http.MethodGet)
	r.HandleFunc("/v1/weather/history", h.History).Methods(http.MethodGet)
	r.HandleFunc("/v1/soil", h.Soil).Methods(http.MethodGet)
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SoilReport groups the three soil accessors.
type SoilReport struct {
	Profile     entities.SoilProfile     `json:"profile"`
	Composition entities.SoilComposition `json:"composition"`
	Health      entities.SoilHealth      `json:"health"`
}

// Recommend handles POST /v1/recommendations.
func (h *HTTPHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req model.RecommendationRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, apperr.NewValidation("body", "invalid JSON: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	evt, err := h.advisor.Advise(ctx, "http", req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// CurrentWeather handles GET /v1/weather/current?lat=&lon=.
func (h *HTTPHandler) CurrentWeather(w http.ResponseWriter, r *http.Request) {
	p, err := pointFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.data.CurrentWeather(ctx, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Forecast handles GET /v1/weather/forecast?lat=&lon=[&days=7].
func (h *HTTPHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	p, err := pointFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	days := 0
	if v := strings.TrimSpace(r.URL.Query().Get("days")); v != "" {
		if days, err = strconv.Atoi(v); err != nil {
			h.writeError(w, apperr.NewValidation("days", "must be an integer"))
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	fc, err := h.data.Forecast(ctx, p, days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// History handles GET /v1/weather/history?lat=&lon=&from=2024-01-01&to=2024-01-07.
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	p, err := pointFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	q := r.URL.Query()
	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		h.writeError(w, apperr.NewValidation("from", "expected YYYY-MM-DD"))
		return
	}
	to, err := time.Parse(time.DateOnly, q.Get("to"))
	if err != nil {
		h.writeError(w, apperr.NewValidation("to", "expected YYYY-MM-DD"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	hist, err := h.data.History(ctx, p, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// Soil handles GET /v1/soil?lat=&lon=; the three lookups run in parallel.
func (h *HTTPHandler) Soil(w http.ResponseWriter, r *http.Request) {
	p, err := pointFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var out SoilReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Profile, err = h.data.SoilProfile(gctx, p)
		return err
	})
	g.Go(func() (err error) {
		out.Composition, err = h.data.SoilComposition(gctx, p)
		return err
	})
	g.Go(func() (err error) {
		out.Health, err = h.data.SoilHealth(gctx, p)
		return err
	})
	if err := g.Wait(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func pointFromQuery(r *http.Request) (entities.GeoPoint, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		return entities.GeoPoint{}, apperr.NewValidation("lat", "must be a number")
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if err != nil {
		return entities.GeoPoint{}, apperr.NewValidation("lon", "must be a number")
	}
	return entities.NewGeoPoint(lat, lon)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := apperr.HTTPStatus(err)
	var rle *apperr.RateLimitError
	if errors.As(err, &rle) {
		secs := int(math.Ceil(rle.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Int("code", code), zap.Error(err))
	}
	writeJSON(w, code, ErrorResponse{Error: apperr.Kind(err), Message: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
