package irrigation

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/metrics"
)

// DataSource is the subset of the data gateway the service needs.
type DataSource interface {
	CurrentWeather(ctx context.Context, p entities.GeoPoint) (entities.WeatherSnapshot, error)
	Forecast(ctx context.Context, p entities.GeoPoint, days int) (entities.Forecast, error)
	SoilProfile(ctx context.Context, p entities.GeoPoint) (entities.SoilProfile, error)
}

// Request is the input of ComputeIrrigationRecommendation. SoilTypeHint and
// LastIrrigationAt are optional.
type Request struct {
	Location          entities.GeoPoint
	Crop              entities.CropContext
	SoilTypeHint      *string
	FieldSizeHectares float64
	LastIrrigationAt  *time.Time
}

func (r Request) Validate(now time.Time) error {
	if err := r.Location.Validate(); err != nil {
		return err
	}
	if err := r.Crop.Validate(); err != nil {
		return err
	}
	if math.IsNaN(r.FieldSizeHectares) || r.FieldSizeHectares <= 0 {
		return apperr.NewValidation("field_size_hectares", "must be greater than 0")
	}
	if r.LastIrrigationAt != nil && r.LastIrrigationAt.After(now) {
		return apperr.NewValidation("last_irrigation_at", "must not be in the future")
	}
	return nil
}

// Service runs the full pipeline: parallel fetch, ET, balance, rules.
type Service struct {
	data         DataSource
	model        BalanceModel
	engine       *Engine
	forecastDays int
	now          func() time.Time
	log          *zap.Logger
	metrics      *metrics.Collector
}

func NewService(data DataSource, model BalanceModel, engine *Engine, log *zap.Logger, m *metrics.Collector) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if engine == nil {
		engine = NewEngine(EngineConfig{})
	}
	model = model.withDefaults()
	return &Service{
		data:         data,
		model:        model,
		engine:       engine,
		forecastDays: forecastDaysFor(model),
		now:          time.Now,
		log:          log,
		metrics:      m,
	}
}

// forecastDaysFor covers the default rain window of the balance model and the
// engine lookahead. Known days-since-irrigation beyond it only see the
// forecast the provider returned.
func forecastDaysFor(m BalanceModel) int {
	return min(max(m.DefaultDays, rainLookaheadDays), 16)
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.engine.WithClock(now)
	return s
}

// ComputeIrrigationRecommendation fails only with a validation error, a
// rate-limit error, apperr.ErrUpstreamUnavailable (fallback disabled) or a
// calculation error. Degraded is set when any input was synthetic.
func (s *Service) ComputeIrrigationRecommendation(ctx context.Context, req Request) (entities.IrrigationRecommendation, error) {
	start := time.Now()
	now := s.now()
	if err := req.Validate(now); err != nil {
		return entities.IrrigationRecommendation{}, err
	}

	var (
		weather  entities.WeatherSnapshot
		forecast entities.Forecast
		soil     entities.SoilProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		weather, err = s.data.CurrentWeather(gctx, req.Location)
		return err
	})
	g.Go(func() (err error) {
		forecast, err = s.data.Forecast(gctx, req.Location, s.forecastDays)
		return err
	})
	g.Go(func() (err error) {
		soil, err = s.data.SoilProfile(gctx, req.Location)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("recommendation inputs unavailable",
			zap.String("location", req.Location.String()),
			zap.String("kind", apperr.Kind(err)),
			zap.Error(err))
		return entities.IrrigationRecommendation{}, err
	}

	if req.SoilTypeHint != nil && strings.TrimSpace(*req.SoilTypeHint) != "" {
		// l'indicazione dell'agricoltore prevale sul dato del provider
		soil = soil.WithType(entities.ParseSoilType(*req.SoilTypeHint))
	}

	et, err := ComputeETc(weather, req.Crop)
	if err != nil {
		return entities.IrrigationRecommendation{}, err
	}
	days := -1
	if req.LastIrrigationAt != nil {
		days = int(now.Sub(*req.LastIrrigationAt).Hours() / 24)
	}
	balance, err := s.model.ComputeBalance(et.ETc, forecast, soil, req.Crop.RootDepth(), days)
	if err != nil {
		return entities.IrrigationRecommendation{}, err
	}
	rec, err := s.engine.Recommend(balance, forecast, et, weather, req.FieldSizeHectares)
	if err != nil {
		return entities.IrrigationRecommendation{}, err
	}

	rec.DataSources = map[string]entities.DataSource{
		"weather":  weather.Source,
		"forecast": forecast.Source,
		"soil":     soil.Source,
	}
	for _, src := range rec.DataSources {
		if src == entities.SourceSynthetic {
			rec.Degraded = true
		}
	}

	s.metrics.RecordRecommendation(string(rec.Status), rec.Degraded, time.Since(start))
	s.log.Info("recommendation computed",
		zap.String("location", req.Location.String()),
		zap.String("crop", req.Crop.CropType),
		zap.String("stage", string(req.Crop.GrowthStage)),
		zap.String("status", string(rec.Status)),
		zap.Float64("liters", rec.WaterAmountLiters),
		zap.Float64("moisture_pct", balance.MoisturePercentage),
		zap.Bool("degraded", rec.Degraded))
	return rec, nil
}
