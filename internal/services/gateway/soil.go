package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/upstream"
)

// soilProvider talks to the OAuth-protected soil API.
type soilProvider struct {
	client *upstream.Client
	tokens *upstream.TokenManager
	log    *zap.Logger
}

// get performs an authenticated GET. A 401 means the cached token was
// revoked early: it is dropped and the call is repeated once with a fresh one.
func (s *soilProvider) get(ctx context.Context, path string, p entities.GeoPoint) (payload, error) {
	if s.client == nil || s.tokens == nil {
		return nil, errNotConfigured
	}
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", p.Latitude))
	q.Set("lon", fmt.Sprintf("%f", p.Longitude))

	var out payload
	for attempt := 0; ; attempt++ {
		tok, err := s.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		err = s.client.GetJSON(ctx, path, q, tok, &out)
		var ue *apperr.UpstreamError
		if attempt == 0 && errors.As(err, &ue) && ue.StatusCode == http.StatusUnauthorized {
			s.log.Warn("soil token rejected, refreshing", zap.String("endpoint", path))
			s.tokens.Invalidate()
			continue
		}
		if err != nil {
			return nil, err
		}
		return out.obj("data", "properties", "result"), nil
	}
}

func (s *soilProvider) profile(ctx context.Context, p entities.GeoPoint) (entities.SoilProfile, error) {
	raw, err := s.get(ctx, "/soil/properties", p)
	if err != nil {
		return entities.SoilProfile{}, err
	}
	t := entities.ParseSoilType(raw.str("soil_type", "texture", "type", "texture_class"))
	prof := entities.SoilProfile{Source: entities.SourceProvider}.WithType(t)
	if v, ok := raw.num("ph", "phh2o", "pH"); ok {
		// alcune API riportano pH×10 (es. 65 → 6.5)
		if v > 14 {
			v /= 10
		}
		prof.PH = round2(v)
	}
	if v, ok := raw.num("organic_matter", "organic_matter_pct", "om", "soc"); ok {
		prof.OrganicMatter = round2(v)
	}
	return prof, nil
}

func (s *soilProvider) composition(ctx context.Context, p entities.GeoPoint) (entities.SoilComposition, error) {
	raw, err := s.get(ctx, "/soil/composition", p)
	if err != nil {
		return entities.SoilComposition{}, err
	}
	sand, okSand := raw.num("sand", "sand_pct")
	silt, okSilt := raw.num("silt", "silt_pct")
	clay, okClay := raw.num("clay", "clay_pct")
	if !okSand || !okSilt || !okClay {
		return entities.SoilComposition{}, fmt.Errorf("soil composition: missing sand/silt/clay")
	}
	// g/kg (SoilGrids) → percentuale
	if sand+silt+clay > 150 {
		sand, silt, clay = sand/10, silt/10, clay/10
	}
	return entities.SoilComposition{
		Sand:    round1(sand),
		Silt:    round1(silt),
		Clay:    round1(clay),
		Texture: entities.ClassifyTexture(sand, silt, clay),
		Source:  entities.SourceProvider,
	}, nil
}

func (s *soilProvider) health(ctx context.Context, p entities.GeoPoint) (entities.SoilHealth, error) {
	raw, err := s.get(ctx, "/soil/health", p)
	if err != nil {
		return entities.SoilHealth{}, err
	}
	score, ok := raw.num("score", "health_score", "soil_health_index")
	if !ok {
		return entities.SoilHealth{}, fmt.Errorf("soil health: missing score")
	}
	score = clampScore(score)
	nutrients := raw.obj("nutrients")
	h := entities.SoilHealth{
		Score:  round1(score),
		Rating: entities.HealthRating(score),
		Source: entities.SourceProvider,
	}
	h.Nitrogen, _ = nutrients.num("nitrogen", "n")
	h.Phosphorus, _ = nutrients.num("phosphorus", "p")
	h.Potassium, _ = nutrients.num("potassium", "k")
	if v, ok := raw.num("moisture", "moisture_pct", "soil_moisture"); ok {
		// frazione 0..1 → percentuale
		if v <= 1 {
			v *= 100
		}
		h.Moisture = round1(v)
	}
	return h, nil
}

// clampScore clamps a score to 0..100, scaling 0..1 indices up.
func clampScore(v float64) float64 {
	if v > 0 && v <= 1 {
		v *= 100
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
