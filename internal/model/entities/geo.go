package entities

import (
	"fmt"
	"math"

	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

// GeoPoint is a WGS84 coordinate. Build it with NewGeoPoint so the range
// checks are applied once; the value is never mutated afterwards.
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func NewGeoPoint(lat, lon float64) (GeoPoint, error) {
	p := GeoPoint{Latitude: lat, Longitude: lon}
	if err := p.Validate(); err != nil {
		return GeoPoint{}, err
	}
	return p, nil
}

func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return apperr.NewValidation("lat", fmt.Sprintf("latitude %v out of range [-90,90]", p.Latitude))
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return apperr.NewValidation("lon", fmt.Sprintf("longitude %v out of range [-180,180]", p.Longitude))
	}
	return nil
}

// Rounded returns the point truncated to 4 decimals (~11 m), the precision
// used for cache keys and synthetic seeds.
func (p GeoPoint) Rounded() GeoPoint {
	return GeoPoint{
		Latitude:  math.Round(p.Latitude*1e4) / 1e4,
		Longitude: math.Round(p.Longitude*1e4) / 1e4,
	}
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Latitude, p.Longitude)
}
