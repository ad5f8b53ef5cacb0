package messages

import (
	"time"

	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
)

// RecommendationEvent è pubblicato dall'advisor per ogni richiesta servita.
// ID è assegnato dal trasporto; su errore Recommendation è nil e Error/ErrorKind
// spiegano il motivo.
type RecommendationEvent struct {
	ID             string                             `json:"id"`
	RequestID      string                             `json:"request_id,omitempty"`
	FieldID        string                             `json:"field_id,omitempty"`
	Latitude       float64                            `json:"lat"`
	Longitude      float64                            `json:"lon"`
	CropType       string                             `json:"crop_type"`
	GrowthStage    string                             `json:"growth_stage"`
	Recommendation *entities.IrrigationRecommendation `json:"recommendation,omitempty"`
	Error          string                             `json:"error,omitempty"`
	ErrorKind      string                             `json:"error_kind,omitempty"`
	RetryAfterSec  float64                            `json:"retry_after_s,omitempty"`
	Timestamp      time.Time                          `json:"timestamp"`
}
