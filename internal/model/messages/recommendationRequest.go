package messages

import "time"

// RecommendationRequest is the inbound payload shared by the HTTP, gRPC and
// MQTT transports. SoilType and LastIrrigationAt are optional.
type RecommendationRequest struct {
	RequestID         string     `json:"request_id,omitempty"`
	FieldID           string     `json:"field_id,omitempty"`
	Latitude          float64    `json:"lat"`
	Longitude         float64    `json:"lon"`
	CropType          string     `json:"crop_type"`
	GrowthStage       string     `json:"growth_stage"`
	RootDepthMeters   float64    `json:"root_depth_m,omitempty"`
	SoilType          *string    `json:"soil_type,omitempty"`
	FieldSizeHectares float64    `json:"field_size_ha"`
	LastIrrigationAt  *time.Time `json:"last_irrigation_at,omitempty"`
}
