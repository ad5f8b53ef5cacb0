package model

import (
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation-advisor/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	RecommendationRequest    = messages.RecommendationRequest
	RecommendationEvent      = messages.RecommendationEvent
	GeoPoint                 = entities.GeoPoint
	CropContext              = entities.CropContext
	IrrigationRecommendation = entities.IrrigationRecommendation
)

const (
	SourceProvider  = entities.SourceProvider
	SourceSynthetic = entities.SourceSynthetic
)
