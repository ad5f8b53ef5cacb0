package entities

import (
	"fmt"
	"strings"

	"github.com/LeonardoBeccarini/irrigation-advisor/pkg/apperr"
)

type GrowthStage string

const (
	StageInitial     GrowthStage = "initial"
	StageDevelopment GrowthStage = "development"
	StageMid         GrowthStage = "mid"
	StageLate        GrowthStage = "late"
)

// DefaultRootDepth is used when the caller does not know the rooting depth.
const DefaultRootDepth = 0.6

func ParseGrowthStage(s string) (GrowthStage, error) {
	switch g := GrowthStage(strings.ToLower(strings.TrimSpace(s))); g {
	case StageInitial, StageDevelopment, StageMid, StageLate:
		return g, nil
	}
	return "", apperr.NewValidation("growth_stage", fmt.Sprintf("unknown growth stage %q", s))
}

// StageParams are the per-stage crop coefficients: Kc per FAO-56 stage.
type StageParams struct {
	Initial     float64 `json:"initial"`
	Development float64 `json:"development"`
	Mid         float64 `json:"mid"`
	Late        float64 `json:"late"`
}

func (p StageParams) For(stage GrowthStage) (float64, bool) {
	switch stage {
	case StageInitial:
		return p.Initial, true
	case StageDevelopment:
		return p.Development, true
	case StageMid:
		return p.Mid, true
	case StageLate:
		return p.Late, true
	}
	return 0, false
}

type CropContext struct {
	CropType        string      `json:"crop_type"`
	GrowthStage     GrowthStage `json:"growth_stage"`
	RootDepthMeters float64     `json:"root_depth_m,omitempty"`
}

// RootDepth returns the configured depth or DefaultRootDepth.
func (c CropContext) RootDepth() float64 {
	if c.RootDepthMeters > 0 {
		return c.RootDepthMeters
	}
	return DefaultRootDepth
}

func (c CropContext) Validate() error {
	if strings.TrimSpace(c.CropType) == "" {
		return apperr.NewValidation("crop_type", "required")
	}
	if _, err := ParseGrowthStage(string(c.GrowthStage)); err != nil {
		return err
	}
	if c.RootDepthMeters < 0 {
		return apperr.NewValidation("root_depth_m", "must not be negative")
	}
	return nil
}
