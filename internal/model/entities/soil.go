package entities

import "strings"

type SoilType string

const (
	SoilSandy     SoilType = "sandy"
	SoilLoam      SoilType = "loam"
	SoilClay      SoilType = "clay"
	SoilSandyLoam SoilType = "sandy_loam"
	SoilClayLoam  SoilType = "clay_loam"
	SoilSiltLoam  SoilType = "silt_loam"
	SoilUnknown   SoilType = "unknown"
)

// capacità idrica disponibile, mm per metro di profondità radicale
var waterHoldingCapacity = map[SoilType]float64{
	SoilSandy:     100,
	SoilSandyLoam: 140,
	SoilLoam:      170,
	SoilSiltLoam:  200,
	SoilClayLoam:  190,
	SoilClay:      180,
	SoilUnknown:   150,
}

var drainageClass = map[SoilType]string{
	SoilSandy:     "excessive",
	SoilSandyLoam: "good",
	SoilLoam:      "good",
	SoilSiltLoam:  "moderate",
	SoilClayLoam:  "moderate",
	SoilClay:      "poor",
	SoilUnknown:   "moderate",
}

// ParseSoilType accepts hints such as "Sandy Loam", "clay-loam" or "LOAM".
// Anything not recognised maps to SoilUnknown.
func ParseSoilType(hint string) SoilType {
	s := strings.ToLower(strings.TrimSpace(hint))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if _, ok := waterHoldingCapacity[SoilType(s)]; ok {
		return SoilType(s)
	}
	return SoilUnknown
}

// WaterHoldingCapacity in mm per meter of depth; unknown types use the
// SoilUnknown entry.
func WaterHoldingCapacity(t SoilType) float64 {
	if v, ok := waterHoldingCapacity[t]; ok {
		return v
	}
	return waterHoldingCapacity[SoilUnknown]
}

func Drainage(t SoilType) string {
	if v, ok := drainageClass[t]; ok {
		return v
	}
	return drainageClass[SoilUnknown]
}

type SoilProfile struct {
	Type                 SoilType   `json:"type"`
	PH                   float64    `json:"ph"`
	OrganicMatter        float64    `json:"organic_matter_pct"`
	WaterHoldingCapacity float64    `json:"water_holding_capacity_mm_m"`
	Drainage             string     `json:"drainage"`
	Source               DataSource `json:"source"`
}

// WithType returns a copy of the profile re-keyed on t, with the capacity and
// drainage taken from the texture tables.
func (p SoilProfile) WithType(t SoilType) SoilProfile {
	p.Type = t
	p.WaterHoldingCapacity = WaterHoldingCapacity(t)
	p.Drainage = Drainage(t)
	return p
}

// SoilComposition is the particle-size split (percent of the fine earth).
type SoilComposition struct {
	Sand    float64    `json:"sand_pct"`
	Silt    float64    `json:"silt_pct"`
	Clay    float64    `json:"clay_pct"`
	Texture SoilType   `json:"texture"`
	Source  DataSource `json:"source"`
}

// ClassifyTexture is a reduced USDA texture triangle covering the classes
// the capacity table knows about.
func ClassifyTexture(sand, silt, clay float64) SoilType {
	total := sand + silt + clay
	if total <= 0 {
		return SoilUnknown
	}
	sand, silt, clay = sand*100/total, silt*100/total, clay*100/total
	switch {
	case clay >= 40:
		return SoilClay
	case clay >= 27 && sand <= 45:
		return SoilClayLoam
	case sand >= 85:
		return SoilSandy
	case silt >= 50 && clay < 27:
		return SoilSiltLoam
	case sand >= 52:
		return SoilSandyLoam
	default:
		return SoilLoam
	}
}

type SoilHealth struct {
	Score      float64    `json:"score"` // 0..100
	Nitrogen   float64    `json:"nitrogen_mg_kg"`
	Phosphorus float64    `json:"phosphorus_mg_kg"`
	Potassium  float64    `json:"potassium_mg_kg"`
	Moisture   float64    `json:"moisture_pct"`
	Rating     string     `json:"rating"`
	Source     DataSource `json:"source"`
}

// HealthRating buckets a 0..100 score.
func HealthRating(score float64) string {
	switch {
	case score >= 75:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "poor"
	}
}
