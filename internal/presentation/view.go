// Package presentation builds the display-oriented view models returned to
// clients. Everything here is a pure transformation of domain records; no
// I/O, no mutation of inputs.
package presentation

import (
	"fmt"
	"sort"

	"emberwatch/internal/types"
)

// RiskIndicator is the headline gauge for a prediction.
type RiskIndicator struct {
	Probability float64        `json:"probability"`
	Band        types.RiskBand `json:"band"`
	Color       string         `json:"color"`
	Label       string         `json:"label"`
}

// StatCard is one reading in the environmental stats row.
type StatCard struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// ModelInfo describes the model that produced a prediction.
type ModelInfo struct {
	ModelType string `json:"model_type"`
	Simulated bool   `json:"simulated"`
	Source    string `json:"source"`
}

// FeatureWeight is one entry in the ordered feature-importance list.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// LandCoverSegment is one slice of the land-cover breakdown.
type LandCoverSegment struct {
	Category string  `json:"category"`
	Percent  float64 `json:"percent"`
	Color    string  `json:"color"`
}

// PredictionView is the full display model for a single prediction.
type PredictionView struct {
	ID         string                   `json:"id"`
	Location   string                   `json:"location"`
	Risk       RiskIndicator            `json:"risk"`
	Stats      []StatCard               `json:"stats"`
	Model      ModelInfo                `json:"model"`
	Features   []FeatureWeight          `json:"feature_importance,omitempty"`
	LandCover  []LandCoverSegment       `json:"land_cover,omitempty"`
	Vegetation *types.VegetationIndices `json:"vegetation,omitempty"`
	Historic   *types.HistoricSummary   `json:"historic,omitempty"`
	CreatedAt  string                   `json:"created_at"`
}

// bandLabels are the user-facing names for the risk bands.
var bandLabels = map[types.RiskBand]string{
	types.RiskLow:      "Low risk",
	types.RiskModerate: "Moderate risk",
	types.RiskHigh:     "High risk",
}

// landCoverColors matches segments to the fixed palette used by clients.
var landCoverColors = map[string]string{
	"forest":    "#15803d",
	"grassland": "#a3e635",
	"urban":     "#6b7280",
	"water":     "#3b82f6",
	"barren":    "#d6d3d1",
}

// NewRiskIndicator classifies a probability into its band, color, and label.
func NewRiskIndicator(probability float64) RiskIndicator {
	p := types.ClampProbability(probability)
	band := types.ClassifyRisk(p)
	return RiskIndicator{
		Probability: p,
		Band:        band,
		Color:       band.Color(),
		Label:       bandLabels[band],
	}
}

// BuildStats produces the environmental stats row in fixed display order.
// Optional readings (air quality, PM2.5) appear only when present.
func BuildStats(rec *types.PredictionRecord) []StatCard {
	stats := []StatCard{
		{Key: "co2_level", Label: "CO2 Level", Value: rec.CO2Level, Unit: "ppm"},
		{Key: "temperature", Label: "Temperature", Value: rec.Temperature, Unit: "°C"},
		{Key: "humidity", Label: "Humidity", Value: rec.Humidity, Unit: "%"},
		{Key: "drought_index", Label: "Drought Index", Value: rec.DroughtIndex, Unit: ""},
	}
	if rec.AirQualityIndex != nil {
		stats = append(stats, StatCard{Key: "air_quality_index", Label: "Air Quality Index", Value: *rec.AirQualityIndex, Unit: "AQI"})
	}
	if rec.PM25 != nil {
		stats = append(stats, StatCard{Key: "pm2_5", Label: "PM2.5", Value: *rec.PM25, Unit: "µg/m³"})
	}
	return stats
}

// BuildModelInfo describes the serving path of a record.
func BuildModelInfo(rec *types.PredictionRecord) ModelInfo {
	source := "live"
	if rec.Simulated {
		source = "simulated"
	}
	return ModelInfo{
		ModelType: rec.ModelType,
		Simulated: rec.Simulated,
		Source:    source,
	}
}

// BuildFeatureWeights orders feature importance by descending weight; equal
// weights tie-break by ascending feature name so the ordering is stable
// across renders.
func BuildFeatureWeights(importance map[string]float64) []FeatureWeight {
	if len(importance) == 0 {
		return nil
	}

	weights := make([]FeatureWeight, 0, len(importance))
	for feature, weight := range importance {
		weights = append(weights, FeatureWeight{Feature: feature, Weight: weight})
	}
	sort.Slice(weights, func(i, j int) bool {
		if weights[i].Weight != weights[j].Weight {
			return weights[i].Weight > weights[j].Weight
		}
		return weights[i].Feature < weights[j].Feature
	})
	return weights
}

// BuildLandCover flattens the five-category breakdown into ordered segments.
func BuildLandCover(lc *types.LandCover) []LandCoverSegment {
	if lc == nil {
		return nil
	}
	segments := []LandCoverSegment{
		{Category: "forest", Percent: lc.Forest},
		{Category: "grassland", Percent: lc.Grassland},
		{Category: "urban", Percent: lc.Urban},
		{Category: "water", Percent: lc.Water},
		{Category: "barren", Percent: lc.Barren},
	}
	for i := range segments {
		segments[i].Color = landCoverColors[segments[i].Category]
	}
	return segments
}

// BuildPredictionView assembles the full display model for a record. The
// probability shown is displayProbability, which history reads may have
// perturbed; pass rec.Probability for fresh submissions.
func BuildPredictionView(rec *types.PredictionRecord, displayProbability float64) PredictionView {
	return PredictionView{
		ID:         rec.ID,
		Location:   rec.Location,
		Risk:       NewRiskIndicator(displayProbability),
		Stats:      BuildStats(rec),
		Model:      BuildModelInfo(rec),
		Features:   BuildFeatureWeights(rec.FeatureImportance),
		LandCover:  BuildLandCover(rec.LandCover),
		Vegetation: rec.Vegetation,
		Historic:   rec.Historic,
		CreatedAt:  rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// HistoryCard is the compact card shown in the prediction history list.
type HistoryCard struct {
	ID        string        `json:"id"`
	Location  string        `json:"location"`
	Risk      RiskIndicator `json:"risk"`
	Simulated bool          `json:"simulated"`
	CreatedAt string        `json:"created_at"`
	Summary   string        `json:"summary"`
}

// BuildHistoryCard renders one history entry. displayProbability carries the
// read-time perturbation; the stored value never changes.
func BuildHistoryCard(rec *types.PredictionRecord, displayProbability float64) HistoryCard {
	risk := NewRiskIndicator(displayProbability)
	return HistoryCard{
		ID:        rec.ID,
		Location:  rec.Location,
		Risk:      risk,
		Simulated: rec.Simulated,
		CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Summary:   fmt.Sprintf("%s: %.0f%% fire risk", risk.Label, risk.Probability),
	}
}
