package types

// RiskBand is the qualitative classification of a risk probability.
type RiskBand string

const (
	RiskLow      RiskBand = "low"
	RiskModerate RiskBand = "moderate"
	RiskHigh     RiskBand = "high"
)

// Risk band thresholds in percentage points.
const (
	riskModerateThreshold = 33.0
	riskHighThreshold     = 66.0
)

// riskColors is the fixed color mapping for each band.
var riskColors = map[RiskBand]string{
	RiskLow:      "#22c55e",
	RiskModerate: "#f97316",
	RiskHigh:     "#ef4444",
}

// ClassifyRisk maps a probability to its risk band:
// low for p < 33, moderate for 33 <= p < 66, high for p >= 66.
func ClassifyRisk(probability float64) RiskBand {
	switch {
	case probability < riskModerateThreshold:
		return RiskLow
	case probability < riskHighThreshold:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// Color returns the display color for the band.
func (b RiskBand) Color() string {
	return riskColors[b]
}

// ClampProbability bounds a probability to the valid [0,100] range.
func ClampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
