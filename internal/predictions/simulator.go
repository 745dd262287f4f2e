// Package predictions implements the wildfire-risk prediction workflow:
// submitting a location for scoring, the simulated fallback when the compute
// endpoint is unavailable, and the stored prediction history.
package predictions

import (
	"hash/fnv"
	"math/rand/v2"

	"emberwatch/internal/external"
	"emberwatch/internal/types"
)

// Simulator produces a locally computed prediction when the live compute
// endpoint cannot serve one. Results are derived from a hash of the location
// so the same place simulates to the same reading within a session, which
// keeps demo and degraded-mode behavior stable.
type Simulator struct{}

func NewSimulator() *Simulator {
	return &Simulator{}
}

// Simulate returns a plausible prediction for the location. Output always
// satisfies the domain invariants: probability in [0,100], non-negative
// readings, and land cover summing to 100.
func (s *Simulator) Simulate(location string) *external.PredictionResult {
	rng := rand.New(rand.NewPCG(seedFor(location), 0x9e3779b97f4a7c15))

	probability := types.ClampProbability(rng.Float64() * 100)
	aqi := 20 + rng.Float64()*180
	pm25 := 5 + rng.Float64()*70

	forest := 10 + rng.Float64()*50
	grassland := rng.Float64() * (70 - forest)
	urban := rng.Float64() * (90 - forest - grassland)
	water := rng.Float64() * (100 - forest - grassland - urban)
	barren := 100 - forest - grassland - urban - water

	return &external.PredictionResult{
		Probability:     probability,
		CO2Level:        350 + rng.Float64()*150,
		Temperature:     5 + rng.Float64()*40,
		Humidity:        10 + rng.Float64()*80,
		DroughtIndex:    rng.Float64() * 5,
		AirQualityIndex: &aqi,
		PM25:            &pm25,
		Vegetation: &types.VegetationIndices{
			NDVI: rng.Float64()*1.6 - 0.6,
			EVI:  rng.Float64()*1.2 - 0.2,
		},
		LandCover: &types.LandCover{
			Forest:    forest,
			Grassland: grassland,
			Urban:     urban,
			Water:     water,
			Barren:    barren,
		},
		ModelType: string(types.ModelRandomForest),
		FeatureImportance: map[string]float64{
			"temperature":   0.18 + rng.Float64()*0.12,
			"humidity":      0.14 + rng.Float64()*0.1,
			"drought_index": 0.2 + rng.Float64()*0.15,
			"co2_level":     0.08 + rng.Float64()*0.08,
			"vegetation":    0.1 + rng.Float64()*0.1,
		},
	}
}

func seedFor(location string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(location))
	return h.Sum64()
}
