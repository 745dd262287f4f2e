package presentation

import "emberwatch/internal/types"

// SlideKind identifies the template a slide renders with.
type SlideKind string

const (
	SlideRisk       SlideKind = "risk"
	SlideStats      SlideKind = "stats"
	SlideLandCover  SlideKind = "land_cover"
	SlideFeatures   SlideKind = "features"
	SlideHistoric   SlideKind = "historic"
	SlideVegetation SlideKind = "vegetation"
)

// Slide is one screen of the presentation mode.
type Slide struct {
	Kind    SlideKind `json:"kind"`
	Title   string    `json:"title"`
	Content any       `json:"content"`
}

// SlideDeck is the ordered set of slides for a prediction.
type SlideDeck struct {
	Location string  `json:"location"`
	Slides   []Slide `json:"slides"`
}

// BuildSlideDeck assembles the presentation deck for a record. Slides backed
// by absent optional data are omitted rather than rendered empty, so the deck
// length varies with the record's enrichment.
func BuildSlideDeck(rec *types.PredictionRecord) SlideDeck {
	deck := SlideDeck{Location: rec.Location}

	deck.Slides = append(deck.Slides, Slide{
		Kind:    SlideRisk,
		Title:   "Fire Risk",
		Content: NewRiskIndicator(rec.Probability),
	})
	deck.Slides = append(deck.Slides, Slide{
		Kind:    SlideStats,
		Title:   "Environmental Readings",
		Content: BuildStats(rec),
	})

	if rec.LandCover != nil {
		deck.Slides = append(deck.Slides, Slide{
			Kind:    SlideLandCover,
			Title:   "Land Cover",
			Content: BuildLandCover(rec.LandCover),
		})
	}
	if rec.Vegetation != nil {
		deck.Slides = append(deck.Slides, Slide{
			Kind:    SlideVegetation,
			Title:   "Vegetation Health",
			Content: rec.Vegetation,
		})
	}
	if len(rec.FeatureImportance) > 0 {
		deck.Slides = append(deck.Slides, Slide{
			Kind:    SlideFeatures,
			Title:   "What Drove This Prediction",
			Content: BuildFeatureWeights(rec.FeatureImportance),
		})
	}
	if rec.Historic != nil {
		deck.Slides = append(deck.Slides, Slide{
			Kind:    SlideHistoric,
			Title:   "Wildfire History",
			Content: rec.Historic,
		})
	}

	return deck
}
