package prediction

import (
	"context"
	"math"

	"sheild-gateway/internal/data"
)

// Feature weights and reference ranges for the heuristic risk model.
var (
	featureNames = []string{"vibration", "temperature", "current"}

	weights = map[string]float64{
		"vibration":   0.3,
		"temperature": 0.2,
		"current":     0.1,
	}
	ranges = map[string][2]float64{
		"vibration":   {0, 50},   // mm/s
		"temperature": {40, 120}, // °C
		"current":     {0, 20},   // A
	}
)

// faultyRisk is the risk above which a machine is labelled faulty.
const faultyRisk = 0.5

// Score runs the heuristic model: each feature is normalised over its
// reference range, weighted and summed into a risk in [0,1].
func Score(f data.FeatureSet) data.PredictionResult {
	values := map[string]float64{
		"vibration":   f.Vibration,
		"temperature": f.Temperature,
		"current":     f.Current,
	}

	contrib := make(map[string]float64, len(values))
	var total float64
	for _, name := range featureNames {
		r := ranges[name]
		c := normalize(values[name], r[0], r[1]) * weights[name]
		contrib[name] = c
		total += c
	}
	risk := clamp01(total)

	label := data.LabelNormal
	if risk > faultyRisk {
		label = data.LabelFaulty
	}

	if total == 0 {
		total = 1
	}
	importance := make(map[string]float64, len(contrib))
	for name, c := range contrib {
		importance[name] = round2(c / total)
	}

	return data.PredictionResult{
		Classification: data.Classification{
			Label:      label,
			Confidence: round2(risk),
		},
		RULHours:          math.Max(10, math.Round((1-risk)*400)+50),
		FeatureImportance: importance,
	}
}

// Scorer is a PredictionClient backed by Score. It needs no machine registry
// and stores nothing.
type Scorer struct{}

func (Scorer) Predict(_ context.Context, _ string, features data.FeatureSet) (data.PredictionResult, error) {
	return Score(features), nil
}

func normalize(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
