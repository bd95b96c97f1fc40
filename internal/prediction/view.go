package prediction

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"sheild-gateway/internal/data"
)

// BarWidth is the number of cells a full-weight feature bar spans.
const BarWidth = 20

// Bar is one feature-importance row.
type Bar struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
	Percent int     `json:"percent"`
	Cells   int     `json:"cells"`
}

// View is the display form of a PredictionResult.
type View struct {
	Label      string  `json:"label"`
	Faulty     bool    `json:"faulty"`
	Confidence int     `json:"confidence"` // percent
	RULHours   float64 `json:"rulHours"`
	Bars       []Bar   `json:"bars"`
	Narrative  string  `json:"narrative,omitempty"`
}

// NewView maps a result to display values. features, when non-nil, are the
// aggregated inputs and produce the dataset narrative.
func NewView(res data.PredictionResult, features *data.FeatureSet) View {
	v := View{
		Label:      strings.ToUpper(res.Classification.Label),
		Faulty:     res.Classification.Label == data.LabelFaulty,
		Confidence: percent(res.Classification.Confidence),
		RULHours:   res.RULHours,
		Bars:       make([]Bar, 0, len(res.FeatureImportance)),
	}

	for name, w := range res.FeatureImportance {
		v.Bars = append(v.Bars, Bar{
			Feature: name,
			Weight:  w,
			Percent: percent(w),
			Cells:   int(math.Round(clamp01(w) * BarWidth)),
		})
	}
	sort.Slice(v.Bars, func(i, j int) bool {
		if v.Bars[i].Weight != v.Bars[j].Weight {
			return v.Bars[i].Weight > v.Bars[j].Weight
		}
		return v.Bars[i].Feature < v.Bars[j].Feature
	})

	if features != nil {
		v.Narrative = fmt.Sprintf(
			"Dataset analyzed: Predicted %s with %d%% confidence. RUL %s hours. Aggregated features (avg): vibration %s, temperature %s, current %s.",
			v.Label, v.Confidence, number(res.RULHours),
			number(features.Vibration), number(features.Temperature), number(features.Current))
	}
	return v
}

func percent(x float64) int {
	return int(math.Round(x * 100))
}

// number prints floats the way a dashboard would: no trailing zeros.
func number(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
