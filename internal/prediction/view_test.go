package prediction

import (
	"testing"

	"sheild-gateway/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewView(t *testing.T) {
	res := data.PredictionResult{
		Classification: data.Classification{Label: data.LabelNormal, Confidence: 0.304},
		RULHours:       330,
		FeatureImportance: map[string]float64{
			"current":     0.17,
			"temperature": 0.33,
			"vibration":   0.5,
			"rms":         0.33,
		},
	}

	v := NewView(res, nil)
	assert.Equal(t, "NORMAL", v.Label)
	assert.False(t, v.Faulty)
	assert.Equal(t, 30, v.Confidence)
	assert.Equal(t, 330.0, v.RULHours)
	assert.Empty(t, v.Narrative)

	require.Len(t, v.Bars, 4)
	names := []string{}
	for _, b := range v.Bars {
		names = append(names, b.Feature)
	}
	assert.Equal(t, []string{"vibration", "rms", "temperature", "current"}, names)
	assert.Equal(t, Bar{Feature: "vibration", Weight: 0.5, Percent: 50, Cells: 10}, v.Bars[0])
	assert.Equal(t, 3, v.Bars[3].Cells)
}

func TestNewView_Narrative(t *testing.T) {
	res := data.PredictionResult{
		Classification: data.Classification{Label: data.LabelFaulty, Confidence: 0.6},
		RULHours:       210,
	}
	v := NewView(res, &data.FeatureSet{Vibration: 41.25, Temperature: 98.5, Current: 13})
	assert.True(t, v.Faulty)
	assert.Empty(t, v.Bars)
	assert.Equal(t,
		"Dataset analyzed: Predicted FAULTY with 60% confidence. RUL 210 hours. Aggregated features (avg): vibration 41.25, temperature 98.5, current 13.",
		v.Narrative)
}

func TestNewView_ClampsBars(t *testing.T) {
	v := NewView(data.PredictionResult{FeatureImportance: map[string]float64{"vibration": 1.4, "current": -0.2}}, nil)
	require.Len(t, v.Bars, 2)
	assert.Equal(t, BarWidth, v.Bars[0].Cells)
	assert.Equal(t, 0, v.Bars[1].Cells)
}
