package ingest

import (
	"context"
	"fmt"
	"strings"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/metrics"
	"sheild-gateway/internal/prediction"

	"go.uber.org/zap"
)

// UnknownMachineID is sent when neither the CSV nor the caller names a machine.
const UnknownMachineID = "M-UNKNOWN"

// Analysis is the outcome of an uploaded dataset run through a prediction.
type Analysis struct {
	Dataset
	Prediction data.PredictionResult `json:"prediction"`
	View       prediction.View       `json:"view"`
}

// Analyzer aggregates a CSV dataset and asks the prediction client about it.
type Analyzer struct {
	client  prediction.PredictionClient
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAnalyzer(client prediction.PredictionClient, m *metrics.Metrics, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		client:  client,
		metrics: m,
		logger:  logger.Named("ingest"),
	}
}

// Analyze validates and averages text, then issues exactly one prediction
// request. Validation failures return before the client is called.
// fallbackMachineID is used when the dataset carries no machineId.
func (a *Analyzer) Analyze(ctx context.Context, text, fallbackMachineID string) (*Analysis, error) {
	ds, err := Aggregate(text)
	if err != nil {
		a.count("invalid")
		return nil, err
	}
	if len(ds.RowErrors) > 0 {
		a.logger.Warn("skipped invalid rows",
			zap.Int("skipped", len(ds.RowErrors)),
			zap.Int("valid", ds.Rows),
			zap.String("first", ds.RowErrors[0].Error()))
	}
	if len(ds.MachineIDs) > 1 {
		a.logger.Warn("dataset spans several machines, using the last",
			zap.Strings("machine_ids", ds.MachineIDs),
			zap.String("machine_id", ds.MachineID))
	}

	machineID := ds.MachineID
	if machineID == "" {
		machineID = strings.TrimSpace(fallbackMachineID)
	}
	if machineID == "" {
		machineID = UnknownMachineID
	}
	ds.MachineID = machineID

	res, err := a.client.Predict(ctx, machineID, ds.Features)
	if err != nil {
		a.count("failed")
		return nil, fmt.Errorf("predict %s: %w", machineID, err)
	}
	a.count("ok")

	a.logger.Info("dataset analyzed",
		zap.String("machine_id", machineID),
		zap.Int("rows", ds.Rows),
		zap.String("label", res.Classification.Label))

	features := ds.Features
	return &Analysis{
		Dataset:    ds,
		Prediction: res,
		View:       prediction.NewView(res, &features),
	}, nil
}

func (a *Analyzer) count(outcome string) {
	if a.metrics != nil {
		a.metrics.CSVAnalyses.WithLabelValues(outcome).Inc()
	}
}
