package prediction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/metrics"
	"sheild-gateway/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrMachineIDRequired = errors.New("machineId required")
	ErrUnknownMachine    = errors.New("unknown machineId")
)

// Service scores features for known machines and records every prediction.
type Service struct {
	machines    storage.MachineStore
	predictions storage.PredictionStore
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewService(machines storage.MachineStore, predictions storage.PredictionStore, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		machines:    machines,
		predictions: predictions,
		metrics:     m,
		logger:      logger.Named("prediction"),
	}
}

// Create scores the features and persists the resulting Prediction.
func (s *Service) Create(ctx context.Context, machineID string, features data.FeatureSet) (*data.Prediction, error) {
	machineID = strings.TrimSpace(machineID)
	if machineID == "" {
		return nil, ErrMachineIDRequired
	}
	if _, err := s.machines.Get(ctx, machineID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMachine, machineID)
		}
		return nil, err
	}

	p := &data.Prediction{
		MachineID:        machineID,
		Input:            features,
		PredictionResult: Score(features),
	}
	if err := s.predictions.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("store prediction: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PredictionsServed.WithLabelValues(p.Classification.Label).Inc()
	}
	s.logger.Info("prediction created",
		zap.String("machine_id", machineID),
		zap.String("label", p.Classification.Label),
		zap.Float64("confidence", p.Classification.Confidence),
		zap.Float64("rul_hours", p.RULHours))
	return p, nil
}

// Predict lets the local service stand in for a remote PredictionClient.
func (s *Service) Predict(ctx context.Context, machineID string, features data.FeatureSet) (data.PredictionResult, error) {
	p, err := s.Create(ctx, machineID, features)
	if err != nil {
		return data.PredictionResult{}, err
	}
	return p.PredictionResult, nil
}

// History lists the most recent predictions for a machine.
func (s *Service) History(ctx context.Context, machineID string, limit int) ([]data.Prediction, error) {
	return s.predictions.ListByMachine(ctx, machineID, limit)
}
