package prediction

import (
	"context"
	"testing"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/metrics"
	"sheild-gateway/internal/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) (*Service, *storage.Stores, *metrics.Metrics) {
	stores := storage.NewMemoryStores()
	require.NoError(t, stores.Machines.Upsert(context.Background(), &data.Machine{
		MachineID:  "M-1",
		Name:       "Pump",
		Status:     data.MachineNormal,
		Thresholds: data.DefaultThresholds(),
	}))
	m := metrics.New()
	return NewService(stores.Machines, stores.Predictions, m, zaptest.NewLogger(t)), stores, m
}

func TestService_Create(t *testing.T) {
	svc, _, m := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, " M-1 ", data.FeatureSet{Vibration: 50, Temperature: 120, Current: 20})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "M-1", p.MachineID)
	assert.Equal(t, data.LabelFaulty, p.Classification.Label)
	assert.False(t, p.CreatedAt.IsZero())

	history, err := svc.History(ctx, "M-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, p.ID, history[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsServed.WithLabelValues(data.LabelFaulty)))
}

func TestService_Validation(t *testing.T) {
	svc, stores, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "  ", data.FeatureSet{})
	assert.ErrorIs(t, err, ErrMachineIDRequired)

	_, err = svc.Create(ctx, "M-404", data.FeatureSet{})
	assert.ErrorIs(t, err, ErrUnknownMachine)

	history, err := stores.Predictions.ListByMachine(ctx, "M-404", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_ImplementsPredictionClient(t *testing.T) {
	svc, _, _ := newService(t)
	var client PredictionClient = svc

	res, err := client.Predict(context.Background(), "M-1", data.FeatureSet{Vibration: 25, Temperature: 80, Current: 10})
	require.NoError(t, err)
	assert.Equal(t, Score(data.FeatureSet{Vibration: 25, Temperature: 80, Current: 10}), res)
}

func TestScorer_UnknownMachine(t *testing.T) {
	var client PredictionClient = Scorer{}
	f := data.FeatureSet{Vibration: 50, Temperature: 120, Current: 20}

	res, err := client.Predict(context.Background(), "anything", f)
	require.NoError(t, err)
	assert.Equal(t, data.LabelFaulty, res.Classification.Label)
	assert.Equal(t, 210.0, res.RULHours)
}
