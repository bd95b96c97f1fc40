package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"sheild-gateway/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingBuffer(t *testing.T) {
	buf := NewReadingBuffer(3)
	for i := 1; i <= 5; i++ {
		buf.Add(data.SensorReading{MachineID: fmt.Sprintf("M-%d", i)})
	}

	all := buf.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, "M-3", all[0].MachineID)
	assert.Equal(t, "M-5", all[2].MachineID)

	last := buf.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "M-5", last[0].MachineID)

	assert.Len(t, buf.Recent(10), 3)
}

func sampleReport() *data.Report {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return &data.Report{
		Period:    data.PeriodWeekly,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 7),
		Contents:  []string{"performance", "RUL"},
		Meta:      map[string]any{"author": "ops"},
	}
}

// exerciseReportStore runs the same CRUD scenario against any backend.
func exerciseReportStore(t *testing.T, s ReportStore) {
	ctx := context.Background()

	r := sampleReport()
	require.NoError(t, s.Create(ctx, r))
	require.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"performance", "RUL"}, got.Contents)
	assert.Equal(t, data.PeriodWeekly, got.Period)

	monthly := sampleReport()
	monthly.Period = data.PeriodMonthly
	require.NoError(t, s.Create(ctx, monthly))

	list, err := s.List(ctx, ReportFilter{Period: data.PeriodMonthly})
	require.NoError(t, err)
	ids := []string{}
	for _, l := range list {
		ids = append(ids, l.ID)
	}
	assert.Contains(t, ids, monthly.ID)
	assert.NotContains(t, ids, r.ID)

	got.Contents = append(got.Contents, "alert-history")
	got.FileURL = "https://files.example/report.xlsx"
	require.NoError(t, s.Update(ctx, got))
	again, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"performance", "RUL", "alert-history"}, again.Contents)
	assert.Equal(t, "https://files.example/report.xlsx", again.FileURL)

	require.NoError(t, s.Delete(ctx, r.ID))
	_, err = s.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, r.ID), ErrNotFound)

	missing := sampleReport()
	missing.ID = r.ID
	assert.ErrorIs(t, s.Update(ctx, missing), ErrNotFound)
}

func exerciseMachineStore(t *testing.T, s MachineStore) {
	ctx := context.Background()
	m := &data.Machine{MachineID: "M-T1", Name: "Press", Status: data.MachineNormal, HealthScore: 100, Thresholds: data.DefaultThresholds()}
	require.NoError(t, s.Upsert(ctx, m))

	got, err := s.Get(ctx, "M-T1")
	require.NoError(t, err)
	assert.Equal(t, "Press", got.Name)
	assert.Equal(t, 90.0, got.Thresholds.Temperature.Critical)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	updated, err := s.RecordReading(ctx, "M-T1", 37, data.MachineFaulty, at)
	require.NoError(t, err)
	assert.Equal(t, 37.0, updated.HealthScore)
	assert.Equal(t, data.MachineFaulty, updated.Status)
	require.NotNil(t, updated.LastSeenAt)
	assert.True(t, updated.LastSeenAt.Equal(at))

	_, err = s.RecordReading(ctx, "M-NOPE", 1, data.MachineFaulty, at)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "M-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func exercisePredictionStore(t *testing.T, s PredictionStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p := &data.Prediction{
			MachineID: "M-T1",
			Input:     data.FeatureSet{Vibration: float64(i)},
			CreatedAt: time.Date(2024, 5, 1, 10, i, 0, 0, time.UTC),
			PredictionResult: data.PredictionResult{
				Classification: data.Classification{Label: data.LabelNormal, Confidence: 0.1},
				RULHours:       400,
			},
		}
		require.NoError(t, s.Create(ctx, p))
		require.NotEmpty(t, p.ID)
	}
	require.NoError(t, s.Create(ctx, &data.Prediction{MachineID: "M-OTHER"}))

	list, err := s.ListByMachine(ctx, "M-T1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2.0, list[0].Input.Vibration)
	assert.Equal(t, data.LabelNormal, list[0].Classification.Label)
}

func exerciseAlertStore(t *testing.T, s AlertStore) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	first := &data.Alert{ID: "a-1", MachineID: "M-T1", Severity: data.SeverityCritical, Message: "Temperature critical: 95.00°C", Status: data.StatusOpen, Timestamp: base}
	second := &data.Alert{MachineID: "M-T2", Severity: data.SeverityHigh, Message: "Low health score: 31", Status: data.StatusOpen, Timestamp: base.Add(time.Minute)}
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))
	assert.Equal(t, "a-1", first.ID, "existing ids are kept")
	require.NotEmpty(t, second.ID)

	got, err := s.Get(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, data.SeverityCritical, got.Severity)
	assert.Equal(t, "Temperature critical: 95.00°C", got.Message)

	list, err := s.List(ctx, AlertFilter{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(list), 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	require.NoError(t, got.Transition(data.StatusResolved, "ops", base.Add(time.Hour)))
	require.NoError(t, s.Update(ctx, got))

	resolved, err := s.List(ctx, AlertFilter{Status: data.StatusResolved})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "ops", resolved[0].AcknowledgedBy)
	require.NotNil(t, resolved[0].ResolvedAt)

	byMachine, err := s.List(ctx, AlertFilter{MachineID: "M-T2"})
	require.NoError(t, err)
	require.Len(t, byMachine, 1)

	require.NoError(t, s.Delete(ctx, "a-1"))
	_, err = s.Get(ctx, "a-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a-1"), ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, &data.Alert{ID: "a-1"}), ErrNotFound)
}

func exerciseMaintenanceStore(t *testing.T, s MaintenanceStore) {
	ctx := context.Background()
	soon := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	later := soon.AddDate(0, 1, 0)

	undated := &data.MaintenanceTask{MachineID: "M-T1", Task: "Inspect belts", Status: data.TaskScheduled}
	second := &data.MaintenanceTask{MachineID: "M-T1", Task: "Replace filter", DueDate: &later, Status: data.TaskScheduled}
	first := &data.MaintenanceTask{MachineID: "M-T2", Task: "Replace bearing", DueDate: &soon, Status: data.TaskScheduled}
	for _, task := range []*data.MaintenanceTask{undated, second, first} {
		require.NoError(t, s.Create(ctx, task))
		require.NotEmpty(t, task.ID)
	}

	list, err := s.List(ctx, MaintenanceFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Replace bearing", "Replace filter", "Inspect belts"},
		[]string{list[0].Task, list[1].Task, list[2].Task})

	mine, err := s.List(ctx, MaintenanceFilter{MachineID: "M-T1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	first.Status = data.TaskCompleted
	require.NoError(t, s.Update(ctx, first))
	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, data.TaskCompleted, got.Status)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(soon))

	done, err := s.List(ctx, MaintenanceFilter{Status: data.TaskCompleted})
	require.NoError(t, err)
	assert.Len(t, done, 1)

	require.NoError(t, s.Delete(ctx, first.ID))
	_, err = s.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, first), ErrNotFound)
}

func exerciseSensorLogStore(t *testing.T, s SensorLogStore) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &data.SensorReading{
			MachineID: "M-T1", Timestamp: base.Add(time.Duration(i) * time.Minute), Vibration: float64(i),
		}))
	}
	require.NoError(t, s.Append(ctx, &data.SensorReading{MachineID: "M-T2", Timestamp: base}))

	all, err := s.Query(ctx, "M-T1", SensorLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 4.0, all[0].Vibration, "newest first")

	window, err := s.Query(ctx, "M-T1", SensorLogFilter{From: base.Add(time.Minute), To: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, 3.0, window[0].Vibration)
	assert.Equal(t, 1.0, window[2].Vibration)

	limited, err := s.Query(ctx, "M-T1", SensorLogFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.Query(ctx, "M-NONE", SensorLogFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemorySensorLogCapacity(t *testing.T) {
	s := &MemorySensorLogStore{capacity: 3}
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &data.SensorReading{MachineID: "M-1", Timestamp: base.Add(time.Duration(i) * time.Second), Vibration: float64(i)}))
	}
	got, err := s.Query(ctx, "M-1", SensorLogFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 4.0, got[0].Vibration)
	assert.Equal(t, 2.0, got[2].Vibration)
}

func TestMemoryStores(t *testing.T) {
	s := NewMemoryStores()
	t.Run("reports", func(t *testing.T) { exerciseReportStore(t, s.Reports) })
	t.Run("machines", func(t *testing.T) { exerciseMachineStore(t, s.Machines) })
	t.Run("predictions", func(t *testing.T) { exercisePredictionStore(t, s.Predictions) })
	t.Run("alerts", func(t *testing.T) { exerciseAlertStore(t, s.Alerts) })
	t.Run("maintenance", func(t *testing.T) { exerciseMaintenanceStore(t, s.Maintenance) })
	t.Run("sensor logs", func(t *testing.T) { exerciseSensorLogStore(t, s.SensorLogs) })
	assert.NoError(t, s.Close(context.Background()))
}

func TestMemoryReportStoreIsolation(t *testing.T) {
	s := NewMemoryStores().Reports
	r := sampleReport()
	require.NoError(t, s.Create(context.Background(), r))
	r.Contents[0] = "mutated"

	got, err := s.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "performance", got.Contents[0])
}

// TestMongoStores_Integration requires a MongoDB reachable at SHEILD_TEST_MONGO_URI
// or localhost.
func TestMongoStores_Integration(t *testing.T) {
	uri := os.Getenv("SHEILD_TEST_MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	ctx := context.Background()
	s, err := OpenMongo(ctx, MongoConfig{
		URI:            uri,
		Database:       fmt.Sprintf("sheild_test_%d", time.Now().UnixNano()),
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Skip("Skipping MongoDB integration test: mongo not available")
	}
	defer s.Close(ctx)

	t.Run("reports", func(t *testing.T) { exerciseReportStore(t, s.Reports) })
	t.Run("machines", func(t *testing.T) { exerciseMachineStore(t, s.Machines) })
	t.Run("predictions", func(t *testing.T) { exercisePredictionStore(t, s.Predictions) })
	t.Run("alerts", func(t *testing.T) { exerciseAlertStore(t, s.Alerts) })
	t.Run("maintenance", func(t *testing.T) { exerciseMaintenanceStore(t, s.Maintenance) })
	t.Run("sensor logs", func(t *testing.T) { exerciseSensorLogStore(t, s.SensorLogs) })

	_, err = s.Reports.Get(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
