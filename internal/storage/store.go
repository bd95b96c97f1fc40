// Package storage persists reports, predictions, machines, alerts,
// maintenance tasks and sensor logs.
package storage

import (
	"context"
	"errors"
	"time"

	"sheild-gateway/internal/data"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ReportFilter narrows a report listing. Zero values match everything.
type ReportFilter struct {
	Period string
	Limit  int
}

type ReportStore interface {
	Create(ctx context.Context, r *data.Report) error
	Get(ctx context.Context, id string) (*data.Report, error)
	List(ctx context.Context, f ReportFilter) ([]data.Report, error)
	Update(ctx context.Context, r *data.Report) error
	Delete(ctx context.Context, id string) error
}

type PredictionStore interface {
	Create(ctx context.Context, p *data.Prediction) error
	ListByMachine(ctx context.Context, machineID string, limit int) ([]data.Prediction, error)
}

type MachineStore interface {
	Get(ctx context.Context, machineID string) (*data.Machine, error)
	List(ctx context.Context) ([]data.Machine, error)
	Upsert(ctx context.Context, m *data.Machine) error
	// RecordReading stores the health derived from a reading and returns
	// the updated machine.
	RecordReading(ctx context.Context, machineID string, health float64, status string, at time.Time) (*data.Machine, error)
}

// AlertFilter narrows an alert listing. Zero values match everything.
type AlertFilter struct {
	MachineID string
	Status    string
	Limit     int
}

// AlertStore keeps raised alerts so their status can be tracked after they
// leave the live table.
type AlertStore interface {
	Create(ctx context.Context, a *data.Alert) error
	Get(ctx context.Context, id string) (*data.Alert, error)
	// List returns the newest alerts first.
	List(ctx context.Context, f AlertFilter) ([]data.Alert, error)
	Update(ctx context.Context, a *data.Alert) error
	Delete(ctx context.Context, id string) error
}

type MaintenanceFilter struct {
	MachineID string
	Status    string
	Limit     int
}

type MaintenanceStore interface {
	Create(ctx context.Context, t *data.MaintenanceTask) error
	Get(ctx context.Context, id string) (*data.MaintenanceTask, error)
	// List orders by due date, undated tasks last.
	List(ctx context.Context, f MaintenanceFilter) ([]data.MaintenanceTask, error)
	Update(ctx context.Context, t *data.MaintenanceTask) error
	Delete(ctx context.Context, id string) error
}

// SensorLogFilter bounds a log query by time. Zero times are open ends.
type SensorLogFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type SensorLogStore interface {
	Append(ctx context.Context, r *data.SensorReading) error
	// Query returns a machine's readings, newest first.
	Query(ctx context.Context, machineID string, f SensorLogFilter) ([]data.SensorReading, error)
}

// Stores bundles the backends the gateway runs on.
type Stores struct {
	Reports     ReportStore
	Predictions PredictionStore
	Machines    MachineStore
	Alerts      AlertStore
	Maintenance MaintenanceStore
	SensorLogs  SensorLogStore
	close       func(context.Context) error
}

// Close releases the backing connection, if any.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

const defaultListLimit = 500

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
