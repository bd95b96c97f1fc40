// internal/storage/memory.go
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sheild-gateway/internal/data"

	"github.com/google/uuid"
)

// ReadingBuffer keeps the most recent sensor readings for replay to newly
// connected dashboards.
type ReadingBuffer struct {
	mu       sync.RWMutex
	buffer   []data.SensorReading
	capacity int
}

func NewReadingBuffer(capacity int) *ReadingBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &ReadingBuffer{
		buffer:   make([]data.SensorReading, 0, capacity),
		capacity: capacity,
	}
}

func (s *ReadingBuffer) Add(r data.SensorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) >= s.capacity {
		copy(s.buffer, s.buffer[1:])
		s.buffer = s.buffer[:len(s.buffer)-1]
	}
	s.buffer = append(s.buffer, r)
}

// Recent returns up to count readings, oldest first. count <= 0 returns all.
func (s *ReadingBuffer) Recent(count int) []data.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.buffer) {
		count = len(s.buffer)
	}
	result := make([]data.SensorReading, count)
	copy(result, s.buffer[len(s.buffer)-count:])
	return result
}

// NewMemoryStores returns map-backed stores for tests and runs without MongoDB.
func NewMemoryStores() *Stores {
	return &Stores{
		Reports:     &MemoryReportStore{reports: map[string]data.Report{}},
		Predictions: &MemoryPredictionStore{},
		Machines:    &MemoryMachineStore{machines: map[string]data.Machine{}},
		Alerts:      &MemoryAlertStore{alerts: map[string]data.Alert{}},
		Maintenance: &MemoryMaintenanceStore{tasks: map[string]data.MaintenanceTask{}},
		SensorLogs:  &MemorySensorLogStore{capacity: memorySensorLogCapacity},
	}
}

type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]data.Report
}

func cloneReport(r data.Report) data.Report {
	r.Contents = append([]string(nil), r.Contents...)
	if r.Meta != nil {
		meta := make(map[string]any, len(r.Meta))
		for k, v := range r.Meta {
			meta[k] = v
		}
		r.Meta = meta
	}
	return r
}

func (s *MemoryReportStore) Create(_ context.Context, r *data.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt, r.UpdatedAt = now, now
	s.reports[r.ID] = cloneReport(*r)
	return nil
}

func (s *MemoryReportStore) Get(_ context.Context, id string) (*data.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	r = cloneReport(r)
	return &r, nil
}

func (s *MemoryReportStore) List(_ context.Context, f ReportFilter) ([]data.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.Report, 0, len(s.reports))
	for _, r := range s.reports {
		if f.Period != "" && r.Period != f.Period {
			continue
		}
		out = append(out, cloneReport(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryReportStore) Update(_ context.Context, r *data.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.reports[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	s.reports[r.ID] = cloneReport(*r)
	return nil
}

func (s *MemoryReportStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return ErrNotFound
	}
	delete(s.reports, id)
	return nil
}

type MemoryPredictionStore struct {
	mu          sync.RWMutex
	predictions []data.Prediction
}

func (s *MemoryPredictionStore) Create(_ context.Context, p *data.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.NewString()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.predictions = append(s.predictions, *p)
	return nil
}

// ListByMachine returns the newest predictions for a machine first.
func (s *MemoryPredictionStore) ListByMachine(_ context.Context, machineID string, limit int) ([]data.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []data.Prediction
	for i := len(s.predictions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.predictions[i].MachineID == machineID {
			out = append(out, s.predictions[i])
		}
	}
	return out, nil
}

type MemoryMachineStore struct {
	mu       sync.RWMutex
	machines map[string]data.Machine
}

func (s *MemoryMachineStore) Get(_ context.Context, machineID string) (*data.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[machineID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryMachineStore) List(_ context.Context) ([]data.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MachineID < out[j].MachineID })
	return out, nil
}

func (s *MemoryMachineStore) Upsert(_ context.Context, m *data.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines[m.MachineID] = *m
	return nil
}

func (s *MemoryMachineStore) RecordReading(_ context.Context, machineID string, health float64, status string, at time.Time) (*data.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[machineID]
	if !ok {
		return nil, ErrNotFound
	}
	m.HealthScore = health
	m.Status = status
	m.LastSeenAt = &at
	s.machines[machineID] = m
	return &m, nil
}

type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]data.Alert
}

// Create keeps the alert's own id when it has one, so stored alerts match the
// events already sent to dashboards.
func (s *MemoryAlertStore) Create(_ context.Context, a *data.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if _, dup := s.alerts[a.ID]; dup {
		return fmt.Errorf("alert %s already stored", a.ID)
	}
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryAlertStore) Get(_ context.Context, id string) (*data.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryAlertStore) List(_ context.Context, f AlertFilter) ([]data.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if f.MachineID != "" && a.MachineID != f.MachineID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit := listLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryAlertStore) Update(_ context.Context, a *data.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; !ok {
		return ErrNotFound
	}
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryAlertStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[id]; !ok {
		return ErrNotFound
	}
	delete(s.alerts, id)
	return nil
}

type MemoryMaintenanceStore struct {
	mu    sync.RWMutex
	tasks map[string]data.MaintenanceTask
}

func (s *MemoryMaintenanceStore) Create(_ context.Context, t *data.MaintenanceTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t.ID = uuid.NewString()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tasks[t.ID] = *t
	return nil
}

func (s *MemoryMaintenanceStore) Get(_ context.Context, id string) (*data.MaintenanceTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryMaintenanceStore) List(_ context.Context, f MaintenanceFilter) ([]data.MaintenanceTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.MaintenanceTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.MachineID != "" && t.MachineID != f.MachineID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DueDate, out[j].DueDate
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	if limit := listLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryMaintenanceStore) Update(_ context.Context, t *data.MaintenanceTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = *t
	return nil
}

func (s *MemoryMaintenanceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Readings kept by MemorySensorLogStore before the oldest are dropped.
const memorySensorLogCapacity = 50000

type MemorySensorLogStore struct {
	mu       sync.RWMutex
	logs     []data.SensorReading
	capacity int
}

func (s *MemorySensorLogStore) Append(_ context.Context, r *data.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) >= s.capacity {
		s.logs = append(s.logs[:0], s.logs[len(s.logs)-s.capacity+1:]...)
	}
	s.logs = append(s.logs, *r)
	return nil
}

func (s *MemorySensorLogStore) Query(_ context.Context, machineID string, f SensorLogFilter) ([]data.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []data.SensorReading{}
	for _, r := range s.logs {
		if r.MachineID != machineID {
			continue
		}
		if !f.From.IsZero() && r.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && r.Timestamp.After(f.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit := listLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
