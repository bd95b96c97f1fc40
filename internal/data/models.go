// internal/data/models.go
package data

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Severity is the ordinal priority of an alert.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// ParseSeverity maps the wire name of a severity to its value. Names are case-sensitive.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalJSON() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return json.Marshal(name)
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	sev, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// Alert statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

// Alert is a machine alert as carried on the alerts channel.
type Alert struct {
	ID        string    `json:"id,omitempty"`
	MachineID string    `json:"machineId"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric,omitempty"` // feature that triggered the alert
	Value     float64   `json:"value,omitempty"`

	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

var statusRank = map[string]int{StatusOpen: 0, StatusInProgress: 1, StatusResolved: 2}

// ValidAlertStatus reports whether s is a known alert status.
func ValidAlertStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

// Transition moves the alert to status. Alerts only move forward
// (open, in_progress, resolved); repeating the current status is a no-op.
// The first move past open records who acknowledged it.
func (a *Alert) Transition(status, by string, at time.Time) error {
	next, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("%w: unknown alert status %q", ErrInvalid, status)
	}
	cur := statusRank[a.Status]
	if next < cur {
		return fmt.Errorf("%w: alert is %s, cannot move back to %s", ErrInvalid, a.Status, status)
	}
	if next == cur {
		return nil
	}
	if a.AcknowledgedAt == nil {
		a.AcknowledgedBy = by
		a.AcknowledgedAt = &at
	}
	if status == StatusResolved {
		a.ResolvedAt = &at
	}
	a.Status = status
	return nil
}

// SensorReading is one periodic sample for a machine.
type SensorReading struct {
	MachineID   string    `json:"machineId"`
	Timestamp   time.Time `json:"timestamp"`
	Vibration   float64   `json:"vibration"`
	Temperature float64   `json:"temperature"`
	Current     float64   `json:"current"`
	HealthScore float64   `json:"healthScore"`
	Source      string    `json:"source,omitempty"`
}

// FeatureSet is the model input for a prediction.
type FeatureSet struct {
	Vibration   float64 `json:"vibration" bson:"vibration"`
	Temperature float64 `json:"temperature" bson:"temperature"`
	Current     float64 `json:"current" bson:"current"`
}

// Classification labels.
const (
	LabelNormal = "normal"
	LabelFaulty = "faulty"
)

type Classification struct {
	Label      string  `json:"label" bson:"label"`
	Confidence float64 `json:"confidence" bson:"confidence"`
}

// PredictionResult is what a prediction service returns for a FeatureSet.
type PredictionResult struct {
	Classification    Classification     `json:"classification" bson:"classification"`
	RULHours          float64            `json:"rulHours" bson:"rulHours"`
	FeatureImportance map[string]float64 `json:"featureImportance" bson:"featureImportance"`
}

// Prediction is a persisted PredictionResult.
type Prediction struct {
	ID        string     `json:"id"`
	MachineID string     `json:"machineId"`
	Input     FeatureSet `json:"input"`
	CreatedAt time.Time  `json:"createdAt"`

	PredictionResult
}

// Report periods.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Report is a periodic maintenance report record.
type Report struct {
	ID        string         `json:"id"`
	Period    string         `json:"period"`
	StartDate time.Time      `json:"startDate"`
	EndDate   time.Time      `json:"endDate"`
	Contents  []string       `json:"contents"`
	FileURL   string         `json:"fileUrl,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Validate checks the fields the report schema requires.
func (r *Report) Validate() error {
	switch r.Period {
	case PeriodWeekly, PeriodMonthly:
	default:
		return fmt.Errorf("%w: period must be weekly or monthly, got %q", ErrInvalid, r.Period)
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("%w: startDate and endDate required", ErrInvalid)
	}
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("%w: endDate before startDate", ErrInvalid)
	}
	if r.Contents == nil {
		r.Contents = []string{}
	}
	return nil
}

// Machine statuses.
const (
	MachineNormal  = "normal"
	MachineWarning = "warning"
	MachineFaulty  = "faulty"
)

// Limit is a warning/critical threshold pair for one feature.
type Limit struct {
	Warning  float64 `json:"warning" bson:"warning" mapstructure:"warning"`
	Critical float64 `json:"critical" bson:"critical" mapstructure:"critical"`
}

// Thresholds holds per-feature limits. HealthScore limits are lower bounds.
type Thresholds struct {
	Temperature Limit `json:"temperature" bson:"temperature" mapstructure:"temperature"`
	Vibration   Limit `json:"vibration" bson:"vibration" mapstructure:"vibration"`
	Current     Limit `json:"current" bson:"current" mapstructure:"current"`
	HealthScore Limit `json:"healthScore" bson:"healthScore" mapstructure:"health_score"`
}

// WithDefaults fills every unset limit from DefaultThresholds, so a machine
// configured with only some limits keeps sane values for the rest.
func (t Thresholds) WithDefaults() Thresholds {
	def := DefaultThresholds()
	for _, p := range []struct {
		dst *Limit
		def Limit
	}{
		{&t.Temperature, def.Temperature},
		{&t.Vibration, def.Vibration},
		{&t.Current, def.Current},
		{&t.HealthScore, def.HealthScore},
	} {
		if *p.dst == (Limit{}) {
			*p.dst = p.def
		}
	}
	return t
}

// Validate checks each limit pair. Feature limits are upper bounds, so the
// warning level must not exceed the critical one; health score limits are
// lower bounds and run the other way.
func (t Thresholds) Validate() error {
	for _, f := range []struct {
		name  string
		limit Limit
	}{
		{"temperature", t.Temperature},
		{"vibration", t.Vibration},
		{"current", t.Current},
	} {
		if f.limit.Critical <= 0 || f.limit.Warning <= 0 {
			return fmt.Errorf("%w: %s limits must be positive", ErrInvalid, f.name)
		}
		if f.limit.Warning > f.limit.Critical {
			return fmt.Errorf("%w: %s warning above critical", ErrInvalid, f.name)
		}
	}
	h := t.HealthScore
	if h.Critical <= 0 || h.Warning > 100 || h.Warning < h.Critical {
		return fmt.Errorf("%w: healthScore limits need 0 < critical <= warning <= 100", ErrInvalid)
	}
	return nil
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: Limit{Warning: 80, Critical: 90},
		Vibration:   Limit{Warning: 25, Critical: 35},
		Current:     Limit{Warning: 12, Critical: 15},
		HealthScore: Limit{Warning: 70, Critical: 40},
	}
}

// Machine is a monitored asset.
type Machine struct {
	MachineID   string     `json:"machineId" bson:"machineId" mapstructure:"machine_id"`
	Name        string     `json:"name" bson:"name" mapstructure:"name"`
	Location    string     `json:"location,omitempty" bson:"location,omitempty" mapstructure:"location"`
	Status      string     `json:"status" bson:"status"`
	HealthScore float64    `json:"healthScore" bson:"healthScore"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty" bson:"lastSeenAt,omitempty"`
	Thresholds  Thresholds `json:"thresholds" bson:"thresholds" mapstructure:"thresholds"`
}

// Maintenance task statuses.
const (
	TaskScheduled = "scheduled"
	TaskOverdue   = "overdue"
	TaskCompleted = "completed"
)

// MaintenanceTask is a planned maintenance job for a machine.
type MaintenanceTask struct {
	ID          string     `json:"id"`
	MachineID   string     `json:"machineId"`
	Task        string     `json:"task"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t *MaintenanceTask) Validate() error {
	t.MachineID = strings.TrimSpace(t.MachineID)
	t.Task = strings.TrimSpace(t.Task)
	if t.MachineID == "" || t.Task == "" {
		return fmt.Errorf("%w: machineId and task are required", ErrInvalid)
	}
	switch t.Status {
	case "":
		t.Status = TaskScheduled
	case TaskScheduled, TaskOverdue, TaskCompleted:
	default:
		return fmt.Errorf("%w: unknown task status %q", ErrInvalid, t.Status)
	}
	return nil
}
