// internal/anomaly/detector.go
package anomaly

import (
	"fmt"
	"math"

	"sheild-gateway/internal/data"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HealthScore estimates machine health in [0,100] from a reading. Vibration
// dominates; temperature only counts above 60°C.
func HealthScore(r *data.SensorReading) float64 {
	score := 100 - r.Vibration*1.8 - math.Max(0, r.Temperature-60)
	return math.Round(math.Max(0, math.Min(100, score)))
}

// StatusFor maps a health score onto a machine status using the machine's
// health score limits.
func StatusFor(score float64, t data.Thresholds) string {
	switch {
	case score < t.HealthScore.Critical:
		return data.MachineFaulty
	case score < t.HealthScore.Warning:
		return data.MachineWarning
	default:
		return data.MachineNormal
	}
}

// Below this health score an alert is critical regardless of machine limits.
const severeHealthScore = 25

type Detector struct {
	logger *zap.Logger
}

func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("anomaly")}
}

// Check returns the alerts a reading raises against the machine's thresholds.
// Unset limits use the defaults. The reading's HealthScore must already be set.
func (d *Detector) Check(machine *data.Machine, r *data.SensorReading) []data.Alert {
	t := machine.Thresholds.WithDefaults()
	var alerts []data.Alert

	raise := func(sev data.Severity, metric string, value float64, msg string) {
		alerts = append(alerts, data.Alert{
			ID:        uuid.NewString(),
			MachineID: r.MachineID,
			Severity:  sev,
			Message:   msg,
			Status:    data.StatusOpen,
			Timestamp: r.Timestamp,
			Metric:    metric,
			Value:     value,
		})
	}

	if r.HealthScore < t.HealthScore.Critical {
		sev := data.SeverityHigh
		if r.HealthScore < severeHealthScore {
			sev = data.SeverityCritical
		}
		raise(sev, "healthScore", r.HealthScore, fmt.Sprintf("Low health score: %.0f", r.HealthScore))
	}

	features := []struct {
		name   string
		value  float64
		limit  data.Limit
		format string
	}{
		{"vibration", r.Vibration, t.Vibration, "High vibration detected: %.2f mm/s"},
		{"temperature", r.Temperature, t.Temperature, "Temperature critical: %.2f°C"},
		{"current", r.Current, t.Current, "High current draw: %.2f A"},
	}
	for _, f := range features {
		switch {
		case f.value > f.limit.Critical:
			raise(data.SeverityCritical, f.name, f.value, fmt.Sprintf(f.format, f.value))
		case f.value > f.limit.Warning:
			raise(data.SeverityMedium, f.name, f.value, fmt.Sprintf(f.format, f.value))
		}
	}

	for _, a := range alerts {
		d.logger.Debug("anomaly detected",
			zap.String("machine_id", a.MachineID),
			zap.String("metric", a.Metric),
			zap.Float64("value", a.Value),
			zap.Stringer("severity", a.Severity),
		)
	}
	return alerts
}
