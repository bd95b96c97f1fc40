// internal/data/parser.go
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid marks payloads that fail validation.
var ErrInvalid = errors.New("invalid payload")

// ParseReading decodes a sensor ingest payload. Devices are not consistent about
// key names, so a few aliases are accepted for the machine identifier.
func ParseReading(raw []byte, source string) (*SensorReading, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	r := &SensorReading{Source: source, Timestamp: time.Now().UTC()}
	for _, key := range []string{"machineId", "machine_id", "device_id", "sensor_id"} {
		if id, ok := generic[key].(string); ok && strings.TrimSpace(id) != "" {
			r.MachineID = strings.TrimSpace(id)
			break
		}
	}
	if r.MachineID == "" {
		return nil, fmt.Errorf("%w: machineId required", ErrInvalid)
	}

	fields := map[string]*float64{
		"vibration":   &r.Vibration,
		"temperature": &r.Temperature,
		"current":     &r.Current,
	}
	for key, dst := range fields {
		v, ok := generic[key]
		if !ok {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be numeric, got %T", ErrInvalid, key, v)
		}
		*dst = f
	}

	if ts, ok := generic["timestamp"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalid, err)
		}
		r.Timestamp = t
	}
	return r, nil
}

// ParseAlert decodes an alert event as published on the alerts channel.
func ParseAlert(raw []byte) (Alert, error) {
	var a Alert
	if err := json.Unmarshal(raw, &a); err != nil {
		return Alert{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if a.MachineID == "" {
		return Alert{}, fmt.Errorf("%w: alert without machineId", ErrInvalid)
	}
	if a.Severity == 0 {
		return Alert{}, fmt.Errorf("%w: alert without severity", ErrInvalid)
	}
	if a.Status == "" {
		a.Status = StatusOpen
	}
	return a, nil
}
