// internal/alerting/history.go
package alerting

import "sheild-gateway/internal/data"

// HistorySize is the number of distinct machines the live alert table keeps.
const HistorySize = 10

// MinSeverity is the lowest severity surfaced on the dashboard.
const MinSeverity = data.SeverityHigh

// History is the live alert table: newest first, at most one entry per
// machine. A History is never mutated; Reduce returns a new value.
type History struct {
	entries []data.Alert
}

// Len returns the number of alerts held.
func (h History) Len() int { return len(h.entries) }

// Alerts returns a copy of the entries, newest first.
func (h History) Alerts() []data.Alert {
	out := make([]data.Alert, len(h.entries))
	copy(out, h.entries)
	return out
}

// Get returns the alert held for a machine.
func (h History) Get(machineID string) (data.Alert, bool) {
	if i := h.indexOf(machineID); i >= 0 {
		return h.entries[i], true
	}
	return data.Alert{}, false
}

func (h History) indexOf(machineID string) int {
	for i, a := range h.entries {
		if a.MachineID == machineID {
			return i
		}
	}
	return -1
}

// Accepts reports whether an alert is severe enough for the table.
func Accepts(a data.Alert) bool {
	return a.Severity >= MinSeverity
}

// Reduce applies one alert event to h. Alerts below MinSeverity leave h
// unchanged. An alert for a tracked machine replaces that entry in place;
// otherwise it is prepended and the table is cut to HistorySize.
func Reduce(h History, a data.Alert) History {
	if !Accepts(a) {
		return h
	}

	if i := h.indexOf(a.MachineID); i >= 0 {
		next := h.Alerts()
		next[i] = a
		return History{entries: next}
	}

	n := len(h.entries) + 1
	if n > HistorySize {
		n = HistorySize
	}
	next := make([]data.Alert, 0, n)
	next = append(next, a)
	next = append(next, h.entries[:n-1]...)
	return History{entries: next}
}
