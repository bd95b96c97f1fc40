package alerting

import (
	"fmt"
	"testing"

	"sheild-gateway/internal/data"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type event struct {
	machine  int
	severity int
}

func genEvents() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.IntRange(0, 24),
		gen.IntRange(int(data.SeverityLow), int(data.SeverityCritical)),
	).Map(func(v []interface{}) event {
		return event{machine: v[0].(int), severity: v[1].(int)}
	}))
}

func replay(events []event) (History, []History) {
	var h History
	steps := make([]History, 0, len(events))
	for i, e := range events {
		h = Reduce(h, data.Alert{
			MachineID: fmt.Sprintf("M-%d", e.machine),
			Severity:  data.Severity(e.severity),
			Message:   fmt.Sprintf("event %d", i),
		})
		steps = append(steps, h)
	}
	return h, steps
}

func TestHistoryInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("history is bounded and keyed by machine", prop.ForAll(
		func(events []event) bool {
			_, steps := replay(events)
			for _, h := range steps {
				if h.Len() > HistorySize {
					return false
				}
				seen := map[string]bool{}
				for _, a := range h.Alerts() {
					if seen[a.MachineID] || a.Severity < data.SeverityHigh {
						return false
					}
					seen[a.MachineID] = true
				}
			}
			return true
		},
		genEvents(),
	))

	properties.Property("re-alerting a tracked machine keeps the count", prop.ForAll(
		func(events []event, pick int, sev int) bool {
			h, _ := replay(events)
			if h.Len() == 0 {
				return true
			}
			target := h.Alerts()[pick%h.Len()]
			next := Reduce(h, data.Alert{MachineID: target.MachineID, Severity: data.Severity(sev), Message: "update"})
			if next.Len() != h.Len() {
				return false
			}
			for i, a := range next.Alerts() {
				if a.MachineID != h.Alerts()[i].MachineID {
					return false
				}
			}
			got, _ := next.Get(target.MachineID)
			return got.Message == "update"
		},
		genEvents(),
		gen.IntRange(0, 100),
		gen.IntRange(int(data.SeverityHigh), int(data.SeverityCritical)),
	))

	properties.TestingRun(t)
}
