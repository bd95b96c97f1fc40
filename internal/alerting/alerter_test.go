package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/metrics"
	"sheild-gateway/internal/pubsub"
	"sheild-gateway/internal/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) Emit(namespace, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, namespace+" "+event)
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func TestAlerterHandle(t *testing.T) {
	m := metrics.New()
	em := &recordingEmitter{}
	a := NewAlerter(pubsub.NewMemoryBroker(), "alerts", em, m, zaptest.NewLogger(t))

	a.Handle([]byte(`{"machineId":"M-1001","severity":"high","message":"High vibration detected","status":"open"}`))
	a.Handle([]byte(`{"machineId":"M-1002","severity":"low","message":"fine"}`))
	a.Handle([]byte(`not json`))

	snap := a.Snapshot()
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "M-1001", snap.Alerts()[0].MachineID)

	assert.Equal(t, []string{"/alerts alert", "/alerts alert"}, em.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsDropped.WithLabelValues("severity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsDropped.WithLabelValues("malformed")))
}

func TestAlerterRaiseAndRun(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	em := &recordingEmitter{}
	a := NewAlerter(broker, "alerts", em, metrics.New(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Run subscribes asynchronously; keep raising until the first event lands.
	first := data.Alert{MachineID: "M-1001", Severity: data.SeverityCritical, Message: "Low health score: 20", Status: data.StatusOpen}
	require.Eventually(t, func() bool {
		_ = a.Raise(ctx, []data.Alert{first})
		return em.count() > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, a.Raise(ctx, []data.Alert{
		{MachineID: "M-1002", Severity: data.SeverityHigh, Message: "Temperature critical"},
		{MachineID: "M-1001", Severity: data.SeverityHigh, Message: "Maintenance required soon"},
	}))

	require.Eventually(t, func() bool {
		got, _ := a.Snapshot().Get("M-1001")
		return a.Snapshot().Len() == 2 && got.Message == "Maintenance required soon"
	}, 2*time.Second, 10*time.Millisecond)

	ids := []string{}
	for _, al := range a.Snapshot().Alerts() {
		ids = append(ids, al.MachineID)
	}
	assert.Equal(t, []string{"M-1002", "M-1001"}, ids)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAlerterStartDeliversFirstRaise(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	em := &recordingEmitter{}
	a := NewAlerter(broker, "alerts", em, metrics.New(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done, err := a.Start(ctx)
	require.NoError(t, err)

	// The memory broker drops messages nobody is subscribed to, so the very
	// first Raise only lands if Start has already subscribed.
	require.NoError(t, a.Raise(ctx, []data.Alert{
		{MachineID: "M-1001", Severity: data.SeverityCritical, Message: "Low health score: 12", Status: data.StatusOpen},
	}))
	require.Eventually(t, func() bool { return a.Snapshot().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, em.count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consume loop did not stop after cancel")
	}
}

func TestAlerterRaisePersists(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	store := storage.NewMemoryStores().Alerts
	a := NewAlerter(broker, "alerts", nil, metrics.New(), zaptest.NewLogger(t)).WithStore(store)

	ctx := context.Background()
	alerts := []data.Alert{
		{ID: "alert-1", MachineID: "M-1001", Severity: data.SeverityHigh, Message: "High vibration detected", Status: data.StatusOpen},
		{MachineID: "M-1002", Severity: data.SeverityMedium, Message: "Maintenance required soon", Status: data.StatusOpen},
	}
	require.NoError(t, a.Raise(ctx, alerts))

	got, err := store.Get(ctx, "alert-1")
	require.NoError(t, err)
	assert.Equal(t, "High vibration detected", got.Message)
	require.NotEmpty(t, alerts[1].ID, "generated ids are written back")

	list, err := store.List(ctx, storage.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// A duplicate id fails to persist but is still published.
	sub, err := broker.Subscribe(ctx, pubsub.Channel("alerts", EventAlert))
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, a.Raise(ctx, alerts[:1]))
	select {
	case msg := <-sub.C():
		assert.Contains(t, string(msg.Payload), "alert-1")
	case <-time.After(time.Second):
		t.Fatal("alert was not published")
	}
}
