// internal/alerting/alerter.go
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/metrics"
	"sheild-gateway/internal/pubsub"
	"sheild-gateway/internal/storage"

	"go.uber.org/zap"
)

// EventAlert is the event name alerts travel under, on the broker and on the
// websocket namespace alike.
const EventAlert = "alert"

// Emitter pushes events to connected dashboards.
type Emitter interface {
	Emit(namespace, event string, payload any)
}

// Alerter publishes detector alerts on the alerts channel and keeps the live
// alert history by reducing every event received from that channel.
type Alerter struct {
	broker    pubsub.Broker
	namespace string
	channel   string
	emitter   Emitter
	store     storage.AlertStore
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu      sync.RWMutex
	history History
}

func NewAlerter(broker pubsub.Broker, namespace string, emitter Emitter, m *metrics.Metrics, logger *zap.Logger) *Alerter {
	return &Alerter{
		broker:    broker,
		namespace: "/" + namespace,
		channel:   pubsub.Channel(namespace, EventAlert),
		emitter:   emitter,
		metrics:   m,
		logger:    logger.Named("alerting"),
	}
}

// WithStore makes Raise persist every alert before publishing it.
func (a *Alerter) WithStore(s storage.AlertStore) *Alerter {
	a.store = s
	return a
}

// Raise persists alerts when a store is set and publishes them on the
// alerts channel. A store failure is logged and the alert is still published.
func (a *Alerter) Raise(ctx context.Context, alerts []data.Alert) error {
	for i := range alerts {
		if a.store != nil {
			if err := a.store.Create(ctx, &alerts[i]); err != nil {
				a.logger.Error("failed to persist alert",
					zap.String("machine_id", alerts[i].MachineID),
					zap.Error(err),
				)
			}
		}
		alert := alerts[i]
		payload, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		if err := a.broker.Publish(ctx, a.channel, payload); err != nil {
			return err
		}
		a.logger.Info("alert raised",
			zap.String("machine_id", alert.MachineID),
			zap.Stringer("severity", alert.Severity),
			zap.String("message", alert.Message),
		)
	}
	return nil
}

// Start subscribes to the alerts channel and consumes it on a new goroutine.
// Alerts published after Start returns are always delivered. The returned
// channel yields the loop's result once ctx is cancelled or the
// subscription ends.
func (a *Alerter) Start(ctx context.Context) (<-chan error, error) {
	sub, err := a.broker.Subscribe(ctx, a.channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", a.channel, err)
	}
	a.logger.Info("listening for alerts", zap.String("channel", a.channel))

	done := make(chan error, 1)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				done <- nil
				return
			case msg, ok := <-sub.C():
				if !ok {
					done <- nil
					return
				}
				a.Handle(msg.Payload)
			}
		}
	}()
	return done, nil
}

// Run is Start followed by waiting for the consume loop to end.
func (a *Alerter) Run(ctx context.Context) error {
	done, err := a.Start(ctx)
	if err != nil {
		return err
	}
	return <-done
}

// Handle applies one raw alert event.
func (a *Alerter) Handle(payload []byte) {
	alert, err := data.ParseAlert(payload)
	if err != nil {
		a.metrics.AlertsDropped.WithLabelValues("malformed").Inc()
		a.logger.Warn("dropping malformed alert", zap.Error(err))
		return
	}
	a.metrics.AlertsReceived.WithLabelValues(alert.Severity.String()).Inc()

	if a.emitter != nil {
		a.emitter.Emit(a.namespace, EventAlert, alert)
	}

	if !Accepts(alert) {
		a.metrics.AlertsDropped.WithLabelValues("severity").Inc()
		return
	}

	a.mu.Lock()
	a.history = Reduce(a.history, alert)
	a.mu.Unlock()
	a.metrics.AlertsAccepted.Inc()
}

// Snapshot returns the current alert history.
func (a *Alerter) Snapshot() History {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history
}
