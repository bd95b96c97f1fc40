package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"sheild-gateway/internal/alerting"
	"sheild-gateway/internal/anomaly"
	"sheild-gateway/internal/auth"
	"sheild-gateway/internal/data"
	"sheild-gateway/internal/ingest"
	"sheild-gateway/internal/metrics"
	"sheild-gateway/internal/prediction"
	"sheild-gateway/internal/storage"
	"sheild-gateway/internal/websocket"

	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"go.uber.org/zap"
)

// Websocket events emitted by the HTTP layer.
const (
	EventSensorUpdate = "sensor_update"
	EventHistory      = "history"
)

// Deps are the components the HTTP layer drives.
type Deps struct {
	Machines    storage.MachineStore
	Reports     storage.ReportStore
	Alerts      storage.AlertStore
	Maintenance storage.MaintenanceStore
	SensorLogs  storage.SensorLogStore
	Readings    *storage.ReadingBuffer
	Detector    *anomaly.Detector
	Alerter     *alerting.Alerter
	Hub         *websocket.Hub
	Predictions *prediction.Service
	Analyzer    *ingest.Analyzer
	Auth        *auth.AuthManager
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	AllowedOrigins []string
	MaxUploadBytes int64
}

type APIHandler struct {
	Deps
	logger   *zap.Logger
	upgrader gwebsocket.Upgrader
}

func NewAPIHandler(d Deps) *APIHandler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	h := &APIHandler{Deps: d, logger: d.Logger.Named("api")}
	h.upgrader = gwebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin admits same-host requests, non-browser clients and the CORS allow-list.
func (h *APIHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originAllowed(h.AllowedOrigins, origin) || sameHost(origin, r.Host)
}

// HandleDataIngest receives readings from device translators.
func (h *APIHandler) HandleDataIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		badRequest(w, "Cannot read request body")
		return
	}
	defer r.Body.Close()

	source := r.Header.Get("X-Source")
	if source == "" {
		source = "http"
	}
	reading, err := data.ParseReading(body, source)
	if err != nil {
		h.logger.Debug("rejected reading", zap.Error(err))
		badRequest(w, err.Error())
		return
	}
	ctx := r.Context()

	machine, err := h.Machines.Get(ctx, reading.MachineID)
	if errors.Is(err, storage.ErrNotFound) {
		machine = &data.Machine{
			MachineID:  reading.MachineID,
			Name:       reading.MachineID,
			Status:     data.MachineNormal,
			Thresholds: data.DefaultThresholds(),
		}
		if err = h.Machines.Upsert(ctx, machine); err == nil {
			h.logger.Info("registered machine from first reading", zap.String("machine_id", machine.MachineID))
		}
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	// Records stored without some limits fall back to the defaults.
	machine.Thresholds = machine.Thresholds.WithDefaults()

	// 1. Score and record
	reading.HealthScore = anomaly.HealthScore(reading)
	status := anomaly.StatusFor(reading.HealthScore, machine.Thresholds)
	if _, err := h.Machines.RecordReading(ctx, machine.MachineID, reading.HealthScore, status, reading.Timestamp); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.Readings.Add(*reading)
	h.Metrics.ReadingsIngested.Inc()
	if err := h.SensorLogs.Append(ctx, reading); err != nil {
		h.logger.Error("store sensor log", zap.String("machine_id", reading.MachineID), zap.Error(err))
	}

	// 2. Check for anomalies and publish them on the alerts channel
	alerts := h.Detector.Check(machine, reading)
	if len(alerts) > 0 {
		if err := h.Alerter.Raise(ctx, alerts); err != nil {
			h.logger.Error("publish alerts", zap.String("machine_id", reading.MachineID), zap.Error(err))
		}
	}

	// 3. Broadcast the reading to dashboards
	h.Hub.Emit(websocket.NamespaceSensors, EventSensorUpdate, reading)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "received",
		"healthScore": reading.HealthScore,
		"alerts":      len(alerts),
	})
}

// HandleWebSocket upgrades connections and registers clients with the hub
// under namespace.
func (h *APIHandler) HandleWebSocket(namespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade", zap.Error(err))
			return
		}

		client := websocket.NewClient(h.Hub, conn, namespace)
		// History is queued first so it precedes any live event.
		h.sendInitialData(client)
		h.Hub.RegisterClient(client)

		go client.WritePump()
		go client.ReadPump()

		h.logger.Debug("websocket connection established",
			zap.String("namespace", namespace),
			zap.Stringer("remote", conn.RemoteAddr()))
	}
}

// sendInitialData replays the current state to a newly connected client.
func (h *APIHandler) sendInitialData(client *websocket.Client) {
	var payload any
	switch client.Namespace {
	case websocket.NamespaceAlerts:
		alerts := h.Alerter.Snapshot().Alerts()
		if len(alerts) == 0 {
			return
		}
		payload = alerts
	case websocket.NamespaceSensors:
		readings := h.Readings.Recent(0)
		if len(readings) == 0 {
			return
		}
		payload = readings
	default:
		return
	}
	if err := client.Queue(EventHistory, payload); err != nil {
		h.logger.Warn("history not delivered", zap.String("namespace", client.Namespace), zap.Error(err))
	}
}

// HandleHealth reports liveness.
func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// HandleAlerts returns the live alert history, newest first.
func (h *APIHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{"alerts": h.Alerter.Snapshot().Alerts()})
}
