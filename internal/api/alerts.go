package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"sheild-gateway/internal/auth"
	"sheild-gateway/internal/data"
	"sheild-gateway/internal/storage"
	"sheild-gateway/internal/websocket"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// EventAlertUpdate carries a stored alert after a status change.
const EventAlertUpdate = "alert_update"

// HandleCreateAlert raises an operator-submitted alert through the same path
// as detector alerts.
func (h *APIHandler) HandleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var a data.Alert
	if err := decodeJSON(w, r, &a); err != nil {
		badRequest(w, err.Error())
		return
	}
	a.MachineID = strings.TrimSpace(a.MachineID)
	a.Message = strings.TrimSpace(a.Message)
	if a.MachineID == "" || a.Message == "" || a.Severity == 0 {
		badRequest(w, "machineId, severity and message are required")
		return
	}
	if a.Status == "" {
		a.Status = data.StatusOpen
	}
	if !data.ValidAlertStatus(a.Status) {
		badRequest(w, "Unknown alert status")
		return
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	alerts := []data.Alert{a}
	if err := h.Alerter.Raise(r.Context(), alerts); err != nil {
		h.serverError(w, r, err)
		return
	}
	created(w, map[string]any{"alert": alerts[0]})
}

// HandleAlertHistory lists stored alerts, newest first.
func (h *APIHandler) HandleAlertHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	status := q.Get("status")
	if status != "" && !data.ValidAlertStatus(status) {
		badRequest(w, "Unknown alert status")
		return
	}
	list, err := h.Alerts.List(r.Context(), storage.AlertFilter{
		MachineID: q.Get("machineId"),
		Status:    status,
		Limit:     limit,
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"alerts": list})
}

func (h *APIHandler) HandleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.Alerts.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Alert not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"alert": a})
}

type alertStatusRequest struct {
	Status         string `json:"status"`
	AcknowledgedBy string `json:"acknowledgedBy"`
}

// HandleUpdateAlert moves a stored alert forward through
// open, in_progress and resolved.
func (h *APIHandler) HandleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	ctx := r.Context()
	a, err := h.Alerts.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Alert not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	by := strings.TrimSpace(req.AcknowledgedBy)
	if by == "" {
		if claims, found := auth.ClaimsFrom(ctx); found {
			by = claims.Username
		}
	}
	if err := a.Transition(req.Status, by, time.Now().UTC()); err != nil {
		badRequest(w, err.Error())
		return
	}
	err = h.Alerts.Update(ctx, a)
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Alert not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.Hub.Emit(websocket.NamespaceAlerts, EventAlertUpdate, a)
	h.logger.Info("alert status changed",
		zap.String("alert_id", a.ID),
		zap.String("status", a.Status),
		zap.String("by", by),
	)
	ok(w, map[string]any{"alert": a})
}

func (h *APIHandler) HandleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.Alerts.Delete(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Alert not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"id": id})
}
