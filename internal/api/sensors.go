package api

import (
	"fmt"
	"net/http"
	"time"

	"sheild-gateway/internal/storage"

	"github.com/go-chi/chi/v5"
)

// HandleSensorLogs returns stored readings for a machine, newest first,
// optionally bounded by from and to.
func (h *APIHandler) HandleSensorLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	from, err := queryTime(q.Get("from"), false)
	if err != nil {
		badRequest(w, "from: "+err.Error())
		return
	}
	to, err := queryTime(q.Get("to"), true)
	if err != nil {
		badRequest(w, "to: "+err.Error())
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		badRequest(w, "to must not be before from")
		return
	}

	machineID := chi.URLParam(r, "machineId")
	logs, err := h.SensorLogs.Query(r.Context(), machineID, storage.SensorLogFilter{From: from, To: to, Limit: limit})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"machineId": machineID, "logs": logs})
}

// queryTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func queryTime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
