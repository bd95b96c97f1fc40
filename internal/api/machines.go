package api

import (
	"errors"
	"net/http"
	"strings"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/storage"

	"github.com/go-chi/chi/v5"
)

func (h *APIHandler) HandleListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := h.Machines.List(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"machines": machines})
}

func (h *APIHandler) HandleGetMachine(w http.ResponseWriter, r *http.Request) {
	m, err := h.Machines.Get(r.Context(), chi.URLParam(r, "machineId"))
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Machine not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"machine": m})
}

// HandleUpsertMachine registers a machine or replaces its name, location and
// thresholds. Health state is kept from the stored record.
func (h *APIHandler) HandleUpsertMachine(w http.ResponseWriter, r *http.Request) {
	var m data.Machine
	if err := decodeJSON(w, r, &m); err != nil {
		badRequest(w, err.Error())
		return
	}
	m.MachineID = strings.TrimSpace(m.MachineID)
	if m.MachineID == "" {
		badRequest(w, "machineId required")
		return
	}
	m.Thresholds = m.Thresholds.WithDefaults()
	if err := m.Thresholds.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	existing, err := h.Machines.Get(r.Context(), m.MachineID)
	switch {
	case err == nil:
		m.Status, m.HealthScore, m.LastSeenAt = existing.Status, existing.HealthScore, existing.LastSeenAt
	case errors.Is(err, storage.ErrNotFound):
		m.Status, m.HealthScore, m.LastSeenAt = data.MachineNormal, 100, nil
	default:
		h.serverError(w, r, err)
		return
	}
	if m.Name == "" {
		m.Name = m.MachineID
	}

	if err := h.Machines.Upsert(r.Context(), &m); err != nil {
		h.serverError(w, r, err)
		return
	}
	if existing == nil {
		created(w, map[string]any{"machine": m})
		return
	}
	ok(w, map[string]any{"machine": m})
}
