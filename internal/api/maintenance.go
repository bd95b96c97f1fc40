package api

import (
	"context"
	"errors"
	"net/http"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/storage"

	"github.com/go-chi/chi/v5"
)

func (h *APIHandler) HandleListMaintenance(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	list, err := h.Maintenance.List(r.Context(), storage.MaintenanceFilter{
		MachineID: q.Get("machineId"),
		Status:    q.Get("status"),
		Limit:     limit,
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"tasks": list})
}

func (h *APIHandler) HandleCreateMaintenance(w http.ResponseWriter, r *http.Request) {
	var t data.MaintenanceTask
	if err := decodeJSON(w, r, &t); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := t.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	ctx := r.Context()
	if known, err := h.machineExists(ctx, t.MachineID); err != nil {
		h.serverError(w, r, err)
		return
	} else if !known {
		badRequest(w, "Unknown machineId")
		return
	}
	if err := h.Maintenance.Create(ctx, &t); err != nil {
		h.serverError(w, r, err)
		return
	}
	created(w, map[string]any{"task": t})
}

func (h *APIHandler) HandleGetMaintenance(w http.ResponseWriter, r *http.Request) {
	t, err := h.Maintenance.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Task not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"task": t})
}

func (h *APIHandler) HandleUpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	var t data.MaintenanceTask
	if err := decodeJSON(w, r, &t); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := t.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	ctx := r.Context()
	if known, err := h.machineExists(ctx, t.MachineID); err != nil {
		h.serverError(w, r, err)
		return
	} else if !known {
		badRequest(w, "Unknown machineId")
		return
	}
	t.ID = chi.URLParam(r, "id")
	err := h.Maintenance.Update(ctx, &t)
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Task not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"task": t})
}

func (h *APIHandler) HandleDeleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.Maintenance.Delete(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Task not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"id": id})
}

func (h *APIHandler) machineExists(ctx context.Context, machineID string) (bool, error) {
	_, err := h.Machines.Get(ctx, machineID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
