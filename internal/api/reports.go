package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/report"
	"sheild-gateway/internal/storage"

	"github.com/go-chi/chi/v5"
)

func (h *APIHandler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	period := r.URL.Query().Get("period")
	list, err := h.Reports.List(r.Context(), storage.ReportFilter{Period: period, Limit: limit})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"reports": list})
}

func (h *APIHandler) HandleCreateReport(w http.ResponseWriter, r *http.Request) {
	var rep data.Report
	if err := decodeJSON(w, r, &rep); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := rep.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.Reports.Create(r.Context(), &rep); err != nil {
		h.serverError(w, r, err)
		return
	}
	created(w, map[string]any{"report": rep})
}

func (h *APIHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Report not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"report": rep})
}

func (h *APIHandler) HandleUpdateReport(w http.ResponseWriter, r *http.Request) {
	var rep data.Report
	if err := decodeJSON(w, r, &rep); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := rep.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	rep.ID = chi.URLParam(r, "id")
	err := h.Reports.Update(r.Context(), &rep)
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Report not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"report": rep})
}

func (h *APIHandler) HandleDeleteReport(w http.ResponseWriter, r *http.Request) {
	err := h.Reports.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		notFound(w, "Report not found")
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"id": chi.URLParam(r, "id")})
}

type generateRequest struct {
	Format    string         `json:"format"`
	Period    string         `json:"period"`
	StartDate time.Time      `json:"startDate"`
	EndDate   time.Time      `json:"endDate"`
	Contents  []string       `json:"contents"`
	Meta      map[string]any `json:"meta"`
	// Save also stores the report record.
	Save bool `json:"save"`
}

// HandleGenerateReport renders a report for download.
func (h *APIHandler) HandleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		badRequest(w, "startDate and endDate required")
		return
	}
	if req.Period == "" {
		req.Period = data.PeriodWeekly
	}
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rep := data.Report{
		Period:    req.Period,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Contents:  req.Contents,
		Meta:      req.Meta,
	}
	if err := rep.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := report.Export(&buf, &rep, format); err != nil {
		h.serverError(w, r, err)
		return
	}
	if req.Save {
		if err := h.Reports.Create(r.Context(), &rep); err != nil {
			h.serverError(w, r, err)
			return
		}
		w.Header().Set("X-Report-Id", rep.ID)
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.Filename())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
