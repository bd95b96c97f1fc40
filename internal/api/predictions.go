package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"sheild-gateway/internal/data"
	"sheild-gateway/internal/ingest"
	"sheild-gateway/internal/prediction"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type predictRequest struct {
	MachineID string          `json:"machineId"`
	Features  data.FeatureSet `json:"features"`
}

// HandlePredict scores features for a known machine and stores the prediction.
func (h *APIHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	p, err := h.Predictions.Create(r.Context(), req.MachineID, req.Features)
	switch {
	case errors.Is(err, prediction.ErrMachineIDRequired):
		badRequest(w, "machineId required")
		return
	case errors.Is(err, prediction.ErrUnknownMachine):
		badRequest(w, "Unknown machineId")
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}
	created(w, map[string]any{"prediction": p})
}

// HandlePredictionHistory lists recent predictions for a machine.
func (h *APIHandler) HandlePredictionHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 50)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	list, err := h.Predictions.History(r.Context(), chi.URLParam(r, "machineId"), limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	ok(w, map[string]any{"predictions": list})
}

// HandleAnalyze accepts a CSV dataset as a multipart "file" field or as the
// raw request body, averages it and runs one prediction over the result.
func (h *APIHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.MaxUploadBytes {
		tooLarge(w, h.MaxUploadBytes)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	text, machineID, err := readDataset(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge(w, maxErr.Limit)
			return
		}
		badRequest(w, err.Error())
		return
	}

	res, err := h.Analyzer.Analyze(r.Context(), text, machineID)
	if err != nil {
		var apiErr *prediction.APIError
		switch {
		case errors.Is(err, ingest.ErrEmptyFile),
			errors.Is(err, ingest.ErrMissingColumn),
			errors.Is(err, ingest.ErrEmptyDataset),
			errors.Is(err, ingest.ErrMalformed):
			badRequest(w, err.Error())
		case errors.Is(err, prediction.ErrMachineIDRequired),
			errors.Is(err, prediction.ErrUnknownMachine):
			badRequest(w, err.Error())
		case errors.As(err, &apiErr):
			h.logger.Warn("prediction service rejected dataset", zap.Int("status", apiErr.Status), zap.String("message", apiErr.Message))
			badGateway(w, apiErr.Message)
		default:
			h.serverError(w, r, err)
		}
		return
	}
	ok(w, res)
}

func readDataset(r *http.Request) (text, machineID string, err error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			if oversized(err) {
				return "", "", err
			}
			return "", "", errors.New("CSV file is required")
		}
		defer file.Close()
		b, err := io.ReadAll(file)
		if err != nil {
			if oversized(err) {
				return "", "", err
			}
			return "", "", errors.New("cannot read CSV file")
		}
		return string(b), r.FormValue("machineId"), nil
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		if oversized(err) {
			return "", "", err
		}
		return "", "", errors.New("cannot read request body")
	}
	if len(b) == 0 {
		return "", "", errors.New("CSV file is required")
	}
	return string(b), r.URL.Query().Get("machineId"), nil
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

func oversized(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
