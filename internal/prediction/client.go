// Package prediction scores feature sets and talks to remote prediction services.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sheild-gateway/internal/data"
)

// PredictionClient produces a PredictionResult for a machine's features.
type PredictionClient interface {
	Predict(ctx context.Context, machineID string, features data.FeatureSet) (data.PredictionResult, error)
}

// APIError is a non-2xx answer from the prediction service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prediction service: %d: %s", e.Status, e.Message)
}

// ClientConfig configures HTTPClient.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HTTPClient calls POST {BaseURL}/predictions/predict.
type HTTPClient struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		client:  &http.Client{},
	}
}

type predictRequest struct {
	MachineID string          `json:"machineId"`
	Features  data.FeatureSet `json:"features"`
}

type predictResponse struct {
	Data struct {
		Prediction *data.PredictionResult `json:"prediction"`
	} `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *HTTPClient) Predict(ctx context.Context, machineID string, features data.FeatureSet) (data.PredictionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(predictRequest{MachineID: machineID, Features: features})
	if err != nil {
		return data.PredictionResult{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions/predict", bytes.NewReader(body))
	if err != nil {
		return data.PredictionResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return data.PredictionResult{}, fmt.Errorf("prediction request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return data.PredictionResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data.PredictionResult{}, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return data.PredictionResult{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Data.Prediction == nil {
		return data.PredictionResult{}, fmt.Errorf("decode response: missing data.prediction")
	}
	return *out.Data.Prediction, nil
}

// errorMessage extracts a human message from an error body, falling back to
// the status text.
func errorMessage(status int, raw []byte) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
