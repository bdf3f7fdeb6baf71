package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// RemoteModel delegates fitting and prediction to an external HTTP
// service, so any regressor can stand in for the built-in ones.
//
// Train only keeps the history. Predict posts
//
//	{"history": [{...,"people": n}, ...], "grid": [{...}, ...]}
//
// and expects {"values": [...]} with exactly one value per grid row. An
// optional "quantiles" object maps levels such as "0.1" to arrays of the
// same length.
type RemoteModel struct {
	endpoint string
	client   *http.Client
	history  []map[string]float64
}

type remoteRequest struct {
	History []map[string]float64 `json:"history"`
	Grid    []map[string]float64 `json:"grid"`
}

// NewRemoteModel creates a model backed by endpoint. A nil client gets a
// 30s timeout.
func NewRemoteModel(endpoint string, client *http.Client) *RemoteModel {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}
	return &RemoteModel{endpoint: endpoint, client: client}
}

// Name returns the model identifier.
func (m *RemoteModel) Name() string {
	return "remote"
}

// Train stores the rows sent along with the next Predict call.
func (m *RemoteModel) Train(ctx context.Context, history FeatureFrame) error {
	if len(history.Rows) == 0 {
		return errors.New("remote: no training rows")
	}
	m.history = history.Rows
	return nil
}

// Predict calls the external service.
func (m *RemoteModel) Predict(ctx context.Context, grid FeatureFrame) (Forecast, error) {
	if len(grid.Rows) == 0 {
		return Forecast{}, errors.New("remote: grid cannot be empty")
	}
	if m.history == nil {
		return Forecast{}, errors.New("remote: model not trained, call Train() first")
	}

	body, err := json.Marshal(remoteRequest{History: m.history, Grid: grid.Rows})
	if err != nil {
		return Forecast{}, fmt.Errorf("remote: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Forecast{}, fmt.Errorf("remote: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return Forecast{}, fmt.Errorf("remote: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Forecast{}, fmt.Errorf("remote: http %d: %s", resp.StatusCode, string(bodyBytes))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponse))
	if err != nil {
		return Forecast{}, fmt.Errorf("remote: read response: %w", err)
	}
	return decodeRemote(data, len(grid.Rows))
}

const maxRemoteResponse = 8 << 20

func decodeRemote(data []byte, rows int) (Forecast, error) {
	if !gjson.ValidBytes(data) {
		return Forecast{}, errors.New("remote: decode response: invalid JSON")
	}
	res := gjson.ParseBytes(data)

	values, err := nonNegative(res.Get("values"), rows)
	if err != nil {
		return Forecast{}, fmt.Errorf("remote: values: %w", err)
	}
	fc := Forecast{Values: values}

	var qerr error
	res.Get("quantiles").ForEach(func(key, arr gjson.Result) bool {
		level, err := strconv.ParseFloat(key.String(), 64)
		if err != nil || level <= 0 || level >= 1 {
			qerr = fmt.Errorf("remote: invalid quantile level %q", key.String())
			return false
		}
		vals, err := nonNegative(arr, rows)
		if err != nil {
			qerr = fmt.Errorf("remote: quantile %s: %w", key.String(), err)
			return false
		}
		if fc.Quantiles == nil {
			fc.Quantiles = make(map[float64][]float64)
		}
		fc.Quantiles[level] = vals
		return true
	})
	if qerr != nil {
		return Forecast{}, qerr
	}
	return fc, nil
}

// nonNegative reads a numeric array of the given length, clamping
// negative predictions to zero.
func nonNegative(arr gjson.Result, rows int) ([]float64, error) {
	if !arr.IsArray() {
		return nil, errors.New("missing array")
	}
	items := arr.Array()
	if len(items) != rows {
		return nil, fmt.Errorf("expected %d predictions, got %d", rows, len(items))
	}
	out := make([]float64, rows)
	for i, v := range items {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("prediction %d is not a number", i)
		}
		out[i] = max(v.Float(), 0)
	}
	return out, nil
}
