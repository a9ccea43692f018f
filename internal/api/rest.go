package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"crypto-candles-feed/internal/model"
	"crypto-candles-feed/internal/service"
)

const (
	klinesEndpoint = "/api/v3/klines"
	pingEndpoint   = "/api/v3/ping"

	restTimeout = 30 * time.Second
)

// RestClient implements feed.HistoryClient against the Binance spot
// REST API.
type RestClient struct {
	baseURL string
	client  *http.Client
}

func NewRestClient(baseURL string) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: restTimeout,
		},
	}
}

// Klines fetches a historical candle range, oldest to newest. The raw
// response rows are 12 columns wide; the trailing "ignore" column is
// discarded and the rest returned as floats in model.Columns order.
func (rc *RestClient) Klines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([][]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.baseURL+klinesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create klines request: %w", err)
	}

	q := req.URL.Query()
	q.Add("symbol", symbol)
	q.Add("interval", interval)
	q.Add("limit", strconv.Itoa(limit))
	if startTime > 0 {
		q.Add("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		q.Add("endTime", strconv.FormatInt(endTime, 10))
	}
	req.URL.RawQuery = q.Encode()

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("klines API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Rows mix JSON numbers and quoted decimals, so decode loosely
	// first and convert cell by cell.
	var raw [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode klines response: %w", err)
	}

	rows := make([][]float64, 0, len(raw))
	for _, rawRow := range raw {
		if len(rawRow) < model.NumColumns {
			return nil, fmt.Errorf("klines row too short: %d columns", len(rawRow))
		}
		row := make([]float64, model.NumColumns)
		for i := 0; i < model.NumColumns; i++ {
			v, err := cellToFloat(rawRow[i])
			if err != nil {
				return nil, fmt.Errorf("klines column %d: %w", i, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Ping hits the liveness endpoint. The response carries no payload;
// a 200 means the API is reachable.
func (rc *RestClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.baseURL+pingEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping API error: status %d", resp.StatusCode)
	}
	return nil
}

func cellToFloat(cell interface{}) (float64, error) {
	switch v := cell.(type) {
	case float64:
		return v, nil
	case string:
		return service.StringToFloat(v)
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("unexpected cell type %T", cell)
	}
}
