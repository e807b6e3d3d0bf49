// Package benchmark fetches index series from the external benchmark
// provider. The provider is read only; failures degrade the analysis instead
// of failing it.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) domain.BenchmarkClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type seriesResponse struct {
	Points []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"points"`
}

func (c *httpClient) GetBenchmark(ctx context.Context, symbol string, from, to time.Time) ([]domain.BenchmarkPoint, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/series?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("benchmark request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("benchmark provider returned status %d", resp.StatusCode)
	}

	var body seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode benchmark response: %w", err)
	}

	points := make([]domain.BenchmarkPoint, 0, len(body.Points))
	for _, p := range body.Points {
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("bad benchmark date %q: %w", p.Date, err)
		}
		value, err := decimal.NewFromString(p.Value)
		if err != nil {
			return nil, fmt.Errorf("bad benchmark value %q: %w", p.Value, err)
		}
		points = append(points, domain.BenchmarkPoint{Date: date, Value: value})
	}
	return points, nil
}
