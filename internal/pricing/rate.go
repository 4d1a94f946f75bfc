package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoRate reports a response without a usable rate.
var ErrNoRate = errors.New("pricing: exchange rate unavailable")

var ten = decimal.NewFromInt(10)

// RateClient reads the informal market rate from the exchange rate API.
type RateClient struct {
	url    string
	client *http.Client
}

// NewRateClient builds a client for url. timeout bounds each request.
func NewRateClient(url string, timeout time.Duration) *RateClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &RateClient{url: url, client: &http.Client{Timeout: timeout}}
}

type rateResponse struct {
	CupHistory []struct {
		Value json.Number `json:"value"`
	} `json:"cupHistory"`
}

// Fetch returns the latest rate rounded to the nearest ten.
func (c *RateClient) Fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricing: build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricing: fetch rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("pricing: fetch rate: status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("pricing: decode rate: %w", err)
	}
	if len(body.CupHistory) == 0 || body.CupHistory[0].Value == "" {
		return decimal.Zero, ErrNoRate
	}
	latest, err := decimal.NewFromString(body.CupHistory[0].Value.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNoRate, err)
	}
	rate := RoundRate(latest)
	if !rate.IsPositive() {
		return decimal.Zero, ErrNoRate
	}
	return rate, nil
}

// RoundRate rounds to the nearest ten, halves up: 514 → 510, 515 → 520.
func RoundRate(v decimal.Decimal) decimal.Decimal {
	return v.Div(ten).Round(0).Mul(ten)
}
