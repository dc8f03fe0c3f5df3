package pricing

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// PriceFeed resolves the latest reading from one external price source. Latest
// returns the raw value in the source's native decimal precision together with
// the timestamp the source last updated.
type PriceFeed interface {
	Latest() (*big.Int, time.Time, error)
	Decimals() uint8
}

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu        sync.RWMutex
	decimals  uint8
	value     *big.Int
	updatedAt time.Time
}

// NewManualFeed constructs an empty manual feed with the supplied precision.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// Set records the supplied reading. The value is defensively copied.
func (f *ManualFeed) Set(value *big.Int, updatedAt time.Time) error {
	if f == nil {
		return fmt.Errorf("manual feed not configured")
	}
	if value == nil {
		return fmt.Errorf("manual feed: value required")
	}
	f.mu.Lock()
	f.value = new(big.Int).Set(value)
	f.updatedAt = updatedAt
	f.mu.Unlock()
	return nil
}

// SetDecimal parses and records a decimal string scaled to the feed precision.
// "1.25" with 8 decimals stores 125000000.
func (f *ManualFeed) SetDecimal(value string, updatedAt time.Time) error {
	if f == nil {
		return fmt.Errorf("manual feed not configured")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("manual feed: value required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual feed: invalid value %q", value)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(f.decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))
	scaled := new(big.Int).Quo(rat.Num(), rat.Denom())
	return f.Set(scaled, updatedAt)
}

// Latest returns the stored reading.
func (f *ManualFeed) Latest() (*big.Int, time.Time, error) {
	if f == nil {
		return nil, time.Time{}, fmt.Errorf("manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.value == nil {
		return nil, time.Time{}, fmt.Errorf("manual feed: no reading recorded")
	}
	return new(big.Int).Set(f.value), f.updatedAt, nil
}

// Decimals returns the feed's native precision.
func (f *ManualFeed) Decimals() uint8 {
	if f == nil {
		return 0
	}
	return f.decimals
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed reads price data from a JSON endpoint returning
// {"price": "<decimal>", "timestamp": <unix seconds>}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	decimals uint8
}

// NewHTTPFeed constructs an HTTP feed adapter. When the client is nil
// http.DefaultClient is used.
func NewHTTPFeed(client HTTPDoer, endpoint string, decimals uint8) (*HTTPFeed, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("http feed: endpoint required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: trimmed, decimals: decimals}, nil
}

// Latest fetches and parses the endpoint's current reading.
func (f *HTTPFeed) Latest() (*big.Int, time.Time, error) {
	if f == nil {
		return nil, time.Time{}, fmt.Errorf("http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, time.Time{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, time.Time{}, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, time.Time{}, fmt.Errorf("http feed: decode: %w", err)
	}
	price := strings.TrimSpace(payload.Price)
	if price == "" {
		return nil, time.Time{}, fmt.Errorf("http feed: empty price")
	}
	rat, ok := new(big.Rat).SetString(price)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("http feed: invalid price %q", payload.Price)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(f.decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))
	value := new(big.Int).Quo(rat.Num(), rat.Denom())
	return value, time.Unix(payload.Timestamp, 0), nil
}

// Decimals returns the precision the endpoint values are scaled to.
func (f *HTTPFeed) Decimals() uint8 {
	if f == nil {
		return 0
	}
	return f.decimals
}
