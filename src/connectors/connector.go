// Package connectors implements the per-exchange market-data adapters.
// Every adapter is a resty client with a bounded timeout and internal retry,
// exposing current price and trading rules behind one interface.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second
)

var (
	// ErrExchangeUnavailable wraps fetch failures and timeouts. The caller
	// decides whether to retry; the adapter does not hang.
	ErrExchangeUnavailable = errors.New("exchange unavailable")
	ErrSymbolNotFound      = errors.New("symbol not found on exchange")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
)

// PriceQuote is a market price observation with the instant it was fetched.
type PriceQuote struct {
	Price     float64
	FetchedAt time.Time
}

// Connector fetches public market data for one exchange.
type Connector interface {
	Name() string
	GetPrice(ctx context.Context, pair symbols.Pair) (PriceQuote, error)
	GetSymbolRules(ctx context.Context, pair symbols.Pair) (*model.SymbolRule, error)
}

// Registry holds the closed set of exchange adapters keyed by canonical name.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry wires one adapter per supported exchange.
func NewRegistry(config Config) *Registry {
	registry := &Registry{connectors: map[string]Connector{}}
	for _, c := range []Connector{
		NewBinanceConnector(config),
		NewBybitConnector(config),
		NewOKXConnector(config),
		NewGateioConnector(config),
		NewKucoinConnector(config),
		NewMexcConnector(config),
	} {
		registry.connectors[c.Name()] = c
	}
	return registry
}

// Get returns the adapter for a canonical exchange identifier.
func (r *Registry) Get(exchange string) (Connector, error) {
	c, ok := r.connectors[exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExchange, exchange)
	}
	return c, nil
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 || code == 408 {
		return true
	}
	return false
}

func newHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)
}

func unavailable(exchange string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrExchangeUnavailable, exchange, err)
}

func unavailableStatus(exchange string, resp *resty.Response) error {
	return fmt.Errorf("%w: %s: HTTP %d: %s",
		ErrExchangeUnavailable, exchange, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
}

func parsePrice(raw string) (float64, error) {
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return price, nil
}

// precisionFromStep derives decimal places from a step value such as
// "0.00100000" -> 3. An integer or empty step yields 0; anything finer
// than 8 decimals is capped at 8.
func precisionFromStep(step string) int {
	step = strings.TrimRight(strings.TrimSpace(step), "0")
	idx := strings.Index(step, ".")
	if idx < 0 {
		return 0
	}
	digits := len(step) - idx - 1
	if digits <= 0 {
		return 0
	}
	if digits > 8 {
		return 8
	}
	return digits
}
