package connectors

import (
	"context"
	"math"
	"time"

	"github.com/go-resty/resty/v2"

	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

// GateioConnector reads public spot market data from Gate.io v4.
// Docs: https://www.gate.io/docs/developers/apiv4/
type GateioConnector struct {
	http *resty.Client
}

func NewGateioConnector(config Config) *GateioConnector {
	return &GateioConnector{http: newHTTPClient(config.GateioBaseURL, config.HTTPTimeout)}
}

func (c *GateioConnector) Name() string { return "gateio" }

type gateioTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
}

func (c *GateioConnector) GetPrice(ctx context.Context, pair symbols.Pair) (PriceQuote, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return PriceQuote{}, err
	}

	var out []gateioTicker
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("currency_pair", symbol).
		SetResult(&out).
		Get("/api/v4/spot/tickers")
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	if resp.StatusCode() == 400 || resp.StatusCode() == 404 {
		return PriceQuote{}, ErrSymbolNotFound
	}
	if resp.IsError() {
		return PriceQuote{}, unavailableStatus(c.Name(), resp)
	}
	if len(out) == 0 {
		return PriceQuote{}, ErrSymbolNotFound
	}

	price, err := parsePrice(out[0].Last)
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	return PriceQuote{Price: price, FetchedAt: time.Now().UTC()}, nil
}

type gateioCurrencyPair struct {
	ID              string `json:"id"`
	MinBaseAmount   string `json:"min_base_amount"`
	MinQuoteAmount  string `json:"min_quote_amount"`
	Precision       int    `json:"precision"`        // price decimals
	AmountPrecision int    `json:"amount_precision"` // quantity decimals
}

func (c *GateioConnector) GetSymbolRules(ctx context.Context, pair symbols.Pair) (*model.SymbolRule, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return nil, err
	}

	var out gateioCurrencyPair
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v4/spot/currency_pairs/" + symbol)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	if resp.StatusCode() == 400 || resp.StatusCode() == 404 {
		return nil, ErrSymbolNotFound
	}
	if resp.IsError() {
		return nil, unavailableStatus(c.Name(), resp)
	}

	rule := &model.SymbolRule{
		Exchange:       c.Name(),
		Base:           pair.Base,
		Quote:          pair.Quote,
		PricePrecision: out.Precision,
		QtyPrecision:   out.AmountPrecision,
		// Gate.io expresses the price grid as decimal places, not a tick.
		TickSize:    math.Pow(10, -float64(out.Precision)),
		RefreshedAt: time.Now().UTC(),
	}

	if minBase, err := parsePrice(out.MinBaseAmount); err == nil {
		rule.MinQty = minBase
	}
	if minQuote, err := parsePrice(out.MinQuoteAmount); err == nil {
		rule.MinNotional = minQuote
	}
	return rule, nil
}
