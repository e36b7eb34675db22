package connectors

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

// BinanceConnector reads public spot market data from Binance.
// Docs: https://binance-docs.github.io/apidocs/spot/en/
type BinanceConnector struct {
	http *resty.Client
}

func NewBinanceConnector(config Config) *BinanceConnector {
	return &BinanceConnector{http: newHTTPClient(config.BinanceBaseURL, config.HTTPTimeout)}
}

func (c *BinanceConnector) Name() string { return "binance" }

type binanceTickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (c *BinanceConnector) GetPrice(ctx context.Context, pair symbols.Pair) (PriceQuote, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return PriceQuote{}, err
	}

	var out binanceTickerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/api/v3/ticker/price")
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	if resp.StatusCode() == 400 {
		return PriceQuote{}, ErrSymbolNotFound
	}
	if resp.IsError() {
		return PriceQuote{}, unavailableStatus(c.Name(), resp)
	}

	price, err := parsePrice(out.Price)
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	return PriceQuote{Price: price, FetchedAt: time.Now().UTC()}, nil
}

type binanceExchangeInfoResponse struct {
	Symbols []struct {
		Symbol             string `json:"symbol"`
		BaseAssetPrecision int    `json:"baseAssetPrecision"`
		QuotePrecision     int    `json:"quotePrecision"`
		Filters            []struct {
			FilterType  string `json:"filterType"`
			MinQty      string `json:"minQty"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
			TickSize    string `json:"tickSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

func (c *BinanceConnector) GetSymbolRules(ctx context.Context, pair symbols.Pair) (*model.SymbolRule, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return nil, err
	}

	var out binanceExchangeInfoResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/api/v3/exchangeInfo")
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	if resp.StatusCode() == 400 || (resp.IsSuccess() && len(out.Symbols) == 0) {
		return nil, ErrSymbolNotFound
	}
	if resp.IsError() {
		return nil, unavailableStatus(c.Name(), resp)
	}

	info := out.Symbols[0]
	rule := &model.SymbolRule{
		Exchange:       c.Name(),
		Base:           pair.Base,
		Quote:          pair.Quote,
		PricePrecision: info.QuotePrecision,
		QtyPrecision:   info.BaseAssetPrecision,
		TickSize:       1e-8,
		RefreshedAt:    time.Now().UTC(),
	}

	for _, f := range info.Filters {
		switch strings.ToUpper(f.FilterType) {
		case "LOT_SIZE":
			if minQty, err := parsePrice(f.MinQty); err == nil {
				rule.MinQty = minQty
			}
			if f.StepSize != "" {
				rule.QtyPrecision = precisionFromStep(f.StepSize)
			}
		case "NOTIONAL", "MIN_NOTIONAL":
			if minNotional, err := parsePrice(f.MinNotional); err == nil {
				rule.MinNotional = minNotional
			}
		case "PRICE_FILTER":
			if tick, err := parsePrice(f.TickSize); err == nil && tick > 0 {
				rule.TickSize = tick
				rule.PricePrecision = precisionFromStep(f.TickSize)
			}
		}
	}
	return rule, nil
}
