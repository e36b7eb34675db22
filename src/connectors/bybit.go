package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

// BybitConnector reads public spot market data from Bybit v5.
// Docs: https://bybit-exchange.github.io/docs/v5/intro
type BybitConnector struct {
	http *resty.Client
}

func NewBybitConnector(config Config) *BybitConnector {
	return &BybitConnector{http: newHTTPClient(config.BybitBaseURL, config.HTTPTimeout)}
}

func (c *BybitConnector) Name() string { return "bybit" }

type bybitTickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

func (c *BybitConnector) GetPrice(ctx context.Context, pair symbols.Pair) (PriceQuote, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return PriceQuote{}, err
	}

	var out bybitTickersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"category": "spot", "symbol": symbol}).
		SetResult(&out).
		Get("/v5/market/tickers")
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	if resp.IsError() {
		return PriceQuote{}, unavailableStatus(c.Name(), resp)
	}
	if out.RetCode != 0 {
		return PriceQuote{}, fmt.Errorf("%w: bybit: %s", ErrExchangeUnavailable, out.RetMsg)
	}
	if len(out.Result.List) == 0 {
		return PriceQuote{}, ErrSymbolNotFound
	}

	price, err := parsePrice(out.Result.List[0].LastPrice)
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	return PriceQuote{Price: price, FetchedAt: time.Now().UTC()}, nil
}

type bybitInstrumentsResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				BasePrecision string `json:"basePrecision"`
				MinOrderQty   string `json:"minOrderQty"`
				MinOrderAmt   string `json:"minOrderAmt"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	} `json:"result"`
}

func (c *BybitConnector) GetSymbolRules(ctx context.Context, pair symbols.Pair) (*model.SymbolRule, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return nil, err
	}

	var out bybitInstrumentsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"category": "spot", "symbol": symbol}).
		SetResult(&out).
		Get("/v5/market/instruments-info")
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	if resp.IsError() {
		return nil, unavailableStatus(c.Name(), resp)
	}
	if out.RetCode != 0 {
		return nil, fmt.Errorf("%w: bybit: %s", ErrExchangeUnavailable, out.RetMsg)
	}
	if len(out.Result.List) == 0 {
		return nil, ErrSymbolNotFound
	}

	info := out.Result.List[0]
	rule := &model.SymbolRule{
		Exchange:       c.Name(),
		Base:           pair.Base,
		Quote:          pair.Quote,
		PricePrecision: 8,
		QtyPrecision:   8,
		TickSize:       1e-8,
		RefreshedAt:    time.Now().UTC(),
	}

	if minQty, err := parsePrice(info.LotSizeFilter.MinOrderQty); err == nil {
		rule.MinQty = minQty
	}
	if minAmt, err := parsePrice(info.LotSizeFilter.MinOrderAmt); err == nil {
		rule.MinNotional = minAmt
	}
	if info.LotSizeFilter.BasePrecision != "" {
		rule.QtyPrecision = precisionFromStep(info.LotSizeFilter.BasePrecision)
	}
	if tick, err := parsePrice(info.PriceFilter.TickSize); err == nil && tick > 0 {
		rule.TickSize = tick
		rule.PricePrecision = precisionFromStep(info.PriceFilter.TickSize)
	}
	return rule, nil
}
