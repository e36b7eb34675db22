package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

// OKXConnector reads public spot market data from OKX v5.
// Docs: https://www.okx.com/docs-v5/en/
type OKXConnector struct {
	http *resty.Client
}

func NewOKXConnector(config Config) *OKXConnector {
	return &OKXConnector{http: newHTTPClient(config.OKXBaseURL, config.HTTPTimeout)}
}

func (c *OKXConnector) Name() string { return "okx" }

type okxTickerResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		TS     string `json:"ts"`
	} `json:"data"`
}

func (c *OKXConnector) GetPrice(ctx context.Context, pair symbols.Pair) (PriceQuote, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return PriceQuote{}, err
	}

	var out okxTickerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("instId", symbol).
		SetResult(&out).
		Get("/api/v5/market/ticker")
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	if resp.IsError() {
		return PriceQuote{}, unavailableStatus(c.Name(), resp)
	}
	// OKX reports errors with HTTP 200 and a non-zero code.
	if out.Code != "0" {
		if len(out.Data) == 0 {
			return PriceQuote{}, ErrSymbolNotFound
		}
		return PriceQuote{}, fmt.Errorf("%w: okx: %s", ErrExchangeUnavailable, out.Msg)
	}
	if len(out.Data) == 0 {
		return PriceQuote{}, ErrSymbolNotFound
	}

	price, err := parsePrice(out.Data[0].Last)
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	return PriceQuote{Price: price, FetchedAt: time.Now().UTC()}, nil
}

type okxInstrumentsResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		TickSz string `json:"tickSz"`
		LotSz  string `json:"lotSz"`
		MinSz  string `json:"minSz"`
	} `json:"data"`
}

func (c *OKXConnector) GetSymbolRules(ctx context.Context, pair symbols.Pair) (*model.SymbolRule, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return nil, err
	}

	var out okxInstrumentsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"instType": "SPOT", "instId": symbol}).
		SetResult(&out).
		Get("/api/v5/public/instruments")
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	if resp.IsError() {
		return nil, unavailableStatus(c.Name(), resp)
	}
	if out.Code != "0" || len(out.Data) == 0 {
		return nil, ErrSymbolNotFound
	}

	info := out.Data[0]
	rule := &model.SymbolRule{
		Exchange:       c.Name(),
		Base:           pair.Base,
		Quote:          pair.Quote,
		PricePrecision: 8,
		QtyPrecision:   8,
		TickSize:       1e-8,
		RefreshedAt:    time.Now().UTC(),
	}

	if minSz, err := parsePrice(info.MinSz); err == nil {
		rule.MinQty = minSz
	}
	if info.LotSz != "" {
		rule.QtyPrecision = precisionFromStep(info.LotSz)
	}
	if tick, err := parsePrice(info.TickSz); err == nil && tick > 0 {
		rule.TickSize = tick
		rule.PricePrecision = precisionFromStep(info.TickSz)
	}
	// OKX publishes no minimum notional for spot pairs.
	return rule, nil
}
