package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

// KucoinConnector reads public spot market data from KuCoin.
// Docs: https://www.kucoin.com/docs/beginners/introduction
type KucoinConnector struct {
	http *resty.Client
}

func NewKucoinConnector(config Config) *KucoinConnector {
	return &KucoinConnector{http: newHTTPClient(config.KucoinBaseURL, config.HTTPTimeout)}
}

func (c *KucoinConnector) Name() string { return "kucoin" }

type kucoinLevel1Response struct {
	Code string `json:"code"`
	Data *struct {
		Price string `json:"price"`
		Time  int64  `json:"time"`
	} `json:"data"`
}

func (c *KucoinConnector) GetPrice(ctx context.Context, pair symbols.Pair) (PriceQuote, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return PriceQuote{}, err
	}

	var out kucoinLevel1Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/api/v1/market/orderbook/level1")
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	if resp.IsError() {
		return PriceQuote{}, unavailableStatus(c.Name(), resp)
	}
	if out.Code != "200000" {
		return PriceQuote{}, fmt.Errorf("%w: kucoin: code %s", ErrExchangeUnavailable, out.Code)
	}
	if out.Data == nil || out.Data.Price == "" {
		return PriceQuote{}, ErrSymbolNotFound
	}

	price, err := parsePrice(out.Data.Price)
	if err != nil {
		return PriceQuote{}, unavailable(c.Name(), err)
	}
	return PriceQuote{Price: price, FetchedAt: time.Now().UTC()}, nil
}

type kucoinSymbolResponse struct {
	Code string `json:"code"`
	Data *struct {
		Symbol         string `json:"symbol"`
		BaseMinSize    string `json:"baseMinSize"`
		MinFunds       string `json:"minFunds"`
		BaseIncrement  string `json:"baseIncrement"`
		PriceIncrement string `json:"priceIncrement"`
	} `json:"data"`
}

func (c *KucoinConnector) GetSymbolRules(ctx context.Context, pair symbols.Pair) (*model.SymbolRule, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return nil, err
	}

	var out kucoinSymbolResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v2/symbols/" + symbol)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}
	if resp.StatusCode() == 404 {
		return nil, ErrSymbolNotFound
	}
	if resp.IsError() {
		return nil, unavailableStatus(c.Name(), resp)
	}
	if out.Code != "200000" || out.Data == nil {
		return nil, ErrSymbolNotFound
	}

	info := out.Data
	rule := &model.SymbolRule{
		Exchange:       c.Name(),
		Base:           pair.Base,
		Quote:          pair.Quote,
		PricePrecision: 8,
		QtyPrecision:   8,
		TickSize:       1e-8,
		RefreshedAt:    time.Now().UTC(),
	}

	if minQty, err := parsePrice(info.BaseMinSize); err == nil {
		rule.MinQty = minQty
	}
	if minFunds, err := parsePrice(info.MinFunds); err == nil {
		rule.MinNotional = minFunds
	}
	if info.BaseIncrement != "" {
		rule.QtyPrecision = precisionFromStep(info.BaseIncrement)
	}
	if tick, err := parsePrice(info.PriceIncrement); err == nil && tick > 0 {
		rule.TickSize = tick
		rule.PricePrecision = precisionFromStep(info.PriceIncrement)
	}
	return rule, nil
}
