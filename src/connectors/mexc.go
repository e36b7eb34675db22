package connectors

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

// MexcConnector reads public spot market data from MEXC. The API mirrors the
// Binance v3 surface but publishes sparser filter data.
// Docs: https://mexcdevelop.github.io/apidocs/spot_v3_en/
type MexcConnector struct {
	http *resty.Client
}

func NewMexcConnector(config Config) *MexcConnector {
	return &MexcConnector{http: newHTTPClient(config.MexcBaseURL, config.HTTPTimeout)}
}

func (c *MexcConnector) Name() string { return "mexc" }

func (c *MexcConnector) GetPrice(ctx context.Context, pair symbols.Pair) (PriceQuote, error) {
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

type mexcExchangeInfoResponse struct {
	Symbols []struct {
		Symbol               string `json:"symbol"`
		BaseSizePrecision    string `json:"baseSizePrecision"`
		QuotePrecision       int    `json:"quotePrecision"`
		QuoteAmountPrecision string `json:"quoteAmountPrecision"`
		Filters              []struct {
			FilterType  string `json:"filterType"`
			MinQty      string `json:"minQty"`
			MinNotional string `json:"minNotional"`
			TickSize    string `json:"tickSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

func (c *MexcConnector) GetSymbolRules(ctx context.Context, pair symbols.Pair) (*model.SymbolRule, error) {
	symbol, err := pair.FormatFor(c.Name())
	if err != nil {
		return nil, err
	}

	var out mexcExchangeInfoResponse
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
		QtyPrecision:   8,
		TickSize:       1e-8,
		RefreshedAt:    time.Now().UTC(),
	}

	if info.BaseSizePrecision != "" {
		rule.QtyPrecision = precisionFromStep(info.BaseSizePrecision)
	}
	if minAmt, err := parsePrice(info.QuoteAmountPrecision); err == nil {
		rule.MinNotional = minAmt
	}

	for _, f := range info.Filters {
		switch strings.ToUpper(f.FilterType) {
		case "LOT_SIZE":
			if minQty, err := parsePrice(f.MinQty); err == nil {
				rule.MinQty = minQty
			}
		case "MIN_NOTIONAL", "NOTIONAL":
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
