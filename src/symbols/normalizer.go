// Package symbols parses heterogeneous trading-pair spellings and exchange
// aliases into canonical identifiers. Pure functions, no I/O.
package symbols

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnrecognizedSymbol = errors.New("unrecognized symbol")
	ErrUnknownExchange    = errors.New("unknown exchange")
)

// Quote assets checked, in order, when a symbol carries no separator.
var quoteAssets = []string{
	"USDT", "USDC", "BUSD", "TUSD", "USDP", // USD stablecoins
	"BTC", "ETH", "BNB", // majors
	"EUR", "GBP", "TRY", // fiat
}

// Historical aliases map to canonical exchange names.
var exchangeAliases = map[string]string{
	"binance": "binance",
	"bin":     "binance",
	"bybit":   "bybit",
	"okx":     "okx",
	"okex":    "okx",
	"gate":    "gateio",
	"gate.io": "gateio",
	"gateio":  "gateio",
	"kucoin":  "kucoin",
	"mexc":    "mexc",
	"mxc":     "mexc",
}

// Symbol spelling each exchange expects on the wire.
var exchangeFormats = map[string]string{
	"binance": "%s%s",
	"bybit":   "%s%s",
	"okx":     "%s-%s",
	"gateio":  "%s_%s",
	"kucoin":  "%s-%s",
	"mexc":    "%s%s",
}

// Pair is a canonical (base, quote) trading pair.
type Pair struct {
	Base  string
	Quote string
}

// Display returns the BASE/QUOTE spelling used in messages and reports.
func (p Pair) Display() string {
	return p.Base + "/" + p.Quote
}

// FormatFor renders the pair in the spelling a given exchange expects.
func (p Pair) FormatFor(exchange string) (string, error) {
	canonical, err := NormalizeExchange(exchange)
	if err != nil {
		return "", err
	}
	format, ok := exchangeFormats[canonical]
	if !ok {
		format = "%s%s"
	}
	return fmt.Sprintf(format, p.Base, p.Quote), nil
}

// NormalizeExchange maps an exchange name or historical alias (e.g. "okex")
// to its canonical identifier.
func NormalizeExchange(name string) (string, error) {
	canonical, ok := exchangeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownExchange, name)
	}
	return canonical, nil
}

// ParseSymbol parses any supported pair spelling into a canonical Pair.
//
// Supported formats: BTC/USDT, BTC-USDT, BTC_USDT, BTCUSDT and any of those
// with a venue prefix such as BINANCE:BTCUSDT.
func ParseSymbol(symbol string) (Pair, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return Pair{}, fmt.Errorf("%w: empty symbol", ErrUnrecognizedSymbol)
	}

	// Strip venue prefix, e.g. "BINANCE:BTCUSDT".
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}

	for _, sep := range []string{"/", "-", "_"} {
		if !strings.Contains(s, sep) {
			continue
		}
		parts := strings.SplitN(s, sep, 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return Pair{Base: parts[0], Quote: parts[1]}, nil
		}
	}

	// No separator: isolate a known quote-asset suffix.
	for _, quote := range quoteAssets {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: strings.TrimSuffix(s, quote), Quote: quote}, nil
		}
	}

	return Pair{}, fmt.Errorf("%w: %q", ErrUnrecognizedSymbol, symbol)
}

// SupportedExchanges lists the canonical exchange identifiers.
func SupportedExchanges() []string {
	names := make([]string, 0, len(exchangeFormats))
	for name := range exchangeFormats {
		names = append(names, name)
	}
	return names
}
