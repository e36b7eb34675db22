// Package pricing serves live prices and TTL-cached trading rules on top of
// the exchange connector registry.
package pricing

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/connectors"
	"pyramidtracker/src/model"
	"pyramidtracker/src/symbols"
)

type connectorSource interface {
	Get(exchange string) (connectors.Connector, error)
}

type ruleStore interface {
	Get(ctx context.Context, exchange, base, quote string) (*model.SymbolRule, error)
	Upsert(ctx context.Context, rule *model.SymbolRule) error
}

// Service is the price gateway: prices are always fetched live, rules come
// from the cache while fresh and are refetched otherwise.
type Service struct {
	source connectorSource
	rules  ruleStore
	ttl    time.Duration
	now    func() time.Time
}

func NewService(source connectorSource, rules ruleStore, config Config) *Service {
	return &Service{
		source: source,
		rules:  rules,
		ttl:    config.RuleCacheTTL,
		now:    time.Now,
	}
}

// GetPrice fetches the current price for a pair from the given exchange.
func (s *Service) GetPrice(ctx context.Context, exchange string, pair symbols.Pair) (connectors.PriceQuote, error) {
	connector, err := s.source.Get(exchange)
	if err != nil {
		return connectors.PriceQuote{}, err
	}

	quote, err := connector.GetPrice(ctx, pair)
	if err != nil {
		return connectors.PriceQuote{}, err
	}

	logger.WithFields(map[string]interface{}{
		"exchange": exchange,
		"pair":     pair.Display(),
		"price":    quote.Price,
	}).Info("Fetched live price")
	return quote, nil
}

// GetRules returns the trading rules for a pair, served from the cache while
// the entry is younger than the TTL. A malformed or unreadable cache entry is
// treated as a miss and repaired by a live refetch, never propagated.
func (s *Service) GetRules(ctx context.Context, exchange string, pair symbols.Pair) (*model.SymbolRule, error) {
	cached, err := s.rules.Get(ctx, exchange, pair.Base, pair.Quote)
	switch {
	case err != nil:
		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
		}).WithError(err).Warn("Rule cache read failed, refetching")
	case cached != nil && !cached.Usable():
		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
		}).Warn("Rule cache entry malformed, refetching")
	case cached != nil && cached.FreshWithin(s.ttl, s.now()):
		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
		}).Debug("Serving trading rules from cache")
		return cached, nil
	}

	connector, err := s.source.Get(exchange)
	if err != nil {
		return nil, err
	}

	rule, err := connector.GetSymbolRules(ctx, pair)
	if err != nil {
		return nil, err
	}

	// A failed cache write must not fail the signal; the rule is already in
	// hand and the cache is reconstructible.
	if err := s.rules.Upsert(ctx, rule); err != nil {
		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
		}).WithError(err).Warn("Failed to cache trading rules")
	}

	logger.WithFields(map[string]interface{}{
		"exchange": exchange,
		"pair":     pair.Display(),
	}).Info("Fetched and cached trading rules")
	return rule, nil
}
