package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pyramidtracker/src/database"
	"pyramidtracker/src/model"
)

// SymbolRuleRepository persists the trading-rule cache. Rows here are
// disposable; callers treat any read problem as a cache miss.
type SymbolRuleRepository struct {
	db *gorm.DB
}

func NewSymbolRuleRepository() *SymbolRuleRepository {
	return &SymbolRuleRepository{db: database.DB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SymbolRuleRepository) WithDB(db *gorm.DB) *SymbolRuleRepository {
	return &SymbolRuleRepository{db: db}
}

// Get returns the cached rule for an (exchange, pair), or (nil, nil) on a
// cache miss.
func (r *SymbolRuleRepository) Get(
	ctx context.Context,
	exchange, base, quote string,
) (*model.SymbolRule, error) {

	var rule model.SymbolRule

	err := r.db.WithContext(ctx).
		Where("exchange = ? AND base = ? AND quote = ?", exchange, base, quote).
		First(&rule).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "SymbolRuleRepository",
			"op":       "Get",
			"exchange": exchange,
			"base":     base,
			"quote":    quote,
		}).WithError(err).Error("Failed to read cached symbol rule")

		return nil, err
	}

	return &rule, nil
}

// Upsert writes a freshly fetched rule, replacing any previous row for the
// same (exchange, pair).
func (r *SymbolRuleRepository) Upsert(ctx context.Context, rule *model.SymbolRule) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "exchange"}, {Name: "base"}, {Name: "quote"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"price_precision", "qty_precision", "min_qty", "min_notional", "tick_size", "refreshed_at",
			}),
		}).
		Create(rule).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "SymbolRuleRepository",
			"op":       "Upsert",
			"exchange": rule.Exchange,
			"base":     rule.Base,
			"quote":    rule.Quote,
		}).WithError(err).Error("Failed to upsert symbol rule")

		return err
	}

	return nil
}
