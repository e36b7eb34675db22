package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pyramidtracker/src/database"
	"pyramidtracker/src/model"
)

var (
	// ErrOpenSlotTaken means another request won the race to open a trade
	// on the same (exchange, pair). The caller should refetch the open
	// trade and append to it instead.
	ErrOpenSlotTaken = errors.New("open trade already exists for pair")

	// ErrDuplicateSignal means the signal key was already recorded. The
	// original delivery did the work; this one is a no-op.
	ErrDuplicateSignal = errors.New("signal already recorded")

	// ErrTradeClosed means the target trade lost its open slot between the
	// caller's read and this write. A late entry belongs in a fresh trade.
	ErrTradeClosed = errors.New("trade already closed")

	// ErrStalePyramids means an entry landed after the exit figures were
	// computed. The caller should reload the trade and close it again.
	ErrStalePyramids = errors.New("pyramid set changed since figures were computed")
)

// PyramidClose carries the per-entry PnL figures written when a trade closes.
type PyramidClose struct {
	ID         string
	PnL        float64
	PnLPercent float64
}

// TradeClose carries everything CloseTrade writes in one transaction.
type TradeClose struct {
	ClosedAt        time.Time
	TotalPnL        float64
	TotalPnLPercent float64
	Pyramids        []PyramidClose
}

// TradeSearchOptions filters the trade listing endpoints.
type TradeSearchOptions struct {
	Exchange string
	Status   string
	Limit    int
}

// TradeRepository handles persistence for trades, pyramids and exits.
// Race safety lives here: every concurrent hazard is resolved by a unique
// index plus insert-or-ignore, never by check-then-insert.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.DB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or custom sessions/transactions.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// FindOpenTrade returns the open trade for an (exchange, pair), with its
// pyramids preloaded, or (nil, nil) when the pair has no open trade.
func (r *TradeRepository) FindOpenTrade(
	ctx context.Context,
	exchange, base, quote string,
) (*model.Trade, error) {

	var trade model.Trade

	err := r.db.WithContext(ctx).
		Preload("Pyramids").
		Where("open_slot = ?", model.SlotKey(exchange, base, quote)).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "FindOpenTrade",
			"exchange": exchange,
			"base":     base,
			"quote":    quote,
		}).WithError(err).Error("Failed to fetch open trade")

		return nil, err
	}

	return &trade, nil
}

// FindByID returns a trade with pyramids and exit preloaded, or (nil, nil)
// when no trade has that ID.
func (r *TradeRepository) FindByID(ctx context.Context, id string) (*model.Trade, error) {
	var trade model.Trade

	err := r.db.WithContext(ctx).
		Preload("Pyramids").
		Preload("Exit").
		Where("id = ?", id).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trade by ID")

		return nil, err
	}

	return &trade, nil
}

// CreateTradeWithPyramid inserts a new trade and its first pyramid in one
// transaction. Returns ErrOpenSlotTaken when a concurrent request already
// opened a trade on the same slot, and ErrDuplicateSignal when the pyramid's
// signal key was already recorded. Either way nothing is persisted.
func (r *TradeRepository) CreateTradeWithPyramid(
	ctx context.Context,
	trade *model.Trade,
	pyramid *model.Pyramid,
) error {

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "open_slot"}},
			DoNothing: true,
		}).Create(trade)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOpenSlotTaken
		}

		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(pyramid)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateSignal
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, ErrOpenSlotTaken) || errors.Is(err, ErrDuplicateSignal) {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "CreateTradeWithPyramid",
			"trade_id": trade.ID,
		}).WithError(err).Error("Failed to create trade")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "CreateTradeWithPyramid",
		"trade_id": trade.ID,
		"exchange": trade.Exchange,
	}).Info("Trade opened")

	return nil
}

// AppendPyramid inserts one more entry into an open trade. The guard update
// locks the trade row and confirms it still holds its open slot at write
// time, so an exit committing in between cannot strand the entry in a closed
// trade; that case returns ErrTradeClosed with nothing persisted. A
// redelivered signal key, or a replayed (trade, index) pair, hits a unique
// index and returns ErrDuplicateSignal.
func (r *TradeRepository) AppendPyramid(ctx context.Context, pyramid *model.Pyramid) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Trade{}).
			Where("id = ? AND open_slot IS NOT NULL", pyramid.TradeID).
			Update("status", model.TradeStatusOpen)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTradeClosed
		}

		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(pyramid)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateSignal
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, ErrTradeClosed) || errors.Is(err, ErrDuplicateSignal) {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "AppendPyramid",
			"trade_id": pyramid.TradeID,
			"index":    pyramid.PyramidIndex,
		}).WithError(err).Error("Failed to append pyramid")

		return err
	}

	return nil
}

// CloseTrade records the exit and flips the trade to closed in a single
// transaction: insert the exit row (or ignore, when a concurrent duplicate
// already landed one), clear the open slot and write the final PnL figures
// for the trade and each pyramid. The unique index on exits.trade_id makes
// the race safe: of two concurrent exits exactly one commits, the other
// returns ErrDuplicateSignal with nothing persisted. The trade is never
// observable as closed without PnL, or as open with an exit row.
//
// The trade update also serializes against AppendPyramid's row lock; once it
// lands, the pyramid count is re-checked so an entry that committed after
// the figures were computed rolls the close back with ErrStalePyramids.
func (r *TradeRepository) CloseTrade(ctx context.Context, exit *model.Exit, tc TradeClose) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(exit)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateSignal
		}

		res = tx.Model(&model.Trade{}).
			Where("id = ?", exit.TradeID).
			Updates(map[string]interface{}{
				"status":            model.TradeStatusClosed,
				"open_slot":         nil,
				"closed_at":         tc.ClosedAt,
				"total_pnl":         tc.TotalPnL,
				"total_pnl_percent": tc.TotalPnLPercent,
			})
		if res.Error != nil {
			return res.Error
		}

		var settled int64
		if err := tx.Model(&model.Pyramid{}).
			Where("trade_id = ?", exit.TradeID).
			Count(&settled).Error; err != nil {
			return err
		}
		if settled != int64(len(tc.Pyramids)) {
			return ErrStalePyramids
		}

		for _, p := range tc.Pyramids {
			if err := tx.Model(&model.Pyramid{}).
				Where("id = ?", p.ID).
				Updates(map[string]interface{}{
					"pnl":         p.PnL,
					"pnl_percent": p.PnLPercent,
				}).Error; err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, ErrDuplicateSignal) || errors.Is(err, ErrStalePyramids) {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "CloseTrade",
			"trade_id": exit.TradeID,
		}).WithError(err).Error("Failed to close trade")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "TradeRepository",
		"op":        "CloseTrade",
		"trade_id":  exit.TradeID,
		"total_pnl": tc.TotalPnL,
	}).Info("Trade closed")

	return nil
}

// FindClosedBetween returns trades closed inside the half-open window
// [start, end), with pyramids and exits preloaded, oldest first.
func (r *TradeRepository) FindClosedBetween(
	ctx context.Context,
	start, end time.Time,
) ([]model.Trade, error) {

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Preload("Pyramids").
		Preload("Exit").
		Where("status = ? AND closed_at >= ? AND closed_at < ?", model.TradeStatusClosed, start, end).
		Order("closed_at ASC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "TradeRepository",
			"op":    "FindClosedBetween",
			"start": start,
			"end":   end,
		}).WithError(err).Error("Failed to fetch closed trades")

		return nil, err
	}

	return trades, nil
}

// Search lists trades newest first with optional exchange and status filters.
func (r *TradeRepository) Search(
	ctx context.Context,
	opts TradeSearchOptions,
) ([]model.Trade, error) {

	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	query := r.db.WithContext(ctx).Preload("Pyramids").Preload("Exit")
	if opts.Exchange != "" {
		query = query.Where("exchange = ?", opts.Exchange)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var trades []model.Trade
	err := query.
		Order("created_at DESC").
		Limit(opts.Limit).
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "Search",
			"exchange": opts.Exchange,
			"status":   opts.Status,
		}).WithError(err).Error("Failed to search trades")

		return nil, err
	}

	return trades, nil
}
