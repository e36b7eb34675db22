package model

import "time"

const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// MaxPyramids is the number of partial entries a trade may hold.
const MaxPyramids = 5

// Trade is one open-to-close position lifecycle on an (exchange, pair).
type Trade struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Exchange string `gorm:"size:20;index;not null" json:"exchange"`
	Base     string `gorm:"size:20;not null" json:"base"`
	Quote    string `gorm:"size:20;not null" json:"quote"`
	Status   string `gorm:"size:10;not null;default:open;index" json:"status"`

	// OpenSlot holds "exchange/base/quote" while the trade is open and is
	// cleared on close. The unique index on it guarantees at most one open
	// trade per pair without blocking closed history (NULLs do not collide).
	OpenSlot *string `gorm:"size:80;uniqueIndex" json:"-"`

	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	ClosedAt        *time.Time `gorm:"index" json:"closed_at,omitempty"`
	TotalPnL        *float64   `gorm:"column:total_pnl" json:"total_pnl,omitempty"`
	TotalPnLPercent *float64   `gorm:"column:total_pnl_percent" json:"total_pnl_percent,omitempty"`

	Pyramids []Pyramid `gorm:"foreignKey:TradeID" json:"pyramids,omitempty"`
	Exit     *Exit     `gorm:"foreignKey:TradeID" json:"exit,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}

// SlotKey builds the OpenSlot value for an open trade.
func SlotKey(exchange, base, quote string) string {
	return exchange + "/" + base + "/" + quote
}

// Pyramid is one executed partial entry. Immutable after insert except for
// the PnL fields written when the trade closes.
type Pyramid struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	TradeID      string `gorm:"size:36;not null;uniqueIndex:ux_pyramids_trade_index" json:"trade_id"`
	PyramidIndex int    `gorm:"not null;uniqueIndex:ux_pyramids_trade_index" json:"pyramid_index"`

	// SignalKey deduplicates re-delivered webhooks across trades.
	SignalKey string `gorm:"size:120;not null;uniqueIndex" json:"-"`

	EntryPrice   float64   `gorm:"not null" json:"entry_price"`
	PositionSize float64   `gorm:"not null" json:"position_size"`
	Notional     float64   `gorm:"not null" json:"notional"`
	EntryTime    time.Time `gorm:"not null" json:"entry_time"`
	FeeRate      float64   `gorm:"not null" json:"fee_rate"`
	Fee          float64   `gorm:"not null" json:"fee"`

	PnL        *float64 `gorm:"column:pnl" json:"pnl,omitempty"`
	PnLPercent *float64 `gorm:"column:pnl_percent" json:"pnl_percent,omitempty"`
}

func (Pyramid) TableName() string {
	return "pyramids"
}

// Exit is the single closing execution of a trade. The unique index on
// TradeID is what makes duplicate exit deliveries race-safe.
type Exit struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TradeID   string    `gorm:"size:36;not null;uniqueIndex" json:"trade_id"`
	SignalKey string    `gorm:"size:120;not null" json:"-"`
	ExitPrice float64   `gorm:"not null" json:"exit_price"`
	ExitTime  time.Time `gorm:"not null" json:"exit_time"`
	Fee       float64   `gorm:"not null" json:"fee"`
}

func (Exit) TableName() string {
	return "exits"
}
