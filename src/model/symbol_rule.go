package model

import "time"

// SymbolRule caches per-(exchange, pair) trading constraints fetched from the
// exchange. Disposable: a malformed or stale row degrades into a live refetch.
type SymbolRule struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Exchange string `gorm:"size:20;not null;uniqueIndex:ux_symbol_rules_pair" json:"exchange"`
	Base     string `gorm:"size:20;not null;uniqueIndex:ux_symbol_rules_pair" json:"base"`
	Quote    string `gorm:"size:20;not null;uniqueIndex:ux_symbol_rules_pair" json:"quote"`

	PricePrecision int     `gorm:"not null;default:8" json:"price_precision"`
	QtyPrecision   int     `gorm:"not null;default:8" json:"qty_precision"`
	MinQty         float64 `gorm:"not null" json:"min_qty"`
	MinNotional    float64 `gorm:"not null" json:"min_notional"`
	TickSize       float64 `gorm:"not null" json:"tick_size"`

	// RefreshedAt is always an absolute UTC instant. TTL comparisons must
	// never see a naive local timestamp.
	RefreshedAt time.Time `gorm:"not null" json:"refreshed_at"`
}

func (SymbolRule) TableName() string {
	return "symbol_rules"
}

// FreshWithin reports whether the cache entry is still usable under ttl.
func (r *SymbolRule) FreshWithin(ttl time.Duration, now time.Time) bool {
	if r.RefreshedAt.IsZero() {
		return false
	}
	return now.UTC().Sub(r.RefreshedAt.UTC()) < ttl
}

// Usable reports whether the row carries enough data to validate against.
// Rows written by older schema versions can miss fields; those are treated
// as cache misses, not errors.
func (r *SymbolRule) Usable() bool {
	return r.TickSize > 0 && !r.RefreshedAt.IsZero()
}
