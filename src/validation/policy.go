// Package validation checks proposed executions against cached exchange
// trading rules.
package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/model"
)

const (
	ModeStrict  = "strict"
	ModeLenient = "lenient"
)

var ErrValidation = errors.New("validation failed")

// Result carries the outcome of a rule check. In lenient mode violations are
// surfaced as warnings and persistence proceeds; in strict mode the caller
// gets an error and nothing is recorded.
type Result struct {
	OK       bool
	Warnings []string
}

// Validate checks size against the minimum quantity, notional against the
// minimum notional, and price against tick-size representability.
func Validate(price, size float64, rule *model.SymbolRule, mode string) (Result, error) {
	var violations []string

	if size < rule.MinQty {
		violations = append(violations, fmt.Sprintf(
			"size %v below minimum %v for %s/%s on %s",
			size, rule.MinQty, rule.Base, rule.Quote, rule.Exchange))
	}

	notional := price * size
	if rule.MinNotional > 0 && notional < rule.MinNotional {
		violations = append(violations, fmt.Sprintf(
			"notional %.2f below minimum %.2f for %s/%s on %s",
			notional, rule.MinNotional, rule.Base, rule.Quote, rule.Exchange))
	}

	if !representableAtTick(price, rule.TickSize) {
		violations = append(violations, fmt.Sprintf(
			"price %v not representable at tick size %v on %s",
			price, rule.TickSize, rule.Exchange))
	}

	if len(violations) == 0 {
		return Result{OK: true}, nil
	}

	if mode == ModeStrict {
		return Result{}, fmt.Errorf("%w: %s", ErrValidation, violations[0])
	}

	for _, v := range violations {
		logger.WithFields(map[string]interface{}{
			"exchange": rule.Exchange,
			"pair":     rule.Base + "/" + rule.Quote,
		}).Warn(v)
	}
	return Result{OK: true, Warnings: violations}, nil
}

// RoundToTick snaps a price onto the rule's tick grid. Used instead of
// silent truncation when an adapter returns a finer price than the grid.
func RoundToTick(price, tickSize float64) float64 {
	if tickSize <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	tick := decimal.NewFromFloat(tickSize)
	steps := p.Div(tick).Round(0)
	rounded, _ := steps.Mul(tick).Float64()
	return rounded
}

// representableAtTick reports whether price sits exactly on the tick grid.
// Decimal arithmetic avoids the float drift that a fmod check would hit.
func representableAtTick(price, tickSize float64) bool {
	if tickSize <= 0 {
		return true
	}
	p := decimal.NewFromFloat(price)
	tick := decimal.NewFromFloat(tickSize)
	return p.Mod(tick).IsZero()
}
