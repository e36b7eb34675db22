// Package pnl computes fee-adjusted profit and loss for a closed trade.
// Pure functions over the data model; long-only sign convention.
package pnl

import "pyramidtracker/src/model"

// PyramidResult is the per-entry outcome of a close.
type PyramidResult struct {
	PyramidID  string
	Index      int
	GrossPnL   float64
	EntryFee   float64
	ExitFee    float64
	NetPnL     float64
	PnLPercent float64
}

// TradeResult aggregates the per-pyramid outcomes.
type TradeResult struct {
	Pyramids []PyramidResult

	GrossPnL      float64
	EntryFees     float64
	ExitFees      float64
	TotalFees     float64
	NetPnL        float64
	NetPnLPercent float64

	// TotalCapital is the executed capital: sum of entryPrice*size over the
	// pyramids that actually fired. Never-triggered slots contribute nothing.
	TotalCapital float64
	TotalSize    float64
}

// Compute settles all executed pyramids of a trade against one exit price.
//
// Per pyramid: gross = (exit - entry) * size, the exit fee is the pyramid's
// size share of the total exit fee, and net = gross - entryFee - exitFee.
// The entry fee is the one charged when the pyramid was recorded; feeRate is
// applied to the exit leg.
func Compute(pyramids []model.Pyramid, exitPrice, feeRate float64) TradeResult {
	result := TradeResult{Pyramids: make([]PyramidResult, 0, len(pyramids))}

	for _, p := range pyramids {
		gross := (exitPrice - p.EntryPrice) * p.PositionSize

		// Prorating the exit fee by size share reduces to charging the
		// pyramid's own exit notional.
		exitFee := exitPrice * p.PositionSize * feeRate
		net := gross - p.Fee - exitFee

		capital := p.EntryPrice * p.PositionSize
		pct := 0.0
		if capital > 0 {
			pct = net / capital * 100
		}

		result.Pyramids = append(result.Pyramids, PyramidResult{
			PyramidID:  p.ID,
			Index:      p.PyramidIndex,
			GrossPnL:   gross,
			EntryFee:   p.Fee,
			ExitFee:    exitFee,
			NetPnL:     net,
			PnLPercent: pct,
		})

		result.GrossPnL += gross
		result.EntryFees += p.Fee
		result.ExitFees += exitFee
		result.NetPnL += net
		result.TotalCapital += capital
		result.TotalSize += p.PositionSize
	}

	result.TotalFees = result.EntryFees + result.ExitFees
	if result.TotalCapital > 0 {
		result.NetPnLPercent = result.NetPnL / result.TotalCapital * 100
	}
	return result
}
