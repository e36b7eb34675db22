// Package trade is the signal-ingestion state machine: it applies pyramid
// and exit signals to persisted trades, with every concurrent hazard
// resolved by storage-level uniqueness rather than in-process locks.
package trade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/connectors"
	"pyramidtracker/src/fees"
	"pyramidtracker/src/model"
	"pyramidtracker/src/pnl"
	"pyramidtracker/src/repository"
	"pyramidtracker/src/symbols"
	"pyramidtracker/src/validation"
)

// ErrNoOpenTrade is the orphan-exit condition: an exit signal arrived for a
// pair with no open trade. Surfaced for operator visibility, never used to
// fabricate a trade.
var ErrNoOpenTrade = errors.New("no open trade for pair")

const (
	OutcomeRecorded      = "recorded"
	OutcomeDuplicate     = "duplicate"
	OutcomeClosed        = "closed"
	OutcomeAlreadyClosed = "already_closed"
	OutcomeIgnored       = "ignored"
)

// How often a signal re-reads the trade after losing a storage-level race
// before giving up. Two concurrent writers settle on the first retry; the
// cap only guards against a pathological stream of interleaved signals.
const raceRetries = 3

// PyramidOutcome reports how an entry signal was applied. Duplicate delivery
// is a normal outcome here, not an error.
type PyramidOutcome struct {
	Status       string   `json:"status"`
	TradeID      string   `json:"trade_id,omitempty"`
	PyramidIndex int      `json:"pyramid_index,omitempty"`
	EntryPrice   float64  `json:"entry_price,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// ExitOutcome reports how an exit signal was applied.
type ExitOutcome struct {
	Status  string              `json:"status"`
	TradeID string              `json:"trade_id,omitempty"`
	Summary *model.TradeSummary `json:"summary,omitempty"`
}

type priceGateway interface {
	GetPrice(ctx context.Context, exchange string, pair symbols.Pair) (connectors.PriceQuote, error)
	GetRules(ctx context.Context, exchange string, pair symbols.Pair) (*model.SymbolRule, error)
}

type tradeStore interface {
	FindOpenTrade(ctx context.Context, exchange, base, quote string) (*model.Trade, error)
	CreateTradeWithPyramid(ctx context.Context, trade *model.Trade, pyramid *model.Pyramid) error
	AppendPyramid(ctx context.Context, pyramid *model.Pyramid) error
	CloseTrade(ctx context.Context, exit *model.Exit, tc repository.TradeClose) error
}

type anomalyStore interface {
	Record(ctx context.Context, anomaly *model.Anomaly) error
}

type notifier interface {
	PyramidRecorded(exchange, pair string, index int, price, size float64)
	TradeClosed(summary *model.TradeSummary)
	OrphanExit(exchange, pair, alertID string)
	PyramidLimit(exchange, pair, alertID string, index int)
}

// Engine applies signals to the trade lifecycle.
type Engine struct {
	gateway   priceGateway
	trades    tradeStore
	anomalies anomalyStore
	notifier  notifier
	fees      *fees.Table
	mode      string
	paused    bool
	ignored   map[string]bool
	now       func() time.Time
	newID     func() string
}

func NewEngine(
	gateway priceGateway,
	trades tradeStore,
	anomalies anomalyStore,
	notify notifier,
	feeTable *fees.Table,
	config Config,
) *Engine {

	mode := strings.ToLower(config.ValidationMode)
	if mode != validation.ModeLenient {
		mode = validation.ModeStrict
	}

	ignored := make(map[string]bool, len(config.IgnoredPairs))
	for _, pair := range config.IgnoredPairs {
		ignored[strings.ToUpper(strings.TrimSpace(pair))] = true
	}

	return &Engine{
		gateway:   gateway,
		trades:    trades,
		anomalies: anomalies,
		notifier:  notify,
		fees:      feeTable,
		mode:      mode,
		paused:    config.Paused,
		ignored:   ignored,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// RecordPyramid applies an entry signal: normalize, price, validate, then an
// idempotent insert keyed by the signal identity and by (trade, index).
// A re-delivered signal returns the duplicate outcome with nothing changed.
// When the target trade closes between the read and the write, the entry
// re-enters the no-open-trade path and starts a fresh trade.
func (e *Engine) RecordPyramid(ctx context.Context, alert *model.WebhookAlert) (*PyramidOutcome, error) {
	if err := alert.Validate(); err != nil {
		if errors.Is(err, model.ErrInvalidPyramidIndex) {
			e.notePyramidLimit(ctx, alert)
		}
		return nil, err
	}
	if alert.Type != model.AlertTypePyramid {
		return nil, fmt.Errorf("%w: expected pyramid alert, got %q", model.ErrMalformedAlert, alert.Type)
	}

	exchange, pair, err := e.canonicalize(alert)
	if err != nil {
		return nil, err
	}
	if e.skip(exchange, pair, alert.AlertID) {
		return &PyramidOutcome{Status: OutcomeIgnored}, nil
	}

	quote, err := e.gateway.GetPrice(ctx, exchange, pair)
	if err != nil {
		return nil, err
	}
	rule, err := e.gateway.GetRules(ctx, exchange, pair)
	if err != nil {
		return nil, err
	}

	result, err := validation.Validate(quote.Price, alert.Size, rule, e.mode)
	if err != nil {
		return nil, err
	}
	e.recordWarnings(ctx, exchange, pair, alert.AlertID, result.Warnings)

	feeRate := e.fees.Rate(exchange)
	pyramid := &model.Pyramid{
		ID:           e.newID(),
		PyramidIndex: alert.Index,
		SignalKey:    alert.SignalKey(),
		EntryPrice:   quote.Price,
		PositionSize: alert.Size,
		Notional:     quote.Price * alert.Size,
		EntryTime:    quote.FetchedAt,
		FeeRate:      feeRate,
		Fee:          quote.Price * alert.Size * feeRate,
	}

	for attempt := 0; attempt < raceRetries; attempt++ {
		open, err := e.trades.FindOpenTrade(ctx, exchange, pair.Base, pair.Quote)
		if err != nil {
			return nil, err
		}

		if open == nil {
			slot := model.SlotKey(exchange, pair.Base, pair.Quote)
			newTrade := &model.Trade{
				ID:        e.newID(),
				Exchange:  exchange,
				Base:      pair.Base,
				Quote:     pair.Quote,
				Status:    model.TradeStatusOpen,
				OpenSlot:  &slot,
				CreatedAt: e.now(),
			}
			pyramid.TradeID = newTrade.ID

			err := e.trades.CreateTradeWithPyramid(ctx, newTrade, pyramid)
			switch {
			case errors.Is(err, repository.ErrOpenSlotTaken):
				// Lost the race to open the trade; re-read and append to
				// the winner's.
				continue
			case errors.Is(err, repository.ErrDuplicateSignal):
				return e.duplicatePyramid(ctx, nil, alert, exchange, pair), nil
			case err != nil:
				return nil, err
			}

			e.notifier.PyramidRecorded(exchange, pair.Display(), alert.Index, quote.Price, alert.Size)
			logger.WithFields(map[string]interface{}{
				"exchange": exchange,
				"pair":     pair.Display(),
				"trade_id": newTrade.ID,
				"index":    alert.Index,
				"price":    quote.Price,
			}).Info("Opened trade with first pyramid")

			return &PyramidOutcome{
				Status:       OutcomeRecorded,
				TradeID:      newTrade.ID,
				PyramidIndex: alert.Index,
				EntryPrice:   quote.Price,
				Warnings:     result.Warnings,
			}, nil
		}

		pyramid.TradeID = open.ID
		err = e.trades.AppendPyramid(ctx, pyramid)
		switch {
		case errors.Is(err, repository.ErrDuplicateSignal):
			return e.duplicatePyramid(ctx, open, alert, exchange, pair), nil
		case errors.Is(err, repository.ErrTradeClosed):
			// The trade closed between the read and the write; this entry
			// starts a fresh trade on the now-free slot.
			continue
		case err != nil:
			return nil, err
		}

		e.notifier.PyramidRecorded(exchange, pair.Display(), alert.Index, quote.Price, alert.Size)
		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
			"trade_id": open.ID,
			"index":    alert.Index,
			"price":    quote.Price,
		}).Info("Recorded pyramid")

		return &PyramidOutcome{
			Status:       OutcomeRecorded,
			TradeID:      open.ID,
			PyramidIndex: alert.Index,
			EntryPrice:   quote.Price,
			Warnings:     result.Warnings,
		}, nil
	}

	return nil, fmt.Errorf("no stable open trade for %s %s after %d attempts", exchange, pair.Display(), raceRetries)
}

// RecordExit applies an exit signal: the exit row, the PnL figures and the
// closed transition land in one durable operation. Of two racing exits
// exactly one closes the trade; the other observes "already closed".
func (e *Engine) RecordExit(ctx context.Context, alert *model.WebhookAlert) (*ExitOutcome, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	if alert.Type != model.AlertTypeExit {
		return nil, fmt.Errorf("%w: expected exit alert, got %q", model.ErrMalformedAlert, alert.Type)
	}

	exchange, pair, err := e.canonicalize(alert)
	if err != nil {
		return nil, err
	}
	if e.skip(exchange, pair, alert.AlertID) {
		return &ExitOutcome{Status: OutcomeIgnored}, nil
	}

	open, err := e.trades.FindOpenTrade(ctx, exchange, pair.Base, pair.Quote)
	if err != nil {
		return nil, err
	}
	if open == nil {
		e.recordAnomaly(ctx, &model.Anomaly{
			Kind:     model.AnomalyOrphanExit,
			Exchange: exchange,
			Pair:     pair.Display(),
			AlertID:  alert.AlertID,
			Message:  "exit signal with no open trade",
		})
		e.notifier.OrphanExit(exchange, pair.Display(), alert.AlertID)

		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
			"alert_id": alert.AlertID,
		}).Warn("Orphan exit rejected")

		return nil, fmt.Errorf("%w: %s %s", ErrNoOpenTrade, exchange, pair.Display())
	}

	quote, err := e.gateway.GetPrice(ctx, exchange, pair)
	if err != nil {
		return nil, err
	}

	feeRate := e.fees.Rate(exchange)

	for attempt := 0; attempt < raceRetries; attempt++ {
		result := pnl.Compute(open.Pyramids, quote.Price, feeRate)

		exit := &model.Exit{
			ID:        e.newID(),
			TradeID:   open.ID,
			SignalKey: alert.SignalKey(),
			ExitPrice: quote.Price,
			ExitTime:  quote.FetchedAt,
			Fee:       result.ExitFees,
		}

		tc := repository.TradeClose{
			ClosedAt:        exit.ExitTime,
			TotalPnL:        result.NetPnL,
			TotalPnLPercent: result.NetPnLPercent,
			Pyramids:        make([]repository.PyramidClose, 0, len(result.Pyramids)),
		}
		for _, p := range result.Pyramids {
			tc.Pyramids = append(tc.Pyramids, repository.PyramidClose{
				ID:         p.PyramidID,
				PnL:        p.NetPnL,
				PnLPercent: p.PnLPercent,
			})
		}

		err := e.trades.CloseTrade(ctx, exit, tc)
		switch {
		case errors.Is(err, repository.ErrDuplicateSignal):
			logger.WithFields(map[string]interface{}{
				"exchange": exchange,
				"pair":     pair.Display(),
				"trade_id": open.ID,
			}).Info("Exit already recorded, trade closed by earlier delivery")

			return &ExitOutcome{Status: OutcomeAlreadyClosed, TradeID: open.ID}, nil
		case errors.Is(err, repository.ErrStalePyramids):
			// An entry landed after the figures were computed; reload the
			// trade and settle the full set.
			refetched, ferr := e.trades.FindOpenTrade(ctx, exchange, pair.Base, pair.Quote)
			if ferr != nil {
				return nil, ferr
			}
			if refetched == nil {
				return &ExitOutcome{Status: OutcomeAlreadyClosed, TradeID: open.ID}, nil
			}
			open = refetched
			continue
		case err != nil:
			return nil, err
		}

		summary := buildSummary(open, exit, result)
		e.notifier.TradeClosed(summary)

		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
			"trade_id": open.ID,
			"net_pnl":  result.NetPnL,
			"net_pct":  result.NetPnLPercent,
			"exit":     quote.Price,
			"pyramids": len(result.Pyramids),
		}).Info("Trade closed")

		return &ExitOutcome{Status: OutcomeClosed, TradeID: open.ID, Summary: summary}, nil
	}

	return nil, fmt.Errorf("trade %s kept gaining entries while closing", open.ID)
}

func (e *Engine) canonicalize(alert *model.WebhookAlert) (string, symbols.Pair, error) {
	exchange, err := symbols.NormalizeExchange(alert.Exchange)
	if err != nil {
		return "", symbols.Pair{}, err
	}
	pair, err := symbols.ParseSymbol(alert.Symbol)
	if err != nil {
		return "", symbols.Pair{}, err
	}
	return exchange, pair, nil
}

func (e *Engine) skip(exchange string, pair symbols.Pair, alertID string) bool {
	if e.paused {
		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
			"alert_id": alertID,
		}).Info("Engine paused, signal ignored")
		return true
	}
	if e.ignored[pair.Display()] {
		logger.WithFields(map[string]interface{}{
			"exchange": exchange,
			"pair":     pair.Display(),
			"alert_id": alertID,
		}).Info("Pair on ignore list, signal ignored")
		return true
	}
	return false
}

// duplicatePyramid reports the idempotent no-op outcome. When the stored
// pyramid at the same index carries a different size, the alert id was
// reused with conflicting fields; that gets an audit row.
func (e *Engine) duplicatePyramid(
	ctx context.Context,
	open *model.Trade,
	alert *model.WebhookAlert,
	exchange string,
	pair symbols.Pair,
) *PyramidOutcome {

	outcome := &PyramidOutcome{Status: OutcomeDuplicate, PyramidIndex: alert.Index}
	if open != nil {
		outcome.TradeID = open.ID
		for _, p := range open.Pyramids {
			if p.PyramidIndex == alert.Index && p.PositionSize != alert.Size {
				e.recordAnomaly(ctx, &model.Anomaly{
					Kind:     model.AnomalyConflictingAlert,
					Exchange: exchange,
					Pair:     pair.Display(),
					AlertID:  alert.AlertID,
					Message: fmt.Sprintf("duplicate pyramid %d with conflicting size: stored %v, received %v",
						alert.Index, p.PositionSize, alert.Size),
				})
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"exchange": exchange,
		"pair":     pair.Display(),
		"alert_id": alert.AlertID,
		"index":    alert.Index,
	}).Info("Duplicate pyramid signal ignored")

	return outcome
}

// notePyramidLimit leaves an operator-visible trace when an entry signal
// names a slot past the last allowed one. The signal itself stays rejected.
func (e *Engine) notePyramidLimit(ctx context.Context, alert *model.WebhookAlert) {
	exchange := strings.ToLower(strings.TrimSpace(alert.Exchange))
	display := strings.ToUpper(strings.TrimSpace(alert.Symbol))
	if ex, pair, err := e.canonicalize(alert); err == nil {
		exchange = ex
		display = pair.Display()
	}

	e.recordAnomaly(ctx, &model.Anomaly{
		Kind:     model.AnomalyPyramidLimit,
		Exchange: exchange,
		Pair:     display,
		AlertID:  alert.AlertID,
		Message:  fmt.Sprintf("pyramid index %d exceeds the limit of %d", alert.Index, model.MaxPyramids),
	})
	e.notifier.PyramidLimit(exchange, display, alert.AlertID, alert.Index)

	logger.WithFields(map[string]interface{}{
		"exchange": exchange,
		"pair":     display,
		"alert_id": alert.AlertID,
		"index":    alert.Index,
	}).Warn("Pyramid limit hit, entry rejected")
}

func (e *Engine) recordWarnings(ctx context.Context, exchange string, pair symbols.Pair, alertID string, warnings []string) {
	for _, warning := range warnings {
		e.recordAnomaly(ctx, &model.Anomaly{
			Kind:     model.AnomalyValidationWarn,
			Exchange: exchange,
			Pair:     pair.Display(),
			AlertID:  alertID,
			Message:  warning,
		})
	}
}

func (e *Engine) recordAnomaly(ctx context.Context, anomaly *model.Anomaly) {
	anomaly.CreatedAt = e.now()
	// Losing an audit row must never lose the signal.
	if err := e.anomalies.Record(ctx, anomaly); err != nil {
		logger.WithError(err).Warn("Failed to persist anomaly")
	}
}

func buildSummary(open *model.Trade, exit *model.Exit, result pnl.TradeResult) *model.TradeSummary {
	fills := make([]model.PyramidFill, 0, len(result.Pyramids))

	byID := make(map[string]model.Pyramid, len(open.Pyramids))
	for _, p := range open.Pyramids {
		byID[p.ID] = p
	}

	for _, p := range result.Pyramids {
		entry := byID[p.PyramidID]
		fills = append(fills, model.PyramidFill{
			Index:      p.Index,
			EntryPrice: entry.EntryPrice,
			EntryTime:  entry.EntryTime,
			Size:       entry.PositionSize,
			NetPnL:     p.NetPnL,
			PnLPercent: p.PnLPercent,
		})
	}
	sort.Slice(fills, func(i, j int) bool { return fills[i].Index < fills[j].Index })

	return &model.TradeSummary{
		TradeID:       open.ID,
		Exchange:      open.Exchange,
		Base:          open.Base,
		Quote:         open.Quote,
		Pyramids:      fills,
		ExitPrice:     exit.ExitPrice,
		ExitTime:      exit.ExitTime,
		GrossPnL:      result.GrossPnL,
		TotalFees:     result.TotalFees,
		NetPnL:        result.NetPnL,
		NetPnLPercent: result.NetPnLPercent,
	}
}
