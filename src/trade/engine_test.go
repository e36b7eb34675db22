package trade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyramidtracker/src/connectors"
	"pyramidtracker/src/fees"
	"pyramidtracker/src/model"
	"pyramidtracker/src/repository"
	"pyramidtracker/src/symbols"
	"pyramidtracker/src/validation"
)

type fakeGateway struct {
	price    float64
	priceErr error
	rule     *model.SymbolRule
}

func (g *fakeGateway) GetPrice(ctx context.Context, exchange string, pair symbols.Pair) (connectors.PriceQuote, error) {
	if g.priceErr != nil {
		return connectors.PriceQuote{}, g.priceErr
	}
	return connectors.PriceQuote{Price: g.price, FetchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}, nil
}

func (g *fakeGateway) GetRules(ctx context.Context, exchange string, pair symbols.Pair) (*model.SymbolRule, error) {
	return g.rule, nil
}

type fakeStore struct {
	// opens is popped on each FindOpenTrade call, so a test can script a
	// different answer for the refetch after a storage-level race.
	opens []*model.Trade

	// createErr fails every create; appendErrs and closeErrs are popped
	// per call so a test can fail the first write and let a retry land.
	createErr  error
	appendErrs []error
	closeErrs  []error

	created        *model.Trade
	createdPyramid *model.Pyramid
	appended       *model.Pyramid
	closedExit     *model.Exit
	closedWith     repository.TradeClose
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (s *fakeStore) FindOpenTrade(ctx context.Context, exchange, base, quote string) (*model.Trade, error) {
	if len(s.opens) == 0 {
		return nil, nil
	}
	open := s.opens[0]
	s.opens = s.opens[1:]
	return open, nil
}

func (s *fakeStore) CreateTradeWithPyramid(ctx context.Context, trade *model.Trade, pyramid *model.Pyramid) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = trade
	s.createdPyramid = pyramid
	return nil
}

func (s *fakeStore) AppendPyramid(ctx context.Context, pyramid *model.Pyramid) error {
	if err := popErr(&s.appendErrs); err != nil {
		return err
	}
	s.appended = pyramid
	return nil
}

func (s *fakeStore) CloseTrade(ctx context.Context, exit *model.Exit, tc repository.TradeClose) error {
	if err := popErr(&s.closeErrs); err != nil {
		return err
	}
	s.closedExit = exit
	s.closedWith = tc
	return nil
}

type fakeAnomalies struct {
	recorded []*model.Anomaly
}

func (a *fakeAnomalies) Record(ctx context.Context, anomaly *model.Anomaly) error {
	a.recorded = append(a.recorded, anomaly)
	return nil
}

type fakeNotifier struct {
	pyramids int
	closed   []*model.TradeSummary
	orphans  int
	limits   int
}

func (n *fakeNotifier) PyramidRecorded(exchange, pair string, index int, price, size float64) {
	n.pyramids++
}

func (n *fakeNotifier) TradeClosed(summary *model.TradeSummary) {
	n.closed = append(n.closed, summary)
}

func (n *fakeNotifier) OrphanExit(exchange, pair, alertID string) {
	n.orphans++
}

func (n *fakeNotifier) PyramidLimit(exchange, pair, alertID string, index int) {
	n.limits++
}

func permissiveRule() *model.SymbolRule {
	return &model.SymbolRule{
		Exchange:    "binance",
		Base:        "BTC",
		Quote:       "USDT",
		MinQty:      0.0001,
		MinNotional: 1,
		TickSize:    0.01,
		RefreshedAt: time.Now().UTC(),
	}
}

func newTestEngine(gateway *fakeGateway, store *fakeStore, anomalies *fakeAnomalies, notify *fakeNotifier, config Config) *Engine {
	return NewEngine(gateway, store, anomalies, notify, fees.Default(), config)
}

func pyramidAlert(index int, size float64) *model.WebhookAlert {
	return &model.WebhookAlert{
		Type:     model.AlertTypePyramid,
		Index:    index,
		Exchange: "binance",
		Symbol:   "BTC/USDT",
		Size:     size,
		AlertID:  "alert-1",
	}
}

func exitAlert() *model.WebhookAlert {
	return &model.WebhookAlert{
		Type:     model.AlertTypeExit,
		Exchange: "binance",
		Symbol:   "BTC/USDT",
		AlertID:  "alert-9",
	}
}

func TestRecordPyramidOpensTrade(t *testing.T) {
	gateway := &fakeGateway{price: 50000, rule: permissiveRule()}
	store := &fakeStore{}
	notify := &fakeNotifier{}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, notify, Config{})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(1, 0.1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecorded, outcome.Status)
	assert.InDelta(t, 50000, outcome.EntryPrice, 1e-9)

	require.NotNil(t, store.created)
	assert.Equal(t, "binance", store.created.Exchange)
	assert.Equal(t, model.TradeStatusOpen, store.created.Status)
	require.NotNil(t, store.created.OpenSlot)
	assert.Equal(t, "binance/BTC/USDT", *store.created.OpenSlot)

	require.NotNil(t, store.createdPyramid)
	assert.Equal(t, store.created.ID, store.createdPyramid.TradeID)
	assert.Equal(t, "alert-1:pyramid:1", store.createdPyramid.SignalKey)
	assert.InDelta(t, 50000*0.1*0.001, store.createdPyramid.Fee, 1e-9)

	assert.Equal(t, 1, notify.pyramids)
}

func TestRecordPyramidAppendsToOpenTrade(t *testing.T) {
	gateway := &fakeGateway{price: 51000, rule: permissiveRule()}
	open := &model.Trade{ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen}
	store := &fakeStore{opens: []*model.Trade{open}}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, &fakeNotifier{}, Config{})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(2, 0.1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecorded, outcome.Status)
	assert.Equal(t, "trade-1", outcome.TradeID)
	require.NotNil(t, store.appended)
	assert.Equal(t, "trade-1", store.appended.TradeID)
	assert.Nil(t, store.created, "an open trade must not be replaced")
}

func TestRecordPyramidDuplicateIsNoOp(t *testing.T) {
	gateway := &fakeGateway{price: 51000, rule: permissiveRule()}
	open := &model.Trade{
		ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen,
		Pyramids: []model.Pyramid{{ID: "py-1", PyramidIndex: 2, PositionSize: 0.1}},
	}
	store := &fakeStore{opens: []*model.Trade{open}, appendErrs: []error{repository.ErrDuplicateSignal}}
	anomalies := &fakeAnomalies{}
	notify := &fakeNotifier{}
	engine := newTestEngine(gateway, store, anomalies, notify, Config{})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(2, 0.1))
	require.NoError(t, err, "a re-delivered webhook is not an error")

	assert.Equal(t, OutcomeDuplicate, outcome.Status)
	assert.Zero(t, notify.pyramids)
	assert.Empty(t, anomalies.recorded, "same fields mean a plain redelivery, no conflict")
}

func TestRecordPyramidDuplicateWithConflictingSize(t *testing.T) {
	gateway := &fakeGateway{price: 51000, rule: permissiveRule()}
	open := &model.Trade{
		ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen,
		Pyramids: []model.Pyramid{{ID: "py-1", PyramidIndex: 2, PositionSize: 0.5}},
	}
	store := &fakeStore{opens: []*model.Trade{open}, appendErrs: []error{repository.ErrDuplicateSignal}}
	anomalies := &fakeAnomalies{}
	engine := newTestEngine(gateway, store, anomalies, &fakeNotifier{}, Config{})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(2, 0.1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, outcome.Status)
	require.Len(t, anomalies.recorded, 1)
	assert.Equal(t, model.AnomalyConflictingAlert, anomalies.recorded[0].Kind)
}

func TestRecordPyramidSlotConflictFallsBackToAppend(t *testing.T) {
	gateway := &fakeGateway{price: 50000, rule: permissiveRule()}
	winner := &model.Trade{ID: "trade-winner", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen}
	store := &fakeStore{
		// First lookup sees no open trade, the refetch after the slot
		// conflict sees the concurrent winner's.
		opens:     []*model.Trade{nil, winner},
		createErr: repository.ErrOpenSlotTaken,
	}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, &fakeNotifier{}, Config{})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(1, 0.1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecorded, outcome.Status)
	assert.Equal(t, "trade-winner", outcome.TradeID)
	require.NotNil(t, store.appended)
	assert.Equal(t, "trade-winner", store.appended.TradeID)
}

func TestRecordPyramidOpensFreshTradeWhenClosedUnderfoot(t *testing.T) {
	gateway := &fakeGateway{price: 52000, rule: permissiveRule()}
	stale := &model.Trade{ID: "trade-old", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen}
	store := &fakeStore{
		// The trade read on the first attempt closes before the write
		// lands; the retry finds the slot free and opens a fresh trade.
		opens:      []*model.Trade{stale, nil},
		appendErrs: []error{repository.ErrTradeClosed},
	}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, &fakeNotifier{}, Config{})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(2, 0.1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecorded, outcome.Status)
	require.NotNil(t, store.created, "a late entry starts a new trade instead of landing in the closed one")
	assert.Equal(t, store.created.ID, outcome.TradeID)
	assert.NotEqual(t, "trade-old", outcome.TradeID)
	assert.Nil(t, store.appended)
}

func TestRecordPyramidRejectsBadIndex(t *testing.T) {
	engine := newTestEngine(&fakeGateway{}, &fakeStore{}, &fakeAnomalies{}, &fakeNotifier{}, Config{})

	_, err := engine.RecordPyramid(context.Background(), pyramidAlert(6, 0.1))
	assert.ErrorIs(t, err, model.ErrInvalidPyramidIndex)
}

func TestRecordPyramidLimitLeavesTrace(t *testing.T) {
	store := &fakeStore{}
	anomalies := &fakeAnomalies{}
	notify := &fakeNotifier{}
	engine := newTestEngine(&fakeGateway{}, store, anomalies, notify, Config{})

	_, err := engine.RecordPyramid(context.Background(), pyramidAlert(6, 0.1))
	assert.ErrorIs(t, err, model.ErrInvalidPyramidIndex)

	require.Len(t, anomalies.recorded, 1)
	assert.Equal(t, model.AnomalyPyramidLimit, anomalies.recorded[0].Kind)
	assert.Equal(t, "BTC/USDT", anomalies.recorded[0].Pair)
	assert.Equal(t, 1, notify.limits)
	assert.Nil(t, store.created, "the over-limit entry is rejected, only the trace is kept")
}

func TestRecordPyramidRejectsUnknownExchange(t *testing.T) {
	engine := newTestEngine(&fakeGateway{}, &fakeStore{}, &fakeAnomalies{}, &fakeNotifier{}, Config{})

	alert := pyramidAlert(1, 0.1)
	alert.Exchange = "nyse"
	_, err := engine.RecordPyramid(context.Background(), alert)
	assert.ErrorIs(t, err, symbols.ErrUnknownExchange)
}

func TestRecordPyramidStrictValidationBlocks(t *testing.T) {
	rule := permissiveRule()
	rule.MinNotional = 1000000

	gateway := &fakeGateway{price: 50000, rule: rule}
	store := &fakeStore{}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, &fakeNotifier{}, Config{ValidationMode: "strict"})

	_, err := engine.RecordPyramid(context.Background(), pyramidAlert(1, 0.1))
	assert.ErrorIs(t, err, validation.ErrValidation)
	assert.Nil(t, store.created, "strict mode must not persist a violating signal")
}

func TestRecordPyramidLenientValidationWarns(t *testing.T) {
	rule := permissiveRule()
	rule.MinNotional = 1000000

	gateway := &fakeGateway{price: 50000, rule: rule}
	store := &fakeStore{}
	anomalies := &fakeAnomalies{}
	engine := newTestEngine(gateway, store, anomalies, &fakeNotifier{}, Config{ValidationMode: "lenient"})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(1, 0.1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecorded, outcome.Status)
	assert.NotEmpty(t, outcome.Warnings)
	require.NotEmpty(t, anomalies.recorded)
	assert.Equal(t, model.AnomalyValidationWarn, anomalies.recorded[0].Kind)
	assert.NotNil(t, store.created, "lenient mode records the signal alongside the warning")
}

func TestRecordPyramidIgnoredWhenPaused(t *testing.T) {
	engine := newTestEngine(&fakeGateway{}, &fakeStore{}, &fakeAnomalies{}, &fakeNotifier{}, Config{Paused: true})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(1, 0.1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome.Status)
}

func TestRecordPyramidIgnoredPair(t *testing.T) {
	engine := newTestEngine(&fakeGateway{}, &fakeStore{}, &fakeAnomalies{}, &fakeNotifier{},
		Config{IgnoredPairs: []string{"btc/usdt"}})

	outcome, err := engine.RecordPyramid(context.Background(), pyramidAlert(1, 0.1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome.Status)
}

func TestRecordExitClosesTrade(t *testing.T) {
	entryTime := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	open := &model.Trade{
		ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen,
		Pyramids: []model.Pyramid{
			{ID: "py-1", TradeID: "trade-1", PyramidIndex: 1, EntryPrice: 100, PositionSize: 1, EntryTime: entryTime, FeeRate: 0.001, Fee: 0.1},
			{ID: "py-2", TradeID: "trade-1", PyramidIndex: 2, EntryPrice: 110, PositionSize: 1, EntryTime: entryTime, FeeRate: 0.001, Fee: 0.11},
		},
	}

	gateway := &fakeGateway{price: 150, rule: permissiveRule()}
	store := &fakeStore{opens: []*model.Trade{open}}
	notify := &fakeNotifier{}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, notify, Config{})

	outcome, err := engine.RecordExit(context.Background(), exitAlert())
	require.NoError(t, err)

	assert.Equal(t, OutcomeClosed, outcome.Status)
	assert.Equal(t, "trade-1", outcome.TradeID)

	require.NotNil(t, store.closedExit)
	assert.Equal(t, "trade-1", store.closedExit.TradeID)
	assert.Equal(t, "alert-9:exit", store.closedExit.SignalKey)
	assert.InDelta(t, 0.3, store.closedExit.Fee, 1e-9)

	// gross 90, fees (100+110+150+150)*0.001 = 0.51, net 89.49
	assert.InDelta(t, 89.49, store.closedWith.TotalPnL, 1e-9)
	assert.InDelta(t, 89.49/210*100, store.closedWith.TotalPnLPercent, 1e-9)
	require.Len(t, store.closedWith.Pyramids, 2)

	require.Len(t, notify.closed, 1)
	summary := notify.closed[0]
	assert.Equal(t, "BTC/USDT", summary.Pair())
	assert.InDelta(t, 89.49, summary.NetPnL, 1e-9)
	require.Len(t, summary.Pyramids, 2)
	assert.Equal(t, 1, summary.Pyramids[0].Index)
	assert.Equal(t, 2, summary.Pyramids[1].Index)
}

func TestRecordExitSparsePyramidsOnlyExecutedInSummary(t *testing.T) {
	open := &model.Trade{
		ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen,
		Pyramids: []model.Pyramid{
			{ID: "py-3", TradeID: "trade-1", PyramidIndex: 3, EntryPrice: 110, PositionSize: 1, FeeRate: 0.001, Fee: 0.11},
			{ID: "py-1", TradeID: "trade-1", PyramidIndex: 1, EntryPrice: 100, PositionSize: 1, FeeRate: 0.001, Fee: 0.1},
		},
	}

	gateway := &fakeGateway{price: 150, rule: permissiveRule()}
	store := &fakeStore{opens: []*model.Trade{open}}
	notify := &fakeNotifier{}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, notify, Config{})

	outcome, err := engine.RecordExit(context.Background(), exitAlert())
	require.NoError(t, err)
	require.NotNil(t, outcome.Summary)

	indexes := make([]int, 0, len(outcome.Summary.Pyramids))
	for _, fill := range outcome.Summary.Pyramids {
		indexes = append(indexes, fill.Index)
	}
	assert.Equal(t, []int{1, 3}, indexes, "only executed slots appear, in index order")
}

func TestRecordExitRecomputesWhenEntryLandsDuringClose(t *testing.T) {
	first := &model.Trade{
		ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen,
		Pyramids: []model.Pyramid{
			{ID: "py-1", TradeID: "trade-1", PyramidIndex: 1, EntryPrice: 100, PositionSize: 1, FeeRate: 0.001, Fee: 0.1},
		},
	}
	refreshed := &model.Trade{
		ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen,
		Pyramids: []model.Pyramid{
			{ID: "py-1", TradeID: "trade-1", PyramidIndex: 1, EntryPrice: 100, PositionSize: 1, FeeRate: 0.001, Fee: 0.1},
			{ID: "py-2", TradeID: "trade-1", PyramidIndex: 2, EntryPrice: 110, PositionSize: 1, FeeRate: 0.001, Fee: 0.11},
		},
	}

	gateway := &fakeGateway{price: 150, rule: permissiveRule()}
	store := &fakeStore{
		// A second entry commits while the first close is in flight; the
		// close rolls back, reloads the trade and settles both entries.
		opens:     []*model.Trade{first, refreshed},
		closeErrs: []error{repository.ErrStalePyramids},
	}
	notify := &fakeNotifier{}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, notify, Config{})

	outcome, err := engine.RecordExit(context.Background(), exitAlert())
	require.NoError(t, err)

	assert.Equal(t, OutcomeClosed, outcome.Status)
	require.Len(t, store.closedWith.Pyramids, 2, "the late entry is settled with the rest")
	assert.InDelta(t, 89.49, store.closedWith.TotalPnL, 1e-9)
	require.Len(t, notify.closed, 1)
	require.Len(t, outcome.Summary.Pyramids, 2)
}

func TestRecordExitOrphanRejected(t *testing.T) {
	gateway := &fakeGateway{price: 150, rule: permissiveRule()}
	store := &fakeStore{}
	anomalies := &fakeAnomalies{}
	notify := &fakeNotifier{}
	engine := newTestEngine(gateway, store, anomalies, notify, Config{})

	_, err := engine.RecordExit(context.Background(), exitAlert())
	assert.ErrorIs(t, err, ErrNoOpenTrade)

	require.Len(t, anomalies.recorded, 1)
	assert.Equal(t, model.AnomalyOrphanExit, anomalies.recorded[0].Kind)
	assert.Equal(t, 1, notify.orphans)
	assert.Nil(t, store.closedExit, "an orphan exit must not fabricate a trade")
}

func TestRecordExitAlreadyClosed(t *testing.T) {
	open := &model.Trade{
		ID: "trade-1", Exchange: "binance", Base: "BTC", Quote: "USDT", Status: model.TradeStatusOpen,
		Pyramids: []model.Pyramid{
			{ID: "py-1", TradeID: "trade-1", PyramidIndex: 1, EntryPrice: 100, PositionSize: 1, FeeRate: 0.001, Fee: 0.1},
		},
	}

	gateway := &fakeGateway{price: 150, rule: permissiveRule()}
	store := &fakeStore{opens: []*model.Trade{open}, closeErrs: []error{repository.ErrDuplicateSignal}}
	notify := &fakeNotifier{}
	engine := newTestEngine(gateway, store, &fakeAnomalies{}, notify, Config{})

	outcome, err := engine.RecordExit(context.Background(), exitAlert())
	require.NoError(t, err, "losing the exit race is a normal outcome")

	assert.Equal(t, OutcomeAlreadyClosed, outcome.Status)
	assert.Empty(t, notify.closed, "only the winning exit notifies")
}
