package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyramidtracker/src/model"
)

type fakeTradeSource struct {
	trades []model.Trade

	start time.Time
	end   time.Time
}

// FindClosedBetween filters like the real repository: half-open [start, end).
func (f *fakeTradeSource) FindClosedBetween(ctx context.Context, start, end time.Time) ([]model.Trade, error) {
	f.start = start
	f.end = end

	var matched []model.Trade
	for _, trade := range f.trades {
		if trade.ClosedAt == nil {
			continue
		}
		closed := *trade.ClosedAt
		if !closed.Before(start) && closed.Before(end) {
			matched = append(matched, trade)
		}
	}
	return matched, nil
}

type fakeReportStore struct {
	saved []*model.DailyReportRecord
}

func (f *fakeReportStore) Save(ctx context.Context, record *model.DailyReportRecord) error {
	f.saved = append(f.saved, record)
	return nil
}

func closedTrade(id, exchange, base string, closedAt time.Time, netPnL float64, pyramids ...model.Pyramid) model.Trade {
	pct := 0.0
	return model.Trade{
		ID:              id,
		Exchange:        exchange,
		Base:            base,
		Quote:           "USDT",
		Status:          model.TradeStatusClosed,
		ClosedAt:        &closedAt,
		TotalPnL:        &netPnL,
		TotalPnLPercent: &pct,
		Pyramids:        pyramids,
	}
}

func TestAggregateTotalsAndBreakdowns(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeTradeSource{trades: []model.Trade{
		closedTrade("t1", "binance", "BTC", day.Add(10*time.Hour), 100,
			model.Pyramid{EntryPrice: 100, PositionSize: 1},
			model.Pyramid{EntryPrice: 110, PositionSize: 1}),
		closedTrade("t2", "binance", "ETH", day.Add(12*time.Hour), -40,
			model.Pyramid{EntryPrice: 2000, PositionSize: 0.1}),
		closedTrade("t3", "okx", "BTC", day.Add(14*time.Hour), 60,
			model.Pyramid{EntryPrice: 100, PositionSize: 2}),
	}}

	service, err := NewService(source, &fakeReportStore{}, Config{Timezone: "UTC"})
	require.NoError(t, err)

	report, err := service.Aggregate(context.Background(), "2025-06-01")
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalTrades)
	assert.Equal(t, 4, report.TotalPyramids)
	assert.InDelta(t, 210+200+200, report.TotalCapital, 1e-9)
	assert.InDelta(t, 160, report.GrossProfit, 1e-9)
	assert.InDelta(t, 40, report.GrossLoss, 1e-9)
	assert.InDelta(t, 120, report.NetPnL, 1e-9)
	assert.InDelta(t, 120.0/610*100, report.NetPnLPercent, 1e-9)
	assert.InDelta(t, 2.0/3*100, report.WinRate, 1e-9)

	require.NotNil(t, report.ProfitFactor)
	assert.InDelta(t, 4, *report.ProfitFactor, 1e-9)

	assert.InDelta(t, 60, report.ByExchange["binance"].NetPnL, 1e-9)
	assert.Equal(t, 2, report.ByExchange["binance"].Trades)
	assert.InDelta(t, 160, report.ByPair["BTC/USDT"], 1e-9)
	assert.InDelta(t, -40, report.ByPair["ETH/USDT"], 1e-9)
}

func TestAggregateProfitFactorUndefinedWithoutLosses(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeTradeSource{trades: []model.Trade{
		closedTrade("t1", "binance", "BTC", day.Add(time.Hour), 50,
			model.Pyramid{EntryPrice: 100, PositionSize: 1}),
	}}

	service, err := NewService(source, &fakeReportStore{}, Config{Timezone: "UTC"})
	require.NoError(t, err)

	report, err := service.Aggregate(context.Background(), "2025-06-01")
	require.NoError(t, err)
	assert.Nil(t, report.ProfitFactor, "profit factor is undefined with zero gross loss")
}

func TestAggregateEmptyDay(t *testing.T) {
	service, err := NewService(&fakeTradeSource{}, &fakeReportStore{}, Config{Timezone: "UTC"})
	require.NoError(t, err)

	report, err := service.Aggregate(context.Background(), "2025-06-01")
	require.NoError(t, err)

	assert.Zero(t, report.TotalTrades)
	assert.Zero(t, report.WinRate)
	assert.Zero(t, report.NetPnLPercent)
	assert.Nil(t, report.ProfitFactor)
}

func TestAggregateDayBoundaryInReportingTimezone(t *testing.T) {
	// 23:59 New York local on June 1st is 03:59 UTC on June 2nd. The trade
	// must land in June 1st's report, and one closed a minute after local
	// midnight must not.
	lateLocal := time.Date(2025, 6, 2, 3, 59, 0, 0, time.UTC)
	nextDay := time.Date(2025, 6, 2, 4, 1, 0, 0, time.UTC)

	source := &fakeTradeSource{trades: []model.Trade{
		closedTrade("late", "binance", "BTC", lateLocal, 10,
			model.Pyramid{EntryPrice: 100, PositionSize: 1}),
		closedTrade("next", "binance", "ETH", nextDay, 10,
			model.Pyramid{EntryPrice: 100, PositionSize: 1}),
	}}

	service, err := NewService(source, &fakeReportStore{}, Config{Timezone: "America/New_York"})
	require.NoError(t, err)

	report, err := service.Aggregate(context.Background(), "2025-06-01")
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalTrades)
	assert.Contains(t, report.ByPair, "BTC/USDT")
	assert.NotContains(t, report.ByPair, "ETH/USDT")

	assert.Equal(t, time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC), source.start)
	assert.Equal(t, time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC), source.end)
}

func TestGenerateAndStorePersistsRecord(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeTradeSource{trades: []model.Trade{
		closedTrade("t1", "binance", "BTC", day.Add(time.Hour), 50,
			model.Pyramid{EntryPrice: 100, PositionSize: 1}),
	}}
	store := &fakeReportStore{}

	service, err := NewService(source, store, Config{Timezone: "UTC"})
	require.NoError(t, err)

	report, err := service.GenerateAndStore(context.Background(), "2025-06-01")
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	record := store.saved[0]
	assert.Equal(t, "2025-06-01", record.Date)
	assert.Equal(t, report.TotalTrades, record.TotalTrades)
	assert.InDelta(t, report.NetPnL, record.NetPnL, 1e-9)
	assert.Contains(t, record.ReportJSON, `"date":"2025-06-01"`)
}

func TestNewServiceRejectsUnknownTimezone(t *testing.T) {
	_, err := NewService(&fakeTradeSource{}, &fakeReportStore{}, Config{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestSchedulerNextFire(t *testing.T) {
	service, err := NewService(&fakeTradeSource{}, &fakeReportStore{}, Config{Timezone: "UTC"})
	require.NoError(t, err)

	scheduler, err := NewScheduler(service, nil, Config{DailyAt: "23:59"})
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC), scheduler.nextFire(now))

	// Already past today's fire time: schedule for tomorrow.
	late := time.Date(2025, 6, 1, 23, 59, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 23, 59, 0, 0, time.UTC), scheduler.nextFire(late))
}

func TestNewSchedulerRejectsBadTime(t *testing.T) {
	service, err := NewService(&fakeTradeSource{}, &fakeReportStore{}, Config{Timezone: "UTC"})
	require.NoError(t, err)

	for _, at := range []string{"25:00", "12:75", "noon"} {
		_, err := NewScheduler(service, nil, Config{DailyAt: at})
		assert.Error(t, err, at)
	}
}
