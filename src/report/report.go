// Package report folds closed trades into daily summary statistics.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/model"
)

const dateLayout = "2006-01-02"

type tradeSource interface {
	FindClosedBetween(ctx context.Context, start, end time.Time) ([]model.Trade, error)
}

type reportStore interface {
	Save(ctx context.Context, record *model.DailyReportRecord) error
}

// Service aggregates one reporting day of closed trades.
type Service struct {
	trades   tradeSource
	records  reportStore
	location *time.Location
	now      func() time.Time
}

func NewService(trades tradeSource, records reportStore, config Config) (*Service, error) {
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load reporting timezone %q: %w", config.Timezone, err)
	}

	return &Service{
		trades:   trades,
		records:  records,
		location: location,
		now:      time.Now,
	}, nil
}

// Location returns the configured reporting timezone.
func (s *Service) Location() *time.Location {
	return s.location
}

// Aggregate folds all trades closed during the named day (YYYY-MM-DD) into a
// report. The day is the half-open interval [00:00, next day 00:00) in the
// reporting timezone: a trade closed at 23:59 local time belongs to that
// day's report regardless of the storage timezone.
func (s *Service) Aggregate(ctx context.Context, date string) (*model.DailyReport, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.location)
	if err != nil {
		return nil, fmt.Errorf("parse report date %q: %w", date, err)
	}

	start := day
	end := day.AddDate(0, 0, 1)

	trades, err := s.trades.FindClosedBetween(ctx, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}

	report := &model.DailyReport{
		Date:       date,
		Timezone:   s.location.String(),
		Start:      start.UTC(),
		End:        end.UTC(),
		ByExchange: map[string]model.ExchangeBreakdown{},
		ByPair:     map[string]float64{},
	}

	wins := 0
	for _, trade := range trades {
		if trade.TotalPnL == nil {
			logger.WithField("trade_id", trade.ID).
				Warn("Closed trade without PnL skipped in report")
			continue
		}
		net := *trade.TotalPnL

		report.TotalTrades++
		report.TotalPyramids += len(trade.Pyramids)
		report.NetPnL += net

		for _, p := range trade.Pyramids {
			report.TotalCapital += p.EntryPrice * p.PositionSize
		}

		if net > 0 {
			wins++
			report.GrossProfit += net
		} else {
			report.GrossLoss += -net
		}

		pair := trade.Base + "/" + trade.Quote
		report.ByPair[pair] += net

		breakdown := report.ByExchange[trade.Exchange]
		breakdown.Trades++
		breakdown.NetPnL += net
		report.ByExchange[trade.Exchange] = breakdown
	}

	if report.TotalTrades > 0 {
		report.WinRate = float64(wins) / float64(report.TotalTrades) * 100
	}
	if report.TotalCapital > 0 {
		report.NetPnLPercent = report.NetPnL / report.TotalCapital * 100
	}
	if report.GrossLoss > 0 {
		factor := report.GrossProfit / report.GrossLoss
		report.ProfitFactor = &factor
	}

	logger.WithFields(map[string]interface{}{
		"date":     date,
		"timezone": report.Timezone,
		"trades":   report.TotalTrades,
		"net_pnl":  report.NetPnL,
	}).Info("Daily report aggregated")

	return report, nil
}

// GenerateAndStore aggregates the day and persists the result, replacing any
// earlier run for the same date.
func (s *Service) GenerateAndStore(ctx context.Context, date string) (*model.DailyReport, error) {
	report, err := s.Aggregate(ctx, date)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal daily report: %w", err)
	}

	record := &model.DailyReportRecord{
		Date:          report.Date,
		TotalTrades:   report.TotalTrades,
		TotalPyramids: report.TotalPyramids,
		NetPnL:        report.NetPnL,
		ReportJSON:    string(payload),
		GeneratedAt:   s.now().UTC(),
	}
	if err := s.records.Save(ctx, record); err != nil {
		return nil, err
	}

	return report, nil
}

// Today returns the current date label in the reporting timezone.
func (s *Service) Today() string {
	return s.now().In(s.location).Format(dateLayout)
}
