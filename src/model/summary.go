package model

import "time"

// PyramidFill is one executed entry as it appears in outbound summaries.
// Slots that never triggered are simply absent.
type PyramidFill struct {
	Index      int       `json:"index"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Size       float64   `json:"size"`
	NetPnL     float64   `json:"net_pnl"`
	PnLPercent float64   `json:"pnl_percent"`
}

// TradeSummary is the value object handed to the notification layer after an
// exit closes a trade. Rendering and delivery are the collaborator's problem.
type TradeSummary struct {
	TradeID  string `json:"trade_id"`
	Exchange string `json:"exchange"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`

	Pyramids []PyramidFill `json:"pyramids"`

	ExitPrice float64   `json:"exit_price"`
	ExitTime  time.Time `json:"exit_time"`

	GrossPnL      float64 `json:"gross_pnl"`
	TotalFees     float64 `json:"total_fees"`
	NetPnL        float64 `json:"net_pnl"`
	NetPnLPercent float64 `json:"net_pnl_percent"`
}

// Pair returns the BASE/QUOTE display spelling.
func (s *TradeSummary) Pair() string {
	return s.Base + "/" + s.Quote
}

// ExchangeBreakdown aggregates closed trades per exchange in a daily report.
type ExchangeBreakdown struct {
	Trades int     `json:"trades"`
	NetPnL float64 `json:"net_pnl"`
}

// DailyReport is the structured result of folding one reporting day's closed
// trades into summary statistics.
type DailyReport struct {
	Date     string    `json:"date"`
	Timezone string    `json:"timezone"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	TotalTrades     int     `json:"total_trades"`
	TotalPyramids   int     `json:"total_pyramids"`
	TotalCapital    float64 `json:"total_capital"`
	GrossProfit     float64 `json:"gross_profit"`
	GrossLoss       float64 `json:"gross_loss"`
	NetPnL          float64 `json:"net_pnl"`
	NetPnLPercent   float64 `json:"net_pnl_percent"`
	WinRate         float64 `json:"win_rate"`
	// ProfitFactor is nil when gross loss is zero (undefined/unbounded).
	ProfitFactor *float64 `json:"profit_factor,omitempty"`

	ByExchange map[string]ExchangeBreakdown `json:"by_exchange"`
	ByPair     map[string]float64           `json:"by_pair"`
}

// DailyReportRecord persists a generated report for later inspection.
type DailyReportRecord struct {
	Date          string    `gorm:"primaryKey;size:10" json:"date"`
	TotalTrades   int       `gorm:"not null" json:"total_trades"`
	TotalPyramids int       `gorm:"not null" json:"total_pyramids"`
	NetPnL        float64   `gorm:"column:net_pnl;not null" json:"net_pnl"`
	ReportJSON    string    `gorm:"type:text" json:"-"`
	GeneratedAt   time.Time `json:"generated_at"`
}

func (DailyReportRecord) TableName() string {
	return "daily_reports"
}
