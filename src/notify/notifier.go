// Package notify delivers trade and report messages to a Telegram chat.
// Rendering lives here; the engine only hands over value objects.
package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/model"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends formatted messages to one chat. With Enabled false it is a
// no-op and every method returns immediately.
type Notifier struct {
	bot     sender
	chatID  int64
	enabled bool
}

func NewNotifier(config Config) (*Notifier, error) {
	if !config.Enabled {
		logger.Info("Telegram notifications disabled")
		return &Notifier{}, nil
	}

	bot, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	logger.WithField("chat_id", config.ChatID).Info("Telegram notifications enabled")
	return &Notifier{bot: bot, chatID: config.ChatID, enabled: true}, nil
}

// WithSender overrides the underlying bot. Useful for tests.
func (n *Notifier) WithSender(bot sender, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, enabled: true}
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		// Notification failures never block signal processing.
		logger.WithError(err).Warn("Failed to send Telegram message")
	}
}

func (n *Notifier) PyramidRecorded(exchange, pair string, index int, price, size float64) {
	n.send(fmt.Sprintf("🔺 <b>Pyramid %d</b> %s on %s\nEntry: %s  Size: %s",
		index, pair, exchange, formatPrice(price), formatQty(size)))
}

func (n *Notifier) TradeClosed(summary *model.TradeSummary) {
	var b strings.Builder

	icon := "✅"
	if summary.NetPnL < 0 {
		icon = "🔻"
	}
	fmt.Fprintf(&b, "%s <b>Closed</b> %s on %s\n", icon, summary.Pair(), summary.Exchange)

	for _, fill := range summary.Pyramids {
		fmt.Fprintf(&b, "  P%d @ %s × %s → %+.2f\n",
			fill.Index, formatPrice(fill.EntryPrice), formatQty(fill.Size), fill.NetPnL)
	}

	fmt.Fprintf(&b, "Exit: %s\n", formatPrice(summary.ExitPrice))
	fmt.Fprintf(&b, "Net PnL: %+.2f %s (%+.2f%%), fees %.2f",
		summary.NetPnL, summary.Quote, summary.NetPnLPercent, summary.TotalFees)

	n.send(b.String())
}

func (n *Notifier) OrphanExit(exchange, pair, alertID string) {
	n.send(fmt.Sprintf("⚠️ <b>Orphan exit</b> for %s on %s (alert %s): no open trade",
		pair, exchange, alertID))
}

func (n *Notifier) PyramidLimit(exchange, pair, alertID string, index int) {
	n.send(fmt.Sprintf("⚠️ <b>Pyramid limit</b> for %s on %s (alert %s): entry %d rejected, max is %d",
		pair, exchange, alertID, index, model.MaxPyramids))
}

func (n *Notifier) DailyReport(report *model.DailyReport) {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 <b>Daily report %s</b> (%s)\n", report.Date, report.Timezone)
	fmt.Fprintf(&b, "Trades: %d  Pyramids: %d\n", report.TotalTrades, report.TotalPyramids)
	fmt.Fprintf(&b, "Net PnL: %+.2f (%+.2f%%)\n", report.NetPnL, report.NetPnLPercent)
	fmt.Fprintf(&b, "Win rate: %.1f%%", report.WinRate)

	if report.ProfitFactor != nil {
		fmt.Fprintf(&b, "  Profit factor: %.2f", *report.ProfitFactor)
	}

	for exchange, breakdown := range report.ByExchange {
		fmt.Fprintf(&b, "\n%s: %d trades, %+.2f", exchange, breakdown.Trades, breakdown.NetPnL)
	}

	n.send(b.String())
}

func formatPrice(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}

func formatQty(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}
