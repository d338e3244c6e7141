// Package notify provides notification functionality for the trading
// application.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"saxo-trader/internal/models"
	"saxo-trader/pkg/utils"
)

// Notifier is the surface the trading layer reports through. Sends are
// best effort: a delivery failure must never fail a trade.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendResult(ctx context.Context, result models.TradeResult, instrument models.InstrumentRef) error
	SendAlert(ctx context.Context, title string, err error) error
	SendInfo(ctx context.Context, title, message string) error
	SendSummary(ctx context.Context, report *models.SessionReport) error
}

// NotificationChannel is one delivery mechanism.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification is one message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
}

// NotificationType classifies a message for level filtering.
type NotificationType string

const (
	NotificationTrade   NotificationType = "trade"
	NotificationAlert   NotificationType = "alert"
	NotificationSummary NotificationType = "summary"
	NotificationInfo    NotificationType = "info"
)

// NotificationLevel filters which message types go out.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelAlertsOnly NotificationLevel = "alerts_only"
)

// MultiNotifier fans messages out to every enabled channel.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// NewMultiNotifier creates a notifier with the given level filter.
func NewMultiNotifier(level NotificationLevel) *MultiNotifier {
	if level == "" {
		level = LevelAll
	}
	return &MultiNotifier{level: level}
}

// AddChannel adds a delivery channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return t == NotificationTrade || t == NotificationAlert
	case LevelAlertsOnly:
		return t == NotificationAlert
	default:
		return true
	}
}

// Send delivers a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendResult reports one realized trade.
func (mn *MultiNotifier) SendResult(ctx context.Context, result models.TradeResult, instrument models.InstrumentRef) error {
	title := fmt.Sprintf("Trade closed: %s %s (%s)", result.Direction, result.Ticker, result.CloseType)
	if result.Estimated {
		title += " [estimated]"
	}

	message := fmt.Sprintf(
		"%s %s\nOpen: %s\nClose: %s\nResult: %s / %s\nClosed at: %s",
		result.Direction, result.Ticker,
		utils.FormatPrice(result.OpenPrice, instrument),
		utils.FormatPrice(result.ClosePrice, instrument),
		utils.FormatPips(result.Pips),
		utils.FormatMoney(result.ProfitLoss, resultCurrency(result)),
		result.CloseTime.Format("15:04:05"),
	)
	if result.Memo != "" {
		message += "\nMemo: " + result.Memo
	}

	return mn.Send(ctx, Notification{Type: NotificationTrade, Title: title, Message: message})
}

func resultCurrency(result models.TradeResult) string {
	if result.Currency != "" {
		return result.Currency
	}
	return "JPY"
}

// SendAlert reports a failure that needs human attention.
func (mn *MultiNotifier) SendAlert(ctx context.Context, title string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return mn.Send(ctx, Notification{Type: NotificationAlert, Title: "ALERT: " + title, Message: message})
}

// SendInfo reports a lifecycle event.
func (mn *MultiNotifier) SendInfo(ctx context.Context, title, message string) error {
	return mn.Send(ctx, Notification{Type: NotificationInfo, Title: title, Message: message})
}

// SendSummary reports the day's results.
func (mn *MultiNotifier) SendSummary(ctx context.Context, report *models.SessionReport) error {
	wins, losses := report.WinLoss()
	var b strings.Builder
	fmt.Fprintf(&b, "Trades: %d (W%d / L%d)\n", len(report.Results), wins, losses)
	fmt.Fprintf(&b, "Total: %s / %s\n", utils.FormatPips(report.TotalPips()), utils.FormatMoney(report.TotalProfitLoss(), report.Currency()))
	for _, res := range report.Results {
		flag := ""
		if res.Estimated {
			flag = " (est)"
		}
		fmt.Fprintf(&b, "%s %s %s %s%s\n", res.CloseTime.Format("15:04"), res.Ticker, res.Direction, utils.FormatPips(res.Pips), flag)
	}

	title := fmt.Sprintf("Daily summary %s", report.Date.Format("2006-01-02"))
	return mn.Send(ctx, Notification{Type: NotificationSummary, Title: title, Message: b.String()})
}
