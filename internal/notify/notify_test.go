package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saxo-trader/internal/models"
)

type captureChannel struct {
	sent []Notification
}

func (c *captureChannel) Name() string    { return "capture" }
func (c *captureChannel) IsEnabled() bool { return true }

func (c *captureChannel) Send(ctx context.Context, n Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestSendResultUsesAccountCurrency(t *testing.T) {
	ch := &captureChannel{}
	mn := NewMultiNotifier(LevelAll)
	mn.AddChannel(ch)

	result := models.TradeResult{
		Ticker:     "EURUSD",
		Direction:  models.DirectionBuy,
		Pips:       10,
		ProfitLoss: 1500,
		Currency:   "JPY",
		CloseType:  models.CloseScheduledExit,
		CloseTime:  time.Now(),
		OpenPrice:  1.1003,
		ClosePrice: 1.1013,
	}
	instrument := models.InstrumentRef{Ticker: "EURUSD", QuoteCurrency: "USD"}

	require.NoError(t, mn.SendResult(context.Background(), result, instrument))
	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0].Message, "+1500.00 JPY")

	result.Currency = "USD"
	result.ProfitLoss = 10
	require.NoError(t, mn.SendResult(context.Background(), result, instrument))
	require.Len(t, ch.sent, 2)
	assert.Contains(t, ch.sent[1].Message, "+10.00 USD")
}

func TestSendSummaryUsesReportCurrency(t *testing.T) {
	ch := &captureChannel{}
	mn := NewMultiNotifier(LevelAll)
	mn.AddChannel(ch)

	report := &models.SessionReport{Date: time.Now()}
	report.Add(models.TradeResult{
		Ticker:     "EURUSD",
		Direction:  models.DirectionSell,
		Pips:       -5,
		ProfitLoss: -50,
		Currency:   "USD",
		CloseTime:  time.Now(),
	})

	require.NoError(t, mn.SendSummary(context.Background(), report))
	require.Len(t, ch.sent, 1)
	assert.True(t, strings.Contains(ch.sent[0].Message, "USD"), ch.sent[0].Message)
}
