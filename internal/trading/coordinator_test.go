package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saxo-trader/internal/broker"
	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
	"saxo-trader/internal/notify"
	"saxo-trader/internal/reconcile"
	"saxo-trader/internal/resilience"
)

type recordingNotifier struct {
	mu        sync.Mutex
	results   []models.TradeResult
	alerts    []string
	infos     []string
	summaries int
}

func (r *recordingNotifier) Send(ctx context.Context, n notify.Notification) error { return nil }

func (r *recordingNotifier) SendResult(ctx context.Context, result models.TradeResult, instrument models.InstrumentRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *recordingNotifier) SendAlert(ctx context.Context, title string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, title)
	return nil
}

func (r *recordingNotifier) SendInfo(ctx context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, title)
	return nil
}

func (r *recordingNotifier) SendSummary(ctx context.Context, report *models.SessionReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries++
	return nil
}

func (r *recordingNotifier) counts() (results, alerts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results), len(r.alerts)
}

type noopRefresher struct{}

func (noopRefresher) ForceRefresh(ctx context.Context) (models.Token, error) {
	return models.Token{AccessToken: "renewed"}, nil
}

type fixture struct {
	gw       *broker.PaperGateway
	coord    *Coordinator
	notifier *recordingNotifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	gw := broker.NewPaperGateway()
	gw.AddInstrument(usdjpy)
	gw.SetQuote(usdjpy.UIC, models.Quote{Bid: 150.000, Ask: 150.003})
	gw.SetBalance(models.Balance{CashBalance: 1_000_000, MarginAvailable: 1_000_000, Currency: "JPY"})

	exec := resilience.NewExecutor(noopRefresher{}, zerolog.Nop())
	rec := reconcile.New(gw, exec, reconcile.Config{
		PositionAttempts: 3,
		PositionDelay:    25 * time.Millisecond,
		Windows:          []time.Duration{time.Hour},
		WindowDelay:      10 * time.Millisecond,
		RecencyWindow:    5 * time.Minute,
	}, zerolog.Nop())

	if cfg.MonitorInterval == 0 {
		cfg.MonitorInterval = 25 * time.Millisecond
	}
	if cfg.CloseReconcileAttempts == 0 {
		cfg.CloseReconcileAttempts = 2
	}
	if cfg.CloseReconcileDelay == 0 {
		cfg.CloseReconcileDelay = 25 * time.Millisecond
	}
	if cfg.EntryGrace == 0 {
		cfg.EntryGrace = 2 * time.Second
	}
	if cfg.FixedUnits == 0 {
		cfg.FixedUnits = 10000
	}

	notifier := &recordingNotifier{}
	cache := broker.NewInstrumentCache(gw)
	coord := NewCoordinator(gw, cache, exec, rec, notifier, nil, cfg, zerolog.Nop())
	return &fixture{gw: gw, coord: coord, notifier: notifier}
}

func shortIntent(exitIn time.Duration) models.TradeIntent {
	now := time.Now()
	return models.TradeIntent{
		Ticker:    "USDJPY",
		Direction: models.DirectionBuy,
		EntryTime: now,
		ExitTime:  now.Add(exitIn),
		Amount:    10000,
		Notify:    true,
	}
}

func TestExecuteScheduledExit(t *testing.T) {
	f := newFixture(t, Config{})

	intent := shortIntent(200 * time.Millisecond)
	go func() {
		// Move the market up before the scheduled close.
		time.Sleep(100 * time.Millisecond)
		f.gw.SetQuote(usdjpy.UIC, models.Quote{Bid: 150.120, Ask: 150.123})
	}()

	outcome := f.coord.Execute(context.Background(), intent)
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Result)

	res := *outcome.Result
	assert.Equal(t, models.CloseScheduledExit, res.CloseType)
	assert.False(t, res.Estimated)
	assert.InDelta(t, 150.003, res.OpenPrice, 1e-9)
	assert.InDelta(t, 150.120, res.ClosePrice, 1e-9)
	assert.InDelta(t, 11.7, res.Pips, 1e-6)
	assert.InDelta(t, 1170, res.ProfitLoss, 1e-6)

	results, alerts := f.notifier.counts()
	assert.Equal(t, 1, results)
	assert.Equal(t, 0, alerts)
}

func TestExecuteConvertsPnLAtSettlementRate(t *testing.T) {
	f := newFixture(t, Config{})

	eurusd := models.InstrumentRef{Ticker: "EURUSD", UIC: 21, QuoteCurrency: "USD"}
	f.gw.AddInstrument(eurusd)
	f.gw.SetQuote(eurusd.UIC, models.Quote{Bid: 1.1000, Ask: 1.1003})
	f.gw.SetQuote(usdjpy.UIC, models.Quote{Bid: 100.000, Ask: 100.000})

	intent := shortIntent(200 * time.Millisecond)
	intent.Ticker = "EURUSD"

	// The dollar rallies against the yen while the trade is open; the
	// dollar profit must be converted at the rate seen at settlement.
	go func() {
		time.Sleep(100 * time.Millisecond)
		f.gw.SetQuote(eurusd.UIC, models.Quote{Bid: 1.1013, Ask: 1.1016})
		f.gw.SetQuote(usdjpy.UIC, models.Quote{Bid: 150.000, Ask: 150.000})
	}()

	outcome := f.coord.Execute(context.Background(), intent)
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Result)

	res := *outcome.Result
	assert.False(t, res.Estimated)
	// 10 USD realized, crossed through USDJPY at 150, not the 100 of
	// entry time.
	assert.InDelta(t, 1500, res.ProfitLoss, 0.01)
}

func TestExecuteStopLossFill(t *testing.T) {
	f := newFixture(t, Config{})

	intent := shortIntent(2 * time.Second)
	intent.StopDistance = 200 // 20 pips

	// Simulate the broker filling the stop while monitoring.
	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			orders, err := f.gw.WorkingOrders(context.Background())
			if err == nil && len(orders) > 0 {
				_ = f.gw.TriggerStop(orders[0].OrderID)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	outcome := f.coord.Execute(context.Background(), intent)
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Result)

	res := *outcome.Result
	assert.Equal(t, models.CloseStopLoss, res.CloseType)
	assert.False(t, res.Estimated)
	// Stop 20 pips behind the 150.003 open.
	assert.InDelta(t, 149.803, res.ClosePrice, 1e-9)
	assert.InDelta(t, -20.0, res.Pips, 1e-6)

	results, alerts := f.notifier.counts()
	assert.Equal(t, 1, results)
	assert.Equal(t, 0, alerts)
}

func TestExecuteStopFillWithDelayedSettlementEstimates(t *testing.T) {
	f := newFixture(t, Config{})
	// Settlement records stay invisible for the whole test.
	f.gw.CloseRecordDelay = time.Hour

	intent := shortIntent(2 * time.Second)
	intent.StopDistance = 200

	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			orders, err := f.gw.WorkingOrders(context.Background())
			if err == nil && len(orders) > 0 {
				_ = f.gw.TriggerStop(orders[0].OrderID)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	outcome := f.coord.Execute(context.Background(), intent)
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Result)

	res := *outcome.Result
	assert.Equal(t, models.CloseStopLoss, res.CloseType)
	assert.True(t, res.Estimated)
	// Estimate falls back to the stop price.
	assert.InDelta(t, 149.803, res.ClosePrice, 1e-9)
}

func TestExecuteSkipsStaleIntent(t *testing.T) {
	f := newFixture(t, Config{EntryGrace: 50 * time.Millisecond})

	now := time.Now()
	intent := models.TradeIntent{
		Ticker:    "USDJPY",
		Direction: models.DirectionBuy,
		EntryTime: now.Add(-time.Minute),
		ExitTime:  now.Add(time.Minute),
		Amount:    10000,
	}

	outcome := f.coord.Execute(context.Background(), intent)
	assert.Equal(t, OutcomeSkipped, outcome.Kind)

	results, alerts := f.notifier.counts()
	assert.Equal(t, 0, results)
	assert.Equal(t, 0, alerts)
}

func TestExecuteSkipsWideSpread(t *testing.T) {
	f := newFixture(t, Config{SpreadLimitPips: 5})
	f.gw.SetQuote(usdjpy.UIC, models.Quote{Bid: 150.000, Ask: 150.060}) // 6 pips

	outcome := f.coord.Execute(context.Background(), shortIntent(time.Second))
	assert.Equal(t, OutcomeSkipped, outcome.Kind)

	results, alerts := f.notifier.counts()
	assert.Equal(t, 0, results)
	assert.Equal(t, 0, alerts)
}

func TestExecuteAlertsWhenPositionNeverConfirms(t *testing.T) {
	f := newFixture(t, Config{})
	// Fills never become visible within the test.
	f.gw.FillDelay = time.Hour

	outcome := f.coord.Execute(context.Background(), shortIntent(time.Second))
	require.Equal(t, OutcomeFailed, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, apperrors.ErrPositionUnconfirmed)

	results, alerts := f.notifier.counts()
	assert.Equal(t, 0, results)
	assert.Equal(t, 1, alerts)
}

func TestExecuteClosesEveryPartialFill(t *testing.T) {
	f := newFixture(t, Config{})
	f.gw.FillParts = 2

	outcome := f.coord.Execute(context.Background(), shortIntent(200*time.Millisecond))
	require.Equal(t, OutcomeCompleted, outcome.Kind)

	positions, err := f.gw.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "all partial fills should be closed")
}

func TestExecuteHealsTokenExpiryMidTrade(t *testing.T) {
	f := newFixture(t, Config{})
	f.gw.FailAuthTimes(1)

	outcome := f.coord.Execute(context.Background(), shortIntent(200*time.Millisecond))
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
}

func TestSessionRunAccumulatesAndSummarizes(t *testing.T) {
	f := newFixture(t, Config{})
	sess := NewSession(f.coord, f.notifier, zerolog.Nop())

	intents := []models.TradeIntent{
		shortIntent(150 * time.Millisecond),
		shortIntent(300 * time.Millisecond),
	}

	report, err := sess.Run(context.Background(), intents)
	require.NoError(t, err)
	assert.Len(t, report.Results, 2)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Equal(t, 1, f.notifier.summaries)
}
