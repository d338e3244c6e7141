package trading

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saxo-trader/internal/broker"
	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/logging"
	"saxo-trader/internal/models"
	"saxo-trader/internal/notify"
	"saxo-trader/internal/reconcile"
	"saxo-trader/internal/resilience"
	"saxo-trader/pkg/utils"
)

// OutcomeKind classifies how an intent ended.
type OutcomeKind string

const (
	// OutcomeCompleted means the trade ran its course and produced a
	// result.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeSkipped means the trade was never entered.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed means the lifecycle broke and a human was alerted.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the one terminal answer the coordinator gives per intent:
// a completed result, a skip with its reason, or a failure.
type Outcome struct {
	Kind   OutcomeKind
	Result *models.TradeResult
	Reason string
	Err    error
}

func completed(result models.TradeResult) Outcome {
	return Outcome{Kind: OutcomeCompleted, Result: &result}
}

func skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

func failed(err error, reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason, Err: err}
}

// Config tunes the coordinator.
type Config struct {
	// SpreadLimitPips skips entries when the spread is at or above
	// this many pips. Zero disables the gate.
	SpreadLimitPips float64
	// EntryGrace is how far past its entry time an intent may still
	// be entered.
	EntryGrace time.Duration
	// MonitorInterval is the polling cadence while a position is
	// open.
	MonitorInterval time.Duration
	// CloseReconcileAttempts bounds settlement lookups after close.
	CloseReconcileAttempts int
	// CloseReconcileDelay is the wait between settlement lookups.
	CloseReconcileDelay time.Duration

	AutoLot    bool
	Leverage   float64
	FixedUnits float64
}

func (c Config) withDefaults() Config {
	if c.EntryGrace == 0 {
		c.EntryGrace = 5 * time.Minute
	}
	if c.MonitorInterval == 0 {
		c.MonitorInterval = 10 * time.Second
	}
	if c.CloseReconcileAttempts == 0 {
		c.CloseReconcileAttempts = 5
	}
	if c.CloseReconcileDelay == 0 {
		c.CloseReconcileDelay = 10 * time.Second
	}
	if c.Leverage == 0 {
		c.Leverage = 1
	}
	if c.FixedUnits == 0 {
		c.FixedUnits = 10000
	}
	return c
}

// Coordinator drives one trade intent from schedule to report.
type Coordinator struct {
	gateway   broker.Gateway
	cache     *broker.InstrumentCache
	exec      *resilience.Executor
	rec       *reconcile.Reconciler
	notifier  notify.Notifier
	annotator TrendAnnotator
	cfg       Config
	log       zerolog.Logger
}

// NewCoordinator creates a coordinator. The annotator may be nil.
func NewCoordinator(gateway broker.Gateway, cache *broker.InstrumentCache, exec *resilience.Executor, rec *reconcile.Reconciler, notifier notify.Notifier, annotator TrendAnnotator, cfg Config, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		gateway:   gateway,
		cache:     cache,
		exec:      exec,
		rec:       rec,
		notifier:  notifier,
		annotator: annotator,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("component", "coordinator").Logger(),
	}
}

// Execute runs one intent through its whole lifecycle. It returns
// exactly one outcome; failures have already been alerted when it
// returns.
func (c *Coordinator) Execute(ctx context.Context, intent models.TradeIntent) Outcome {
	tradeID := uuid.NewString()[:8]
	log := logging.WithTicker(logging.WithTradeID(c.log, tradeID), intent.Ticker)

	if err := intent.Validate(); err != nil {
		return c.fail(ctx, log, intent, err, "invalid intent")
	}

	// Scheduled: skip intents whose window already passed, wait for
	// the rest.
	now := time.Now()
	if now.After(intent.EntryTime.Add(c.cfg.EntryGrace)) {
		log.Warn().Time("entry", intent.EntryTime).Msg("entry time already passed, skipping")
		c.notifyInfo(ctx, intent, fmt.Sprintf("Skipped %s %s", intent.Ticker, intent.Window()), "entry time already passed")
		return skipped("entry time passed")
	}
	if wait := time.Until(intent.EntryTime); wait > 0 {
		log.Info().Dur("wait", wait).Msg("waiting for entry time")
		if err := utils.Sleep(ctx, wait); err != nil {
			return failed(err, "cancelled before entry")
		}
	}

	instrument, err := c.resolveInstrument(ctx, intent.Ticker)
	if err != nil {
		return c.fail(ctx, log, intent, err, "instrument lookup failed")
	}

	quote, err := c.fetchQuote(ctx, instrument)
	if err != nil {
		return c.fail(ctx, log, intent, err, "quote unavailable at entry")
	}

	// Spread gate.
	spreadPips := (quote.Ask - quote.Bid) * PipMultiplier(instrument)
	if c.cfg.SpreadLimitPips > 0 && spreadPips >= c.cfg.SpreadLimitPips {
		log.Warn().Float64("spread_pips", spreadPips).Msg("spread too wide, skipping entry")
		c.notifyInfo(ctx, intent, fmt.Sprintf("Skipped %s", intent.Ticker), fmt.Sprintf("spread %.1f pips at entry", spreadPips))
		return skipped(fmt.Sprintf("spread %.1f pips", spreadPips))
	}

	balance, cross := c.sizingContext(ctx, instrument, log)
	units := intent.Amount
	if units <= 0 {
		units = c.size(instrument, quote, balance, cross, log)
	}

	memo := intent.Memo
	if c.annotator != nil {
		if note := c.annotator.Annotate(instrument, quote); note != "" {
			memo = joinMemo(memo, note)
		}
	}

	// EntrySubmitted.
	entryOrder, err := resilience.Do(ctx, c.exec, "entry", func(ctx context.Context) (models.OrderRecord, error) {
		return c.gateway.PlaceOrder(ctx, broker.OrderRequest{
			Instrument: instrument,
			Direction:  intent.Direction,
			Type:       models.OrderTypeMarket,
			Amount:     units,
		})
	})
	if err != nil {
		return c.fail(ctx, log, intent, err, "entry order rejected")
	}
	log.Info().Str("order_id", entryOrder.OrderID).Float64("units", units).Msg("entry submitted")
	c.notifyInfo(ctx, intent, fmt.Sprintf("Entered %s %s", intent.Direction, intent.Ticker), fmt.Sprintf("%s at ~%s", utils.FormatUnits(units), utils.FormatPrice(quote.Mid(), instrument)))

	// PositionConfirmed.
	group, err := c.rec.FindPosition(ctx, instrument.UIC, entryOrder.OrderID)
	if err != nil {
		return c.fail(ctx, log, intent, err, "position lookup failed")
	}
	if group == nil {
		return c.fail(ctx, log, intent, apperrors.Wrapf(apperrors.ErrPositionUnconfirmed, "order %s", entryOrder.OrderID), "position never confirmed")
	}
	openPrice := group.AvgOpenPrice()
	log.Info().Int("fills", len(group.Positions)).Float64("open_price", openPrice).Msg("position confirmed")

	// StopPlaced: protection is best effort, the trade continues
	// unprotected if the broker rejects the stop.
	var stopPrice float64
	haveStop := false
	if intent.StopDistance > 0 {
		stopPrice = StopPrice(openPrice, intent.StopDistance, intent.Direction, instrument)
		_, err := resilience.Do(ctx, c.exec, "stop", func(ctx context.Context) (models.OrderRecord, error) {
			return c.gateway.PlaceOrder(ctx, broker.OrderRequest{
				Instrument: instrument,
				Direction:  intent.Direction.Opposite(),
				Type:       models.OrderTypeStop,
				Amount:     math.Abs(group.NetAmount()),
				Price:      stopPrice,
			})
		})
		if err != nil {
			log.Warn().Err(err).Float64("stop_price", stopPrice).Msg("stop placement failed, continuing unprotected")
			c.notifyInfo(ctx, intent, fmt.Sprintf("Stop rejected for %s", intent.Ticker), err.Error())
		} else {
			haveStop = true
			log.Info().Float64("stop_price", stopPrice).Msg("stop placed")
		}
	}

	// Monitoring: watch the positions until the exit time, or until
	// they disappear early, which means the stop filled.
	stopFilled, err := c.monitor(ctx, intent, *group, log)
	if err != nil {
		return failed(err, "cancelled while monitoring")
	}

	// Closing.
	if !stopFilled {
		if err := c.closeOut(ctx, instrument, *group, log); err != nil {
			return c.fail(ctx, log, intent, err, "close failed, position may be open")
		}
	} else {
		log.Info().Msg("positions gone before exit, stop assumed filled")
	}

	// Reconciled + Reported.
	result := c.reconcileResult(ctx, intent, instrument, *group, reconcileInput{
		openPrice:  openPrice,
		stopFilled: stopFilled,
		haveStop:   haveStop,
		stopPrice:  stopPrice,
		balance:    balance,
		memo:       memo,
	}, log)

	if err := c.notifier.SendResult(ctx, result, instrument); err != nil {
		log.Warn().Err(err).Msg("result notification failed")
	}
	log.Info().Float64("pips", result.Pips).Float64("pnl", result.ProfitLoss).Bool("estimated", result.Estimated).Msg("trade reported")
	return completed(result)
}

// fail alerts once and returns the failed outcome.
func (c *Coordinator) fail(ctx context.Context, log zerolog.Logger, intent models.TradeIntent, err error, reason string) Outcome {
	log.Error().Err(err).Msg(reason)
	if nerr := c.notifier.SendAlert(ctx, fmt.Sprintf("%s: %s %s", reason, intent.Ticker, intent.Window()), err); nerr != nil {
		log.Warn().Err(nerr).Msg("alert notification failed")
	}
	return failed(err, reason)
}

func (c *Coordinator) notifyInfo(ctx context.Context, intent models.TradeIntent, title, message string) {
	if !intent.Notify {
		return
	}
	if err := c.notifier.SendInfo(ctx, title, message); err != nil {
		c.log.Warn().Err(err).Msg("notification failed")
	}
}

func (c *Coordinator) resolveInstrument(ctx context.Context, ticker string) (models.InstrumentRef, error) {
	return resilience.Do(ctx, c.exec, "instrument", func(ctx context.Context) (models.InstrumentRef, error) {
		return c.cache.Resolve(ctx, ticker)
	})
}

func (c *Coordinator) fetchQuote(ctx context.Context, instrument models.InstrumentRef) (models.Quote, error) {
	return resilience.Do(ctx, c.exec, "quote", func(ctx context.Context) (models.Quote, error) {
		return c.gateway.Quote(ctx, instrument)
	})
}

// sizingContext fetches the balance and, for dollar-quoted pairs, the
// USDJPY cross rate. Both are best effort; sizing falls back to the
// fixed size without them.
func (c *Coordinator) sizingContext(ctx context.Context, instrument models.InstrumentRef, log zerolog.Logger) (models.Balance, float64) {
	balance, err := resilience.Do(ctx, c.exec, "balance", func(ctx context.Context) (models.Balance, error) {
		return c.gateway.Balance(ctx)
	})
	if err != nil {
		log.Warn().Err(err).Msg("balance unavailable")
		balance = models.Balance{}
	}

	cross := c.crossRate(ctx, instrument)
	if instrument.QuoteCurrency == "USD" && cross == 0 {
		log.Warn().Msg("USDJPY cross rate unavailable")
	}
	return balance, cross
}

// crossRate fetches the current USDJPY mid for dollar-quoted pairs,
// zero when the instrument needs no cross or the quote is unavailable.
func (c *Coordinator) crossRate(ctx context.Context, instrument models.InstrumentRef) float64 {
	if instrument.QuoteCurrency != "USD" {
		return 0
	}
	ref, err := c.resolveInstrument(ctx, "USDJPY")
	if err != nil {
		return 0
	}
	q, err := c.fetchQuote(ctx, ref)
	if err != nil {
		return 0
	}
	return q.Mid()
}

func (c *Coordinator) size(instrument models.InstrumentRef, quote models.Quote, balance models.Balance, cross float64, log zerolog.Logger) float64 {
	if !c.cfg.AutoLot {
		return c.cfg.FixedUnits
	}
	units, fromBalance := UnitSize(SizingInput{
		Balance:     balance,
		Leverage:    c.cfg.Leverage,
		Price:       quote.Mid(),
		CrossUSDJPY: cross,
		Instrument:  instrument,
		FixedUnits:  c.cfg.FixedUnits,
	})
	if !fromBalance {
		log.Warn().Float64("units", units).Msg("auto-lot fell back to fixed size")
	}
	return units
}

// monitor polls open positions until the exit time. It reports true
// when every position in the group disappeared early.
func (c *Coordinator) monitor(ctx context.Context, intent models.TradeIntent, group reconcile.PositionGroup, log zerolog.Logger) (stopFilled bool, err error) {
	known := make(map[string]bool, len(group.Positions))
	for _, id := range group.IDs() {
		known[id] = true
	}

	for {
		wait := time.Until(intent.ExitTime)
		if wait <= 0 {
			return false, nil
		}
		if wait > c.cfg.MonitorInterval {
			wait = c.cfg.MonitorInterval
		}
		if err := utils.Sleep(ctx, wait); err != nil {
			return false, err
		}

		positions, err := resilience.Do(ctx, c.exec, "positions", func(ctx context.Context) ([]models.PositionRecord, error) {
			return c.gateway.Positions(ctx)
		})
		if err != nil {
			// A failed poll is not a disappearance.
			log.Warn().Err(err).Msg("position poll failed")
			continue
		}

		remaining := 0
		for _, p := range positions {
			if known[p.PositionID] {
				remaining++
			}
		}
		if remaining == 0 {
			return true, nil
		}
	}
}

// closeOut cancels any working protective orders on the instrument and
// closes each remaining position record individually, so partial fills
// fan out into one close per record.
func (c *Coordinator) closeOut(ctx context.Context, instrument models.InstrumentRef, group reconcile.PositionGroup, log zerolog.Logger) error {
	orders, err := resilience.Do(ctx, c.exec, "orders", func(ctx context.Context) ([]models.OrderRecord, error) {
		return c.gateway.WorkingOrders(ctx)
	})
	if err != nil {
		log.Warn().Err(err).Msg("working order listing failed before close")
	} else {
		for _, o := range orders {
			if o.UIC != instrument.UIC || o.Type == models.OrderTypeMarket {
				continue
			}
			cancelErr := resilience.DoErr(ctx, c.exec, "cancel", func(ctx context.Context) error {
				return c.gateway.CancelOrder(ctx, o.OrderID)
			})
			if cancelErr != nil {
				// The order may have just filled; closing proceeds
				// either way.
				log.Warn().Err(cancelErr).Str("order_id", o.OrderID).Msg("cancel failed before close")
			}
		}
	}

	known := make(map[string]bool, len(group.Positions))
	for _, id := range group.IDs() {
		known[id] = true
	}
	positions, err := resilience.Do(ctx, c.exec, "positions", func(ctx context.Context) ([]models.PositionRecord, error) {
		return c.gateway.Positions(ctx)
	})
	if err != nil {
		return apperrors.Wrap(err, "listing positions before close")
	}

	for _, pos := range positions {
		if !known[pos.PositionID] {
			continue
		}
		pos := pos
		closeErr := resilience.DoErr(ctx, c.exec, "close", func(ctx context.Context) error {
			_, err := c.gateway.ClosePosition(ctx, pos)
			return err
		})
		if closeErr != nil {
			return apperrors.Wrapf(closeErr, "closing position %s", pos.PositionID)
		}
		log.Info().Str("position_id", pos.PositionID).Msg("close order submitted")
	}
	return nil
}

type reconcileInput struct {
	openPrice  float64
	stopFilled bool
	haveStop   bool
	stopPrice  float64
	balance    models.Balance
	memo       string
}

// reconcileResult ties the closed trade back to a settlement record,
// falling back to estimated figures when the history never shows one.
func (c *Coordinator) reconcileResult(ctx context.Context, intent models.TradeIntent, instrument models.InstrumentRef, group reconcile.PositionGroup, in reconcileInput, log zerolog.Logger) models.TradeResult {
	closeType := models.CloseScheduledExit
	if in.stopFilled {
		closeType = models.CloseStopLoss
	}

	var match *reconcile.ClosedMatch
	for attempt := 0; attempt < c.cfg.CloseReconcileAttempts; attempt++ {
		if attempt > 0 {
			if err := utils.Sleep(ctx, c.cfg.CloseReconcileDelay); err != nil {
				break
			}
		}
		m, err := c.rec.FindClosedPosition(ctx, group)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("settlement lookup failed")
			continue
		}
		if m != nil {
			match = m
			break
		}
	}

	accountCurrency := in.balance.Currency
	if accountCurrency == "" {
		accountCurrency = "JPY"
	}
	// Convert at the rate prevailing now, when the profit was realized,
	// not the one seen at entry.
	cross := c.crossRate(ctx, instrument)

	if match != nil {
		pips := Pips(in.openPrice, match.Record.ClosePrice, intent.Direction, instrument)
		return models.TradeResult{
			Ticker:     intent.Ticker,
			Direction:  intent.Direction,
			Pips:       pips,
			ProfitLoss: ConvertPnL(match.Record.RealizedPnL, instrument, accountCurrency, cross),
			Currency:   accountCurrency,
			CloseType:  closeType,
			CloseTime:  match.Record.ClosedAt,
			OpenPrice:  in.openPrice,
			ClosePrice: match.Record.ClosePrice,
			Estimated:  match.Quality == reconcile.MatchApproximate,
			Memo:       in.memo,
		}
	}

	// No settlement record at all: estimate from the stop price for a
	// stop close, or the current quote for a manual one.
	closePrice := 0.0
	if in.stopFilled && in.haveStop {
		closePrice = in.stopPrice
	} else if quote, err := c.fetchQuote(ctx, instrument); err == nil {
		if intent.Direction == models.DirectionBuy {
			closePrice = quote.Bid
		} else {
			closePrice = quote.Ask
		}
	} else {
		log.Warn().Err(err).Msg("no settlement record and no quote, result price unknown")
		closePrice = in.openPrice
	}

	log.Warn().Float64("close_price", closePrice).Msg("settlement record never appeared, reporting estimate")
	pips := Pips(in.openPrice, closePrice, intent.Direction, instrument)
	rawPnL := (closePrice - in.openPrice) * group.NetAmount()
	return models.TradeResult{
		Ticker:     intent.Ticker,
		Direction:  intent.Direction,
		Pips:       pips,
		ProfitLoss: ConvertPnL(rawPnL, instrument, accountCurrency, cross),
		Currency:   accountCurrency,
		CloseType:  closeType,
		CloseTime:  time.Now(),
		OpenPrice:  in.openPrice,
		ClosePrice: closePrice,
		Estimated:  true,
		Memo:       in.memo,
	}
}

func joinMemo(memo, note string) string {
	if memo == "" {
		return note
	}
	return strings.TrimSpace(memo) + " | " + note
}
