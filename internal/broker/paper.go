package broker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
)

// PaperGateway is an in-memory Gateway used for paper trading and
// tests. Fills are simulated against scripted quotes, and both
// positions and closed-position records can be given a visibility
// delay to mimic the gateway's propagation lag.
type PaperGateway struct {
	mu sync.Mutex

	instruments map[string]models.InstrumentRef
	quotes      map[int]models.Quote
	balance     models.Balance

	orders    map[string]models.OrderRecord
	positions []delayedPosition
	closed    []delayedClosed

	// FillDelay is how long after a market order its position becomes
	// visible. CloseRecordDelay likewise for settlement records.
	FillDelay        time.Duration
	CloseRecordDelay time.Duration
	// FillParts splits each market fill into this many positions that
	// share a SourceOrderID. Zero or one means a single fill.
	FillParts int

	authFailures int
	nextID       int
}

type delayedPosition struct {
	rec       models.PositionRecord
	visibleAt time.Time
}

type delayedClosed struct {
	rec       models.ClosedPositionRecord
	visibleAt time.Time
}

// NewPaperGateway creates an empty paper gateway.
func NewPaperGateway() *PaperGateway {
	return &PaperGateway{
		instruments: make(map[string]models.InstrumentRef),
		quotes:      make(map[int]models.Quote),
		orders:      make(map[string]models.OrderRecord),
		balance:     models.Balance{CashBalance: 1_000_000, MarginAvailable: 1_000_000, Currency: "JPY"},
	}
}

// AddInstrument registers a tradable instrument.
func (p *PaperGateway) AddInstrument(ref models.InstrumentRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instruments[ref.Ticker] = ref
}

// SetQuote scripts the current price for a UIC.
func (p *PaperGateway) SetQuote(uic int, quote models.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[uic] = quote
}

// SetBalance scripts the account balance.
func (p *PaperGateway) SetBalance(b models.Balance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = b
}

// AddClosedRecord scripts a settlement record directly, for scenarios
// where the close happened outside the gateway's view.
func (p *PaperGateway) AddClosedRecord(rec models.ClosedPositionRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, delayedClosed{rec: rec, visibleAt: time.Now().Add(p.CloseRecordDelay)})
}

// FailAuthTimes makes the next n calls fail with an unauthorized
// gateway error.
func (p *PaperGateway) FailAuthTimes(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authFailures = n
}

func (p *PaperGateway) checkAuth() error {
	if p.authFailures > 0 {
		p.authFailures--
		return apperrors.NewBrokerError(401, "Unauthorized", "token rejected")
	}
	return nil
}

func (p *PaperGateway) id(prefix string) string {
	p.nextID++
	return fmt.Sprintf("%s-%d", prefix, p.nextID)
}

// FindInstrument resolves a registered ticker.
func (p *PaperGateway) FindInstrument(ctx context.Context, ticker string) (models.InstrumentRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return models.InstrumentRef{}, err
	}
	ref, ok := p.instruments[ticker]
	if !ok {
		return models.InstrumentRef{}, apperrors.Wrapf(apperrors.ErrInstrumentNotFound, "ticker %s", ticker)
	}
	return ref, nil
}

// Quote returns the scripted price for the instrument.
func (p *PaperGateway) Quote(ctx context.Context, instrument models.InstrumentRef) (models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return models.Quote{}, err
	}
	q, ok := p.quotes[instrument.UIC]
	if !ok {
		return models.Quote{}, apperrors.Wrapf(apperrors.ErrQuoteUnavailable, "uic %d", instrument.UIC)
	}
	return q, nil
}

// PlaceOrder accepts the order. Market orders fill immediately against
// the scripted quote; stop orders stay working until triggered.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req OrderRequest) (models.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return models.OrderRecord{}, err
	}

	order := models.OrderRecord{
		OrderID:        p.id("O"),
		UIC:            req.Instrument.UIC,
		Direction:      req.Direction,
		Type:           req.Type,
		Amount:         req.Amount,
		RequestedPrice: req.Price,
		Status:         models.OrderStatusWorking,
	}

	if req.Type == models.OrderTypeMarket {
		quote, ok := p.quotes[req.Instrument.UIC]
		if !ok {
			return models.OrderRecord{}, apperrors.Wrapf(apperrors.ErrQuoteUnavailable, "uic %d", req.Instrument.UIC)
		}
		order.Status = models.OrderStatusFilled
		p.fillLocked(order, quote)
	} else {
		p.orders[order.OrderID] = order
	}
	return order, nil
}

// fillLocked creates the position(s) for a filled market order.
func (p *PaperGateway) fillLocked(order models.OrderRecord, quote models.Quote) {
	price := quote.Ask
	amount := order.Amount
	if order.Direction == models.DirectionSell {
		price = quote.Bid
		amount = -amount
	}

	parts := p.FillParts
	if parts < 1 {
		parts = 1
	}
	visibleAt := time.Now().Add(p.FillDelay)
	remaining := amount
	for i := 0; i < parts; i++ {
		part := remaining / float64(parts-i)
		remaining -= part
		p.positions = append(p.positions, delayedPosition{
			rec: models.PositionRecord{
				PositionID:    p.id("P"),
				UIC:           order.UIC,
				OpenPrice:     price,
				Amount:        part,
				SourceOrderID: order.OrderID,
				OpenedAt:      time.Now(),
			},
			visibleAt: visibleAt,
		})
	}
}

// CancelOrder cancels a working order.
func (p *PaperGateway) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return err
	}
	if _, ok := p.orders[orderID]; !ok {
		return apperrors.Wrapf(apperrors.ErrOrderNotWorking, "order %s", orderID)
	}
	delete(p.orders, orderID)
	return nil
}

// WorkingOrders lists open orders.
func (p *PaperGateway) WorkingOrders(ctx context.Context) ([]models.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return nil, err
	}
	orders := make([]models.OrderRecord, 0, len(p.orders))
	for _, o := range p.orders {
		orders = append(orders, o)
	}
	return orders, nil
}

// Positions lists positions whose visibility delay has elapsed.
func (p *PaperGateway) Positions(ctx context.Context) ([]models.PositionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return nil, err
	}
	now := time.Now()
	var out []models.PositionRecord
	for _, dp := range p.positions {
		if !dp.visibleAt.After(now) {
			out = append(out, dp.rec)
		}
	}
	return out, nil
}

// ClosedPositions lists visible settlement records within [from, to].
func (p *PaperGateway) ClosedPositions(ctx context.Context, from, to time.Time) ([]models.ClosedPositionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return nil, err
	}
	now := time.Now()
	var out []models.ClosedPositionRecord
	for _, dc := range p.closed {
		if dc.visibleAt.After(now) {
			continue
		}
		if dc.rec.ClosedAt.Before(from) || dc.rec.ClosedAt.After(to) {
			continue
		}
		out = append(out, dc.rec)
	}
	return out, nil
}

// ClosePosition offsets an open position at the scripted quote.
func (p *PaperGateway) ClosePosition(ctx context.Context, pos models.PositionRecord) (models.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return models.OrderRecord{}, err
	}

	idx := -1
	for i, dp := range p.positions {
		if dp.rec.PositionID == pos.PositionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.OrderRecord{}, apperrors.Wrapf(apperrors.ErrPositionNotFound, "position %s", pos.PositionID)
	}
	held := p.positions[idx].rec

	quote, ok := p.quotes[held.UIC]
	if !ok {
		return models.OrderRecord{}, apperrors.Wrapf(apperrors.ErrQuoteUnavailable, "uic %d", held.UIC)
	}
	price := quote.Bid
	direction := models.DirectionSell
	if held.Amount < 0 {
		price = quote.Ask
		direction = models.DirectionBuy
	}

	order := models.OrderRecord{
		OrderID:   p.id("O"),
		UIC:       held.UIC,
		Direction: direction,
		Type:      models.OrderTypeMarket,
		Amount:    math.Abs(held.Amount),
		Status:    models.OrderStatusFilled,
	}
	p.closeLocked(idx, price, order.OrderID)
	return order, nil
}

// TriggerStop simulates the broker filling a working stop order: the
// order disappears and every position on its instrument is closed at
// the stop price.
func (p *PaperGateway) TriggerStop(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrOrderNotWorking, "order %s", orderID)
	}
	delete(p.orders, orderID)

	for i := len(p.positions) - 1; i >= 0; i-- {
		if p.positions[i].rec.UIC == order.UIC {
			p.closeLocked(i, order.RequestedPrice, order.OrderID)
		}
	}
	return nil
}

// closeLocked removes the position at idx and appends its settlement
// record.
func (p *PaperGateway) closeLocked(idx int, price float64, closingOrderID string) {
	held := p.positions[idx].rec
	p.closed = append(p.closed, delayedClosed{
		rec: models.ClosedPositionRecord{
			UIC:               held.UIC,
			ClosePrice:        price,
			ClosedAt:          time.Now(),
			RealizedPnL:       (price - held.OpenPrice) * held.Amount,
			OpeningPositionID: held.PositionID,
			ClosingPositionID: closingOrderID,
			SourceOrderID:     held.SourceOrderID,
		},
		visibleAt: time.Now().Add(p.CloseRecordDelay),
	})
	p.positions = append(p.positions[:idx], p.positions[idx+1:]...)
}

// Balance returns the scripted account balance.
func (p *PaperGateway) Balance(ctx context.Context) (models.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkAuth(); err != nil {
		return models.Balance{}, err
	}
	return p.balance, nil
}
