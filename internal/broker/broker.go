// Package broker provides broker gateway interfaces and implementations.
package broker

import (
	"context"
	"time"

	"saxo-trader/internal/models"
)

// OrderRequest is a request to place one order.
type OrderRequest struct {
	Instrument models.InstrumentRef
	Direction  models.Direction
	Type       models.OrderType
	Amount     float64
	// Price is the trigger price for stop and limit orders. Ignored
	// for market orders.
	Price float64
}

// Gateway is the broker surface the trading layer depends on. The live
// implementation talks to the Saxo OpenAPI gateway; the paper
// implementation simulates fills locally.
type Gateway interface {
	// FindInstrument resolves a ticker like "USDJPY" to its broker
	// identifier.
	FindInstrument(ctx context.Context, ticker string) (models.InstrumentRef, error)

	// Quote returns the current two-sided price for the instrument.
	Quote(ctx context.Context, instrument models.InstrumentRef) (models.Quote, error)

	// PlaceOrder submits an order and returns the broker's
	// acknowledgement. Acceptance is not a fill; positions must be
	// confirmed separately.
	PlaceOrder(ctx context.Context, req OrderRequest) (models.OrderRecord, error)

	// CancelOrder cancels a working order.
	CancelOrder(ctx context.Context, orderID string) error

	// WorkingOrders lists the account's open orders.
	WorkingOrders(ctx context.Context) ([]models.OrderRecord, error)

	// Positions lists the account's open positions. Long positions
	// carry positive amounts, short positions negative.
	Positions(ctx context.Context) ([]models.PositionRecord, error)

	// ClosedPositions lists settlement records whose close time falls
	// in [from, to]. Records appear asynchronously after closure.
	ClosedPositions(ctx context.Context, from, to time.Time) ([]models.ClosedPositionRecord, error)

	// ClosePosition offsets an open position with a market order.
	ClosePosition(ctx context.Context, pos models.PositionRecord) (models.OrderRecord, error)

	// Balance returns the account's funds.
	Balance(ctx context.Context) (models.Balance, error)
}
