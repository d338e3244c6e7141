// Package models provides domain models for the trading application.
package models

import (
	"strings"
	"time"
)

// Environment represents a broker environment.
type Environment string

const (
	EnvSim  Environment = "sim"
	EnvLive Environment = "live"
)

// Direction represents the side of a trade.
type Direction string

const (
	DirectionBuy  Direction = "Buy"
	DirectionSell Direction = "Sell"
)

// Opposite returns the closing direction for the trade.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// ParseDirection normalizes a direction string ("BUY", "buy", "Sell", ...).
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return DirectionBuy, true
	case "SELL":
		return DirectionSell, true
	}
	return "", false
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeStop   OrderType = "Stop"
	OrderTypeLimit  OrderType = "Limit"
)

// OrderStatus represents the broker-side status of an order.
type OrderStatus string

const (
	OrderStatusWorking  OrderStatus = "Working"
	OrderStatusFilled   OrderStatus = "Filled"
	OrderStatusCanceled OrderStatus = "Canceled"
	OrderStatusRejected OrderStatus = "Rejected"
)

// InstrumentRef identifies a tradable FX instrument.
type InstrumentRef struct {
	Ticker        string
	UIC           int
	Description   string
	QuoteCurrency string
}

// JPYQuoted reports whether the instrument is quoted in Japanese yen.
// The pip scale depends on it.
func (i InstrumentRef) JPYQuoted() bool {
	return i.QuoteCurrency == "JPY"
}

// Quote is a two-sided price snapshot.
type Quote struct {
	Bid float64
	Ask float64
}

// Mid returns the quote midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Balance holds the account funds available for trading.
type Balance struct {
	CashBalance     float64
	MarginAvailable float64
	Currency        string
}

// OrderRecord is an order as acknowledged by the broker. It is immutable
// once the broker accepts it; only a Working order can be canceled.
type OrderRecord struct {
	OrderID        string
	UIC            int
	Direction      Direction
	Type           OrderType
	Amount         float64
	RequestedPrice float64
	Status         OrderStatus
}

// PositionRecord is an open position as reported by the broker. Positions
// are looked up by instrument and source order id because the broker API
// has no notion of which process opened them.
type PositionRecord struct {
	PositionID    string
	UIC           int
	OpenPrice     float64
	Amount        float64
	SourceOrderID string
	OpenedAt      time.Time
}

// ClosedPositionRecord is a settlement record from the broker's
// closed-position history. It appears asynchronously after closure, with
// propagation delays of up to tens of seconds.
type ClosedPositionRecord struct {
	UIC               int
	ClosePrice        float64
	ClosedAt          time.Time
	RealizedPnL       float64
	OpeningPositionID string
	ClosingPositionID string
	SourceOrderID     string
}
