// Package trading coordinates scheduled trades end to end: sizing,
// entry, protection, monitoring, closing, and reconciliation.
package trading

import (
	"github.com/shopspring/decimal"

	"saxo-trader/internal/models"
)

const (
	// unitsPerLot is the standard FX lot size.
	unitsPerLot = 100000
	// minUnits is the smallest order the broker accepts, 0.01 lot.
	minUnits = 1000
)

// PipMultiplier converts a price difference into pips: yen-quoted
// pairs tick in hundredths, everything else in ten-thousandths.
func PipMultiplier(instrument models.InstrumentRef) float64 {
	if instrument.JPYQuoted() {
		return 100
	}
	return 10000
}

// stopDivisor converts an intent's stop distance (points, tenth-pips)
// into a price offset.
func stopDivisor(instrument models.InstrumentRef) float64 {
	if instrument.JPYQuoted() {
		return 1000
	}
	return 100000
}

// StopPrice places a protective stop the given distance behind the
// open price.
func StopPrice(openPrice, stopDistance float64, direction models.Direction, instrument models.InstrumentRef) float64 {
	offset := stopDistance / stopDivisor(instrument)
	if direction == models.DirectionBuy {
		return openPrice - offset
	}
	return openPrice + offset
}

// Pips converts the price move from open to close into signed pips for
// the trade direction.
func Pips(openPrice, closePrice float64, direction models.Direction, instrument models.InstrumentRef) float64 {
	diff := closePrice - openPrice
	if direction == models.DirectionSell {
		diff = -diff
	}
	return diff * PipMultiplier(instrument)
}

// SizingInput carries everything UnitSize needs. The cross rate is the
// USDJPY mid, used when the pair is dollar-quoted and the account is
// yen-denominated.
type SizingInput struct {
	Balance     models.Balance
	Leverage    float64
	Price       float64
	CrossUSDJPY float64
	Instrument  models.InstrumentRef
	// FixedUnits is the fallback size when the balance is unusable.
	FixedUnits float64
}

// UnitSize computes the order size in currency units from the account
// balance and leverage, truncated to 0.01-lot granularity. The result
// never drops below the broker minimum, and an unusable balance or
// price falls back to the configured fixed size.
func UnitSize(in SizingInput) (units float64, fromBalance bool) {
	if in.Balance.CashBalance <= 0 || in.Price <= 0 || in.Leverage <= 0 {
		return in.FixedUnits, false
	}

	denominator := in.Price
	if in.Instrument.QuoteCurrency == "USD" && in.Balance.Currency == "JPY" {
		if in.CrossUSDJPY <= 0 {
			return in.FixedUnits, false
		}
		denominator = in.Price * in.CrossUSDJPY
	}

	raw := decimal.NewFromFloat(in.Balance.CashBalance).
		Mul(decimal.NewFromFloat(in.Leverage)).
		Div(decimal.NewFromFloat(denominator))

	// Truncate, not round: sizing must never exceed what the balance
	// supports.
	lots := raw.Div(decimal.NewFromInt(unitsPerLot)).Truncate(2)
	units64, _ := lots.Mul(decimal.NewFromInt(unitsPerLot)).Float64()

	if units64 < minUnits {
		units64 = minUnits
	}
	return units64, true
}

// ConvertPnL converts a realized profit figure in the quote currency
// to the account currency. Yen-quoted profit in a yen account passes
// through; dollar-quoted profit is crossed through USDJPY.
func ConvertPnL(pnl float64, instrument models.InstrumentRef, accountCurrency string, crossUSDJPY float64) float64 {
	if instrument.QuoteCurrency == accountCurrency {
		return pnl
	}
	if instrument.QuoteCurrency == "USD" && accountCurrency == "JPY" && crossUSDJPY > 0 {
		return pnl * crossUSDJPY
	}
	return pnl
}
