// Package utils provides shared utility functions.
package utils

import (
	"fmt"

	"saxo-trader/internal/models"
)

// FormatPrice renders a price with the instrument's conventional
// precision: 3 decimals for yen-quoted pairs, 5 otherwise.
func FormatPrice(price float64, instrument models.InstrumentRef) string {
	if instrument.JPYQuoted() {
		return fmt.Sprintf("%.3f", price)
	}
	return fmt.Sprintf("%.5f", price)
}

// FormatPips renders a signed pip count.
func FormatPips(pips float64) string {
	return fmt.Sprintf("%+.1f pips", pips)
}

// FormatMoney renders an amount with its currency code.
func FormatMoney(amount float64, currency string) string {
	return fmt.Sprintf("%+.2f %s", amount, currency)
}

// FormatUnits renders an order size in currency units.
func FormatUnits(units float64) string {
	return fmt.Sprintf("%.0f units", units)
}
