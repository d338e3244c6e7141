package trading

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"saxo-trader/internal/models"
)

// Property: balance-derived sizes are always multiples of 0.01 lot,
// never exceed what the balance supports, and never fall below the
// broker minimum.
func TestProperty_UnitSizeGranularityAndBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("sized units are floored 0.01-lot multiples", prop.ForAll(
		func(balance, leverage, price float64) bool {
			units, fromBalance := UnitSize(SizingInput{
				Balance:    models.Balance{CashBalance: balance, Currency: "JPY"},
				Leverage:   leverage,
				Price:      price,
				Instrument: usdjpy,
				FixedUnits: 10000,
			})
			if !fromBalance {
				return false
			}
			if units < minUnits {
				return false
			}
			// Multiple of 0.01 lot.
			lots := units / (unitsPerLot / 100)
			if math.Abs(lots-math.Round(lots)) > 1e-6 {
				return false
			}
			// Never above the raw affordable size, unless clamped up
			// to the minimum.
			raw := balance * leverage / price
			return units <= raw+1e-6 || units == minUnits
		},
		gen.Float64Range(10_000, 100_000_000),
		gen.Float64Range(0.5, 25),
		gen.Float64Range(80, 200),
	))

	properties.Property("direction inverts pips symmetrically", prop.ForAll(
		func(open, diff float64) bool {
			closePrice := open + diff
			buy := Pips(open, closePrice, models.DirectionBuy, usdjpy)
			sell := Pips(open, closePrice, models.DirectionSell, usdjpy)
			return math.Abs(buy+sell) < 1e-6
		},
		gen.Float64Range(80, 200),
		gen.Float64Range(-1, 1),
	))

	properties.Property("stop sits on the losing side of the entry", prop.ForAll(
		func(open, distance float64) bool {
			buyStop := StopPrice(open, distance, models.DirectionBuy, usdjpy)
			sellStop := StopPrice(open, distance, models.DirectionSell, usdjpy)
			return buyStop <= open && sellStop >= open
		},
		gen.Float64Range(80, 200),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}
