package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"saxo-trader/internal/models"
)

var (
	usdjpy = models.InstrumentRef{Ticker: "USDJPY", UIC: 42, QuoteCurrency: "JPY"}
	eurusd = models.InstrumentRef{Ticker: "EURUSD", UIC: 21, QuoteCurrency: "USD"}
)

func TestPipMultiplier(t *testing.T) {
	assert.Equal(t, 100.0, PipMultiplier(usdjpy))
	assert.Equal(t, 10000.0, PipMultiplier(eurusd))
}

func TestPips(t *testing.T) {
	assert.InDelta(t, 12.3, Pips(150.000, 150.123, models.DirectionBuy, usdjpy), 1e-9)
	assert.InDelta(t, -12.3, Pips(150.000, 150.123, models.DirectionSell, usdjpy), 1e-9)
	assert.InDelta(t, 15.0, Pips(1.1000, 1.1015, models.DirectionBuy, eurusd), 1e-9)
	assert.InDelta(t, -15.0, Pips(1.1000, 1.1015, models.DirectionSell, eurusd), 1e-9)
}

func TestStopPrice(t *testing.T) {
	// 200 points = 20 pips.
	assert.InDelta(t, 149.800, StopPrice(150.000, 200, models.DirectionBuy, usdjpy), 1e-9)
	assert.InDelta(t, 150.200, StopPrice(150.000, 200, models.DirectionSell, usdjpy), 1e-9)
	assert.InDelta(t, 1.0980, StopPrice(1.1000, 200, models.DirectionBuy, eurusd), 1e-9)
	assert.InDelta(t, 1.1020, StopPrice(1.1000, 200, models.DirectionSell, eurusd), 1e-9)
}

func TestUnitSizeFloorsToLotGranularity(t *testing.T) {
	units, fromBalance := UnitSize(SizingInput{
		Balance:    models.Balance{CashBalance: 1_000_000, Currency: "JPY"},
		Leverage:   1,
		Price:      150,
		Instrument: usdjpy,
		FixedUnits: 10000,
	})
	assert.True(t, fromBalance)
	// 1,000,000 / 150 = 6666.67 units, floored to 0.06 lot.
	assert.InDelta(t, 6000, units, 1e-9)
}

func TestUnitSizeAppliesLeverage(t *testing.T) {
	units, fromBalance := UnitSize(SizingInput{
		Balance:    models.Balance{CashBalance: 1_000_000, Currency: "JPY"},
		Leverage:   3,
		Price:      150,
		Instrument: usdjpy,
		FixedUnits: 10000,
	})
	assert.True(t, fromBalance)
	// 3,000,000 / 150 = 20,000 units exactly.
	assert.InDelta(t, 20000, units, 1e-9)
}

func TestUnitSizeClampsToBrokerMinimum(t *testing.T) {
	units, fromBalance := UnitSize(SizingInput{
		Balance:    models.Balance{CashBalance: 100_000, Currency: "JPY"},
		Leverage:   1,
		Price:      150,
		Instrument: usdjpy,
		FixedUnits: 10000,
	})
	assert.True(t, fromBalance)
	// 666 units floors to zero lots, clamped to 0.01 lot.
	assert.InDelta(t, 1000, units, 1e-9)
}

func TestUnitSizeFallsBackWithoutBalance(t *testing.T) {
	units, fromBalance := UnitSize(SizingInput{
		Balance:    models.Balance{CashBalance: 0, Currency: "JPY"},
		Leverage:   1,
		Price:      150,
		Instrument: usdjpy,
		FixedUnits: 10000,
	})
	assert.False(t, fromBalance)
	assert.InDelta(t, 10000, units, 1e-9)
}

func TestUnitSizeCrossesDollarQuotedPairs(t *testing.T) {
	units, fromBalance := UnitSize(SizingInput{
		Balance:     models.Balance{CashBalance: 1_650_000, Currency: "JPY"},
		Leverage:    1,
		Price:       1.1000,
		CrossUSDJPY: 150,
		Instrument:  eurusd,
		FixedUnits:  10000,
	})
	assert.True(t, fromBalance)
	// 1,650,000 / (1.10 × 150) = 10,000 units exactly.
	assert.InDelta(t, 10000, units, 1e-9)
}

func TestUnitSizeDollarQuotedWithoutCrossFallsBack(t *testing.T) {
	units, fromBalance := UnitSize(SizingInput{
		Balance:    models.Balance{CashBalance: 1_000_000, Currency: "JPY"},
		Leverage:   1,
		Price:      1.1000,
		Instrument: eurusd,
		FixedUnits: 12000,
	})
	assert.False(t, fromBalance)
	assert.InDelta(t, 12000, units, 1e-9)
}

func TestConvertPnL(t *testing.T) {
	assert.InDelta(t, 1230, ConvertPnL(1230, usdjpy, "JPY", 150), 1e-9)
	assert.InDelta(t, 1500, ConvertPnL(10, eurusd, "JPY", 150), 1e-9)
	assert.InDelta(t, 10, ConvertPnL(10, eurusd, "USD", 150), 1e-9)
}
