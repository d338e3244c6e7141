package trading

import (
	"fmt"

	"saxo-trader/internal/models"
)

// TrendAnnotator adds a market-context note to a trade's memo. Signal
// generation lives outside this program, so the built-in annotator
// only records what was observable at entry.
type TrendAnnotator interface {
	Annotate(instrument models.InstrumentRef, quote models.Quote) string
}

// SnapshotAnnotator notes the entry quote and spread.
type SnapshotAnnotator struct{}

// Annotate renders the entry snapshot.
func (SnapshotAnnotator) Annotate(instrument models.InstrumentRef, quote models.Quote) string {
	spread := (quote.Ask - quote.Bid) * PipMultiplier(instrument)
	return fmt.Sprintf("entry %.5g/%.5g spread %.1fp", quote.Bid, quote.Ask, spread)
}
