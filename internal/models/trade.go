package models

import (
	"fmt"
	"time"
)

// TradeIntent is one scheduled entry/exit pair supplied by the schedule
// collaborator. It is immutable once handed to the coordinator.
type TradeIntent struct {
	Ticker    string
	Direction Direction
	EntryTime time.Time
	ExitTime  time.Time
	Amount    float64
	// StopDistance is the protective stop offset in points, a tenth
	// of a pip: divided by 1000 for yen-quoted pairs and by 100000
	// otherwise to produce the price offset.
	StopDistance float64
	Notify       bool
	Memo         string
}

// Validate checks the chronological invariant the coordinator relies on.
func (ti TradeIntent) Validate() error {
	if ti.Ticker == "" {
		return fmt.Errorf("intent has no ticker")
	}
	if ti.Direction != DirectionBuy && ti.Direction != DirectionSell {
		return fmt.Errorf("intent %s has invalid direction %q", ti.Ticker, ti.Direction)
	}
	if !ti.ExitTime.After(ti.EntryTime) {
		return fmt.Errorf("intent %s exit %s is not after entry %s",
			ti.Ticker, ti.ExitTime.Format("15:04:05"), ti.EntryTime.Format("15:04:05"))
	}
	return nil
}

// Window returns a compact HH:MM-HH:MM display of the trade window.
func (ti TradeIntent) Window() string {
	return ti.EntryTime.Format("15:04") + "-" + ti.ExitTime.Format("15:04")
}

// CloseType says how a trade ended.
type CloseType string

const (
	CloseStopLoss      CloseType = "StopLoss"
	CloseScheduledExit CloseType = "ScheduledExit"
)

// TradeResult is the realized outcome of one intent. Estimated marks
// results derived from fallback pricing rather than the broker's
// settlement record.
type TradeResult struct {
	Ticker     string
	Direction  Direction
	Pips       float64
	ProfitLoss float64
	// Currency is the account currency ProfitLoss is denominated in.
	Currency   string
	CloseType  CloseType
	CloseTime  time.Time
	OpenPrice  float64
	ClosePrice float64
	Estimated  bool
	Memo       string
}

// SessionReport accumulates the results of one trading day.
type SessionReport struct {
	Date    time.Time
	Results []TradeResult
}

// Add appends a result to the report.
func (r *SessionReport) Add(res TradeResult) {
	r.Results = append(r.Results, res)
}

// Currency returns the account currency the report's totals are in,
// defaulting to JPY when no result carries one.
func (r *SessionReport) Currency() string {
	for _, res := range r.Results {
		if res.Currency != "" {
			return res.Currency
		}
	}
	return "JPY"
}

// TotalPips sums pips over all results.
func (r *SessionReport) TotalPips() float64 {
	var total float64
	for _, res := range r.Results {
		total += res.Pips
	}
	return total
}

// TotalProfitLoss sums realized PnL over all results.
func (r *SessionReport) TotalProfitLoss() float64 {
	var total float64
	for _, res := range r.Results {
		total += res.ProfitLoss
	}
	return total
}

// WinLoss counts winning and losing trades by pips.
func (r *SessionReport) WinLoss() (wins, losses int) {
	for _, res := range r.Results {
		switch {
		case res.Pips > 0:
			wins++
		case res.Pips < 0:
			losses++
		}
	}
	return wins, losses
}
