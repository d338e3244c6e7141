// Package reconcile recovers broker-side state the order API does not
// report synchronously: which positions an order produced, and which
// settlement record a closed position left behind.
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"saxo-trader/internal/broker"
	"saxo-trader/internal/models"
	"saxo-trader/internal/resilience"
	"saxo-trader/pkg/utils"
)

// MatchQuality says how a settlement record was tied to its position.
type MatchQuality string

const (
	// MatchExact means the record referenced a known position or order id.
	MatchExact MatchQuality = "exact"
	// MatchApproximate means the record was picked by recency alone and
	// figures derived from it are estimates.
	MatchApproximate MatchQuality = "approximate"
)

// PositionGroup is the set of open positions one order produced. The
// broker may split a fill, in which case every part carries the same
// SourceOrderID.
type PositionGroup struct {
	Positions []models.PositionRecord
}

// NetAmount sums the group's signed amounts.
func (g PositionGroup) NetAmount() float64 {
	var total float64
	for _, p := range g.Positions {
		total += p.Amount
	}
	return total
}

// AvgOpenPrice returns the amount-weighted open price.
func (g PositionGroup) AvgOpenPrice() float64 {
	var total, weighted float64
	for _, p := range g.Positions {
		weighted += p.OpenPrice * p.Amount
		total += p.Amount
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// IDs lists the group's position ids.
func (g PositionGroup) IDs() []string {
	ids := make([]string, 0, len(g.Positions))
	for _, p := range g.Positions {
		ids = append(ids, p.PositionID)
	}
	return ids
}

// SourceOrderID returns the order id the group fills.
func (g PositionGroup) SourceOrderID() string {
	if len(g.Positions) == 0 {
		return ""
	}
	return g.Positions[0].SourceOrderID
}

// UIC returns the group's instrument id.
func (g PositionGroup) UIC() int {
	if len(g.Positions) == 0 {
		return 0
	}
	return g.Positions[0].UIC
}

// ClosedMatch is a settlement record tied back to a position group.
type ClosedMatch struct {
	Record  models.ClosedPositionRecord
	Quality MatchQuality
}

// Config tunes the reconciler's retry cadence. Zero values take the
// defaults.
type Config struct {
	// PositionAttempts is how many times to poll for a new position
	// before widening the search.
	PositionAttempts int
	// PositionDelay is the wait between position polls.
	PositionDelay time.Duration
	// Windows are the successively wider closed-position lookback
	// spans.
	Windows []time.Duration
	// WindowDelay is the wait between window searches.
	WindowDelay time.Duration
	// RecencyWindow bounds the approximate fallback: only a record
	// this recent may be matched without an id reference.
	RecencyWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.PositionAttempts == 0 {
		c.PositionAttempts = 3
	}
	if c.PositionDelay == 0 {
		c.PositionDelay = 4 * time.Second
	}
	if len(c.Windows) == 0 {
		c.Windows = []time.Duration{time.Hour, 3 * time.Hour, 6 * time.Hour}
	}
	if c.WindowDelay == 0 {
		c.WindowDelay = 5 * time.Second
	}
	if c.RecencyWindow == 0 {
		c.RecencyWindow = 5 * time.Minute
	}
	return c
}

// Reconciler looks up positions and settlement records through the
// gateway, healing expired tokens along the way.
type Reconciler struct {
	gateway broker.Gateway
	exec    *resilience.Executor
	cfg     Config
	log     zerolog.Logger
}

// New creates a reconciler.
func New(gateway broker.Gateway, exec *resilience.Executor, cfg Config, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		exec:    exec,
		cfg:     cfg.withDefaults(),
		log:     log.With().Str("component", "reconcile").Logger(),
	}
}

// FindPosition polls for the positions a filled order produced. The
// first attempts require both the instrument and the source order id
// to match; a final widened pass accepts any position carrying the
// source order id. A nil group with nil error means the position never
// appeared.
func (r *Reconciler) FindPosition(ctx context.Context, uic int, sourceOrderID string) (*PositionGroup, error) {
	for attempt := 0; attempt < r.cfg.PositionAttempts; attempt++ {
		if attempt > 0 {
			if err := utils.Sleep(ctx, r.cfg.PositionDelay); err != nil {
				return nil, err
			}
		}

		positions, err := r.listPositions(ctx)
		if err != nil {
			return nil, err
		}
		if group := groupBySource(positions, sourceOrderID, uic); group != nil {
			return group, nil
		}
		r.log.Debug().Int("attempt", attempt+1).Str("order_id", sourceOrderID).Msg("position not visible yet")
	}

	// Widened pass: accept a UIC mismatch in case the instrument
	// lookup and the fill disagree.
	positions, err := r.listPositions(ctx)
	if err != nil {
		return nil, err
	}
	if group := groupBySource(positions, sourceOrderID, 0); group != nil {
		r.log.Warn().Str("order_id", sourceOrderID).Msg("position found only by source order id")
		return group, nil
	}
	return nil, nil
}

func (r *Reconciler) listPositions(ctx context.Context) ([]models.PositionRecord, error) {
	return resilience.Do(ctx, r.exec, "positions", func(ctx context.Context) ([]models.PositionRecord, error) {
		return r.gateway.Positions(ctx)
	})
}

// groupBySource collects positions filled from the order. uic zero
// disables the instrument check.
func groupBySource(positions []models.PositionRecord, sourceOrderID string, uic int) *PositionGroup {
	var group PositionGroup
	for _, p := range positions {
		if p.SourceOrderID != sourceOrderID {
			continue
		}
		if uic != 0 && p.UIC != uic {
			continue
		}
		group.Positions = append(group.Positions, p)
	}
	if len(group.Positions) == 0 {
		return nil
	}
	return &group
}

// FindClosedPosition searches the closed-position history for the
// settlement record of a position group, widening the lookback window
// on each pass. Only records on the group's instrument are considered.
// Records referencing a known position or order id win; failing that,
// the newest record recent enough is returned flagged approximate. A
// nil match with nil error means nothing plausible was found.
func (r *Reconciler) FindClosedPosition(ctx context.Context, group PositionGroup) (*ClosedMatch, error) {
	known := make(map[string]bool, len(group.Positions))
	for _, id := range group.IDs() {
		known[id] = true
	}
	sourceOrderID := group.SourceOrderID()
	uic := group.UIC()

	for i, window := range r.cfg.Windows {
		if i > 0 {
			if err := utils.Sleep(ctx, r.cfg.WindowDelay); err != nil {
				return nil, err
			}
		}

		now := time.Now()
		records, err := resilience.Do(ctx, r.exec, "closedpositions", func(ctx context.Context) ([]models.ClosedPositionRecord, error) {
			return r.gateway.ClosedPositions(ctx, now.Add(-window), now)
		})
		if err != nil {
			return nil, err
		}
		records = onInstrument(records, uic)

		if rec, ok := matchByID(records, known, sourceOrderID); ok {
			return &ClosedMatch{Record: rec, Quality: MatchExact}, nil
		}

		if i == len(r.cfg.Windows)-1 {
			if rec, ok := newestWithin(records, now, r.cfg.RecencyWindow); ok {
				r.log.Warn().Str("order_id", sourceOrderID).Time("closed_at", rec.ClosedAt).
					Msg("settlement matched by recency only, result is an estimate")
				return &ClosedMatch{Record: rec, Quality: MatchApproximate}, nil
			}
		}
		r.log.Debug().Dur("window", window).Str("order_id", sourceOrderID).Msg("no settlement record in window")
	}
	return nil, nil
}

// onInstrument keeps only the records closed on the given instrument,
// so another pair's closure can never be mistaken for this trade's
// settlement. uic zero disables the filter.
func onInstrument(records []models.ClosedPositionRecord, uic int) []models.ClosedPositionRecord {
	if uic == 0 {
		return records
	}
	kept := make([]models.ClosedPositionRecord, 0, len(records))
	for _, rec := range records {
		if rec.UIC == uic {
			kept = append(kept, rec)
		}
	}
	return kept
}

// matchByID applies the reference priority: a record naming one of our
// position ids as its opening or closing side, then one naming our
// source order.
func matchByID(records []models.ClosedPositionRecord, known map[string]bool, sourceOrderID string) (models.ClosedPositionRecord, bool) {
	for _, rec := range records {
		if known[rec.OpeningPositionID] {
			return rec, true
		}
	}
	for _, rec := range records {
		if known[rec.ClosingPositionID] {
			return rec, true
		}
	}
	if sourceOrderID != "" {
		for _, rec := range records {
			if rec.SourceOrderID == sourceOrderID {
				return rec, true
			}
		}
	}
	return models.ClosedPositionRecord{}, false
}

// newestWithin picks the most recent record closed within the recency
// window.
func newestWithin(records []models.ClosedPositionRecord, now time.Time, window time.Duration) (models.ClosedPositionRecord, bool) {
	var best models.ClosedPositionRecord
	found := false
	for _, rec := range records {
		if now.Sub(rec.ClosedAt) > window {
			continue
		}
		if !found || rec.ClosedAt.After(best.ClosedAt) {
			best = rec
			found = true
		}
	}
	return best, found
}
