package trading

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"saxo-trader/internal/models"
	"saxo-trader/internal/notify"
)

// Session runs one trading day: every intent in order, one outcome
// each, then a summary.
type Session struct {
	coord    *Coordinator
	notifier notify.Notifier
	log      zerolog.Logger
}

// NewSession creates a day session.
func NewSession(coord *Coordinator, notifier notify.Notifier, log zerolog.Logger) *Session {
	return &Session{
		coord:    coord,
		notifier: notifier,
		log:      log.With().Str("component", "session-run").Logger(),
	}
}

// Run executes the intents sequentially. A failed intent has already
// been alerted and does not stop the rest of the day; cancellation
// does. The report covers whatever completed.
func (s *Session) Run(ctx context.Context, intents []models.TradeIntent) (*models.SessionReport, error) {
	report := &models.SessionReport{Date: time.Now()}

	for i, intent := range intents {
		s.log.Info().Int("intent", i+1).Int("total", len(intents)).
			Str("ticker", intent.Ticker).Str("window", intent.Window()).Msg("starting intent")

		outcome := s.coord.Execute(ctx, intent)
		switch outcome.Kind {
		case OutcomeCompleted:
			report.Add(*outcome.Result)
		case OutcomeSkipped:
			s.log.Info().Str("ticker", intent.Ticker).Str("reason", outcome.Reason).Msg("intent skipped")
		case OutcomeFailed:
			if errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded) {
				s.finish(report)
				return report, outcome.Err
			}
			s.log.Error().Err(outcome.Err).Str("ticker", intent.Ticker).Str("reason", outcome.Reason).Msg("intent failed")
		}
	}

	s.finish(report)
	return report, nil
}

// finish emits the daily summary. Delivery is best effort; an empty
// day still reports.
func (s *Session) finish(report *models.SessionReport) {
	// Summary delivery gets its own deadline so a cancelled day can
	// still report what it did.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.notifier.SendSummary(ctx, report); err != nil {
		s.log.Warn().Err(err).Msg("summary notification failed")
	}
}
