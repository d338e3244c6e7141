package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/schedule"
	"saxo-trader/internal/trading"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run today's trade schedule",
		Long: `Run loads the trade schedule, keeps the session token fresh in the
background, and executes each intent through its full lifecycle: entry,
protective stop, monitoring, close, and settlement reconciliation.`,
		Example: `  saxo-trader run
  saxo-trader run --schedule ./intents.csv
  saxo-trader run --live`,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedulePath, _ := cmd.Flags().GetString("schedule")
			if schedulePath == "" {
				schedulePath = app.Config.Trading.SchedulePath
			}

			intents, err := schedule.LoadForDay(schedulePath, time.Now())
			if err != nil {
				return err
			}

			s, err := app.buildStack()
			if err != nil {
				return err
			}
			if s.manager.Token().IsZero() {
				return fmt.Errorf("no session for %s environment, run 'saxo-trader auth login' first", s.env.Name)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The token loop owns all renewals for the day. Its exit
			// with a fatal error ends the session.
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			managerDone := make(chan error, 1)
			go func() { managerDone <- s.manager.Run(runCtx) }()

			app.Logger.Info().Str("env", string(s.env.Name)).Int("intents", len(intents)).Msg("session starting")
			sess := trading.NewSession(s.coord, s.notifier, app.Logger)

			sessionDone := make(chan error, 1)
			go func() {
				_, err := sess.Run(runCtx, intents)
				sessionDone <- err
			}()

			select {
			case err = <-sessionDone:
			case merr := <-managerDone:
				// Renewal gave up; stop trading and surface it.
				cancel()
				<-sessionDone
				if apperrors.Is(merr, apperrors.ErrRefreshLimitExceeded) || apperrors.Is(merr, apperrors.ErrReauthRequired) {
					if nerr := s.notifier.SendAlert(context.Background(), "session lost", merr); nerr != nil {
						app.Logger.Warn().Err(nerr).Msg("alert delivery failed")
					}
				}
				err = merr
			}

			cancel()
			// Give the token loop a moment to observe cancellation.
			drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer drainCancel()
			select {
			case <-managerDone:
			case <-drainCtx.Done():
			}

			if err != nil && !apperrors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("schedule", "", "schedule CSV path (default from config)")
	return cmd
}
