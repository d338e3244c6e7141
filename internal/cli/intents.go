package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"saxo-trader/internal/schedule"
	"saxo-trader/pkg/utils"
)

func newIntentsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intents",
		Short: "Show today's trade schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedulePath, _ := cmd.Flags().GetString("schedule")
			if schedulePath == "" {
				schedulePath = app.Config.Trading.SchedulePath
			}

			intents, err := schedule.LoadForDay(schedulePath, time.Now())
			if err != nil {
				return err
			}

			cmd.Printf("%-8s %-5s %-12s %-12s %-10s %s\n", "TICKER", "SIDE", "WINDOW", "SIZE", "STOP", "MEMO")
			for _, intent := range intents {
				size := "auto"
				if intent.Amount > 0 {
					size = utils.FormatUnits(intent.Amount)
				}
				stop := "-"
				if intent.StopDistance > 0 {
					stop = fmt.Sprintf("%.1f pips", intent.StopDistance/10)
				}
				cmd.Printf("%-8s %-5s %-12s %-12s %-10s %s\n",
					intent.Ticker, intent.Direction, intent.Window(), size, stop, intent.Memo)
			}
			return nil
		},
	}

	cmd.Flags().String("schedule", "", "schedule CSV path (default from config)")
	return cmd
}
