// Package cli provides the command-line interface for the trading
// application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"saxo-trader/internal/broker"
	"saxo-trader/internal/config"
	"saxo-trader/internal/logging"
	"saxo-trader/internal/notify"
	"saxo-trader/internal/reconcile"
	"saxo-trader/internal/resilience"
	"saxo-trader/internal/session"
	"saxo-trader/internal/trading"
)

// Version information.
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "saxo-trader",
		Short: "Scheduled FX trading against the Saxo OpenAPI gateway",
		Long: `saxo-trader runs a daily schedule of FX trades against Saxo Bank's
OpenAPI gateway: timed entries with protective stops, monitored to a
scheduled exit, reconciled against the broker's settlement records.

Use 'saxo-trader auth login' first to authorize the application.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			if live, _ := cmd.Flags().GetBool("live"); live {
				app.Config.Trading.LiveMode = true
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/saxo-trader)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("live", false, "use the live environment instead of sim")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newIntentsCmd(app))
	addAuthCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("saxo-trader %s\n", Version)
		},
	}
}

// stack is the wired set of collaborators one command invocation uses.
type stack struct {
	env      config.Environment
	client   *broker.SaxoClient
	manager  *session.Manager
	exec     *resilience.Executor
	cache    *broker.InstrumentCache
	rec      *reconcile.Reconciler
	notifier *notify.MultiNotifier
	coord    *trading.Coordinator
}

// buildStack wires the full trading stack for the configured
// environment.
func (app *App) buildStack() (*stack, error) {
	env := app.Config.Environment()
	log := app.Logger

	client := broker.NewSaxoClient(env, log)
	store := session.NewTokenStore(config.DefaultTokenPath())
	auth := broker.NewAuthClient(env, app.Config.Credentials.For(env.Name))

	manager, err := session.NewManager(store, auth, env.Name, client.SetToken, log)
	if err != nil {
		return nil, err
	}

	exec := resilience.NewExecutor(manager, log)
	cache := broker.NewInstrumentCache(client)
	rec := reconcile.New(client, exec, reconcile.Config{}, log)

	notifier := notify.NewMultiNotifier(notify.LevelAll)
	notifier.AddChannel(notify.NewTerminalNotifier())
	if app.Config.Notifications.Enabled {
		notifier.AddChannel(notify.NewWebhookNotifier(app.Config.Notifications.WebhookURL))
	}

	coord := trading.NewCoordinator(client, cache, exec, rec, notifier, trading.SnapshotAnnotator{}, trading.Config{
		SpreadLimitPips: app.Config.Trading.SpreadLimitPips,
		AutoLot:         app.Config.Trading.AutoLot,
		Leverage:        app.Config.Trading.Leverage,
		FixedUnits:      app.Config.Trading.FixedAmount,
	}, log)

	return &stack{
		env:      env,
		client:   client,
		manager:  manager,
		exec:     exec,
		cache:    cache,
		rec:      rec,
		notifier: notifier,
		coord:    coord,
	}, nil
}
