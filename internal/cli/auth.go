package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"saxo-trader/internal/broker"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the broker session",
	}
	authCmd.AddCommand(newAuthLoginCmd(app))
	authCmd.AddCommand(newAuthStatusCmd(app))
	authCmd.AddCommand(newAuthRefreshCmd(app))
	rootCmd.AddCommand(authCmd)
}

func newAuthLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize the application with Saxo",
		Long: `Login prints the authorization URL for the configured environment.
Visit it, grant access, and paste the authorization code back here (or
pass it with --code).`,
		Example: `  saxo-trader auth login
  saxo-trader auth login --code=<code>
  saxo-trader auth login --live`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := app.Config.Environment()
			creds := app.Config.Credentials.For(env.Name)
			if creds.AppKey == "" {
				return fmt.Errorf("no app key for %s environment, fill in credentials.toml", env.Name)
			}

			redirectURI, _ := cmd.Flags().GetString("redirect")
			auth := broker.NewAuthClient(env, creds)

			code, _ := cmd.Flags().GetString("code")
			if code == "" {
				cmd.Printf("Visit and authorize:\n\n  %s\n\nPaste the authorization code: ", auth.AuthorizeURL(redirectURI, "saxo-trader"))
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading code: %w", err)
				}
				code = strings.TrimSpace(line)
			}
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			token, err := auth.ExchangeCode(ctx, code, redirectURI)
			if err != nil {
				return fmt.Errorf("exchanging authorization code: %w", err)
			}

			s, err := app.buildStack()
			if err != nil {
				return err
			}
			if err := s.manager.SetToken(token); err != nil {
				return err
			}

			cmd.Printf("Authorized %s environment, access token valid until %s\n",
				env.Name, token.AccessExpiresAt.Local().Format("15:04:05"))
			return nil
		},
	}

	cmd.Flags().String("code", "", "authorization code (skips the prompt)")
	cmd.Flags().String("redirect", "http://localhost:8123/callback", "redirect URI registered with the app")
	return cmd
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session token status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.buildStack()
			if err != nil {
				return err
			}

			token := s.manager.Token()
			if token.IsZero() {
				cmd.Printf("Environment: %s\nNo session. Run 'saxo-trader auth login'.\n", s.env.Name)
				return nil
			}

			status := s.manager.Status()
			cmd.Printf("Environment: %s\n", s.env.Name)
			cmd.Printf("Obtained:    %s\n", token.ObtainedAt.Local().Format(time.RFC1123))
			cmd.Printf("Access:      %s\n", describeRemaining(status.AccessValid, status.AccessRemaining))
			cmd.Printf("Refresh:     %s\n", describeRemaining(status.RefreshValid, status.RefreshRemaining))
			if status.NeedsReauth {
				cmd.Println("Re-authentication required: run 'saxo-trader auth login'.")
			} else if status.NeedsRefresh {
				cmd.Println("Access token is due for renewal.")
			}
			return nil
		},
	}
}

func describeRemaining(valid bool, remaining time.Duration) string {
	if !valid {
		return "expired"
	}
	if remaining == 0 {
		return "valid (no expiry reported)"
	}
	return fmt.Sprintf("valid, %s remaining", remaining.Round(time.Second))
}

func newAuthRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the session token now",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.buildStack()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			// One-shot renewal still goes through the single consumer.
			runCtx, stopRun := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				s.manager.Run(runCtx)
			}()
			defer func() {
				stopRun()
				<-done
			}()

			token, err := s.manager.ForceRefresh(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Renewed %s session, access token valid until %s\n",
				s.env.Name, token.AccessExpiresAt.Local().Format("15:04:05"))
			return nil
		},
	}
}
