package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Saxo FX Trader Configuration

[trading]
# Trade against the live gateway. Leave false for the simulation environment.
live_mode = false
# Size entries from account balance and leverage instead of fixed_amount
auto_lot = false
# Effective leverage used for auto-lot sizing
leverage = 1.0
# Order size in currency units when auto_lot is off
fixed_amount = 10000.0
# Skip entries when the bid/ask spread is at or above this many pips
spread_limit_pips = 5.0
# Trade-intent schedule CSV
schedule_path = ""

[notifications]
enabled = false
webhook_url = ""
`

const credentialsTemplate = `# Saxo FX Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[sim]
app_key = ""
app_secret = ""

[live]
app_key = ""
app_secret = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
