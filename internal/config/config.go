// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	LiveMode        bool    `mapstructure:"live_mode"`
	AutoLot         bool    `mapstructure:"auto_lot"`
	Leverage        float64 `mapstructure:"leverage"`
	FixedAmount     float64 `mapstructure:"fixed_amount"`      // units, used when auto-lot is off or balance unavailable
	SpreadLimitPips float64 `mapstructure:"spread_limit_pips"` // skip entry at or above this spread
	SchedulePath    string  `mapstructure:"schedule_path"`     // trade-intent CSV
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// Credentials holds per-environment OAuth application credentials.
type Credentials struct {
	Sim  AppCredentials `mapstructure:"sim"`
	Live AppCredentials `mapstructure:"live"`
}

// AppCredentials is one OAuth app key/secret pair.
type AppCredentials struct {
	AppKey    string `mapstructure:"app_key"`
	AppSecret string `mapstructure:"app_secret"`
}

// For returns the credentials for the given environment.
func (c Credentials) For(env models.Environment) AppCredentials {
	if env == models.EnvLive {
		return c.Live
	}
	return c.Sim
}

// Environment is the broker endpoint set selected at construction time.
// There is no runtime mutation of client internals; live and sim are
// distinct instances.
type Environment struct {
	Name    models.Environment
	BaseURL string
	AuthURL string
}

// EnvironmentFor returns the endpoint set for sim or live.
func EnvironmentFor(live bool) Environment {
	if live {
		return Environment{
			Name:    models.EnvLive,
			BaseURL: "https://gateway.saxobank.com/openapi",
			AuthURL: "https://live.logonvalidation.net",
		}
	}
	return Environment{
		Name:    models.EnvSim,
		BaseURL: "https://gateway.saxobank.com/sim/openapi",
		AuthURL: "https://sim.logonvalidation.net",
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/saxo-trader"
	}
	return filepath.Join(home, ".config", "saxo-trader")
}

// DefaultTokenPath returns the default token store location.
func DefaultTokenPath() string {
	return filepath.Join(DefaultConfigDir(), "tokens.json")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("trading.live_mode", false)
	v.SetDefault("trading.auto_lot", false)
	v.SetDefault("trading.leverage", 1.0)
	v.SetDefault("trading.fixed_amount", 10000.0)
	v.SetDefault("trading.spread_limit_pips", 5.0)
	v.SetDefault("trading.schedule_path", filepath.Join(configDir, "intents.csv"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}
	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}
	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAXO_APP_KEY"); v != "" {
		cfg.Credentials.Sim.AppKey = v
	}
	if v := os.Getenv("SAXO_APP_SECRET"); v != "" {
		cfg.Credentials.Sim.AppSecret = v
	}
	if v := os.Getenv("SAXO_LIVE_APP_KEY"); v != "" {
		cfg.Credentials.Live.AppKey = v
	}
	if v := os.Getenv("SAXO_LIVE_APP_SECRET"); v != "" {
		cfg.Credentials.Live.AppSecret = v
	}
	if v := os.Getenv("SAXO_WEBHOOK_URL"); v != "" {
		cfg.Notifications.WebhookURL = v
		cfg.Notifications.Enabled = true
	}
	if v := os.Getenv("SAXO_LIVE_MODE"); v == "true" || v == "1" {
		cfg.Trading.LiveMode = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Leverage <= 0 {
		return fmt.Errorf("%w: leverage must be positive, got %v", apperrors.ErrConfigInvalid, c.Trading.Leverage)
	}
	if c.Trading.FixedAmount < 0 {
		return fmt.Errorf("%w: fixed_amount must be non-negative, got %v", apperrors.ErrConfigInvalid, c.Trading.FixedAmount)
	}
	if c.Trading.SpreadLimitPips < 0 {
		return fmt.Errorf("%w: spread_limit_pips must be non-negative, got %v", apperrors.ErrConfigInvalid, c.Trading.SpreadLimitPips)
	}
	return nil
}

// Environment returns the endpoint set for the configured mode.
func (c *Config) Environment() Environment {
	return EnvironmentFor(c.Trading.LiveMode)
}
