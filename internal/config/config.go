// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Market     MarketConfig     `yaml:"market"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Withdrawal WithdrawalConfig `yaml:"withdrawal"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Storage    StorageConfig    `yaml:"storage"`
	System     SystemConfig     `yaml:"system"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ExchangeConfig contains venue connectivity settings
type ExchangeConfig struct {
	BaseURL               string `yaml:"base_url"`
	WebsocketURL          string `yaml:"websocket_url"`
	APIKey                string `yaml:"api_key"`
	SecretKey             string `yaml:"secret_key"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	RateLimitRPS          int    `yaml:"rate_limit_rps"`
	ReconnectWaitSeconds  int    `yaml:"reconnect_wait_seconds"`
	OrderPollIntervalSecs int    `yaml:"order_poll_interval_seconds"`
}

// MarketConfig identifies the traded pair and its legs. RiskAsset is the
// accumulated base asset, QuoteAsset denominates the pair, and StableAsset
// is the dollar-stable collateral leg cross-priced into quote terms.
type MarketConfig struct {
	Pair         string  `yaml:"pair"`
	RiskAsset    string  `yaml:"risk_asset"`
	StableAsset  string  `yaml:"stable_asset"`
	QuoteAsset   string  `yaml:"quote_asset"`
	MinOrderSize float64 `yaml:"min_order_size"`
	TickSize     float64 `yaml:"tick_size"` // fallback when the venue does not report one
}

// StrategyConfig contains the accumulation strategy parameters
type StrategyConfig struct {
	Leverage               float64 `yaml:"leverage"`
	MinCollateralization   float64 `yaml:"min_collateralization"`
	RequiredReturn         float64 `yaml:"required_return"`
	LossTolerance          float64 `yaml:"loss_tolerance"`
	EntryDepreciation      float64 `yaml:"entry_depreciation"`
	MaxRequotes            int     `yaml:"max_requotes"`
	CooldownMinutes        int     `yaml:"cooldown_minutes"`
	SettlementDelaySeconds int     `yaml:"settlement_delay_seconds"`
	HaltOnStopLoss         bool    `yaml:"halt_on_stop_loss"`
}

// WithdrawalConfig controls the post-cycle sweep of accumulated balance
type WithdrawalConfig struct {
	Enabled    bool    `yaml:"enabled"`
	MinBalance float64 `yaml:"min_balance"`
	Address    string  `yaml:"address"`
}

// AlertsConfig contains notification channel settings
type AlertsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
}

// TelegramConfig contains Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// SlackConfig contains Slack webhook settings
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// StorageConfig contains trade journal settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel     string `yaml:"log_level"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange.TimeoutSeconds == 0 {
		c.Exchange.TimeoutSeconds = 10
	}
	if c.Exchange.RateLimitRPS == 0 {
		c.Exchange.RateLimitRPS = 5
	}
	if c.Exchange.ReconnectWaitSeconds == 0 {
		c.Exchange.ReconnectWaitSeconds = 1
	}
	if c.Exchange.OrderPollIntervalSecs == 0 {
		c.Exchange.OrderPollIntervalSecs = 5
	}
	if c.Strategy.MaxRequotes == 0 {
		c.Strategy.MaxRequotes = 5
	}
	if c.Strategy.CooldownMinutes == 0 {
		c.Strategy.CooldownMinutes = 600
	}
	if c.Strategy.SettlementDelaySeconds == 0 {
		c.Strategy.SettlementDelaySeconds = 120
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Telemetry.MetricsPort == 0 {
		c.Telemetry.MetricsPort = 9090
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "trades.db"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateExchange(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateMarket(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateStrategy(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateWithdrawal(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateAlerts(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateExchange() error {
	if c.Exchange.BaseURL == "" {
		return ValidationError{
			Field:   "exchange.base_url",
			Message: "base URL is required",
		}
	}
	if c.Exchange.WebsocketURL == "" {
		return ValidationError{
			Field:   "exchange.websocket_url",
			Message: "websocket URL is required",
		}
	}
	if c.Exchange.APIKey == "" {
		return ValidationError{
			Field:   "exchange.api_key",
			Message: "API key is required",
		}
	}
	if c.Exchange.SecretKey == "" {
		return ValidationError{
			Field:   "exchange.secret_key",
			Message: "secret key is required",
		}
	}
	if c.Exchange.TimeoutSeconds < 1 || c.Exchange.TimeoutSeconds > 300 {
		return ValidationError{
			Field:   "exchange.timeout_seconds",
			Value:   c.Exchange.TimeoutSeconds,
			Message: "must be between 1 and 300",
		}
	}
	return nil
}

func (c *Config) validateMarket() error {
	if c.Market.Pair == "" {
		return ValidationError{
			Field:   "market.pair",
			Message: "trading pair is required",
		}
	}
	for field, value := range map[string]string{
		"market.risk_asset":   c.Market.RiskAsset,
		"market.stable_asset": c.Market.StableAsset,
		"market.quote_asset":  c.Market.QuoteAsset,
	} {
		if value == "" {
			return ValidationError{
				Field:   field,
				Message: "asset symbol is required",
			}
		}
	}
	if c.Market.MinOrderSize <= 0 {
		return ValidationError{
			Field:   "market.min_order_size",
			Value:   c.Market.MinOrderSize,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateStrategy() error {
	if c.Strategy.Leverage < 1 || c.Strategy.Leverage > 10 {
		return ValidationError{
			Field:   "strategy.leverage",
			Value:   c.Strategy.Leverage,
			Message: "must be between 1 and 10",
		}
	}
	if c.Strategy.MinCollateralization <= 1 {
		return ValidationError{
			Field:   "strategy.min_collateralization",
			Value:   c.Strategy.MinCollateralization,
			Message: "must be greater than 1",
		}
	}
	if c.Strategy.RequiredReturn <= 0 || c.Strategy.RequiredReturn >= 1 {
		return ValidationError{
			Field:   "strategy.required_return",
			Value:   c.Strategy.RequiredReturn,
			Message: "must be in (0, 1)",
		}
	}
	if c.Strategy.LossTolerance <= 0 || c.Strategy.LossTolerance >= 1 {
		return ValidationError{
			Field:   "strategy.loss_tolerance",
			Value:   c.Strategy.LossTolerance,
			Message: "must be in (0, 1)",
		}
	}
	if c.Strategy.EntryDepreciation < 0 || c.Strategy.EntryDepreciation >= 1 {
		return ValidationError{
			Field:   "strategy.entry_depreciation",
			Value:   c.Strategy.EntryDepreciation,
			Message: "must be in [0, 1)",
		}
	}
	if c.Strategy.MaxRequotes < 1 || c.Strategy.MaxRequotes > 100 {
		return ValidationError{
			Field:   "strategy.max_requotes",
			Value:   c.Strategy.MaxRequotes,
			Message: "must be between 1 and 100",
		}
	}
	return nil
}

func (c *Config) validateWithdrawal() error {
	if !c.Withdrawal.Enabled {
		return nil
	}
	if c.Withdrawal.MinBalance <= 0 {
		return ValidationError{
			Field:   "withdrawal.min_balance",
			Value:   c.Withdrawal.MinBalance,
			Message: "must be positive when withdrawal is enabled",
		}
	}
	if c.Withdrawal.Address == "" {
		return ValidationError{
			Field:   "withdrawal.address",
			Message: "address is required when withdrawal is enabled",
		}
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.Telegram.Enabled {
		if c.Alerts.Telegram.BotToken == "" {
			return ValidationError{
				Field:   "alerts.telegram.bot_token",
				Message: "bot token is required when telegram is enabled",
			}
		}
		if c.Alerts.Telegram.ChatID == "" {
			return ValidationError{
				Field:   "alerts.telegram.chat_id",
				Message: "chat ID is required when telegram is enabled",
			}
		}
	}
	if c.Alerts.Slack.Enabled && c.Alerts.Slack.WebhookURL == "" {
		return ValidationError{
			Field:   "alerts.slack.webhook_url",
			Message: "webhook URL is required when slack is enabled",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// expandEnvVars expands ${VAR} references in the raw YAML content
func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
