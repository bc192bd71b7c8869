package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `exchange:
  base_url: "https://api.example.com"
  websocket_url: "wss://api.example.com/v1/ws"
  api_key: "test-key"
  secret_key: "test-secret"

market:
  pair: "WETH-DAI"
  risk_asset: "WETH"
  stable_asset: "USDC"
  quote_asset: "DAI"
  min_order_size: 0.1

strategy:
  leverage: 4
  min_collateralization: 1.25
  required_return: 0.02
  loss_tolerance: 0.01
  entry_depreciation: 0.01

storage:
  database_path: "test.db"

system:
  log_level: "INFO"
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "WETH-DAI", cfg.Market.Pair)
	assert.Equal(t, 4.0, cfg.Strategy.Leverage)
	assert.Equal(t, 1.25, cfg.Strategy.MinCollateralization)
	assert.Equal(t, "test-key", cfg.Exchange.APIKey)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Exchange.TimeoutSeconds)
	assert.Equal(t, 1, cfg.Exchange.ReconnectWaitSeconds)
	assert.Equal(t, 5, cfg.Exchange.OrderPollIntervalSecs)
	assert.Equal(t, 5, cfg.Strategy.MaxRequotes)
	assert.Equal(t, 600, cfg.Strategy.CooldownMinutes)
	assert.Equal(t, 120, cfg.Strategy.SettlementDelaySeconds)
	assert.Equal(t, 9090, cfg.Telemetry.MetricsPort)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	os.Setenv("TEST_VENUE_API_KEY", "key-from-env")
	defer os.Unsetenv("TEST_VENUE_API_KEY")

	content := `exchange:
  base_url: "https://api.example.com"
  websocket_url: "wss://api.example.com/v1/ws"
  api_key: "${TEST_VENUE_API_KEY}"
  secret_key: "test-secret"

market:
  pair: "WETH-DAI"
  risk_asset: "WETH"
  stable_asset: "USDC"
  quote_asset: "DAI"
  min_order_size: 0.1

strategy:
  leverage: 4
  min_collateralization: 1.25
  required_return: 0.02
  loss_tolerance: 0.01
  entry_depreciation: 0.01
`
	path := writeTempConfig(t, content)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.Exchange.APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidateStrategy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "leverage too high",
			mutate: func(c *Config) { c.Strategy.Leverage = 20 },
			errMsg: "strategy.leverage",
		},
		{
			name:   "collateralization below one",
			mutate: func(c *Config) { c.Strategy.MinCollateralization = 0.9 },
			errMsg: "strategy.min_collateralization",
		},
		{
			name:   "required return out of range",
			mutate: func(c *Config) { c.Strategy.RequiredReturn = 1.5 },
			errMsg: "strategy.required_return",
		},
		{
			name:   "loss tolerance zero",
			mutate: func(c *Config) { c.Strategy.LossTolerance = 0 },
			errMsg: "strategy.loss_tolerance",
		},
		{
			name:   "negative entry depreciation",
			mutate: func(c *Config) { c.Strategy.EntryDepreciation = -0.1 },
			errMsg: "strategy.entry_depreciation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, validConfigYAML)
			cfg, err := LoadConfig(path)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateWithdrawal(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	cfg.Withdrawal.Enabled = true
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "withdrawal.min_balance")

	cfg.Withdrawal.MinBalance = 100
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "withdrawal.address")

	cfg.Withdrawal.Address = "0xabc"
	assert.NoError(t, cfg.Validate())
}

func TestValidateAlerts(t *testing.T) {
	path := writeTempConfig(t, validConfigYAML)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	cfg.Alerts.Telegram.Enabled = true
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.telegram.bot_token")

	cfg.Alerts.Telegram.Enabled = false
	cfg.Alerts.Slack.Enabled = true
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.slack.webhook_url")
}
