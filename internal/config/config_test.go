package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "monitor"
log_level = "debug"

[ethereum]
rpc_url = "https://eth.example.com"
ws_url = "wss://eth.example.com"
chain_id = 1
poll_interval = "3s"

[flash_loan]
lending_pool = "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
contract = "0x1111111111111111111111111111111111111111"
fee_bps = 9
max_borrow = 50

[[tokens]]
symbol = "WETH"
address = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
decimals = 18
base = true

[[tokens]]
symbol = "USDC"
address = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
decimals = 6

[[venues]]
name = "uniswap"
model = "constant_product"
fee_bps = 30
enabled = true

  [[venues.pools]]
  address = "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"
  token0 = "WETH"
  token1 = "USDC"

[[venues]]
name = "sushiswap"
model = "constant_product"
fee_bps = 30
enabled = true

[arbitrage]
min_profit = 0.02
slippage_bps = 40
evaluation_timeout = "750ms"

[gas]
strategy = "dynamic"
max_fee_gwei = 80
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	return cfg
}

func TestLoad_MergesOntoDefaults(t *testing.T) {
	cfg := validConfig(t)

	// Explicit values win.
	assert.Equal(t, "https://eth.example.com", cfg.Ethereum.RPCURL)
	assert.Equal(t, 3*time.Second, cfg.Ethereum.PollInterval.Duration)
	assert.Equal(t, 0.02, cfg.Arbitrage.MinProfit)
	assert.Equal(t, int64(40), cfg.Arbitrage.SlippageBps)
	assert.Equal(t, 750*time.Millisecond, cfg.Arbitrage.EvaluationTimeout.Duration)
	assert.Equal(t, "dynamic", cfg.Gas.Strategy)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched fields keep their defaults.
	assert.Equal(t, 3, cfg.Arbitrage.MaxHops)
	assert.Equal(t, 30*time.Second, cfg.Arbitrage.CooldownBase.Duration)
	assert.Equal(t, 2.0, cfg.Gas.PriorityFeeGwei)
	assert.Equal(t, uint64(500_000), cfg.Gas.GasLimit)
	assert.True(t, cfg.Security.SimulateTransactions)

	require.Len(t, cfg.Venues, 2)
	require.Len(t, cfg.Venues[0].Pools, 1)
	assert.Equal(t, "WETH", cfg.Venues[0].Pools[0].Token0)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ARBBOT_ETHEREUM_RPC_URL", "https://override.example.com")
	t.Setenv("ARBBOT_ARBITRAGE_MIN_PROFIT", "0.5")
	t.Setenv("ARBBOT_ARBITRAGE_SCAN_INTERVAL", "250ms")
	t.Setenv("ARBBOT_SECURITY_SIMULATE_TRANSACTIONS", "false")
	t.Setenv("ARBBOT_MODE", "trade")
	t.Setenv("ARBBOT_NOTIFY_EVENTS", "committed, reverted")

	cfg := validConfig(t)
	assert.Equal(t, "https://override.example.com", cfg.Ethereum.RPCURL)
	assert.Equal(t, 0.5, cfg.Arbitrage.MinProfit)
	assert.Equal(t, 250*time.Millisecond, cfg.Arbitrage.ScanInterval.Duration)
	assert.False(t, cfg.Security.SimulateTransactions)
	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, []string{"committed", "reverted"}, cfg.Notify.Events)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc url", func(c *Config) { c.Ethereum.RPCURL = "" }},
		{"bad chain id", func(c *Config) { c.Ethereum.ChainID = 0 }},
		{"unknown mode", func(c *Config) { c.Mode = "yolo" }},
		{"trade without key", func(c *Config) { c.Mode = "trade" }},
		{"one token", func(c *Config) { c.Tokens = c.Tokens[:1] }},
		{"no base token", func(c *Config) {
			for i := range c.Tokens {
				c.Tokens[i].Base = false
			}
		}},
		{"unnamed venue", func(c *Config) { c.Venues[0].Name = "" }},
		{"unknown pricing model", func(c *Config) { c.Venues[0].Model = "weighted" }},
		{"too few enabled venues", func(c *Config) { c.Venues[1].Enabled = false }},
		{"zero min profit", func(c *Config) { c.Arbitrage.MinProfit = 0 }},
		{"zero max hops", func(c *Config) { c.Arbitrage.MaxHops = 0 }},
		{"zero workers", func(c *Config) { c.Arbitrage.MaxConcurrentEvaluations = 0 }},
		{"unknown gas strategy", func(c *Config) { c.Gas.Strategy = "cheapest" }},
		{"zero fee ceiling", func(c *Config) { c.Gas.MaxFeeGwei = 0 }},
		{"zero gas limit", func(c *Config) { c.Gas.GasLimit = 0 }},
		{"relay without url", func(c *Config) { c.Submission.UseRelay = true }},
		{"postgres without dsn", func(c *Config) { c.Postgres.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBaseTokens(t *testing.T) {
	cfg := validConfig(t)
	assert.Equal(t, []string{"WETH"}, cfg.BaseTokens())
}
