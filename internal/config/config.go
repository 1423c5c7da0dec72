// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/flashpath/arbbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBBOT_* environment variables.
// It is loaded and validated once at startup and passed by reference into
// every component; nothing mutates it afterwards.
type Config struct {
	Ethereum   EthereumConfig   `toml:"ethereum"`
	Wallet     WalletConfig     `toml:"wallet"`
	FlashLoan  FlashLoanConfig  `toml:"flash_loan"`
	Tokens     []TokenConfig    `toml:"tokens"`
	Venues     []VenueConfig    `toml:"venues"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Gas        GasConfig        `toml:"gas"`
	Security   SecurityConfig   `toml:"security"`
	Submission SubmissionConfig `toml:"submission"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// EthereumConfig holds node endpoints and chain parameters.
type EthereumConfig struct {
	RPCURL            string   `toml:"rpc_url"`
	WSURL             string   `toml:"ws_url"`
	ChainID           int64    `toml:"chain_id"`
	PollInterval      duration `toml:"poll_interval"`
	RefreshRateLimit  float64  `toml:"refresh_rate_limit"`
	RefreshRateBurst  int      `toml:"refresh_rate_burst"`
	WSHandshakeTimout duration `toml:"ws_handshake_timeout"`
}

// WalletConfig holds the bot's signing key. Either a raw hex key (env only)
// or an encrypted key file plus password.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// FlashLoanConfig holds the lending protocol parameters.
type FlashLoanConfig struct {
	// LendingPool is the flash-loan provider contract address.
	LendingPool string `toml:"lending_pool"`
	// Contract is the deployed execution contract address.
	Contract string `toml:"contract"`
	// FeeBps is the loan fee in basis points (Aave charges 9).
	FeeBps int64 `toml:"fee_bps"`
	// MaxBorrow caps the principal per trade, in whole units of the
	// funding token.
	MaxBorrow float64 `toml:"max_borrow"`
}

// TokenConfig describes one tradable token.
type TokenConfig struct {
	Symbol   string `toml:"symbol"`
	Address  string `toml:"address"`
	Decimals uint8  `toml:"decimals"`
	// Base marks the token as a funding asset the scanner roots cycles at.
	Base bool `toml:"base"`
}

// VenueConfig describes one AMM venue.
type VenueConfig struct {
	Name    string `toml:"name"`
	Model   string `toml:"model"` // "constant_product" or "stable_swap"
	Router  string `toml:"router"`
	Factory string `toml:"factory"`
	FeeBps  int64  `toml:"fee_bps"`
	Enabled bool   `toml:"enabled"`
	// Pools lists the pool contracts to track on this venue.
	Pools []PoolConfig `toml:"pools"`
}

// PoolConfig identifies one pool on a venue by address and token pair.
type PoolConfig struct {
	Address string `toml:"address"`
	Token0  string `toml:"token0"`
	Token1  string `toml:"token1"`
}

// ArbitrageConfig holds the strategy engine parameters.
type ArbitrageConfig struct {
	// MinProfit is the selection threshold in whole units of the funding
	// token, applied to slippage-adjusted net profit.
	MinProfit float64 `toml:"min_profit"`
	// MaxHops bounds cycle length during scanning.
	MaxHops int `toml:"max_hops"`
	// SlippageBps is the slippage tolerance applied per evaluation.
	SlippageBps int64 `toml:"slippage_bps"`
	// EvaluationTimeout is the per-candidate evaluation budget.
	EvaluationTimeout duration `toml:"evaluation_timeout"`
	// CycleDeadline cancels all outstanding evaluations for the scan cycle.
	CycleDeadline duration `toml:"cycle_deadline"`
	// MaxConcurrentEvaluations bounds the evaluation worker pool.
	MaxConcurrentEvaluations int `toml:"max_concurrent_evaluations"`
	// ScanInterval is the pause between scan cycles when no new block
	// notification arrives.
	ScanInterval duration `toml:"scan_interval"`
	// CooldownBase is the initial backoff after a reverted or timed-out
	// candidate; it doubles per consecutive failure up to CooldownMax.
	CooldownBase duration `toml:"cooldown_base"`
	CooldownMax  duration `toml:"cooldown_max"`
	// StaleLookback is how old a pool entry may be and still count as live.
	StaleLookback duration `toml:"stale_lookback"`
}

// GasConfig holds fee quoting parameters.
type GasConfig struct {
	// Strategy is "fixed", "base_fee_multiplied", or "dynamic".
	Strategy string `toml:"strategy"`
	// MaxFeeGwei is the hard ceiling; requests needing more are abandoned.
	MaxFeeGwei float64 `toml:"max_fee_gwei"`
	// BaseFeeMultiplier scales the network base fee for the
	// base_fee_multiplied strategy.
	BaseFeeMultiplier float64 `toml:"base_fee_multiplier"`
	// PriorityFeeGwei is the default tip.
	PriorityFeeGwei float64 `toml:"priority_fee_gwei"`
	// GasLimit is the execution gas allowance per request.
	GasLimit uint64 `toml:"gas_limit"`
}

// SecurityConfig holds the pre-submission safety thresholds.
type SecurityConfig struct {
	// MinPriceSources is the number of independent venues that must quote
	// each pair on the path.
	MinPriceSources int `toml:"min_price_sources"`
	// MaxPriceDeviation is the maximum pairwise deviation between venue
	// quotes for the same pair, as a fraction (0.01 = 1%).
	MaxPriceDeviation float64 `toml:"max_price_deviation"`
	// MaxExecutionSlippage is the worst-case slippage an evaluation may
	// imply, as a fraction.
	MaxExecutionSlippage float64 `toml:"max_execution_slippage"`
	// SimulateTransactions runs the execution contract state machine
	// locally against the snapshot before submitting.
	SimulateTransactions bool `toml:"simulate_transactions"`
	// TransactionTimeout bounds how long a submitted request is tracked
	// before it is recorded as timed out.
	TransactionTimeout duration `toml:"transaction_timeout"`
}

// SubmissionConfig selects the broadcast path.
type SubmissionConfig struct {
	// UseRelay routes signed requests through the private relay instead of
	// the public transaction pool.
	UseRelay bool   `toml:"use_relay"`
	RelayURL string `toml:"relay_url"`
	// MaxValidatorTipGwei caps the tip offered to the relay.
	MaxValidatorTipGwei float64 `toml:"max_validator_tip_gwei"`
	// LockTTL is how long the distributed submission lock is held.
	LockTTL duration `toml:"lock_ttl"`
}

// PostgresConfig holds the outcome journal connection parameters.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds the cooldown/lock store connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// S3Config holds the report archive parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration the TOML file is merged onto.
func Defaults() Config {
	return Config{
		Ethereum: EthereumConfig{
			ChainID:           1,
			PollInterval:      duration{2 * time.Second},
			RefreshRateLimit:  20,
			RefreshRateBurst:  40,
			WSHandshakeTimout: duration{10 * time.Second},
		},
		FlashLoan: FlashLoanConfig{
			FeeBps:    9,
			MaxBorrow: 100,
		},
		Arbitrage: ArbitrageConfig{
			MinProfit:                0.01,
			MaxHops:                  3,
			SlippageBps:              50,
			EvaluationTimeout:        duration{500 * time.Millisecond},
			CycleDeadline:            duration{3 * time.Second},
			MaxConcurrentEvaluations: 5,
			ScanInterval:             duration{time.Second},
			CooldownBase:             duration{30 * time.Second},
			CooldownMax:              duration{10 * time.Minute},
			StaleLookback:            duration{30 * time.Second},
		},
		Gas: GasConfig{
			Strategy:          "base_fee_multiplied",
			MaxFeeGwei:        100,
			BaseFeeMultiplier: 1.2,
			PriorityFeeGwei:   2,
			GasLimit:          500_000,
		},
		Security: SecurityConfig{
			MinPriceSources:      2,
			MaxPriceDeviation:    0.01,
			MaxExecutionSlippage: 0.01,
			SimulateTransactions: true,
			TransactionTimeout:   duration{60 * time.Second},
		},
		Submission: SubmissionConfig{
			MaxValidatorTipGwei: 2,
			LockTTL:             duration{30 * time.Second},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency. It is called
// once after Load; components assume a validated config.
func (c *Config) Validate() error {
	if c.Ethereum.RPCURL == "" {
		return fmt.Errorf("config: ethereum.rpc_url is required")
	}
	if c.Ethereum.ChainID <= 0 {
		return fmt.Errorf("config: ethereum.chain_id must be positive")
	}
	switch strings.ToLower(c.Mode) {
	case "monitor", "trade":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}
	if c.Mode == "trade" && c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		return fmt.Errorf("config: trade mode requires wallet.private_key or wallet.encrypted_key_path")
	}
	if len(c.Tokens) < 2 {
		return fmt.Errorf("config: at least two tokens are required")
	}
	base := 0
	for i, t := range c.Tokens {
		if t.Symbol == "" || t.Address == "" {
			return fmt.Errorf("config: tokens[%d] needs symbol and address", i)
		}
		if t.Base {
			base++
		}
	}
	if base == 0 {
		return fmt.Errorf("config: at least one token must be marked base")
	}
	enabled := 0
	for i, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("config: venues[%d] needs a name", i)
		}
		if _, ok := domain.ParsePricingModel(v.Model); !ok {
			return fmt.Errorf("config: venue %q has unknown model %q", v.Name, v.Model)
		}
		if v.Enabled {
			enabled++
		}
	}
	if enabled < c.Security.MinPriceSources {
		return fmt.Errorf("config: %d enabled venues cannot satisfy min_price_sources=%d",
			enabled, c.Security.MinPriceSources)
	}
	if c.Arbitrage.MinProfit <= 0 {
		return fmt.Errorf("config: arbitrage.min_profit must be greater than zero")
	}
	if c.Arbitrage.MaxHops <= 0 {
		return fmt.Errorf("config: arbitrage.max_hops must be greater than zero")
	}
	if c.Arbitrage.MaxConcurrentEvaluations <= 0 {
		return fmt.Errorf("config: arbitrage.max_concurrent_evaluations must be greater than zero")
	}
	switch c.Gas.Strategy {
	case "fixed", "base_fee_multiplied", "dynamic":
	default:
		return fmt.Errorf("config: unknown gas strategy %q", c.Gas.Strategy)
	}
	if c.Gas.MaxFeeGwei <= 0 {
		return fmt.Errorf("config: gas.max_fee_gwei must be greater than zero")
	}
	if c.Gas.GasLimit == 0 {
		return fmt.Errorf("config: gas.gas_limit must be greater than zero")
	}
	if c.Submission.UseRelay && c.Submission.RelayURL == "" {
		return fmt.Errorf("config: submission.relay_url is required when use_relay is set")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required when postgres is enabled")
	}
	return nil
}

// BaseTokens returns the symbols of tokens marked as funding assets.
func (c *Config) BaseTokens() []string {
	var out []string
	for _, t := range c.Tokens {
		if t.Base {
			out = append(out, t.Symbol)
		}
	}
	return out
}
