package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ethereum ──
	setStr(&cfg.Ethereum.RPCURL, "ARBBOT_ETHEREUM_RPC_URL")
	setStr(&cfg.Ethereum.WSURL, "ARBBOT_ETHEREUM_WS_URL")
	setInt64(&cfg.Ethereum.ChainID, "ARBBOT_ETHEREUM_CHAIN_ID")
	setDuration(&cfg.Ethereum.PollInterval, "ARBBOT_ETHEREUM_POLL_INTERVAL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ARBBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBBOT_WALLET_KEY_PASSWORD")

	// ── Flash loan ──
	setStr(&cfg.FlashLoan.LendingPool, "ARBBOT_FLASH_LOAN_LENDING_POOL")
	setStr(&cfg.FlashLoan.Contract, "ARBBOT_FLASH_LOAN_CONTRACT")
	setInt64(&cfg.FlashLoan.FeeBps, "ARBBOT_FLASH_LOAN_FEE_BPS")
	setFloat64(&cfg.FlashLoan.MaxBorrow, "ARBBOT_FLASH_LOAN_MAX_BORROW")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinProfit, "ARBBOT_ARBITRAGE_MIN_PROFIT")
	setInt(&cfg.Arbitrage.MaxHops, "ARBBOT_ARBITRAGE_MAX_HOPS")
	setInt64(&cfg.Arbitrage.SlippageBps, "ARBBOT_ARBITRAGE_SLIPPAGE_BPS")
	setDuration(&cfg.Arbitrage.EvaluationTimeout, "ARBBOT_ARBITRAGE_EVALUATION_TIMEOUT")
	setDuration(&cfg.Arbitrage.CycleDeadline, "ARBBOT_ARBITRAGE_CYCLE_DEADLINE")
	setInt(&cfg.Arbitrage.MaxConcurrentEvaluations, "ARBBOT_ARBITRAGE_MAX_CONCURRENT_EVALUATIONS")
	setDuration(&cfg.Arbitrage.ScanInterval, "ARBBOT_ARBITRAGE_SCAN_INTERVAL")

	// ── Gas ──
	setStr(&cfg.Gas.Strategy, "ARBBOT_GAS_STRATEGY")
	setFloat64(&cfg.Gas.MaxFeeGwei, "ARBBOT_GAS_MAX_FEE_GWEI")
	setFloat64(&cfg.Gas.BaseFeeMultiplier, "ARBBOT_GAS_BASE_FEE_MULTIPLIER")
	setFloat64(&cfg.Gas.PriorityFeeGwei, "ARBBOT_GAS_PRIORITY_FEE_GWEI")
	setUint64(&cfg.Gas.GasLimit, "ARBBOT_GAS_GAS_LIMIT")

	// ── Security ──
	setInt(&cfg.Security.MinPriceSources, "ARBBOT_SECURITY_MIN_PRICE_SOURCES")
	setFloat64(&cfg.Security.MaxPriceDeviation, "ARBBOT_SECURITY_MAX_PRICE_DEVIATION")
	setFloat64(&cfg.Security.MaxExecutionSlippage, "ARBBOT_SECURITY_MAX_EXECUTION_SLIPPAGE")
	setBool(&cfg.Security.SimulateTransactions, "ARBBOT_SECURITY_SIMULATE_TRANSACTIONS")
	setDuration(&cfg.Security.TransactionTimeout, "ARBBOT_SECURITY_TRANSACTION_TIMEOUT")

	// ── Submission ──
	setBool(&cfg.Submission.UseRelay, "ARBBOT_SUBMISSION_USE_RELAY")
	setStr(&cfg.Submission.RelayURL, "ARBBOT_SUBMISSION_RELAY_URL")
	setFloat64(&cfg.Submission.MaxValidatorTipGwei, "ARBBOT_SUBMISSION_MAX_VALIDATOR_TIP_GWEI")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBBOT_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBBOT_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBBOT_REDIS_DB")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ARBBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBBOT_MODE")
	setStr(&cfg.LogLevel, "ARBBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
