package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/flashpath/arbbot/internal/blob/s3"
	rediscache "github.com/flashpath/arbbot/internal/cache/redis"
	"github.com/flashpath/arbbot/internal/chain"
	"github.com/flashpath/arbbot/internal/config"
	"github.com/flashpath/arbbot/internal/crypto"
	"github.com/flashpath/arbbot/internal/domain"
	"github.com/flashpath/arbbot/internal/gas"
	"github.com/flashpath/arbbot/internal/notify"
	"github.com/flashpath/arbbot/internal/poolcache"
	"github.com/flashpath/arbbot/internal/scanner"
	"github.com/flashpath/arbbot/internal/security"
	"github.com/flashpath/arbbot/internal/store/postgres"
	"github.com/flashpath/arbbot/internal/strategy"
	"github.com/flashpath/arbbot/internal/submit"
	"github.com/flashpath/arbbot/internal/txbuilder"
)

// Dependencies bundles everything the operating modes need. Trade-only
// fields are nil in monitor mode; optional backends are nil when disabled.
type Dependencies struct {
	Universe *domain.Universe
	Chain    *chain.Client
	Cache    *poolcache.Cache
	Scanner  *scanner.Scanner
	Engine   *strategy.Engine
	Guard    *security.Validator
	Gas      *gas.Optimizer
	Notifier *notify.Notifier

	// Trade mode only.
	Signer     *crypto.Signer
	Builder    *txbuilder.Builder
	Submitter  *submit.Submitter
	SubmitLock *rediscache.SubmissionLock

	// Optional backends.
	Outcomes domain.OutcomeStore
	Archiver *s3blob.Archiver
}

// Wire constructs every concrete dependency from the configuration and
// returns a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	universe, err := buildUniverse(cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: universe: %w", err))
	}
	deps.Universe = universe

	// --- Chain access ---
	chainClient, err := chain.Dial(ctx, cfg.Ethereum.RPCURL, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient

	// --- Pool state cache ---
	tracked, err := trackedPools(cfg, universe)
	if err != nil {
		return fail(fmt.Errorf("wire: pools: %w", err))
	}
	deps.Cache = poolcache.New(chainClient, universe, tracked,
		cfg.Ethereum.RefreshRateLimit, cfg.Ethereum.RefreshRateBurst,
		cfg.Arbitrage.StaleLookback.Duration, logger)

	deps.Scanner = scanner.New(universe.BaseTokens(), logger)

	// --- Redis-backed coordination, in-memory fallback ---
	var cooldowns strategy.Cooldowns
	if cfg.Redis.Enabled {
		redisClient, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		cooldowns = rediscache.NewSharedCooldowns(redisClient,
			cfg.Arbitrage.CooldownBase.Duration, cfg.Arbitrage.CooldownMax.Duration, logger)
		deps.SubmitLock = rediscache.NewSubmissionLock(redisClient, cfg.Submission.LockTTL.Duration)
	} else {
		cooldowns = strategy.NewCooldownTracker(
			cfg.Arbitrage.CooldownBase.Duration, cfg.Arbitrage.CooldownMax.Duration)
	}

	deps.Engine = strategy.NewEngine(universe, strategy.Params{
		MinProfit:         cfg.Arbitrage.MinProfit,
		Principal:         cfg.FlashLoan.MaxBorrow,
		LoanFeeBps:        cfg.FlashLoan.FeeBps,
		SlippageBps:       cfg.Arbitrage.SlippageBps,
		EvaluationTimeout: cfg.Arbitrage.EvaluationTimeout.Duration,
		CycleDeadline:     cfg.Arbitrage.CycleDeadline.Duration,
		MaxConcurrent:     cfg.Arbitrage.MaxConcurrentEvaluations,
	}, cooldowns, logger)

	deps.Guard = security.NewValidator(universe, security.Thresholds{
		MinPriceSources:      cfg.Security.MinPriceSources,
		MaxPriceDeviation:    cfg.Security.MaxPriceDeviation,
		MaxExecutionSlippage: cfg.Security.MaxExecutionSlippage,
		StaleLookback:        cfg.Arbitrage.StaleLookback.Duration,
	}, logger)

	gasStrategy, ok := gas.ParseStrategy(cfg.Gas.Strategy)
	if !ok {
		return fail(fmt.Errorf("wire: unknown gas strategy %q", cfg.Gas.Strategy))
	}
	deps.Gas = gas.NewOptimizer(chainClient, gas.Params{
		Strategy:          gasStrategy,
		MaxFeeGwei:        cfg.Gas.MaxFeeGwei,
		BaseFeeMultiplier: cfg.Gas.BaseFeeMultiplier,
		PriorityFeeGwei:   cfg.Gas.PriorityFeeGwei,
		GasLimit:          cfg.Gas.GasLimit,
	}, logger)

	// --- Signing and submission (trade mode) ---
	if cfg.Mode == "trade" {
		keyHex, err := crypto.ResolveKey(crypto.KeySource{
			RawHex:      cfg.Wallet.PrivateKey,
			KeyfilePath: cfg.Wallet.EncryptedKeyPath,
			Password:    cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: key: %w", err))
		}
		signer, err := crypto.NewSigner(keyHex, cfg.Ethereum.ChainID)
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
		deps.Signer = signer

		if !common.IsHexAddress(cfg.FlashLoan.Contract) {
			return fail(fmt.Errorf("wire: flash_loan.contract %q is not an address", cfg.FlashLoan.Contract))
		}
		deps.Builder = txbuilder.NewBuilder(signer, chainClient, txbuilder.Options{
			Contract:    common.HexToAddress(cfg.FlashLoan.Contract),
			ChainID:     cfg.Ethereum.ChainID,
			SlippageBps: cfg.Arbitrage.SlippageBps,
			Deadline:    cfg.Security.TransactionTimeout.Duration,
			Private:     cfg.Submission.UseRelay,
		}, logger)

		var relay *submit.Relay
		if cfg.Submission.UseRelay {
			relay = submit.NewRelay(cfg.Submission.RelayURL)
		}
		deps.Submitter = submit.NewSubmitter(chainClient, relay, chainClient,
			cfg.Security.TransactionTimeout.Duration, logger)
	}

	// --- Outcome journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
		deps.Outcomes = postgres.NewOutcomeStore(pgClient.Pool())
	}

	// --- Report archive ---
	if cfg.S3.Enabled {
		if deps.Outcomes == nil {
			return fail(fmt.Errorf("wire: s3 archiving requires postgres"))
		}
		blobClient, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(blobClient, deps.Outcomes, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildUniverse resolves config tokens and venues into the immutable
// registry the pipeline shares.
func buildUniverse(cfg *config.Config) (*domain.Universe, error) {
	tokens := make([]domain.Token, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %s address %q is not an address", t.Symbol, t.Address)
		}
		tokens = append(tokens, domain.Token{
			Symbol:   t.Symbol,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
		})
	}
	venues := make([]domain.Venue, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		model, ok := domain.ParsePricingModel(v.Model)
		if !ok {
			return nil, fmt.Errorf("venue %s has unknown model %q", v.Name, v.Model)
		}
		venue := domain.Venue{
			Name:    v.Name,
			Model:   model,
			FeeBps:  v.FeeBps,
			Enabled: v.Enabled,
		}
		if v.Router != "" {
			if !common.IsHexAddress(v.Router) {
				return nil, fmt.Errorf("venue %s router %q is not an address", v.Name, v.Router)
			}
			venue.Router = common.HexToAddress(v.Router)
		}
		if v.Factory != "" {
			if !common.IsHexAddress(v.Factory) {
				return nil, fmt.Errorf("venue %s factory %q is not an address", v.Name, v.Factory)
			}
			venue.Factory = common.HexToAddress(v.Factory)
		}
		venues = append(venues, venue)
	}
	return domain.NewUniverse(tokens, venues, cfg.BaseTokens())
}

// trackedPools resolves the configured pool list into cache entries.
func trackedPools(cfg *config.Config, universe *domain.Universe) ([]poolcache.TrackedPool, error) {
	var tracked []poolcache.TrackedPool
	for _, v := range cfg.Venues {
		if !v.Enabled {
			continue
		}
		venue, ok := universe.VenueByName(v.Name)
		if !ok {
			continue
		}
		for _, p := range v.Pools {
			t0, ok := universe.TokenBySymbol(p.Token0)
			if !ok {
				return nil, fmt.Errorf("venue %s pool references unknown token %q", v.Name, p.Token0)
			}
			t1, ok := universe.TokenBySymbol(p.Token1)
			if !ok {
				return nil, fmt.Errorf("venue %s pool references unknown token %q", v.Name, p.Token1)
			}
			tp := poolcache.TrackedPool{
				Venue: venue,
				Pair:  domain.NewPair(t0.Address, t1.Address),
			}
			if p.Address != "" {
				if !common.IsHexAddress(p.Address) {
					return nil, fmt.Errorf("venue %s pool address %q is not an address", v.Name, p.Address)
				}
				tp.Pool = common.HexToAddress(p.Address)
			}
			tracked = append(tracked, tp)
		}
	}
	if len(tracked) == 0 {
		return nil, fmt.Errorf("no pools configured on enabled venues")
	}
	return tracked, nil
}
