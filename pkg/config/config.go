package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the bot configuration. Every field has a CLI flag and
// an environment counterpart; CLI wins over environment wins over file.
type Config struct {
	RPC       RPCConfig       `yaml:"rpc"`
	Wallet    WalletConfig    `yaml:"wallet"`
	FlashLoan FlashLoanConfig `yaml:"flash_loan"`
	Jupiter   JupiterConfig   `yaml:"jupiter"`
	Jito      JitoConfig      `yaml:"jito"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Engine    EngineConfig    `yaml:"engine"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RPCConfig represents the chain endpoint configuration
type RPCConfig struct {
	URL        string        `yaml:"url"`
	WSURL      string        `yaml:"ws_url"`
	Commitment string        `yaml:"commitment"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WalletConfig represents the signer key configuration
type WalletConfig struct {
	KeypairPath string `yaml:"keypair_path"`
}

// FlashLoanConfig represents the on-chain flash-loan program configuration
type FlashLoanConfig struct {
	ProgramID string `yaml:"program_id"`
	TokenMint string `yaml:"token_mint"`
	FeeBps    uint16 `yaml:"fee_bps"`
}

// JupiterConfig represents the aggregator configuration
type JupiterConfig struct {
	BaseURL     string        `yaml:"base_url"`
	LiteURL     string        `yaml:"lite_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	CooldownMin time.Duration `yaml:"cooldown_min"`
	CooldownMax time.Duration `yaml:"cooldown_max"`
	MaxAccounts int           `yaml:"max_accounts"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig represents the token-bucket limiter configuration
type RateLimitConfig struct {
	Capacity     int     `yaml:"capacity"`
	RefillPerSec float64 `yaml:"refill_per_sec"`
}

// JitoConfig represents the block-engine submission configuration
type JitoConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Region      string `yaml:"region"`
	TipLamports uint64 `yaml:"tip_lamports"`
}

// OracleConfig represents the price-feed configuration. Feeds maps a mint
// address to its price-feed account address.
type OracleConfig struct {
	Feeds           map[string]string `yaml:"feeds"`
	MaxDeviationBps int64             `yaml:"max_deviation_bps"`
	CacheWindow     time.Duration     `yaml:"cache_window"`
	StaleSlots      uint64            `yaml:"stale_slots"`
}

// EngineConfig represents the orchestrator configuration
type EngineConfig struct {
	Pairs                  []string      `yaml:"pairs"`
	HotPairs               []string      `yaml:"hot_pairs"`
	BorrowAmount           uint64        `yaml:"borrow_amount"`
	ProbeSizes             []uint64      `yaml:"probe_sizes"`
	MinProfitBps           int32         `yaml:"min_profit_bps"`
	SlippageBps            int           `yaml:"slippage_bps"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	PriorityFeeMicro       uint64        `yaml:"priority_fee_micro"`
	ComputeUnitLimit       uint32        `yaml:"compute_unit_limit"`
	ColdBatchSize          int           `yaml:"cold_batch_size"`
	TriangularBatchSize    int           `yaml:"triangular_batch_size"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	DynamicPairMaxFailures int           `yaml:"dynamic_pair_max_failures"`
	DryRun                 bool          `yaml:"dry_run"`
	Verbose                bool          `yaml:"verbose"`
}

// DiscoveryConfig represents the pool-discovery and backrun configuration
type DiscoveryConfig struct {
	Enabled           bool          `yaml:"enabled"`
	PairListURL       string        `yaml:"pair_list_url"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxProbesPerCycle int           `yaml:"max_probes_per_cycle"`
	SubscribeStagger  time.Duration `yaml:"subscribe_stagger"`
	Backrun           BackrunConfig `yaml:"backrun"`
}

// BackrunConfig represents the backrun listener configuration
type BackrunConfig struct {
	Enabled           bool   `yaml:"enabled"`
	LargeUSDCAmount   uint64 `yaml:"large_usdc_amount"`
	LargeNativeAmount uint64 `yaml:"large_native_amount"`
	ParsesPerWindow   int    `yaml:"parses_per_window"`
}

// MetricsConfig represents the metrics export configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			URL:        "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
			Timeout:    8 * time.Second,
		},
		FlashLoan: FlashLoanConfig{
			FeeBps: 9,
		},
		Jupiter: JupiterConfig{
			BaseURL:     "https://quote-api.jup.ag/v6",
			LiteURL:     "https://lite-api.jup.ag/swap/v1",
			Timeout:     8 * time.Second,
			MaxRetries:  1,
			BackoffBase: 500 * time.Millisecond,
			CooldownMin: 60 * time.Second,
			CooldownMax: 120 * time.Second,
			MaxAccounts: 40,
			RateLimit: RateLimitConfig{
				Capacity:     10,
				RefillPerSec: 2,
			},
		},
		Jito: JitoConfig{
			Region:      "default",
			TipLamports: 100_000,
		},
		Oracle: OracleConfig{
			Feeds: map[string]string{
				// mint -> price-feed account
				"So11111111111111111111111111111111111111112":  "H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG",
				"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "Gnt27xtC473ZT2Mw5u8wZ68Z3gULkSTb5DuxJy7eJotD",
				"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "E4v1BBgoso9s64TQvmyownAVJbhbEPGyzA3qn4n46qj9",
			},
			MaxDeviationBps: 100,
			CacheWindow:     5 * time.Second,
			StaleSlots:      75,
		},
		Engine: EngineConfig{
			BorrowAmount:           100_000_000, // 100 USDC
			ProbeSizes:             []uint64{50_000_000, 500_000_000},
			MinProfitBps:           5,
			SlippageBps:            50,
			PollInterval:           2 * time.Second,
			PriorityFeeMicro:       25_000,
			ComputeUnitLimit:       400_000,
			ColdBatchSize:          8,
			TriangularBatchSize:    10,
			MaxConsecutiveFailures: 10,
			DynamicPairMaxFailures: 5,
		},
		Discovery: DiscoveryConfig{
			Enabled:           true,
			PairListURL:       "https://api.dexscreener.com",
			PollInterval:      30 * time.Second,
			MaxProbesPerCycle: 3,
			SubscribeStagger:  500 * time.Millisecond,
			Backrun: BackrunConfig{
				Enabled:           true,
				LargeUSDCAmount:   1_000_000_000, // 1000 USDC
				LargeNativeAmount: 5_000_000_000, // 5 SOL
				ParsesPerWindow:   3,
			},
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFile merges a yaml configuration file on top of the defaults
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for fatal omissions
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Wallet.KeypairPath == "" {
		return fmt.Errorf("wallet keypair path is required")
	}
	if c.FlashLoan.ProgramID == "" {
		return fmt.Errorf("flash-loan program id is required")
	}
	if c.FlashLoan.TokenMint == "" {
		return fmt.Errorf("flash-loan token mint is required")
	}
	if c.Engine.BorrowAmount == 0 {
		return fmt.Errorf("borrow amount must be positive")
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}
