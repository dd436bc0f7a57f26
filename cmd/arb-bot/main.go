package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/composer"
	"github.com/DimaJoyti/solana-flash-arb/internal/discovery"
	"github.com/DimaJoyti/solana-flash-arb/internal/engine"
	"github.com/DimaJoyti/solana-flash-arb/internal/flashloan"
	"github.com/DimaJoyti/solana-flash-arb/internal/gateway"
	"github.com/DimaJoyti/solana-flash-arb/internal/jito"
	"github.com/DimaJoyti/solana-flash-arb/internal/jupiter"
	"github.com/DimaJoyti/solana-flash-arb/internal/metrics"
	"github.com/DimaJoyti/solana-flash-arb/internal/oracle"
	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	v := viper.New()
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "arb-bot",
		Short:         "On-chain flash-loan arbitrage bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, v, configFile)
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to yaml config file")
	flags.String("rpc", "", "chain RPC endpoint")
	flags.String("ws", "", "chain WebSocket endpoint")
	flags.String("wallet", "", "path to signer keypair file")
	flags.StringSlice("pairs", nil, "static TARGET/QUOTE pairs")
	flags.Uint64("borrow-amount", 0, "default borrow amount in token base units")
	flags.Int32("min-profit-bps", 0, "minimum admissible profit in bps")
	flags.Int("slippage", 0, "slippage tolerance in bps")
	flags.Duration("poll-interval", 0, "main loop period")
	flags.Uint64("priority-fee", 0, "priority fee in micro-lamports per compute unit")
	flags.Uint32("compute-unit-limit", 0, "compute unit limit")
	flags.String("program-id", "", "flash-loan program id")
	flags.String("token-mint", "", "flash-loan token mint")
	flags.Bool("dry-run", false, "log opportunities without executing")
	flags.Bool("tip", false, "submit through the block engine with a tip")
	flags.String("tip-region", "default", "block-engine region (default|ny|amsterdam|frankfurt|tokyo|slc)")
	flags.Uint64("tip-lamports", 0, "tip size in lamports")
	flags.Bool("verbose", false, "debug logging")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.AddCommand(newAdminCmd(v, &configFile))
	return root
}

// resolveConfig merges file < environment < flags.
func resolveConfig(cmd *cobra.Command, v *viper.Viper, configFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	setString := func(key string, dst *string) {
		if v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}

	setString("rpc", &cfg.RPC.URL)
	setString("ws", &cfg.RPC.WSURL)
	setString("wallet", &cfg.Wallet.KeypairPath)
	setString("program-id", &cfg.FlashLoan.ProgramID)
	setString("token-mint", &cfg.FlashLoan.TokenMint)
	setString("tip-region", &cfg.Jito.Region)

	if pairs := v.GetStringSlice("pairs"); len(pairs) > 0 {
		cfg.Engine.Pairs = pairs
	}
	if n := v.GetUint64("borrow-amount"); n > 0 {
		cfg.Engine.BorrowAmount = n
	}
	if n := v.GetInt32("min-profit-bps"); n != 0 {
		cfg.Engine.MinProfitBps = n
	}
	if n := v.GetInt("slippage"); n > 0 {
		cfg.Engine.SlippageBps = n
	}
	if d := v.GetDuration("poll-interval"); d > 0 {
		cfg.Engine.PollInterval = d
	}
	if n := v.GetUint64("priority-fee"); n > 0 {
		cfg.Engine.PriorityFeeMicro = n
	}
	if n := v.GetUint32("compute-unit-limit"); n > 0 {
		cfg.Engine.ComputeUnitLimit = n
	}
	if v.GetBool("dry-run") {
		cfg.Engine.DryRun = true
	}
	if v.GetBool("tip") {
		cfg.Jito.Enabled = true
	}
	if n := v.GetUint64("tip-lamports"); n > 0 {
		cfg.Jito.TipLamports = n
	}
	if v.GetBool("verbose") {
		cfg.Engine.Verbose = true
		cfg.Logging.Level = "debug"
	}

	if len(cfg.Engine.Pairs) == 0 {
		cfg.Engine.Pairs = []string{"SOL/USDC", "JUP/USDC", "BONK/USDC", "WIF/USDC", "RAY/USDC", "JTO/USDC", "PYTH/USDC", "ORCA/USDC"}
		cfg.Engine.HotPairs = []string{"SOL/USDC", "JUP/USDC"}
	}

	return cfg, cfg.Validate()
}

func runBot(parent context.Context, cfg *config.Config) error {
	log := logger.New(logger.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wallet, err := blockchain.LoadWallet(cfg.Wallet.KeypairPath)
	if err != nil {
		return err
	}

	chain, err := blockchain.NewClient(ctx, cfg.RPC, log)
	if err != nil {
		return err
	}
	defer chain.Close()

	flash, err := buildFlashProgram(cfg)
	if err != nil {
		return err
	}

	jupClient := jupiter.NewClient(cfg.Jupiter, log)
	gw := gateway.New(jupClient, chain, cfg.Jupiter, log)

	oracleReader, err := oracle.NewReader(chain, cfg.Oracle, log)
	if err != nil {
		return err
	}

	botMetrics := metrics.New(log)
	botMetrics.StartSummaryLoop(ctx, time.Minute)
	if cfg.Metrics.Enabled {
		botMetrics.Serve(ctx, cfg.Metrics.Addr)
	}

	gas := arb.GasParams{
		PriorityFeeMicro: cfg.Engine.PriorityFeeMicro,
		ComputeUnitLimit: cfg.Engine.ComputeUnitLimit,
		TipLamports:      cfg.Jito.TipLamports,
		UseTip:           cfg.Jito.Enabled,
	}

	scanner := arb.NewTwoLegScanner(gw, log, cfg.Engine.MinProfitBps, cfg.Engine.SlippageBps, cfg.FlashLoan.FeeBps, gas)
	scanner.SetValidator(oracleReader)
	triangular := arb.NewTriangularScanner(gw, log, arb.DefaultTriangularRoutes(), cfg.Engine.TriangularBatchSize, cfg.Engine.MinProfitBps, cfg.Engine.SlippageBps, cfg.FlashLoan.FeeBps, gas)

	comp := composer.New(gw, chain, wallet, flash, composer.Config{
		ComputeUnitLimit: cfg.Engine.ComputeUnitLimit,
		PriorityFeeMicro: cfg.Engine.PriorityFeeMicro,
	}, log)

	var jitoClient *jito.Client
	if cfg.Jito.Enabled {
		jitoClient, err = jito.NewClient(cfg.Jito.Region, log)
		if err != nil {
			return err
		}
	}

	params := engine.Params{
		Config:     cfg,
		Logger:     log,
		Metrics:    botMetrics,
		Scanner:    scanner,
		Triangular: triangular,
		Composer:   comp,
		Chain:      chain,
		Signer:     wallet,
		Flash:      flash,
		TipAccount: jito.RandomTipAccount,
	}
	if jitoClient != nil {
		params.Jito = jitoClient
	}

	eng, err := engine.New(params)
	if err != nil {
		return err
	}

	if cfg.Discovery.Enabled && chain.HasWebsocket() {
		pools := discovery.NewPoolListener(chain, gw, cfg.Discovery, botMetrics, log, func(event discovery.NewPoolEvent) {
			eng.HandleNewPool(ctx, event)
		})
		pools.Start(ctx)

		if cfg.Discovery.Backrun.Enabled {
			backrun := discovery.NewBackrunListener(chain, cfg.Discovery.Backrun, botMetrics, log, func(signal discovery.BackrunSignal) {
				eng.HandleBackrun(ctx, signal)
			})
			backrun.Start(ctx)
		}
	}

	go func() {
		<-ctx.Done()
		eng.Stop()
	}()

	log.Info("bot starting",
		"signer", wallet.PublicKey().String(),
		"pairs", len(cfg.Engine.Pairs),
		"dry_run", cfg.Engine.DryRun,
		"tip", cfg.Jito.Enabled)

	if err := eng.Run(ctx); err != nil {
		log.Error("bot stopped with error", "error", err)
		return err
	}

	botMetrics.LogSummary()
	log.Info("graceful shutdown complete")
	return nil
}

// buildFlashProgram resolves the program handle. The pool account is the
// program's canonical pool PDA for the configured token mint.
func buildFlashProgram(cfg *config.Config) (*flashloan.Program, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.FlashLoan.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("flash-loan program id: %w", err)
	}
	tokenMint, err := solana.PublicKeyFromBase58(cfg.FlashLoan.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("flash-loan token mint: %w", err)
	}

	pool, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("flash_pool"), tokenMint.Bytes()},
		programID,
	)
	if err != nil {
		return nil, fmt.Errorf("derive pool pda: %w", err)
	}
	return flashloan.New(programID, pool, tokenMint), nil
}
