package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/flashloan"
	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// newAdminCmd wires the one-shot pool administration path.
func newAdminCmd(v *viper.Viper, configFile *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Flash-loan pool administration",
	}

	var feeBps uint16
	setFee := &cobra.Command{
		Use:   "set-fee",
		Short: "Update the pool's flash-loan fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, v, *configFile)
			if err != nil {
				return err
			}
			return runSetFee(cmd.Context(), cfg, feeBps)
		},
	}
	setFee.Flags().Uint16Var(&feeBps, "fee-bps", 0, "new fee in basis points")
	setFee.MarkFlagRequired("fee-bps")

	admin.AddCommand(setFee)
	return admin
}

func runSetFee(ctx context.Context, cfg *config.Config, feeBps uint16) error {
	if feeBps > 10_000 {
		return fmt.Errorf("fee-bps %d out of range", feeBps)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer log.Sync()

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

	data, err := chain.AccountData(ctx, flash.Pool)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("flash-loan pool %s not found", flash.Pool.String())
	}
	state, err := flashloan.DecodePoolState(data)
	if err != nil {
		return err
	}
	if !state.Admin.Equals(wallet.PublicKey()) {
		return arb.ErrUnauthorized
	}

	ref, err := chain.LatestBlockRef(ctx)
	if err != nil {
		return err
	}

	tx, err := buildSignedTx(wallet, ref, flash.UpdateFee(wallet.PublicKey(), feeBps))
	if err != nil {
		return err
	}

	sig, err := chain.Send(ctx, tx, false, 2)
	if err != nil {
		return err
	}
	if err := chain.Confirm(ctx, sig, ref); err != nil {
		return err
	}

	log.Info("pool fee updated",
		"fee_bps", feeBps,
		"signature", sig.String())
	return nil
}
