package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/flashloan"
)

// Preflight validates the environment before the loop starts: gas
// balance, flash-loan pool state, and token accounts for every mint the
// static pairs and triangular routes touch. A pair whose token account
// cannot be created is skipped, never fatal.
func (e *Engine) Preflight(ctx context.Context) error {
	balance, err := e.chain.Balance(ctx, e.signer.PublicKey())
	if err != nil {
		return fmt.Errorf("read signer balance: %w", err)
	}
	if balance < gasFloorLamports {
		if e.cfg.Engine.DryRun {
			e.logger.Warn("signer below gas floor (dry-run, continuing)",
				"balance", balance,
				"floor", gasFloorLamports)
		} else {
			return fmt.Errorf("%w: balance %d < floor %d", arb.ErrPreflightFailed, balance, gasFloorLamports)
		}
	}

	if err := e.preflightPool(ctx); err != nil {
		return err
	}

	e.preflightTokenAccounts(ctx)

	e.logger.Info("preflight complete",
		"signer", e.signer.PublicKey().String(),
		"balance_lamports", balance)
	return nil
}

func (e *Engine) preflightPool(ctx context.Context) error {
	data, err := e.chain.AccountData(ctx, e.flash.Pool)
	if err != nil {
		return fmt.Errorf("read flash-loan pool: %w", err)
	}
	if data == nil {
		return fmt.Errorf("flash-loan pool %s not found", e.flash.Pool.String())
	}

	state, err := flashloan.DecodePoolState(data)
	if err != nil {
		return err
	}
	if !state.IsActive {
		return arb.ErrPoolPaused
	}
	if !state.TokenMint.Equals(e.flash.TokenMint) {
		return fmt.Errorf("pool token mint %s does not match configured %s",
			state.TokenMint.String(), e.flash.TokenMint.String())
	}

	e.flash.Vault = state.Vault

	maxBorrow := e.cfg.Engine.BorrowAmount
	for _, size := range e.cfg.Engine.ProbeSizes {
		if size > maxBorrow {
			maxBorrow = size
		}
	}
	if state.TotalDeposits < maxBorrow {
		e.logger.Warn("pool deposits below configured borrow",
			"deposits", state.TotalDeposits,
			"borrow", maxBorrow)
	}

	e.logger.Info("flash-loan pool ready",
		"pool", e.flash.Pool.String(),
		"deposits", state.TotalDeposits,
		"fee_bps", state.FeeBasisPoints)
	return nil
}

// preflightTokenAccounts ensures an associated token account exists for
// every mint in the static pairs, triangular routes and the flash-loan
// token. Failures skip the affected pair only.
func (e *Engine) preflightTokenAccounts(ctx context.Context) {
	mintPairs := make(map[solana.PublicKey][]string)
	addMint := func(mint solana.PublicKey, pairName string) {
		mintPairs[mint] = append(mintPairs[mint], pairName)
	}

	addMint(e.flash.TokenMint, "")
	for _, pair := range e.hotPairs {
		addMint(pair.Target, pair.Name)
		addMint(pair.Quote, pair.Name)
	}
	for _, pair := range e.coldPairs {
		addMint(pair.Target, pair.Name)
		addMint(pair.Quote, pair.Name)
	}
	if e.cfg.Engine.TriangularBatchSize > 0 {
		for _, route := range arb.DefaultTriangularRoutes() {
			addMint(route.TokenA, "")
			addMint(route.TokenB, "")
			addMint(route.TokenC, "")
		}
	}

	for mint, pairNames := range mintPairs {
		if err := e.ensureATAs(ctx, []solana.PublicKey{mint}); err != nil {
			e.logger.Warn("token account unavailable, skipping pairs",
				"mint", mint.String(),
				"error", err)
			for _, name := range pairNames {
				if name != "" {
					e.markSkipped(name)
				}
			}
		}
	}
}
