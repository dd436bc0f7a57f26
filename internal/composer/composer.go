// Package composer assembles flash-loan arbitrage cycles into single
// atomic transactions: borrow, two or three venue swaps, repay, and an
// optional tip transfer, compiled against a fresh block reference and
// kept under the chain's wire-size limit.
package composer

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"golang.org/x/sync/errgroup"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/flashloan"
	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

const (
	// MaxTransactionBytes is the chain's hard wire limit.
	MaxTransactionBytes = 1232

	// TwoLegFreshness and TriangularFreshness bound quote age at build time.
	TwoLegFreshness     = 10 * time.Second
	TriangularFreshness = 30 * time.Second

	// triangularMinCULimit is the compute floor for three-leg cycles.
	triangularMinCULimit = 600_000
)

// Provider supplies swap-instruction bundles and lookup tables.
type Provider interface {
	SwapInstructions(ctx context.Context, quote *arb.Quote, user solana.PublicKey, wrapNative, useTokenLedger bool) (*arb.SwapInstructionBundle, error)
	LookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error)
}

// Chain supplies the block reference transactions compile against.
type Chain interface {
	LatestBlockRef(ctx context.Context) (blockchain.BlockRef, error)
}

// Signer signs the composed transaction.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(tx *solana.Transaction) error
}

// Composed is a signed transaction together with the block reference it
// was built against; the caller confirms against the same reference.
type Composed struct {
	Tx  *solana.Transaction
	Ref blockchain.BlockRef
}

// Config holds the composer's gas knobs.
type Config struct {
	ComputeUnitLimit uint32
	PriorityFeeMicro uint64
}

// Composer builds atomic arbitrage transactions from opportunities with
// cached quotes. It re-acquires only the swap-instruction bundles; the
// quotes themselves are consumed verbatim.
type Composer struct {
	provider Provider
	chain    Chain
	signer   Signer
	flash    *flashloan.Program
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time
}

// New creates a composer
func New(provider Provider, chain Chain, signer Signer, flash *flashloan.Program, cfg Config, log *logger.Logger) *Composer {
	return &Composer{
		provider: provider,
		chain:    chain,
		signer:   signer,
		flash:    flash,
		cfg:      cfg,
		logger:   log.Named("composer"),
		now:      time.Now,
	}
}

// BuildTwoLeg composes a borrow -> leg1 -> leg2 -> repay transaction.
// The optional tip instruction is always placed last.
func (c *Composer) BuildTwoLeg(ctx context.Context, opp *arb.Opportunity, tip solana.Instruction) (*Composed, error) {
	if err := c.checkFreshness(opp.Timestamp, TwoLegFreshness); err != nil {
		return nil, err
	}

	quotes := []*arb.Quote{opp.QuoteLeg1, opp.QuoteLeg2}
	wrapNative := !touchesNative(quotes)

	bundles, err := c.fetchBundles(ctx, quotes, wrapNative)
	if err != nil {
		return nil, err
	}

	return c.assemble(ctx, opp.BorrowAmount, c.cfg.ComputeUnitLimit, bundles, tip)
}

// BuildTriangular composes a three-leg cycle with a raised compute limit.
func (c *Composer) BuildTriangular(ctx context.Context, opp *arb.TriangularOpportunity, tip solana.Instruction) (*Composed, error) {
	if err := c.checkFreshness(opp.Timestamp, TriangularFreshness); err != nil {
		return nil, err
	}

	quotes := []*arb.Quote{opp.QuoteLeg1, opp.QuoteLeg2, opp.QuoteLeg3}
	wrapNative := !touchesNative(quotes)

	bundles, err := c.fetchBundles(ctx, quotes, wrapNative)
	if err != nil {
		return nil, err
	}

	cuLimit := c.cfg.ComputeUnitLimit
	if cuLimit < triangularMinCULimit {
		cuLimit = triangularMinCULimit
	}
	return c.assemble(ctx, opp.Route.BorrowAmount, cuLimit, bundles, tip)
}

func (c *Composer) checkFreshness(ts time.Time, max time.Duration) error {
	age := c.now().Sub(ts)
	if age > max {
		return &arb.QuotesStaleError{AgeMs: age.Milliseconds(), MaxMs: max.Milliseconds()}
	}
	return nil
}

// fetchBundles acquires the swap-instruction bundle for every leg
// concurrently. Legs after the first use the token ledger so they spend
// the amount actually received, not the quoted amount.
func (c *Composer) fetchBundles(ctx context.Context, quotes []*arb.Quote, wrapNative bool) ([]*arb.SwapInstructionBundle, error) {
	bundles := make([]*arb.SwapInstructionBundle, len(quotes))

	g, gctx := errgroup.WithContext(ctx)
	for i, quote := range quotes {
		i, quote := i, quote
		g.Go(func() error {
			useTokenLedger := i > 0
			bundle, err := c.provider.SwapInstructions(gctx, quote, c.signer.PublicKey(), wrapNative, useTokenLedger)
			if err != nil {
				return err
			}
			bundles[i] = bundle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundles, nil
}

// assemble lays out the atomic sequence, loads lookup tables, compiles
// against a fresh block reference, signs, and enforces the size limit.
func (c *Composer) assemble(ctx context.Context, borrow uint64, cuLimit uint32, bundles []*arb.SwapInstructionBundle, tip solana.Instruction) (*Composed, error) {
	borrowerATA, err := blockchain.AssociatedTokenAddress(c.signer.PublicKey(), c.flash.TokenMint, solana.TokenProgramID)
	if err != nil {
		return nil, err
	}

	borrowIx, err := c.flash.Borrow(borrow, c.signer.PublicKey(), borrowerATA)
	if err != nil {
		return nil, err
	}
	repayIx, err := c.flash.Repay(c.signer.PublicKey(), borrowerATA)
	if err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(cuLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(uint64(c.cfg.PriorityFeeMicro)).Build(),
		borrowIx,
	}

	for i, bundle := range bundles {
		if i > 0 && bundle.TokenLedger != nil {
			instructions = append(instructions, bundle.TokenLedger)
		}
		instructions = append(instructions, bundle.Setup...)
		instructions = append(instructions, bundle.Swap)
		if bundle.Cleanup != nil {
			instructions = append(instructions, bundle.Cleanup)
		}
	}

	instructions = append(instructions, repayIx)
	if tip != nil {
		instructions = append(instructions, tip)
	}

	tables, err := c.loadTables(ctx, bundles)
	if err != nil {
		return nil, err
	}

	ref, err := c.chain.LatestBlockRef(ctx)
	if err != nil {
		return nil, err
	}

	opts := []solana.TransactionOption{solana.TransactionPayer(c.signer.PublicKey())}
	if len(tables) > 0 {
		opts = append(opts, solana.TransactionAddressTables(tables))
	}

	tx, err := solana.NewTransaction(instructions, ref.Blockhash, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.signer.Sign(tx); err != nil {
		return nil, err
	}

	encoded, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(encoded) > MaxTransactionBytes {
		return nil, &arb.TransactionTooLargeError{Bytes: len(encoded), Max: MaxTransactionBytes}
	}

	c.logger.Debug("transaction composed",
		"instructions", len(instructions),
		"bytes", len(encoded),
		"lookup_tables", len(tables))
	return &Composed{Tx: tx, Ref: ref}, nil
}

// loadTables deduplicates the bundles' lookup-table addresses and
// resolves them through the provider.
func (c *Composer) loadTables(ctx context.Context, bundles []*arb.SwapInstructionBundle) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	seen := make(map[solana.PublicKey]struct{})
	var addresses []solana.PublicKey
	for _, bundle := range bundles {
		for _, addr := range bundle.LookupTables {
			if _, ok := seen[addr]; !ok {
				seen[addr] = struct{}{}
				addresses = append(addresses, addr)
			}
		}
	}
	if len(addresses) == 0 {
		return nil, nil
	}
	return c.provider.LookupTables(ctx, addresses)
}

func touchesNative(quotes []*arb.Quote) bool {
	for _, quote := range quotes {
		if quote.InputMint.Equals(arb.MintWSOL) || quote.OutputMint.Equals(arb.MintWSOL) {
			return true
		}
	}
	return false
}
