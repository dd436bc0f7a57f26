// Package engine runs the main arbitrage loop: preflight, hot/cold pair
// rotation, multi-size probing, triangular scans, discovery-driven
// probes, simulation, submission and confirmation, guarded by a
// kill switch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/composer"
	"github.com/DimaJoyti/solana-flash-arb/internal/discovery"
	"github.com/DimaJoyti/solana-flash-arb/internal/flashloan"
	"github.com/DimaJoyti/solana-flash-arb/internal/metrics"
	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// ErrKillSwitch is returned when the consecutive-failure threshold trips.
var ErrKillSwitch = errors.New("kill switch: too many consecutive failing cycles")

// gasFloorLamports is the minimum signer balance outside dry-run.
const gasFloorLamports = 50_000_000 // 0.05 SOL

// dynamicProbeSize is the single borrow size used for dynamic pairs.
const dynamicProbeSize = 50_000_000 // 50 USDC

// Scanner is the two-leg scanning surface the engine drives.
type Scanner interface {
	ScanPair(ctx context.Context, pair arb.Pair, borrow uint64) (*arb.Opportunity, error)
	ScanPairSizes(ctx context.Context, pair arb.Pair, sizes []uint64) (*arb.Opportunity, error)
	BestSpreads() map[string]arb.BestSpread
}

// TriangularScanner is the three-leg scanning surface.
type TriangularScanner interface {
	Scan(ctx context.Context) (*arb.TriangularOpportunity, error)
}

// Composer builds signed transactions from opportunities.
type Composer interface {
	BuildTwoLeg(ctx context.Context, opp *arb.Opportunity, tip solana.Instruction) (*composer.Composed, error)
	BuildTriangular(ctx context.Context, opp *arb.TriangularOpportunity, tip solana.Instruction) (*composer.Composed, error)
}

// Chain is the chain surface the engine needs.
type Chain interface {
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	LatestBlockRef(ctx context.Context) (blockchain.BlockRef, error)
	Simulate(ctx context.Context, tx *solana.Transaction) (*blockchain.SimulationResult, error)
	Send(ctx context.Context, tx *solana.Transaction, skipPreflight bool, maxRetries uint) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature, ref blockchain.BlockRef) error
	MissingATAInstruction(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error)
}

// TipSubmitter is the block-engine surface used when tips are enabled.
type TipSubmitter interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
}

// Signer exposes the wallet to the engine.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(tx *solana.Transaction) error
}

type dynamicPair struct {
	pair     arb.Pair
	failures int
}

// Params collects the engine's collaborators.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	Metrics    *metrics.BotMetrics
	Scanner    Scanner
	Triangular TriangularScanner
	Composer   Composer
	Chain      Chain
	Signer     Signer
	Jito       TipSubmitter
	Flash      *flashloan.Program
	TipAccount func() solana.PublicKey
}

// Engine is the orchestrator.
type Engine struct {
	cfg        *config.Config
	logger     *logger.Logger
	metrics    *metrics.BotMetrics
	scanner    Scanner
	triangular TriangularScanner
	composer   Composer
	chain      Chain
	signer     Signer
	jito       TipSubmitter
	flash      *flashloan.Program
	tipAccount func() solana.PublicKey

	hotPairs  []arb.Pair
	coldPairs []arb.Pair
	coldIdx   int

	// Dynamic pairs are added by discovery callbacks and scanned by the
	// main loop; the map is the only shared structure between them.
	dynMu    sync.Mutex
	dynamic  map[string]*dynamicPair
	skipped  map[string]struct{} // pairs whose token account could not be created

	// submitMu serializes executions: the flash-loan receipt permits
	// only one outstanding borrow per signer.
	submitMu sync.Mutex

	consecutiveFailures int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates the engine
func New(p Params) (*Engine, error) {
	e := &Engine{
		cfg:        p.Config,
		logger:     p.Logger.Named("engine"),
		metrics:    p.Metrics,
		scanner:    p.Scanner,
		triangular: p.Triangular,
		composer:   p.Composer,
		chain:      p.Chain,
		signer:     p.Signer,
		jito:       p.Jito,
		flash:      p.Flash,
		tipAccount: p.TipAccount,
		dynamic:    make(map[string]*dynamicPair),
		skipped:    make(map[string]struct{}),
		stopCh:     make(chan struct{}),
	}

	hot := make(map[string]struct{}, len(p.Config.Engine.HotPairs))
	for _, name := range p.Config.Engine.HotPairs {
		hot[name] = struct{}{}
	}

	for _, name := range p.Config.Engine.Pairs {
		pair, err := arb.ParsePair(name)
		if err != nil {
			return nil, err
		}
		if _, ok := hot[name]; ok {
			e.hotPairs = append(e.hotPairs, pair)
		} else {
			e.coldPairs = append(e.coldPairs, pair)
		}
	}
	return e, nil
}

// Stop requests a graceful stop; the loop exits after the in-flight
// iteration.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Run performs preflight and then drives the main loop until the context
// is cancelled, Stop is called, or the kill switch trips.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Preflight(ctx); err != nil {
		return err
	}
	return e.Loop(ctx)
}

// Loop is the main scan loop.
func (e *Engine) Loop(ctx context.Context) error {
	e.logger.Info("main loop started",
		"hot_pairs", len(e.hotPairs),
		"cold_pairs", len(e.coldPairs),
		"poll_interval", e.cfg.Engine.PollInterval.String(),
		"dry_run", e.cfg.Engine.DryRun)

	cycles := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stopCh:
			e.logger.Info("stop requested")
			return nil
		default:
		}

		start := time.Now()
		err := e.runCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		// Spread telemetry roughly once a minute at the default period.
		if cycles++; cycles%30 == 0 {
			e.logSpreads()
		}

		if err != nil {
			e.consecutiveFailures++
			e.logger.Warn("cycle failed",
				"error", err,
				"consecutive_failures", e.consecutiveFailures)
			if e.consecutiveFailures >= e.cfg.Engine.MaxConsecutiveFailures {
				e.logger.Error("kill switch tripped",
					"failures", e.consecutiveFailures)
				return ErrKillSwitch
			}
		} else {
			e.consecutiveFailures = 0
		}

		remaining := e.cfg.Engine.PollInterval - time.Since(start)
		if remaining > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-e.stopCh:
				return nil
			case <-time.After(remaining):
			}
		}
	}
}

// logSpreads reports the best observed spread per pair.
func (e *Engine) logSpreads() {
	for pair, spread := range e.scanner.BestSpreads() {
		e.logger.Info("best spread",
			"pair", pair,
			"bps", spread.Bps,
			"observed_at", spread.Timestamp.Format(time.RFC3339))
	}
}

// runCycle scans all hot pairs, a rotating cold batch, the dynamic
// pairs, and one triangular batch.
func (e *Engine) runCycle(ctx context.Context) error {
	e.metrics.IncScanCycles()

	var cycleErr error
	for _, pair := range e.cycleStaticPairs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.isSkipped(pair.Name) {
			continue
		}
		opp, err := e.scanner.ScanPairSizes(ctx, pair, e.cfg.Engine.ProbeSizes)
		if err != nil {
			cycleErr = err
			continue
		}
		if opp != nil {
			e.metrics.IncOpportunities()
			e.handleOpportunity(ctx, opp)
		}
	}

	e.scanDynamicPairs(ctx)

	if e.triangular != nil {
		opp, err := e.triangular.Scan(ctx)
		if err != nil {
			cycleErr = err
		} else if opp != nil {
			e.metrics.IncTriangular()
			e.handleTriangular(ctx, opp)
		}
	}

	return cycleErr
}

// cycleStaticPairs returns all hot pairs plus the next cold batch.
func (e *Engine) cycleStaticPairs() []arb.Pair {
	pairs := append([]arb.Pair(nil), e.hotPairs...)
	if len(e.coldPairs) == 0 {
		return pairs
	}

	batch := e.cfg.Engine.ColdBatchSize
	if batch <= 0 {
		batch = 8
	}
	for i := 0; i < batch && i < len(e.coldPairs); i++ {
		pairs = append(pairs, e.coldPairs[e.coldIdx%len(e.coldPairs)])
		e.coldIdx++
	}
	return pairs
}

// scanDynamicPairs re-scans promoted pairs at a single size and drops
// any pair after too many consecutive unroutable scans.
func (e *Engine) scanDynamicPairs(ctx context.Context) {
	for _, entry := range e.dynamicSnapshot() {
		if ctx.Err() != nil {
			return
		}
		opp, err := e.scanner.ScanPair(ctx, entry.pair, dynamicProbeSize)
		switch {
		case err != nil:
			e.recordDynamicFailure(entry.pair.Name)
		case opp != nil:
			e.resetDynamicFailures(entry.pair.Name)
			e.metrics.IncOpportunities()
			e.handleOpportunity(ctx, opp)
		default:
			e.resetDynamicFailures(entry.pair.Name)
		}
	}
}

func (e *Engine) dynamicSnapshot() []*dynamicPair {
	e.dynMu.Lock()
	defer e.dynMu.Unlock()
	out := make([]*dynamicPair, 0, len(e.dynamic))
	for _, entry := range e.dynamic {
		out = append(out, entry)
	}
	return out
}

func (e *Engine) recordDynamicFailure(name string) {
	e.dynMu.Lock()
	defer e.dynMu.Unlock()
	entry, ok := e.dynamic[name]
	if !ok {
		return
	}
	entry.failures++
	if entry.failures >= e.cfg.Engine.DynamicPairMaxFailures {
		delete(e.dynamic, name)
		e.logger.Info("dynamic pair dropped",
			"pair", name,
			"failures", entry.failures)
	}
}

func (e *Engine) resetDynamicFailures(name string) {
	e.dynMu.Lock()
	defer e.dynMu.Unlock()
	if entry, ok := e.dynamic[name]; ok {
		entry.failures = 0
	}
}

// AddDynamicPair promotes a pair; a pair is added at most once.
func (e *Engine) AddDynamicPair(pair arb.Pair) bool {
	e.dynMu.Lock()
	defer e.dynMu.Unlock()
	if _, ok := e.dynamic[pair.Name]; ok {
		return false
	}
	e.dynamic[pair.Name] = &dynamicPair{pair: pair}
	e.logger.Info("dynamic pair added", "pair", pair.Name)
	return true
}

// DynamicPairCount returns the number of live dynamic pairs.
func (e *Engine) DynamicPairCount() int {
	e.dynMu.Lock()
	defer e.dynMu.Unlock()
	return len(e.dynamic)
}

func (e *Engine) isSkipped(name string) bool {
	e.dynMu.Lock()
	defer e.dynMu.Unlock()
	_, ok := e.skipped[name]
	return ok
}

func (e *Engine) markSkipped(name string) {
	e.dynMu.Lock()
	defer e.dynMu.Unlock()
	e.skipped[name] = struct{}{}
}

// HandleNewPool is the pool-discovery callback. Known-quote/known-quote
// events are already covered by the static list; events with no known
// quote side cannot be priced. Only USDC-quoted pairs are promoted.
func (e *Engine) HandleNewPool(ctx context.Context, event discovery.NewPoolEvent) {
	aQuote := arb.IsQuoteMint(event.MintA)
	bQuote := arb.IsQuoteMint(event.MintB)
	if aQuote == bQuote {
		return
	}

	quoteMint, target := event.MintA, event.MintB
	if bQuote {
		quoteMint, target = event.MintB, event.MintA
	}
	if !quoteMint.Equals(arb.MintUSDC) {
		return
	}

	pair := arb.Pair{
		Name:   arb.LookupToken(target).Symbol + "/USDC",
		Target: target,
		Quote:  arb.MintUSDC,
	}
	if !e.AddDynamicPair(pair) {
		return
	}

	// Immediate two-size snipe probe.
	go e.probePair(ctx, pair, []uint64{10_000_000, 100_000_000})
}

// HandleBackrun is the backrun-listener callback: probe the moved pair
// at two sizes and execute if profitable.
func (e *Engine) HandleBackrun(ctx context.Context, signal discovery.BackrunSignal) {
	target := signal.TokenOut
	if target.Equals(arb.MintUSDC) || target.Equals(arb.MintWSOL) {
		target = signal.TokenIn
	}
	if target.Equals(arb.MintUSDC) {
		return
	}

	pair := arb.Pair{
		Name:   arb.LookupToken(target).Symbol + "/USDC",
		Target: target,
		Quote:  arb.MintUSDC,
	}
	go e.probePair(ctx, pair, []uint64{50_000_000, 500_000_000})
}

// probePair scans a pair at the given sizes and executes any hit.
func (e *Engine) probePair(ctx context.Context, pair arb.Pair, sizes []uint64) {
	opp, err := e.scanner.ScanPairSizes(ctx, pair, sizes)
	if err != nil || opp == nil {
		return
	}
	e.metrics.IncOpportunities()
	e.handleOpportunity(ctx, opp)
}

func (e *Engine) handleOpportunity(ctx context.Context, opp *arb.Opportunity) {
	if e.cfg.Engine.DryRun {
		e.logger.Info("dry-run: would execute",
			"pair", opp.Pair.Name,
			"borrow", opp.BorrowAmount,
			"expected_profit", opp.ExpectedProfit,
			"profit_bps", opp.ProfitBps)
		return
	}

	if err := e.execute(ctx, opp.ExpectedProfit, []solana.PublicKey{opp.TokenA, opp.TokenB}, func(tip solana.Instruction) (*composer.Composed, error) {
		return e.composer.BuildTwoLeg(ctx, opp, tip)
	}); err != nil {
		e.logger.Warn("execution failed",
			"pair", opp.Pair.Name,
			"error", err)
	}
}

func (e *Engine) handleTriangular(ctx context.Context, opp *arb.TriangularOpportunity) {
	if e.cfg.Engine.DryRun {
		e.logger.Info("dry-run: would execute triangular",
			"route", opp.Route.Name,
			"expected_profit", opp.ExpectedProfit,
			"profit_bps", opp.ProfitBps)
		return
	}

	mints := []solana.PublicKey{opp.Route.TokenA, opp.Route.TokenB, opp.Route.TokenC}
	if err := e.execute(ctx, opp.ExpectedProfit, mints, func(tip solana.Instruction) (*composer.Composed, error) {
		return e.composer.BuildTriangular(ctx, opp, tip)
	}); err != nil {
		e.logger.Warn("triangular execution failed",
			"route", opp.Route.Name,
			"error", err)
	}
}

// execute runs the per-opportunity pipeline: ensure token accounts,
// build, simulate, submit, confirm. Submissions are serialized; the
// receipt PDA permits one outstanding borrow at a time.
func (e *Engine) execute(ctx context.Context, expectedProfit int64, mints []solana.PublicKey, build func(solana.Instruction) (*composer.Composed, error)) error {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if err := e.ensureATAs(ctx, mints); err != nil {
		return err
	}

	var tip solana.Instruction
	useTip := e.cfg.Jito.Enabled
	if useTip {
		tip = system.NewTransferInstruction(
			e.cfg.Jito.TipLamports,
			e.signer.PublicKey(),
			e.tipAccount(),
		).Build()
	}

	composed, err := build(tip)
	if err != nil {
		return err
	}

	sim, err := e.chain.Simulate(ctx, composed.Tx)
	if err != nil {
		e.metrics.IncSimulationFailures()
		return err
	}
	if sim.Err != nil {
		e.metrics.IncSimulationFailures()
		return &arb.SimulationFailedError{Logs: tailLogs(sim.Logs, 5), Units: sim.Units}
	}

	var sig solana.Signature
	if useTip && e.jito != nil {
		sigStr, err := e.jito.SendTransaction(ctx, composed.Tx)
		if err != nil {
			e.metrics.IncExecutionFailures()
			return err
		}
		e.metrics.IncJitoSubmissions()
		sig, err = solana.SignatureFromBase58(sigStr)
		if err != nil {
			sig = composed.Tx.Signatures[0]
		}
	} else {
		// Preflight already ran locally.
		sig, err = e.chain.Send(ctx, composed.Tx, true, 2)
		if err != nil {
			e.metrics.IncExecutionFailures()
			return err
		}
	}

	e.logger.Info("transaction submitted", "signature", sig.String())

	if err := e.chain.Confirm(ctx, sig, composed.Ref); err != nil {
		e.metrics.IncExecutionFailures()
		return &arb.ChainError{Err: err}
	}

	e.metrics.IncSuccessfulArbs()
	e.metrics.AddProfit(expectedProfit)
	e.metrics.AddGasSpent(int64(arb.GasLamports(e.gasParams())))
	e.logger.Info("arbitrage confirmed",
		"signature", sig.String(),
		"expected_profit", expectedProfit)
	return nil
}

func (e *Engine) gasParams() arb.GasParams {
	return arb.GasParams{
		PriorityFeeMicro: e.cfg.Engine.PriorityFeeMicro,
		ComputeUnitLimit: e.cfg.Engine.ComputeUnitLimit,
		TipLamports:      e.cfg.Jito.TipLamports,
		UseTip:           e.cfg.Jito.Enabled,
	}
}

// ensureATAs creates any missing associated token accounts for the
// given mints in one transaction.
func (e *Engine) ensureATAs(ctx context.Context, mints []solana.PublicKey) error {
	var creates []solana.Instruction
	for _, mint := range mints {
		_, ix, err := e.chain.MissingATAInstruction(ctx, e.signer.PublicKey(), mint)
		if err != nil {
			return fmt.Errorf("resolve token account for %s: %w", mint.String(), err)
		}
		if ix != nil {
			creates = append(creates, ix)
		}
	}
	if len(creates) == 0 {
		return nil
	}

	ref, err := e.chain.LatestBlockRef(ctx)
	if err != nil {
		return err
	}
	tx, err := solana.NewTransaction(creates, ref.Blockhash, solana.TransactionPayer(e.signer.PublicKey()))
	if err != nil {
		return err
	}
	if err := e.signer.Sign(tx); err != nil {
		return err
	}
	sig, err := e.chain.Send(ctx, tx, false, 2)
	if err != nil {
		return err
	}
	return e.chain.Confirm(ctx, sig, ref)
}

func tailLogs(logs []string, n int) []string {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}
