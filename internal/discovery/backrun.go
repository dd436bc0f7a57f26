package discovery

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/metrics"
	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// swapLogPatterns match log lines that indicate a venue swap.
var swapLogPatterns = []string{
	"Instruction: Swap",
	"Instruction: SwapV2",
	"SwapEvent",
	"ray_log",
	"Instruction: SwapBaseIn",
	"Instruction: SwapBaseOut",
}

// BackrunSignal is emitted when a large swap lands on a monitored venue.
type BackrunSignal struct {
	Signature solana.Signature
	TokenIn   solana.PublicKey
	TokenOut  solana.PublicKey
	AmountIn  uint64
	AmountOut uint64
	Slot      uint64
}

// backrunChain is the chain surface the listener needs.
type backrunChain interface {
	OnLogs(ctx context.Context, program solana.PublicKey, handler func(blockchain.LogEvent)) error
	TokenBalanceDeltas(ctx context.Context, sig solana.Signature) ([]blockchain.TokenBalanceDelta, error)
}

// BackrunListener watches venue programs for large swaps and emits probe
// signals. Parsed-transaction fetches are expensive, so they are
// throttled to a few per window.
type BackrunListener struct {
	chain    backrunChain
	logger   *logger.Logger
	metrics  *metrics.BotMetrics
	cfg      config.BackrunConfig
	programs []solana.PublicKey
	seen     *sigSet
	parses   *rate.Limiter
	handler  func(BackrunSignal)
}

// NewBackrunListener creates the backrun listener
func NewBackrunListener(chain backrunChain, cfg config.BackrunConfig, m *metrics.BotMetrics, log *logger.Logger, handler func(BackrunSignal)) *BackrunListener {
	perWindow := cfg.ParsesPerWindow
	if perWindow <= 0 {
		perWindow = 3
	}
	return &BackrunListener{
		chain:    chain,
		logger:   log.Named("backrun"),
		metrics:  m,
		cfg:      cfg,
		programs: VenuePrograms(),
		seen:     newSigSet(),
		// N parses per 10 s window.
		parses:  rate.NewLimiter(rate.Every(10*time.Second/time.Duration(perWindow)), perWindow),
		handler: handler,
	}
}

// Start launches one subscription goroutine per venue program.
func (l *BackrunListener) Start(ctx context.Context) {
	for i, program := range l.programs {
		delay := time.Duration(i) * 500 * time.Millisecond
		go l.subscribeLoop(ctx, program, delay)
	}
}

func (l *BackrunListener) subscribeLoop(ctx context.Context, program solana.PublicKey, initialDelay time.Duration) {
	if err := sleepCtx(ctx, initialDelay); err != nil {
		return
	}

	for ctx.Err() == nil {
		err := l.chain.OnLogs(ctx, program, func(event blockchain.LogEvent) {
			l.handleLogs(ctx, event)
		})
		if ctx.Err() != nil {
			return
		}
		l.logger.Debug("backrun subscription ended, reconnecting",
			"program", program.String(),
			"error", err)
		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return
		}
	}
}

func (l *BackrunListener) handleLogs(ctx context.Context, event blockchain.LogEvent) {
	if event.Err != nil {
		return
	}
	if !matchesAny(event.Logs, swapLogPatterns) {
		return
	}
	if !l.seen.Add(event.Signature) {
		return
	}
	if !l.parses.Allow() {
		return
	}

	deltas, err := l.chain.TokenBalanceDeltas(ctx, event.Signature)
	if err != nil {
		l.logger.Debug("backrun parse failed",
			"signature", event.Signature.String(),
			"error", err)
		return
	}

	signal, ok := l.classify(deltas)
	if !ok {
		return
	}
	signal.Signature = event.Signature
	signal.Slot = event.Slot

	l.metrics.IncBackrunSignals()
	l.logger.Info("backrun signal",
		"token_in", signal.TokenIn.String(),
		"token_out", signal.TokenOut.String(),
		"amount_in", signal.AmountIn,
		"amount_out", signal.AmountOut)
	if l.handler != nil {
		l.handler(*signal)
	}
}

// classify picks the (token_in, token_out) pair from the balance deltas.
// At least one side must be USDC or the native mint, and the swap must
// clear the large-size thresholds. When several deltas qualify, the pair
// with the largest absolute USDC/native delta wins, which resolves the
// common multi-hop ambiguity.
func (l *BackrunListener) classify(deltas []blockchain.TokenBalanceDelta) (*BackrunSignal, bool) {
	var anchor *blockchain.TokenBalanceDelta
	for i := range deltas {
		d := &deltas[i]
		if !d.Mint.Equals(arb.MintUSDC) && !d.Mint.Equals(arb.MintWSOL) {
			continue
		}
		if !l.isLarge(d) {
			continue
		}
		if anchor == nil || abs(d.Delta) > abs(anchor.Delta) {
			anchor = d
		}
	}
	if anchor == nil {
		return nil, false
	}

	// The counter-leg is the largest opposite-signed delta of another mint.
	var counter *blockchain.TokenBalanceDelta
	for i := range deltas {
		d := &deltas[i]
		if d.Mint.Equals(anchor.Mint) {
			continue
		}
		if d.Delta*anchor.Delta >= 0 {
			continue
		}
		if counter == nil || abs(d.Delta) > abs(counter.Delta) {
			counter = d
		}
	}
	if counter == nil {
		return nil, false
	}

	signal := &BackrunSignal{}
	if anchor.Delta > 0 {
		// Anchor token flowed into the pool's counterparty: it was the output.
		signal.TokenIn = counter.Mint
		signal.TokenOut = anchor.Mint
		signal.AmountIn = uint64(abs(counter.Delta))
		signal.AmountOut = uint64(abs(anchor.Delta))
	} else {
		signal.TokenIn = anchor.Mint
		signal.TokenOut = counter.Mint
		signal.AmountIn = uint64(abs(anchor.Delta))
		signal.AmountOut = uint64(abs(counter.Delta))
	}
	return signal, true
}

func (l *BackrunListener) isLarge(d *blockchain.TokenBalanceDelta) bool {
	switch {
	case d.Mint.Equals(arb.MintUSDC):
		return uint64(abs(d.Delta)) > l.cfg.LargeUSDCAmount
	case d.Mint.Equals(arb.MintWSOL):
		return uint64(abs(d.Delta)) > l.cfg.LargeNativeAmount
	default:
		return false
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
