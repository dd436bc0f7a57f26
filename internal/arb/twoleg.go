package arb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/DimaJoyti/solana-flash-arb/internal/oracle"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// QuoteProvider is the quote surface scanners need from the gateway.
type QuoteProvider interface {
	Quote(ctx context.Context, input, output solana.PublicKey, amount uint64, slippageBps int, directOnly bool) (*Quote, error)
}

// QuoteValidator checks a DEX-implied price against an oracle. The check
// is advisory: it logs, it never blocks.
type QuoteValidator interface {
	ValidateQuote(ctx context.Context, inMint, outMint solana.PublicKey, inAmount, outAmount uint64, inDecimals, outDecimals uint8) (*oracle.DeviationReport, error)
}

// TwoLegScanner quotes borrow->target->borrow cycles for configured pairs.
type TwoLegScanner struct {
	provider     QuoteProvider
	logger       *logger.Logger
	minProfitBps int32
	slippageBps  int
	feeBps       uint16
	gas          GasParams
	validator    QuoteValidator

	mu         sync.Mutex
	bestSpread map[string]BestSpread
}

// NewTwoLegScanner creates a new two-leg scanner
func NewTwoLegScanner(provider QuoteProvider, log *logger.Logger, minProfitBps int32, slippageBps int, feeBps uint16, gas GasParams) *TwoLegScanner {
	return &TwoLegScanner{
		provider:     provider,
		logger:       log.Named("scanner"),
		minProfitBps: minProfitBps,
		slippageBps:  slippageBps,
		feeBps:       feeBps,
		gas:          gas,
		bestSpread:   make(map[string]BestSpread),
	}
}

// SetGas updates the gas parameters used in profit accounting.
func (s *TwoLegScanner) SetGas(gas GasParams) {
	s.gas = gas
}

// SetValidator attaches the advisory oracle check.
func (s *TwoLegScanner) SetValidator(v QuoteValidator) {
	s.validator = v
}

// ScanPair quotes both legs of a pair at the given borrow size. It
// returns (nil, nil) when the cycle is routable but below the profit
// threshold, and ErrNoRoute when a leg has no output.
func (s *TwoLegScanner) ScanPair(ctx context.Context, pair Pair, borrow uint64) (*Opportunity, error) {
	leg1, err := s.provider.Quote(ctx, pair.Quote, pair.Target, borrow, s.slippageBps, false)
	if err != nil {
		return nil, err
	}
	if leg1.OutAmount == 0 {
		return nil, ErrNoRoute
	}

	if s.validator != nil {
		inInfo, outInfo := LookupToken(pair.Quote), LookupToken(pair.Target)
		s.validator.ValidateQuote(ctx, pair.Quote, pair.Target, borrow, leg1.OutAmount, inInfo.Decimals, outInfo.Decimals)
	}

	leg2, err := s.provider.Quote(ctx, pair.Target, pair.Quote, leg1.OutAmount, s.slippageBps, false)
	if err != nil {
		return nil, err
	}
	if leg2.OutAmount == 0 {
		return nil, ErrNoRoute
	}

	breakdown := ComputeProfit(borrow, leg1.OutAmount, leg2.OutAmount, s.feeBps, s.gas, pair.Quote, pair.Target)
	s.recordSpread(pair.Name, breakdown.ProfitBps)

	if breakdown.ProfitBps < s.minProfitBps {
		s.logger.Debug("pair below threshold",
			"pair", pair.Name,
			"borrow", borrow,
			"profit_bps", breakdown.ProfitBps)
		return nil, nil
	}

	opp := &Opportunity{
		ID:              uuid.New().String(),
		Pair:            pair,
		TokenA:          pair.Quote,
		TokenB:          pair.Target,
		BorrowAmount:    borrow,
		Leg1Out:         leg1.OutAmount,
		Leg2Out:         leg2.OutAmount,
		FlashFee:        breakdown.FlashFee,
		SolCostsInToken: breakdown.GasInToken,
		ExpectedProfit:  breakdown.ExpectedProfit,
		ProfitBps:       breakdown.ProfitBps,
		PriceImpactLeg1: leg1.PriceImpactPct,
		PriceImpactLeg2: leg2.PriceImpactPct,
		Timestamp:       time.Now(),
		QuoteLeg1:       leg1,
		QuoteLeg2:       leg2,
	}

	s.logger.Info("arbitrage opportunity found",
		"pair", pair.Name,
		"borrow", borrow,
		"expected_profit", opp.ExpectedProfit,
		"profit_bps", opp.ProfitBps)
	return opp, nil
}

// ScanPairSizes probes a pair at several borrow sizes and keeps the best
// result by profit bps.
func (s *TwoLegScanner) ScanPairSizes(ctx context.Context, pair Pair, sizes []uint64) (*Opportunity, error) {
	var best *Opportunity
	for _, size := range sizes {
		opp, err := s.ScanPair(ctx, pair, size)
		if err != nil {
			if errors.Is(err, ErrNoRoute) {
				continue
			}
			return best, err
		}
		if opp != nil && (best == nil || opp.ProfitBps > best.ProfitBps) {
			best = opp
		}
	}
	return best, nil
}

func (s *TwoLegScanner) recordSpread(pair string, bps int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.bestSpread[pair]; !ok || bps > cur.Bps {
		s.bestSpread[pair] = BestSpread{Bps: bps, Timestamp: time.Now()}
	}
}

// BestSpreads returns a copy of the per-pair best observed spreads.
func (s *TwoLegScanner) BestSpreads() map[string]BestSpread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BestSpread, len(s.bestSpread))
	for k, v := range s.bestSpread {
		out[k] = v
	}
	return out
}
