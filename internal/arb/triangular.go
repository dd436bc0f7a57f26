package arb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// TriangularScanner walks a static route catalog, scanning a rotating
// batch per cycle. Quoting is deliberately sequential: the first route
// over the threshold wins, and triangular hits are rare enough that
// fan-out would waste rate budget.
type TriangularScanner struct {
	provider     QuoteProvider
	logger       *logger.Logger
	routes       []TriangularRoute
	batchSize    int
	offset       int
	minProfitBps int32
	slippageBps  int
	feeBps       uint16
	gas          GasParams
}

// NewTriangularScanner creates a new triangular scanner over the given catalog
func NewTriangularScanner(provider QuoteProvider, log *logger.Logger, routes []TriangularRoute, batchSize int, minProfitBps int32, slippageBps int, feeBps uint16, gas GasParams) *TriangularScanner {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &TriangularScanner{
		provider:     provider,
		logger:       log.Named("triangular"),
		routes:       routes,
		batchSize:    batchSize,
		minProfitBps: minProfitBps,
		slippageBps:  slippageBps,
		feeBps:       feeBps,
		gas:          gas,
	}
}

// Scan advances the rotation offset and scans one batch. It returns the
// first route that clears the profit threshold, or nil.
func (s *TriangularScanner) Scan(ctx context.Context) (*TriangularOpportunity, error) {
	if len(s.routes) == 0 {
		return nil, nil
	}

	for i := 0; i < s.batchSize; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		route := s.routes[s.offset%len(s.routes)]
		s.offset++

		opp, err := s.scanRoute(ctx, route)
		if err != nil {
			if errors.Is(err, ErrNoRoute) {
				continue
			}
			return nil, err
		}
		if opp != nil {
			return opp, nil
		}
	}
	return nil, nil
}

// Offset returns the current rotation offset. Used in tests.
func (s *TriangularScanner) Offset() int {
	return s.offset
}

func (s *TriangularScanner) scanRoute(ctx context.Context, route TriangularRoute) (*TriangularOpportunity, error) {
	leg1, err := s.provider.Quote(ctx, route.TokenA, route.TokenB, route.BorrowAmount, s.slippageBps, true)
	if err != nil {
		return nil, err
	}
	if leg1.OutAmount == 0 {
		return nil, ErrNoRoute
	}

	leg2, err := s.provider.Quote(ctx, route.TokenB, route.TokenC, leg1.OutAmount, s.slippageBps, true)
	if err != nil {
		return nil, err
	}
	if leg2.OutAmount == 0 {
		return nil, ErrNoRoute
	}

	leg3, err := s.provider.Quote(ctx, route.TokenC, route.TokenA, leg2.OutAmount, s.slippageBps, true)
	if err != nil {
		return nil, err
	}
	if leg3.OutAmount == 0 {
		return nil, ErrNoRoute
	}

	breakdown := ComputeProfit(route.BorrowAmount, leg1.OutAmount, leg3.OutAmount, s.feeBps, s.gas, route.TokenA, route.TokenB)
	if breakdown.ProfitBps < s.minProfitBps {
		s.logger.Debug("route below threshold",
			"route", route.Name,
			"profit_bps", breakdown.ProfitBps)
		return nil, nil
	}

	opp := &TriangularOpportunity{
		ID:              uuid.New().String(),
		Route:           route,
		Leg1Out:         leg1.OutAmount,
		Leg2Out:         leg2.OutAmount,
		Leg3Out:         leg3.OutAmount,
		FlashFee:        breakdown.FlashFee,
		SolCostsInToken: breakdown.GasInToken,
		ExpectedProfit:  breakdown.ExpectedProfit,
		ProfitBps:       breakdown.ProfitBps,
		Timestamp:       time.Now(),
		QuoteLeg1:       leg1,
		QuoteLeg2:       leg2,
		QuoteLeg3:       leg3,
	}

	s.logger.Info("triangular opportunity found",
		"route", route.Name,
		"borrow", route.BorrowAmount,
		"expected_profit", opp.ExpectedProfit,
		"profit_bps", opp.ProfitBps)
	return opp, nil
}
