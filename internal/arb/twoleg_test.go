package arb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

func newTestScanner(provider QuoteProvider) *TwoLegScanner {
	gas := GasParams{PriorityFeeMicro: 25_000, ComputeUnitLimit: 400_000}
	return NewTwoLegScanner(provider, logger.NewNop(), 5, 50, 9, gas)
}

func TestTwoLegScanner_EmitsProfitableOpportunity(t *testing.T) {
	provider := &MockProvider{}
	scanner := newTestScanner(provider)
	ctx := context.Background()

	pair, err := ParsePair("BONK/USDC")
	require.NoError(t, err)

	borrow := uint64(1_000_000_000)
	leg1 := testQuote(MintUSDC, MintBONK, borrow, 5_000_000)
	// Well above fee + gas: ~+96 bps.
	leg2 := testQuote(MintBONK, MintUSDC, 5_000_000, 1_011_000_000)

	provider.On("Quote", ctx, MintUSDC, MintBONK, borrow, 50, false).Return(leg1, nil).Once()
	provider.On("Quote", ctx, MintBONK, MintUSDC, uint64(5_000_000), 50, false).Return(leg2, nil).Once()

	opp, err := scanner.ScanPair(ctx, pair, borrow)
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, MintUSDC, opp.TokenA)
	assert.Equal(t, MintBONK, opp.TokenB)
	assert.Equal(t, borrow, opp.BorrowAmount)
	assert.Same(t, leg1, opp.QuoteLeg1)
	assert.Same(t, leg2, opp.QuoteLeg2)
	assert.True(t, opp.ProfitBps >= 5)
	assert.False(t, opp.Timestamp.IsZero())
	provider.AssertExpectations(t)
}

func TestTwoLegScanner_BelowThreshold(t *testing.T) {
	provider := &MockProvider{}
	scanner := newTestScanner(provider)
	ctx := context.Background()

	pair, err := ParsePair("BONK/USDC")
	require.NoError(t, err)

	borrow := uint64(1_000_000_000)
	leg1 := testQuote(MintUSDC, MintBONK, borrow, 5_000_000)
	leg2 := testQuote(MintBONK, MintUSDC, 5_000_000, 1_000_500_000)

	provider.On("Quote", ctx, MintUSDC, MintBONK, borrow, 50, false).Return(leg1, nil).Once()
	provider.On("Quote", ctx, MintBONK, MintUSDC, uint64(5_000_000), 50, false).Return(leg2, nil).Once()

	opp, err := scanner.ScanPair(ctx, pair, borrow)
	require.NoError(t, err)
	assert.Nil(t, opp)

	// The spread telemetry still records the observed bps.
	spreads := scanner.BestSpreads()
	require.Contains(t, spreads, pair.Name)
	assert.Negative(t, spreads[pair.Name].Bps)
}

func TestTwoLegScanner_NoRoute(t *testing.T) {
	provider := &MockProvider{}
	scanner := newTestScanner(provider)
	ctx := context.Background()

	pair, err := ParsePair("BONK/USDC")
	require.NoError(t, err)

	leg1 := testQuote(MintUSDC, MintBONK, 1_000_000_000, 0)
	provider.On("Quote", mock.Anything, MintUSDC, MintBONK, uint64(1_000_000_000), 50, false).Return(leg1, nil).Once()

	_, err = scanner.ScanPair(ctx, pair, 1_000_000_000)
	assert.ErrorIs(t, err, ErrNoRoute)
	// Leg 2 must never be quoted.
	provider.AssertNumberOfCalls(t, "Quote", 1)
}

func TestTwoLegScanner_ScanPairSizes_KeepsBest(t *testing.T) {
	provider := &MockProvider{}
	scanner := newTestScanner(provider)
	ctx := context.Background()

	pair, err := ParsePair("BONK/USDC")
	require.NoError(t, err)

	// Size 1: +~60 bps. Size 2: +~96 bps.
	small := uint64(100_000_000)
	large := uint64(1_000_000_000)

	provider.On("Quote", ctx, MintUSDC, MintBONK, small, 50, false).
		Return(testQuote(MintUSDC, MintBONK, small, 600_000), nil).Once()
	provider.On("Quote", ctx, MintBONK, MintUSDC, uint64(600_000), 50, false).
		Return(testQuote(MintBONK, MintUSDC, 600_000, 101_000_000), nil).Once()

	provider.On("Quote", ctx, MintUSDC, MintBONK, large, 50, false).
		Return(testQuote(MintUSDC, MintBONK, large, 5_000_000), nil).Once()
	provider.On("Quote", ctx, MintBONK, MintUSDC, uint64(5_000_000), 50, false).
		Return(testQuote(MintBONK, MintUSDC, 5_000_000, 1_011_000_000), nil).Once()

	best, err := scanner.ScanPairSizes(ctx, pair, []uint64{small, large})
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, large, best.BorrowAmount)
}

func TestTwoLegScanner_BestSpreadKeepsMaximum(t *testing.T) {
	provider := &MockProvider{}
	scanner := newTestScanner(provider)

	scanner.recordSpread("X/USDC", 10)
	scanner.recordSpread("X/USDC", 4)
	scanner.recordSpread("X/USDC", 25)
	scanner.recordSpread("X/USDC", 7)

	spreads := scanner.BestSpreads()
	assert.Equal(t, int32(25), spreads["X/USDC"].Bps)
}
