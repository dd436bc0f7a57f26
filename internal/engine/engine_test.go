package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/composer"
	"github.com/DimaJoyti/solana-flash-arb/internal/discovery"
	"github.com/DimaJoyti/solana-flash-arb/internal/flashloan"
	"github.com/DimaJoyti/solana-flash-arb/internal/metrics"
	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// scriptedScanner fails or succeeds per cycle according to a script.
type scriptedScanner struct {
	calls   atomic.Int64
	failFor func(call int64) error
}

func (s *scriptedScanner) ScanPair(ctx context.Context, pair arb.Pair, borrow uint64) (*arb.Opportunity, error) {
	return nil, nil
}

func (s *scriptedScanner) ScanPairSizes(ctx context.Context, pair arb.Pair, sizes []uint64) (*arb.Opportunity, error) {
	call := s.calls.Add(1)
	if err := s.failFor(call); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *scriptedScanner) BestSpreads() map[string]arb.BestSpread {
	return nil
}

// countingComposer counts build attempts; it should never be reached in
// these tests.
type countingComposer struct {
	builds atomic.Int64
}

func (c *countingComposer) BuildTwoLeg(ctx context.Context, opp *arb.Opportunity, tip solana.Instruction) (*composer.Composed, error) {
	c.builds.Add(1)
	return nil, errors.New("not implemented")
}

func (c *countingComposer) BuildTriangular(ctx context.Context, opp *arb.TriangularOpportunity, tip solana.Instruction) (*composer.Composed, error) {
	c.builds.Add(1)
	return nil, errors.New("not implemented")
}

func testEngineConfig(maxFailures int) *config.Config {
	cfg := config.Default()
	cfg.Engine.Pairs = []string{"SOL/USDC"}
	cfg.Engine.PollInterval = time.Millisecond
	cfg.Engine.MaxConsecutiveFailures = maxFailures
	cfg.Engine.TriangularBatchSize = 0
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, scanner Scanner) (*Engine, *countingComposer) {
	t.Helper()
	comp := &countingComposer{}
	eng, err := New(Params{
		Config:   cfg,
		Logger:   logger.NewNop(),
		Metrics:  metrics.New(logger.NewNop()),
		Scanner:  scanner,
		Composer: comp,
		Signer:   blockchain.WalletFromKey(solana.NewWallet().PrivateKey),
		Flash:    flashloan.New(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), arb.MintUSDC),
		TipAccount: func() solana.PublicKey {
			return solana.NewWallet().PublicKey()
		},
	})
	require.NoError(t, err)
	return eng, comp
}

func TestEngine_KillSwitchTripsExactly(t *testing.T) {
	scanner := &scriptedScanner{failFor: func(int64) error {
		return errors.New("injected failure")
	}}
	eng, comp := newTestEngine(t, testEngineConfig(3), scanner)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := eng.Loop(ctx)
	require.ErrorIs(t, err, ErrKillSwitch)

	// Exactly 3 failing cycles ran; nothing was ever composed or submitted.
	assert.Equal(t, int64(3), scanner.calls.Load())
	assert.Zero(t, comp.builds.Load())
}

func TestEngine_SuccessResetsFailureCounter(t *testing.T) {
	// Fail twice, succeed once, then fail forever: the clean cycle must
	// reset the counter, so the switch trips at call 2+1+3 = 6.
	scanner := &scriptedScanner{failFor: func(call int64) error {
		if call == 3 {
			return nil
		}
		return errors.New("injected failure")
	}}
	eng, _ := newTestEngine(t, testEngineConfig(3), scanner)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := eng.Loop(ctx)
	require.ErrorIs(t, err, ErrKillSwitch)
	assert.Equal(t, int64(6), scanner.calls.Load())
}

func TestEngine_StopExitsCleanly(t *testing.T) {
	scanner := &scriptedScanner{failFor: func(int64) error { return nil }}
	eng, _ := newTestEngine(t, testEngineConfig(10), scanner)

	done := make(chan error, 1)
	go func() {
		done <- eng.Loop(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	eng.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestEngine_DynamicPairLifecycle(t *testing.T) {
	scanner := &scriptedScanner{failFor: func(int64) error { return nil }}
	cfg := testEngineConfig(10)
	cfg.Engine.DynamicPairMaxFailures = 5
	eng, _ := newTestEngine(t, cfg, scanner)

	pair := arb.Pair{Name: "WIF/USDC", Target: arb.MintWIF, Quote: arb.MintUSDC}
	assert.True(t, eng.AddDynamicPair(pair))
	// A pair is added at most once.
	assert.False(t, eng.AddDynamicPair(pair))
	assert.Equal(t, 1, eng.DynamicPairCount())

	// Four failures keep it; the fifth drops it.
	for i := 0; i < 4; i++ {
		eng.recordDynamicFailure(pair.Name)
	}
	assert.Equal(t, 1, eng.DynamicPairCount())
	eng.recordDynamicFailure(pair.Name)
	assert.Equal(t, 0, eng.DynamicPairCount())
}

func TestEngine_DynamicFailureResetOnSuccess(t *testing.T) {
	scanner := &scriptedScanner{failFor: func(int64) error { return nil }}
	eng, _ := newTestEngine(t, testEngineConfig(10), scanner)

	pair := arb.Pair{Name: "WIF/USDC", Target: arb.MintWIF, Quote: arb.MintUSDC}
	require.True(t, eng.AddDynamicPair(pair))

	for i := 0; i < 4; i++ {
		eng.recordDynamicFailure(pair.Name)
	}
	eng.resetDynamicFailures(pair.Name)
	for i := 0; i < 4; i++ {
		eng.recordDynamicFailure(pair.Name)
	}
	assert.Equal(t, 1, eng.DynamicPairCount())
}

func TestEngine_HandleNewPoolPromotesUSDCQuoted(t *testing.T) {
	scanner := &scriptedScanner{failFor: func(int64) error { return nil }}
	eng, _ := newTestEngine(t, testEngineConfig(10), scanner)
	ctx := context.Background()

	fresh := solana.NewWallet().PublicKey()

	// USDC-quoted: promoted.
	eng.HandleNewPool(ctx, discovery.NewPoolEvent{MintA: arb.MintUSDC, MintB: fresh})
	assert.Equal(t, 1, eng.DynamicPairCount())

	// Both sides known quotes: already covered by the static list.
	eng.HandleNewPool(ctx, discovery.NewPoolEvent{MintA: arb.MintUSDC, MintB: arb.MintWSOL})
	assert.Equal(t, 1, eng.DynamicPairCount())

	// Neither side a known quote: unpriceable.
	eng.HandleNewPool(ctx, discovery.NewPoolEvent{
		MintA: solana.NewWallet().PublicKey(),
		MintB: solana.NewWallet().PublicKey(),
	})
	assert.Equal(t, 1, eng.DynamicPairCount())

	// Non-USDC quote side: not promoted.
	eng.HandleNewPool(ctx, discovery.NewPoolEvent{MintA: arb.MintWSOL, MintB: solana.NewWallet().PublicKey()})
	assert.Equal(t, 1, eng.DynamicPairCount())
}

func TestEngine_ColdBatchRotation(t *testing.T) {
	scanner := &scriptedScanner{failFor: func(int64) error { return nil }}
	cfg := testEngineConfig(10)
	cfg.Engine.Pairs = []string{"SOL/USDC", "JUP/USDC", "BONK/USDC", "WIF/USDC", "RAY/USDC"}
	cfg.Engine.HotPairs = []string{"SOL/USDC"}
	cfg.Engine.ColdBatchSize = 2
	eng, _ := newTestEngine(t, cfg, scanner)

	first := eng.cycleStaticPairs()
	require.Len(t, first, 3) // 1 hot + 2 cold
	assert.Equal(t, "SOL/USDC", first[0].Name)
	assert.Equal(t, "JUP/USDC", first[1].Name)
	assert.Equal(t, "BONK/USDC", first[2].Name)

	second := eng.cycleStaticPairs()
	assert.Equal(t, "WIF/USDC", second[1].Name)
	assert.Equal(t, "RAY/USDC", second[2].Name)

	// Wrap-around.
	third := eng.cycleStaticPairs()
	assert.Equal(t, "JUP/USDC", third[1].Name)
}
