package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/jupiter"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// fakeClient scripts per-source quote behavior and counts calls.
type fakeClient struct {
	mu          sync.Mutex
	calls       map[jupiter.Source]int
	liteErr     error
	primaryErr  error
	primaryErrs int // number of primary calls that fail before success
	quote       *arb.Quote
	bundle      *arb.SwapInstructionBundle
}

func newFakeClient(quote *arb.Quote) *fakeClient {
	return &fakeClient{
		calls: make(map[jupiter.Source]int),
		quote: quote,
	}
}

func (f *fakeClient) Quote(ctx context.Context, source jupiter.Source, input, output solana.PublicKey, amount uint64, slippageBps int, directOnly bool) (*arb.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[source]++

	if source == jupiter.SourceLite && f.liteErr != nil {
		return nil, f.liteErr
	}
	if source == jupiter.SourcePrimary {
		if f.primaryErrs > 0 {
			f.primaryErrs--
			return nil, f.primaryErr
		}
		if f.primaryErr != nil && f.primaryErrs == 0 && f.quote == nil {
			return nil, f.primaryErr
		}
	}
	return f.quote, nil
}

func (f *fakeClient) SwapInstructions(ctx context.Context, quote *arb.Quote, user solana.PublicKey, wrapNative, useTokenLedger bool) (*arb.SwapInstructionBundle, error) {
	return f.bundle, nil
}

func (f *fakeClient) callCount(source jupiter.Source) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

type fakeTables struct{}

func (fakeTables) LookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	return map[solana.PublicKey]solana.PublicKeySlice{}, nil
}

func testGatewayConfig() config.JupiterConfig {
	return config.JupiterConfig{
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		CooldownMin: 100 * time.Millisecond,
		CooldownMax: 100 * time.Millisecond,
		RateLimit:   config.RateLimitConfig{Capacity: 100, RefillPerSec: 1_000},
	}
}

func TestGateway_CacheIdempotence(t *testing.T) {
	quote := &arb.Quote{OutAmount: 99}
	client := newFakeClient(quote)
	gw := New(client, fakeTables{}, testGatewayConfig(), logger.NewNop())
	ctx := context.Background()

	in, out := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	first, err := gw.Quote(ctx, in, out, 1_000, 50, false)
	require.NoError(t, err)
	second, err := gw.Quote(ctx, in, out, 1_000, 50, false)
	require.NoError(t, err)

	// Structurally equal results, exactly one underlying request.
	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.callCount(jupiter.SourceLite)+client.callCount(jupiter.SourcePrimary))
}

func TestGateway_LitePreferredOverPrimary(t *testing.T) {
	client := newFakeClient(&arb.Quote{OutAmount: 1})
	gw := New(client, fakeTables{}, testGatewayConfig(), logger.NewNop())

	_, err := gw.Quote(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1, 50, false)
	require.NoError(t, err)
	assert.Equal(t, 1, client.callCount(jupiter.SourceLite))
	assert.Zero(t, client.callCount(jupiter.SourcePrimary))
}

func TestGateway_CooldownRoutesToPrimary(t *testing.T) {
	client := newFakeClient(&arb.Quote{OutAmount: 1})
	client.liteErr = &arb.RateLimitedError{Source: "lite"}
	gw := New(client, fakeTables{}, testGatewayConfig(), logger.NewNop())
	ctx := context.Background()

	// First call: lite 429s, primary serves.
	_, err := gw.Quote(ctx, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1, 50, false)
	require.NoError(t, err)
	require.Equal(t, 1, client.callCount(jupiter.SourceLite))

	// During the cooldown window the lite source receives zero requests.
	for i := 0; i < 5; i++ {
		_, err := gw.Quote(ctx, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), uint64(i+100), 50, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, client.callCount(jupiter.SourceLite))
	assert.Equal(t, 6, client.callCount(jupiter.SourcePrimary))

	// After the window expires the lite source is consulted again.
	client.liteErr = nil
	time.Sleep(120 * time.Millisecond)
	_, err = gw.Quote(ctx, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 999, 50, false)
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount(jupiter.SourceLite))
}

func TestGateway_PrimaryRetriesOnThrottle(t *testing.T) {
	client := newFakeClient(&arb.Quote{OutAmount: 1})
	client.liteErr = &arb.RateLimitedError{Source: "lite"}
	client.primaryErr = &arb.RateLimitedError{Source: "primary"}
	client.primaryErrs = 1
	gw := New(client, fakeTables{}, testGatewayConfig(), logger.NewNop())

	quote, err := gw.Quote(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1, 50, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), quote.OutAmount)
	assert.Equal(t, 2, client.callCount(jupiter.SourcePrimary))
}

func TestGateway_NonRetriableSurfacesImmediately(t *testing.T) {
	client := newFakeClient(nil)
	client.liteErr = &arb.ProviderRequestError{Status: 400, Body: "bad request"}
	gw := New(client, fakeTables{}, testGatewayConfig(), logger.NewNop())

	_, err := gw.Quote(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1, 50, false)
	var reqErr *arb.ProviderRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 400, reqErr.Status)
	// Primary is never consulted for a non-retriable client error.
	assert.Zero(t, client.callCount(jupiter.SourcePrimary))
}

func TestGateway_DrainCache(t *testing.T) {
	client := newFakeClient(&arb.Quote{OutAmount: 5})
	gw := New(client, fakeTables{}, testGatewayConfig(), logger.NewNop())
	ctx := context.Background()

	in, out := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	_, err := gw.Quote(ctx, in, out, 7, 50, false)
	require.NoError(t, err)
	require.Equal(t, 1, gw.CacheSize())

	gw.DrainCache()
	assert.Zero(t, gw.CacheSize())

	_, err = gw.Quote(ctx, in, out, 7, 50, false)
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount(jupiter.SourceLite))
}
