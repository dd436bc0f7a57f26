package oracle

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// fakeChain serves scripted feed accounts.
type fakeChain struct {
	accounts map[solana.PublicKey][]byte
	slot     uint64
	reads    int
}

func (f *fakeChain) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	f.reads++
	return f.accounts[account], nil
}

func (f *fakeChain) Slot(ctx context.Context) (uint64, error) {
	return f.slot, nil
}

// feedAccount builds a price account buffer with the fixed layout.
func feedAccount(price int64, exponent int32, confidence, slot uint64) []byte {
	data := make([]byte, minAccountSize)
	binary.LittleEndian.PutUint32(data[offsetExponent:], uint32(exponent))
	binary.LittleEndian.PutUint64(data[offsetValidSlot:], slot)
	binary.LittleEndian.PutUint64(data[offsetAggPrice:], uint64(price))
	binary.LittleEndian.PutUint64(data[offsetAggConf:], confidence)
	return data
}

func newTestReader(t *testing.T, chain *fakeChain, feeds map[string]string) *Reader {
	t.Helper()
	reader, err := NewReader(chain, config.OracleConfig{
		Feeds:           feeds,
		MaxDeviationBps: 100,
		StaleSlots:      75,
	}, logger.NewNop())
	require.NoError(t, err)
	return reader
}

func TestDecodePriceAccount(t *testing.T) {
	price, err := DecodePriceAccount(feedAccount(14_250_000_000, -8, 5_000_000, 1_234))
	require.NoError(t, err)
	assert.Equal(t, int64(14_250_000_000), price.Price)
	assert.Equal(t, int32(-8), price.Exponent)
	assert.Equal(t, uint64(5_000_000), price.Confidence)
	assert.Equal(t, uint64(1_234), price.Slot)

	// 14_250_000_000 * 10^-8 = 142.5
	assert.Equal(t, "142.5", price.Value().String())
}

func TestDecodePriceAccount_TooShort(t *testing.T) {
	_, err := DecodePriceAccount(make([]byte, 100))
	assert.Error(t, err)
}

func TestReader_PriceForUnknownMint(t *testing.T) {
	reader := newTestReader(t, &fakeChain{}, nil)
	price, err := reader.PriceFor(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestReader_CacheWindow(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	feed := solana.NewWallet().PublicKey()
	chain := &fakeChain{
		accounts: map[solana.PublicKey][]byte{feed: feedAccount(100_000_000, -6, 1, 500)},
		slot:     510,
	}
	reader := newTestReader(t, chain, map[string]string{mint.String(): feed.String()})
	ctx := context.Background()

	first, err := reader.PriceFor(ctx, mint)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Second read within the window hits the cache.
	_, err = reader.PriceFor(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.reads)
}

func TestReader_Staleness(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	feed := solana.NewWallet().PublicKey()
	chain := &fakeChain{
		accounts: map[solana.PublicKey][]byte{feed: feedAccount(100_000_000, -6, 1, 1_000)},
		slot:     1_100, // 100 slots behind: stale
	}
	reader := newTestReader(t, chain, map[string]string{mint.String(): feed.String()})

	price, err := reader.PriceFor(context.Background(), mint)
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Stale)
}

func TestReader_ValidateQuote(t *testing.T) {
	solMint := solana.NewWallet().PublicKey()
	usdcMint := solana.NewWallet().PublicKey()
	solFeed := solana.NewWallet().PublicKey()
	usdcFeed := solana.NewWallet().PublicKey()

	chain := &fakeChain{
		accounts: map[solana.PublicKey][]byte{
			// SOL at $140, USDC at $1.
			solFeed:  feedAccount(14_000_000_000, -8, 1, 100),
			usdcFeed: feedAccount(100_000_000, -8, 1, 100),
		},
		slot: 110,
	}
	reader := newTestReader(t, chain, map[string]string{
		solMint.String():  solFeed.String(),
		usdcMint.String(): usdcFeed.String(),
	})

	// DEX: 1 SOL (1e9 lamports, 9 decimals) -> 141.4 USDC (6 decimals):
	// +1% over the oracle's 140.
	report, err := reader.ValidateQuote(context.Background(), solMint, usdcMint,
		1_000_000_000, 141_400_000, 9, 6)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, int64(100), report.DeviationBps)
	assert.False(t, report.Stale)
}

func TestReader_ValidateQuoteMissingFeed(t *testing.T) {
	reader := newTestReader(t, &fakeChain{}, nil)
	report, err := reader.ValidateQuote(context.Background(),
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1, 1, 6, 6)
	require.NoError(t, err)
	assert.Nil(t, report)
}
