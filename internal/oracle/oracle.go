// Package oracle reads on-chain price-feed accounts and compares
// DEX-implied prices against them. The deviation check is advisory and
// deliberately kept out of the hot path.
package oracle

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// Fixed byte offsets of the price-feed account layout.
const (
	offsetExponent  = 20
	offsetValidSlot = 40
	offsetAggPrice  = 208
	offsetAggConf   = 216
	minAccountSize  = 240
)

// Price is one decoded oracle observation.
type Price struct {
	Price      int64
	Exponent   int32
	Confidence uint64
	Slot       uint64
	Stale      bool
}

// Value returns the price as a decimal.
func (p Price) Value() decimal.Decimal {
	return decimal.New(p.Price, p.Exponent)
}

// DeviationReport compares a DEX-implied price with the oracle.
type DeviationReport struct {
	Mint         solana.PublicKey
	DexPrice     decimal.Decimal
	OraclePrice  decimal.Decimal
	DeviationBps int64
	Stale        bool
}

// chainReader is the chain surface the oracle needs.
type chainReader interface {
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	Slot(ctx context.Context) (uint64, error)
}

type cachedPrice struct {
	price  Price
	readAt time.Time
}

// Reader resolves mint prices through configured feed accounts, with a
// short per-feed cache window.
type Reader struct {
	chain       chainReader
	logger      *logger.Logger
	feeds       map[solana.PublicKey]solana.PublicKey
	cacheWindow time.Duration
	staleSlots  uint64
	maxDevBps   int64

	mu    sync.Mutex
	cache map[solana.PublicKey]cachedPrice
}

// NewReader creates a new oracle reader
func NewReader(chain chainReader, cfg config.OracleConfig, log *logger.Logger) (*Reader, error) {
	feeds := make(map[solana.PublicKey]solana.PublicKey, len(cfg.Feeds))
	for mintStr, feedStr := range cfg.Feeds {
		mint, err := solana.PublicKeyFromBase58(mintStr)
		if err != nil {
			return nil, fmt.Errorf("oracle feed mint %q: %w", mintStr, err)
		}
		feed, err := solana.PublicKeyFromBase58(feedStr)
		if err != nil {
			return nil, fmt.Errorf("oracle feed account %q: %w", feedStr, err)
		}
		feeds[mint] = feed
	}

	cacheWindow := cfg.CacheWindow
	if cacheWindow <= 0 {
		cacheWindow = 5 * time.Second
	}
	staleSlots := cfg.StaleSlots
	if staleSlots == 0 {
		staleSlots = 75
	}

	return &Reader{
		chain:       chain,
		logger:      log.Named("oracle"),
		feeds:       feeds,
		cacheWindow: cacheWindow,
		staleSlots:  staleSlots,
		maxDevBps:   cfg.MaxDeviationBps,
		cache:       make(map[solana.PublicKey]cachedPrice),
	}, nil
}

// PriceFor returns the current oracle price for a mint, or nil when no
// feed is configured.
func (r *Reader) PriceFor(ctx context.Context, mint solana.PublicKey) (*Price, error) {
	feed, ok := r.feeds[mint]
	if !ok {
		return nil, nil
	}

	r.mu.Lock()
	cached, hit := r.cache[mint]
	r.mu.Unlock()
	if hit && time.Since(cached.readAt) < r.cacheWindow {
		price := cached.price
		return &price, nil
	}

	data, err := r.chain.AccountData(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("read price feed: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("price feed %s not found", feed.String())
	}

	price, err := DecodePriceAccount(data)
	if err != nil {
		return nil, err
	}

	currentSlot, err := r.chain.Slot(ctx)
	if err == nil && currentSlot > price.Slot && currentSlot-price.Slot > r.staleSlots {
		price.Stale = true
	}

	r.mu.Lock()
	r.cache[mint] = cachedPrice{price: price, readAt: time.Now()}
	r.mu.Unlock()

	return &price, nil
}

// DecodePriceAccount decodes (price, confidence, slot) from the feed
// account's fixed layout.
func DecodePriceAccount(data []byte) (Price, error) {
	if len(data) < minAccountSize {
		return Price{}, fmt.Errorf("price account too short: %d bytes", len(data))
	}
	return Price{
		Exponent:   int32(binary.LittleEndian.Uint32(data[offsetExponent:])),
		Slot:       binary.LittleEndian.Uint64(data[offsetValidSlot:]),
		Price:      int64(binary.LittleEndian.Uint64(data[offsetAggPrice:])),
		Confidence: binary.LittleEndian.Uint64(data[offsetAggConf:]),
	}, nil
}

// ValidateQuote computes the deviation of a DEX-implied price against
// the oracle cross rate. It returns nil when either side has no feed.
// Deviations beyond the configured threshold are logged as warnings but
// never block execution.
func (r *Reader) ValidateQuote(ctx context.Context, inMint, outMint solana.PublicKey, inAmount, outAmount uint64, inDecimals, outDecimals uint8) (*DeviationReport, error) {
	if inAmount == 0 || outAmount == 0 {
		return nil, nil
	}

	inPrice, err := r.PriceFor(ctx, inMint)
	if err != nil || inPrice == nil {
		return nil, err
	}
	outPrice, err := r.PriceFor(ctx, outMint)
	if err != nil || outPrice == nil {
		return nil, err
	}
	if outPrice.Price == 0 {
		return nil, nil
	}

	// DEX price of 1 in-token in out-tokens, decimal-adjusted.
	dexPrice := decimal.NewFromInt(int64(outAmount)).
		Shift(-int32(outDecimals)).
		Div(decimal.NewFromInt(int64(inAmount)).Shift(-int32(inDecimals)))

	oraclePrice := inPrice.Value().Div(outPrice.Value())
	if oraclePrice.IsZero() {
		return nil, nil
	}

	deviation := dexPrice.Sub(oraclePrice).
		Div(oraclePrice).
		Mul(decimal.NewFromInt(10_000)).
		Round(0)
	devBps := deviation.IntPart()

	report := &DeviationReport{
		Mint:         outMint,
		DexPrice:     dexPrice,
		OraclePrice:  oraclePrice,
		DeviationBps: devBps,
		Stale:        inPrice.Stale || outPrice.Stale,
	}

	if abs64(devBps) > r.maxDevBps {
		r.logger.Warn("quote deviates from oracle",
			"in", inMint.String(),
			"out", outMint.String(),
			"deviation_bps", devBps,
			"stale", report.Stale)
	}
	return report, nil
}

func abs64(v int64) int64 {
	if v == math.MinInt64 {
		return math.MaxInt64
	}
	if v < 0 {
		return -v
	}
	return v
}
