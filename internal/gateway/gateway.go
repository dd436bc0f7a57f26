package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/jupiter"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// quoteClient is the aggregator surface the gateway wraps.
type quoteClient interface {
	Quote(ctx context.Context, source jupiter.Source, input, output solana.PublicKey, amount uint64, slippageBps int, directOnly bool) (*arb.Quote, error)
	SwapInstructions(ctx context.Context, quote *arb.Quote, user solana.PublicKey, wrapNative, useTokenLedger bool) (*arb.SwapInstructionBundle, error)
}

// tableLoader is the chain surface used for address-lookup-table fetches.
type tableLoader interface {
	LookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error)
}

// Gateway is the single process-wide provider access point. It owns the
// token bucket, the quote cache and the per-source cooldown windows; all
// scanners, listeners and the composer go through it.
type Gateway struct {
	client      quoteClient
	tables      tableLoader
	limiter     *TokenBucket
	cache       *quoteCache
	logger      *logger.Logger
	maxRetries  int
	backoffBase time.Duration
	cooldownMin time.Duration
	cooldownMax time.Duration

	mu            sync.Mutex
	cooldownUntil map[jupiter.Source]time.Time
}

// New creates the gateway
func New(client quoteClient, tables tableLoader, cfg config.JupiterConfig, log *logger.Logger) *Gateway {
	return &Gateway{
		client:        client,
		tables:        tables,
		limiter:       NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec),
		cache:         newQuoteCache(),
		logger:        log.Named("gateway"),
		maxRetries:    cfg.MaxRetries,
		backoffBase:   cfg.BackoffBase,
		cooldownMin:   cfg.CooldownMin,
		cooldownMax:   cfg.CooldownMax,
		cooldownUntil: make(map[jupiter.Source]time.Time),
	}
}

// Quote returns a quote for (input, output, amount), consulting the
// cache, then the lite source, then the primary aggregator under the
// rate limiter.
func (g *Gateway) Quote(ctx context.Context, input, output solana.PublicKey, amount uint64, slippageBps int, directOnly bool) (*arb.Quote, error) {
	if quote, ok := g.cache.get(input, output, amount); ok {
		return quote, nil
	}

	if !g.inCooldown(jupiter.SourceLite) {
		quote, err := g.client.Quote(ctx, jupiter.SourceLite, input, output, amount, slippageBps, directOnly)
		if err == nil {
			g.cache.put(input, output, amount, quote)
			return quote, nil
		}
		var rl *arb.RateLimitedError
		if errors.As(err, &rl) {
			g.startCooldown(jupiter.SourceLite)
		} else if !isRetriable(err) {
			return nil, err
		}
		// Fall through to the primary source.
	}

	quote, err := g.primaryQuote(ctx, input, output, amount, slippageBps, directOnly)
	if err != nil {
		return nil, err
	}
	g.cache.put(input, output, amount, quote)
	return quote, nil
}

// primaryQuote hits the primary aggregator with drain + exponential
// back-off on throttling, up to maxRetries retries.
func (g *Gateway) primaryQuote(ctx context.Context, input, output solana.PublicKey, amount uint64, slippageBps int, directOnly bool) (*arb.Quote, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if err := g.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		quote, err := g.client.Quote(ctx, jupiter.SourcePrimary, input, output, amount, slippageBps, directOnly)
		if err == nil {
			return quote, nil
		}
		lastErr = err

		var rl *arb.RateLimitedError
		switch {
		case errors.As(err, &rl):
			g.limiter.Drain()
			delay := g.backoffBase * (1 << attempt)
			g.logger.Warn("primary source throttled",
				"attempt", attempt,
				"backoff_ms", delay.Milliseconds())
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		case isRetriable(err):
			// 5xx/transport errors retry without drain.
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

// SwapInstructions fetches the swap bundle for a quote under the rate
// limiter. The quote's raw blob is forwarded verbatim.
func (g *Gateway) SwapInstructions(ctx context.Context, quote *arb.Quote, user solana.PublicKey, wrapNative, useTokenLedger bool) (*arb.SwapInstructionBundle, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	bundle, err := g.client.SwapInstructions(ctx, quote, user, wrapNative, useTokenLedger)
	if err != nil {
		var rl *arb.RateLimitedError
		if errors.As(err, &rl) {
			g.limiter.Drain()
		}
		return nil, err
	}
	return bundle, nil
}

// LookupTables resolves address lookup tables through the chain client,
// spending rate budget like any other provider call.
func (g *Gateway) LookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	if len(addresses) == 0 {
		return map[solana.PublicKey]solana.PublicKeySlice{}, nil
	}
	if err := g.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return g.tables.LookupTables(ctx, addresses)
}

// DrainCache drops every cached quote.
func (g *Gateway) DrainCache() {
	g.cache.drain()
}

// CacheSize returns the number of live cache entries.
func (g *Gateway) CacheSize() int {
	return g.cache.size()
}

func (g *Gateway) inCooldown(source jupiter.Source) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.cooldownUntil[source])
}

func (g *Gateway) startCooldown(source jupiter.Source) {
	window := g.cooldownMin
	if g.cooldownMax > g.cooldownMin {
		window += time.Duration(rand.Int63n(int64(g.cooldownMax - g.cooldownMin)))
	}

	g.mu.Lock()
	g.cooldownUntil[source] = time.Now().Add(window)
	g.mu.Unlock()

	g.limiter.Drain()
	g.logger.Warn("source in cooldown",
		"source", source,
		"window_s", int(window.Seconds()))
}

// isRetriable reports whether an error may be retried: anything that is
// not a non-retriable 4xx or a hard timeout of the parent context.
func isRetriable(err error) bool {
	var reqErr *arb.ProviderRequestError
	if errors.As(err, &reqErr) {
		return false
	}
	var timeout *arb.TimeoutError
	if errors.As(err, &timeout) {
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
