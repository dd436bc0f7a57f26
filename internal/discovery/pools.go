// Package discovery watches venue programs for new pools and large
// swaps. Listeners are best-effort side channels: they swallow their own
// errors into debug logs and never abort the engine.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/internal/metrics"
	"github.com/DimaJoyti/solana-flash-arb/pkg/blockchain"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// Monitored venue programs.
var (
	RaydiumAMMV4  = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumCLMM   = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
	RaydiumCPMM   = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	OrcaWhirlpool = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	MeteoraDLMM   = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
)

// VenuePrograms is the default set of monitored venue programs.
func VenuePrograms() []solana.PublicKey {
	return []solana.PublicKey{RaydiumAMMV4, RaydiumCLMM, RaydiumCPMM, OrcaWhirlpool, MeteoraDLMM}
}

// poolInitPatterns match log lines emitted when a venue initializes a pool.
var poolInitPatterns = []string{
	"initialize2",
	"InitializeInstruction2",
	"create_pool",
	"CreatePool",
	"InitializeLbPair",
	"initialize_pool",
	"InitializePool",
}

// NewPoolEvent is emitted when a candidate pool is discovered.
type NewPoolEvent struct {
	Signature solana.Signature
	MintA     solana.PublicKey
	MintB     solana.PublicKey
	Source    string
	Slot      uint64
}

// poolChain is the chain surface the listener needs.
type poolChain interface {
	OnLogs(ctx context.Context, program solana.PublicKey, handler func(blockchain.LogEvent)) error
	TransactionMints(ctx context.Context, sig solana.Signature) ([]solana.PublicKey, error)
}

// PoolListener discovers new pools via log subscriptions and a
// pair-listing HTTP endpoint, emitting into a single callback.
type PoolListener struct {
	chain      poolChain
	provider   arb.QuoteProvider
	logger     *logger.Logger
	metrics    *metrics.BotMetrics
	cfg        config.DiscoveryConfig
	programs   []solana.PublicKey
	seen       *sigSet
	httpClient *http.Client
	handler    func(NewPoolEvent)

	mu        sync.Mutex
	seenMints map[string]struct{}
}

// NewPoolListener creates the pool-discovery listener
func NewPoolListener(chain poolChain, provider arb.QuoteProvider, cfg config.DiscoveryConfig, m *metrics.BotMetrics, log *logger.Logger, handler func(NewPoolEvent)) *PoolListener {
	return &PoolListener{
		chain:      chain,
		provider:   provider,
		logger:     log.Named("pool-discovery"),
		metrics:    m,
		cfg:        cfg,
		programs:   VenuePrograms(),
		seen:       newSigSet(),
		httpClient: &http.Client{Timeout: 8 * time.Second},
		handler:    handler,
		seenMints:  make(map[string]struct{}),
	}
}

// Start launches the log subscriptions (staggered to avoid rate-limit
// rejection) and the HTTP polling loop. It returns immediately.
func (l *PoolListener) Start(ctx context.Context) {
	for i, program := range l.programs {
		delay := time.Duration(i) * l.cfg.SubscribeStagger
		go l.subscribeLoop(ctx, program, delay)
	}
	go l.pollLoop(ctx)
}

func (l *PoolListener) subscribeLoop(ctx context.Context, program solana.PublicKey, initialDelay time.Duration) {
	if err := sleepCtx(ctx, initialDelay); err != nil {
		return
	}

	for ctx.Err() == nil {
		err := l.chain.OnLogs(ctx, program, func(event blockchain.LogEvent) {
			l.handleLogs(ctx, program, event)
		})
		if ctx.Err() != nil {
			return
		}
		l.logger.Debug("log subscription ended, reconnecting",
			"program", program.String(),
			"error", err)
		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return
		}
	}
}

func (l *PoolListener) handleLogs(ctx context.Context, program solana.PublicKey, event blockchain.LogEvent) {
	if event.Err != nil {
		return
	}
	if !matchesAny(event.Logs, poolInitPatterns) {
		return
	}
	if !l.seen.Add(event.Signature) {
		return
	}

	mints, err := l.chain.TransactionMints(ctx, event.Signature)
	if err != nil {
		l.logger.Debug("pool transaction fetch failed",
			"signature", event.Signature.String(),
			"error", err)
		return
	}
	if len(mints) < 2 {
		return
	}

	l.emit(NewPoolEvent{
		Signature: event.Signature,
		MintA:     mints[0],
		MintB:     mints[1],
		Source:    program.String(),
		Slot:      event.Slot,
	})
}

func (l *PoolListener) emit(event NewPoolEvent) {
	l.metrics.IncNewPools()
	l.logger.Info("new pool detected",
		"mint_a", event.MintA.String(),
		"mint_b", event.MintB.String(),
		"source", event.Source)
	if l.handler != nil {
		l.handler(event)
	}
}

// pairListEntry is the pair-listing endpoint's wire shape.
type pairListEntry struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
	PairAddress  string `json:"pairAddress"`
	BaseToken    struct {
		Address string `json:"address"`
	} `json:"baseToken"`
}

func (l *PoolListener) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pollOnce(ctx)
		}
	}
}

// pollOnce queries the pair-listing endpoint and probes at most
// MaxProbesPerCycle unseen mints with a one-unit direct quote.
func (l *PoolListener) pollOnce(ctx context.Context) {
	entries, err := l.fetchListings(ctx)
	if err != nil {
		l.logger.Debug("pair listing poll failed", "error", err)
		return
	}

	probes := 0
	for _, entry := range entries {
		if probes >= l.cfg.MaxProbesPerCycle {
			break
		}
		if entry.ChainID != "solana" {
			continue
		}

		addr := entry.TokenAddress
		if addr == "" {
			addr = entry.BaseToken.Address
		}
		mint, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			continue
		}
		if !l.markMint(addr) {
			continue
		}

		probes++
		// One small probe: 1 USDC, 100 bps slippage, direct routes only.
		quote, err := l.provider.Quote(ctx, arb.MintUSDC, mint, 1_000_000, 100, true)
		if err != nil || quote.OutAmount == 0 {
			continue
		}

		l.emit(NewPoolEvent{
			MintA:  arb.MintUSDC,
			MintB:  mint,
			Source: "pair-listing",
		})
	}
}

func (l *PoolListener) fetchListings(ctx context.Context) ([]pairListEntry, error) {
	var all []pairListEntry

	profiles, err := l.getJSON(ctx, l.cfg.PairListURL+"/token-profiles/latest/v1")
	if err == nil {
		var entries []pairListEntry
		if json.Unmarshal(profiles, &entries) == nil {
			all = append(all, entries...)
		}
	}

	search, err := l.getJSON(ctx, l.cfg.PairListURL+"/latest/dex/search?q=solana")
	if err == nil {
		var wrapper struct {
			Pairs []pairListEntry `json:"pairs"`
		}
		if json.Unmarshal(search, &wrapper) == nil {
			all = append(all, wrapper.Pairs...)
		}
	}

	if len(all) == 0 && err != nil {
		return nil, err
	}
	return all, nil
}

func (l *PoolListener) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pair listing status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// markMint records a mint as probed; returns false when already seen.
func (l *PoolListener) markMint(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seenMints[addr]; ok {
		return false
	}
	l.seenMints[addr] = struct{}{}
	return true
}

func matchesAny(logs []string, patterns []string) bool {
	for _, line := range logs {
		for _, pattern := range patterns {
			if strings.Contains(line, pattern) {
				return true
			}
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
