package arb

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Well-known mainnet mints.
var (
	MintUSDC    = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	MintUSDT    = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	MintWSOL    = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	MintMSOL    = solana.MustPublicKeyFromBase58("mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So")
	MintJitoSOL = solana.MustPublicKeyFromBase58("J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn")
	MintBSOL    = solana.MustPublicKeyFromBase58("bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1")
	MintBONK    = solana.MustPublicKeyFromBase58("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
	MintWIF     = solana.MustPublicKeyFromBase58("EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm")
	MintJUP     = solana.MustPublicKeyFromBase58("JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN")
	MintRAY     = solana.MustPublicKeyFromBase58("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R")
	MintJTO     = solana.MustPublicKeyFromBase58("jtojtomepa8beP8AuQc6eXt5FriJwfFMwQx2v2f9mCL")
	MintPYTH    = solana.MustPublicKeyFromBase58("HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3")
	MintORCA    = solana.MustPublicKeyFromBase58("orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE")
	MintWBTC    = solana.MustPublicKeyFromBase58("3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh")
	MintWETH    = solana.MustPublicKeyFromBase58("7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs")
)

// TokenInfo holds mint metadata. Decimals default to 6 for unknown mints.
type TokenInfo struct {
	Symbol   string
	Decimals uint8
}

var knownTokens = map[solana.PublicKey]TokenInfo{
	MintUSDC:    {Symbol: "USDC", Decimals: 6},
	MintUSDT:    {Symbol: "USDT", Decimals: 6},
	MintWSOL:    {Symbol: "SOL", Decimals: 9},
	MintMSOL:    {Symbol: "mSOL", Decimals: 9},
	MintJitoSOL: {Symbol: "JitoSOL", Decimals: 9},
	MintBSOL:    {Symbol: "bSOL", Decimals: 9},
	MintBONK:    {Symbol: "BONK", Decimals: 5},
	MintWIF:     {Symbol: "WIF", Decimals: 6},
	MintJUP:     {Symbol: "JUP", Decimals: 6},
	MintRAY:     {Symbol: "RAY", Decimals: 6},
	MintJTO:     {Symbol: "JTO", Decimals: 9},
	MintPYTH:    {Symbol: "PYTH", Decimals: 6},
	MintORCA:    {Symbol: "ORCA", Decimals: 6},
	MintWBTC:    {Symbol: "WBTC", Decimals: 8},
	MintWETH:    {Symbol: "WETH", Decimals: 8},
}

var symbolToMint = func() map[string]solana.PublicKey {
	m := make(map[string]solana.PublicKey, len(knownTokens))
	for mint, info := range knownTokens {
		m[info.Symbol] = mint
	}
	return m
}()

// LookupToken returns metadata for a mint. Unknown mints get a shortened
// address as symbol and 6 decimals.
func LookupToken(mint solana.PublicKey) TokenInfo {
	if info, ok := knownTokens[mint]; ok {
		return info
	}
	s := mint.String()
	if len(s) > 8 {
		s = s[:8]
	}
	return TokenInfo{Symbol: s, Decimals: 6}
}

// MintForSymbol resolves a token symbol to its mint address.
func MintForSymbol(symbol string) (solana.PublicKey, bool) {
	mint, ok := symbolToMint[strings.ToUpper(symbol)]
	if !ok {
		// Liquid-staking symbols are mixed-case.
		mint, ok = symbolToMint[symbol]
	}
	return mint, ok
}

// IsQuoteMint reports whether the mint is one of the quote currencies the
// static pair list is built around.
func IsQuoteMint(mint solana.PublicKey) bool {
	return mint.Equals(MintUSDC) || mint.Equals(MintUSDT) || mint.Equals(MintWSOL)
}

// Pair is an ordered TARGET/QUOTE pair; QUOTE is the flash-loan token.
type Pair struct {
	Name   string
	Target solana.PublicKey
	Quote  solana.PublicKey
}

// ParsePair parses "TARGET/QUOTE" where each side is a known symbol or a
// base58 mint address.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q: want TARGET/QUOTE", s)
	}

	target, err := resolveMint(parts[0])
	if err != nil {
		return Pair{}, fmt.Errorf("invalid pair %q: %w", s, err)
	}
	quote, err := resolveMint(parts[1])
	if err != nil {
		return Pair{}, fmt.Errorf("invalid pair %q: %w", s, err)
	}
	if target.Equals(quote) {
		return Pair{}, fmt.Errorf("invalid pair %q: target equals quote", s)
	}

	return Pair{Name: s, Target: target, Quote: quote}, nil
}

func resolveMint(s string) (solana.PublicKey, error) {
	if mint, ok := MintForSymbol(s); ok {
		return mint, nil
	}
	mint, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("unknown token %q", s)
	}
	return mint, nil
}
