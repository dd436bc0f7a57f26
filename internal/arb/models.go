package arb

import (
	"encoding/json"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Quote is the normalized quote shape shared by the lite source and the
// primary aggregator. Raw preserves the provider payload verbatim so it
// can be passed back when requesting swap instructions; it is never
// mutated after decode.
type Quote struct {
	InputMint      solana.PublicKey
	OutputMint     solana.PublicKey
	InAmount       uint64
	OutAmount      uint64
	SlippageBps    uint16
	PriceImpactPct string
	RoutePlan      []LegInfo
	Raw            json.RawMessage
}

// LegInfo describes one hop of a quoted route.
type LegInfo struct {
	AmmKey     string
	Label      string
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	FeeAmount  uint64
	FeeMint    string
}

// SwapInstructionBundle is the per-leg instruction set returned by the
// aggregator for one quoted swap.
type SwapInstructionBundle struct {
	Setup        []solana.Instruction
	TokenLedger  solana.Instruction
	Swap         solana.Instruction
	Cleanup      solana.Instruction
	LookupTables []solana.PublicKey
}

// Opportunity is a two-leg arbitrage cycle with its quotes attached.
// Scanners only emit opportunities that carry both quotes; the composer
// consumes them verbatim.
type Opportunity struct {
	ID              string
	Pair            Pair
	TokenA          solana.PublicKey // borrow token
	TokenB          solana.PublicKey
	BorrowAmount    uint64
	Leg1Out         uint64
	Leg2Out         uint64
	FlashFee        uint64
	SolCostsInToken uint64
	ExpectedProfit  int64
	ProfitBps       int32
	PriceImpactLeg1 string
	PriceImpactLeg2 string
	Timestamp       time.Time
	QuoteLeg1       *Quote
	QuoteLeg2       *Quote
}

// TriangularRoute is one entry of the static three-leg catalog.
type TriangularRoute struct {
	Name         string
	TokenA       solana.PublicKey // borrow token
	TokenB       solana.PublicKey
	TokenC       solana.PublicKey
	BorrowAmount uint64
}

// TriangularOpportunity is a three-leg arbitrage cycle with its quotes.
type TriangularOpportunity struct {
	ID              string
	Route           TriangularRoute
	Leg1Out         uint64
	Leg2Out         uint64
	Leg3Out         uint64
	FlashFee        uint64
	SolCostsInToken uint64
	ExpectedProfit  int64
	ProfitBps       int32
	Timestamp       time.Time
	QuoteLeg1       *Quote
	QuoteLeg2       *Quote
	QuoteLeg3       *Quote
}

// BestSpread records the best observed spread for a pair.
type BestSpread struct {
	Bps       int32
	Timestamp time.Time
}
