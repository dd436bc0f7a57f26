package arb

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// BaseFeeLamports is the fixed per-signature network fee.
const BaseFeeLamports = 5_000

// staticLamportsPerBorrowUnit is the conservative native price used for
// gas conversion when neither leg touches the wrapped native mint:
// 140e6 lamport-equivalents per whole borrow unit.
const staticLamportsPerBorrowUnit = 140_000_000

// GasParams are the gas-relevant knobs of a composed transaction.
type GasParams struct {
	PriorityFeeMicro uint64
	ComputeUnitLimit uint32
	TipLamports      uint64
	UseTip           bool
}

// ProfitBreakdown is the integer-exact expected-profit accounting for one
// arbitrage cycle, denominated in borrow-token units.
type ProfitBreakdown struct {
	FlashFee       uint64
	GasLamports    uint64
	GasInToken     uint64
	ExpectedProfit int64
	ProfitBps      int32
}

// ceilDiv returns ceil(a/b) for non-negative big integers.
func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

var tenThousand = big.NewInt(10_000)

// FlashLoanFee returns the flash-loan fee with ceiling division,
// matching the on-chain program: fee = ceil(borrow * feeBps / 10_000).
// Any divergence here makes composed transactions revert.
func FlashLoanFee(borrow uint64, feeBps uint16) uint64 {
	product := new(big.Int).Mul(
		new(big.Int).SetUint64(borrow),
		new(big.Int).SetUint64(uint64(feeBps)),
	)
	return ceilDiv(product, tenThousand).Uint64()
}

// GasLamports returns the total gas cost of one transaction in lamports:
// base fee + ceil(cuLimit * priorityFeeMicro / 1e6) + optional tip.
func GasLamports(gas GasParams) uint64 {
	priority := ceilDiv(
		new(big.Int).Mul(
			new(big.Int).SetUint64(uint64(gas.ComputeUnitLimit)),
			new(big.Int).SetUint64(gas.PriorityFeeMicro),
		),
		big.NewInt(1_000_000),
	).Uint64()

	total := uint64(BaseFeeLamports) + priority
	if gas.UseTip {
		total += gas.TipLamports
	}
	return total
}

// gasInBorrowToken converts a lamport amount into borrow-token units
// using the first leg's implied price when it bridges the native mint,
// or a conservative static price otherwise.
func gasInBorrowToken(gasLamports, borrow, leg1Out uint64, tokenA, tokenB solana.PublicKey) uint64 {
	switch {
	case tokenA.Equals(MintWSOL):
		// Borrow token is the native mint; lamports are already token units.
		return gasLamports
	case tokenB.Equals(MintWSOL) && leg1Out > 0:
		// leg1 quotes borrow-token -> native, so borrow/leg1Out is the
		// token-per-lamport price.
		v := new(big.Int).Mul(
			new(big.Int).SetUint64(gasLamports),
			new(big.Int).SetUint64(borrow),
		)
		return v.Div(v, new(big.Int).SetUint64(leg1Out)).Uint64()
	default:
		v := new(big.Int).Mul(
			new(big.Int).SetUint64(gasLamports),
			big.NewInt(staticLamportsPerBorrowUnit),
		)
		return v.Div(v, big.NewInt(1_000_000_000)).Uint64()
	}
}

// ComputeProfit runs the full expected-profit calculation for a cycle
// that borrows `borrow` of tokenA, receives leg1Out of the intermediate
// token, and ends with legFinalOut of tokenA. All arithmetic is integer;
// intermediate products are widened to big.Int.
func ComputeProfit(borrow, leg1Out, legFinalOut uint64, feeBps uint16, gas GasParams, tokenA, tokenB solana.PublicKey) ProfitBreakdown {
	flashFee := FlashLoanFee(borrow, feeBps)
	gasLamports := GasLamports(gas)
	gasInToken := gasInBorrowToken(gasLamports, borrow, leg1Out, tokenA, tokenB)

	profit := new(big.Int).SetUint64(legFinalOut)
	profit.Sub(profit, new(big.Int).SetUint64(borrow))
	profit.Sub(profit, new(big.Int).SetUint64(flashFee))
	profit.Sub(profit, new(big.Int).SetUint64(gasInToken))

	var bps int32
	if borrow > 0 {
		// Truncation toward zero, same as on-chain bps math.
		q := new(big.Int).Mul(profit, tenThousand)
		q.Quo(q, new(big.Int).SetUint64(borrow))
		bps = int32(q.Int64())
	}

	return ProfitBreakdown{
		FlashFee:       flashFee,
		GasLamports:    gasLamports,
		GasInToken:     gasInToken,
		ExpectedProfit: profit.Int64(),
		ProfitBps:      bps,
	}
}
