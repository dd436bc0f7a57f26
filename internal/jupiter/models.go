package jupiter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
)

// quoteResponse is the aggregator's quote wire shape. Amount fields are
// u64 strings.
type quoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          uint16          `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []routePlanStep `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot"`
}

type routePlanStep struct {
	SwapInfo swapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type swapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// decodeQuote turns a raw quote payload into the normalized shape. The
// raw bytes are retained verbatim for the swap-instructions round trip.
func decodeQuote(raw []byte) (*arb.Quote, error) {
	var wire quoteResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	inMint, err := solana.PublicKeyFromBase58(wire.InputMint)
	if err != nil {
		return nil, fmt.Errorf("quote input mint: %w", err)
	}
	outMint, err := solana.PublicKeyFromBase58(wire.OutputMint)
	if err != nil {
		return nil, fmt.Errorf("quote output mint: %w", err)
	}

	inAmount, err := parseAmount(wire.InAmount)
	if err != nil {
		return nil, fmt.Errorf("quote inAmount: %w", err)
	}
	outAmount, err := parseAmount(wire.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("quote outAmount: %w", err)
	}

	legs := make([]arb.LegInfo, 0, len(wire.RoutePlan))
	for _, step := range wire.RoutePlan {
		legIn, _ := parseAmount(step.SwapInfo.InAmount)
		legOut, _ := parseAmount(step.SwapInfo.OutAmount)
		legFee, _ := parseAmount(step.SwapInfo.FeeAmount)
		legs = append(legs, arb.LegInfo{
			AmmKey:     step.SwapInfo.AmmKey,
			Label:      step.SwapInfo.Label,
			InputMint:  step.SwapInfo.InputMint,
			OutputMint: step.SwapInfo.OutputMint,
			InAmount:   legIn,
			OutAmount:  legOut,
			FeeAmount:  legFee,
			FeeMint:    step.SwapInfo.FeeMint,
		})
	}

	rawCopy := make(json.RawMessage, len(raw))
	copy(rawCopy, raw)

	return &arb.Quote{
		InputMint:      inMint,
		OutputMint:     outMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		SlippageBps:    wire.SlippageBps,
		PriceImpactPct: wire.PriceImpactPct,
		RoutePlan:      legs,
		Raw:            rawCopy,
	}, nil
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// wireInstruction is one instruction of a swap-instructions response.
type wireInstruction struct {
	ProgramID string        `json:"programId"`
	Accounts  []wireAccount `json:"accounts"`
	Data      string        `json:"data"` // base64
}

type wireAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// swapInstructionsResponse is the aggregator's swap-instructions wire shape.
type swapInstructionsResponse struct {
	TokenLedgerInstruction      *wireInstruction  `json:"tokenLedgerInstruction"`
	ComputeBudgetInstructions   []wireInstruction `json:"computeBudgetInstructions"`
	SetupInstructions           []wireInstruction `json:"setupInstructions"`
	SwapInstruction             *wireInstruction  `json:"swapInstruction"`
	CleanupInstruction          *wireInstruction  `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string          `json:"addressLookupTableAddresses"`
}

func (w *wireInstruction) toInstruction() (solana.Instruction, error) {
	program, err := solana.PublicKeyFromBase58(w.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("instruction program id: %w", err)
	}

	accounts := make(solana.AccountMetaSlice, 0, len(w.Accounts))
	for _, acc := range w.Accounts {
		key, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("instruction account: %w", err)
		}
		accounts = append(accounts, &solana.AccountMeta{
			PublicKey:  key,
			IsSigner:   acc.IsSigner,
			IsWritable: acc.IsWritable,
		})
	}

	data, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return nil, fmt.Errorf("instruction data: %w", err)
	}

	return solana.NewInstruction(program, accounts, data), nil
}

func (r *swapInstructionsResponse) toBundle() (*arb.SwapInstructionBundle, error) {
	if r.SwapInstruction == nil {
		return nil, fmt.Errorf("swap-instructions response missing swap instruction")
	}

	bundle := &arb.SwapInstructionBundle{}

	for i := range r.SetupInstructions {
		ix, err := r.SetupInstructions[i].toInstruction()
		if err != nil {
			return nil, err
		}
		bundle.Setup = append(bundle.Setup, ix)
	}

	if r.TokenLedgerInstruction != nil {
		ix, err := r.TokenLedgerInstruction.toInstruction()
		if err != nil {
			return nil, err
		}
		bundle.TokenLedger = ix
	}

	swap, err := r.SwapInstruction.toInstruction()
	if err != nil {
		return nil, err
	}
	bundle.Swap = swap

	if r.CleanupInstruction != nil {
		ix, err := r.CleanupInstruction.toInstruction()
		if err != nil {
			return nil, err
		}
		bundle.Cleanup = ix
	}

	for _, addr := range r.AddressLookupTableAddresses {
		key, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("lookup table address: %w", err)
		}
		bundle.LookupTables = append(bundle.LookupTables, key)
	}

	return bundle, nil
}
