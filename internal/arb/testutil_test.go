package arb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"
)

// RandomTestKey returns a fresh random public key.
func RandomTestKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// MockProvider is a testify mock of the gateway's quote surface.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Quote(ctx context.Context, input, output solana.PublicKey, amount uint64, slippageBps int, directOnly bool) (*Quote, error) {
	args := m.Called(ctx, input, output, amount, slippageBps, directOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Quote), args.Error(1)
}

// testQuote builds a minimal quote with a raw payload.
func testQuote(input, output solana.PublicKey, inAmount, outAmount uint64) *Quote {
	raw := fmt.Sprintf(`{"inputMint":%q,"outputMint":%q,"inAmount":"%d","outAmount":"%d"}`,
		input.String(), output.String(), inAmount, outAmount)
	return &Quote{
		InputMint:  input,
		OutputMint: output,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		Raw:        json.RawMessage(raw),
	}
}
