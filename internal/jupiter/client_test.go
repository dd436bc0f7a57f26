package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

func newTestClient(baseURL, liteURL string) *Client {
	return NewClient(config.JupiterConfig{
		BaseURL:     baseURL,
		LiteURL:     liteURL,
		APIKey:      "test-key",
		Timeout:     2 * time.Second,
		MaxAccounts: 40,
	}, logger.NewNop())
}

func TestClient_QuoteRequestShape(t *testing.T) {
	var gotQuery map[string]string
	var gotAPIKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		gotAPIKey = r.Header.Get("x-api-key")
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		w.Write([]byte(sampleQuote))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	quote, err := client.Quote(context.Background(), SourcePrimary,
		arb.MintUSDC, arb.MintWSOL, 1_000_000_000, 50, true)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, arb.MintUSDC.String(), gotQuery["inputMint"])
	assert.Equal(t, arb.MintWSOL.String(), gotQuery["outputMint"])
	assert.Equal(t, "1000000000", gotQuery["amount"])
	assert.Equal(t, "50", gotQuery["slippageBps"])
	assert.Equal(t, "true", gotQuery["onlyDirectRoutes"])
	assert.Equal(t, "40", gotQuery["maxAccounts"])
	assert.Equal(t, uint64(7_142_857), quote.OutAmount)
}

func TestClient_QuoteRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	_, err := client.Quote(context.Background(), SourceLite,
		arb.MintUSDC, arb.MintWSOL, 1, 50, false)

	var rl *arb.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "lite", rl.Source)
}

func TestClient_QuoteNonRetriable4xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid mint"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	_, err := client.Quote(context.Background(), SourcePrimary,
		arb.MintUSDC, arb.MintWSOL, 1, 50, false)

	var reqErr *arb.ProviderRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
	assert.Contains(t, reqErr.Body, "invalid mint")
}

func TestClient_QuoteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(config.JupiterConfig{
		BaseURL: server.URL,
		LiteURL: server.URL,
		Timeout: 50 * time.Millisecond,
	}, logger.NewNop())

	_, err := client.Quote(context.Background(), SourcePrimary,
		arb.MintUSDC, arb.MintWSOL, 1, 50, false)

	var timeout *arb.TimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestClient_SwapInstructionsPassesRawVerbatim(t *testing.T) {
	user := solana.NewWallet().PublicKey()
	var gotBody map[string]json.RawMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap-instructions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{
			"setupInstructions": [],
			"swapInstruction": {"programId": "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", "accounts": [], "data": ""},
			"addressLookupTableAddresses": []
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	quote, err := decodeQuote([]byte(sampleQuote))
	require.NoError(t, err)

	bundle, err := client.SwapInstructions(context.Background(), quote, user, true, true)
	require.NoError(t, err)
	require.NotNil(t, bundle.Swap)

	// The quote blob is forwarded untouched.
	assert.JSONEq(t, sampleQuote, string(gotBody["quoteResponse"]))

	var gotUser string
	require.NoError(t, json.Unmarshal(gotBody["userPublicKey"], &gotUser))
	assert.Equal(t, user.String(), gotUser)

	var wrap bool
	require.NoError(t, json.Unmarshal(gotBody["wrapAndUnwrapSol"], &wrap))
	assert.True(t, wrap)

	var ledger bool
	require.NoError(t, json.Unmarshal(gotBody["useTokenLedger"], &ledger))
	assert.True(t, ledger)
}

func TestClient_SwapInstructionsRequiresRaw(t *testing.T) {
	client := newTestClient("http://unused", "http://unused")
	_, err := client.SwapInstructions(context.Background(),
		&arb.Quote{}, solana.NewWallet().PublicKey(), true, false)
	assert.Error(t, err)
}
