package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// Source identifies which quote host served a request.
type Source string

const (
	SourceLite    Source = "lite"
	SourcePrimary Source = "primary"
)

// Client talks to the aggregator's quote and swap-instructions endpoints.
// It does no rate limiting or caching itself; that policy lives in the
// gateway.
type Client struct {
	baseURL     string
	liteURL     string
	apiKey      string
	maxAccounts int
	httpClient  *http.Client
	timeout     time.Duration
	logger      *logger.Logger
}

// NewClient creates a new aggregator client
func NewClient(cfg config.JupiterConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		liteURL:     cfg.LiteURL,
		apiKey:      cfg.APIKey,
		maxAccounts: cfg.MaxAccounts,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		timeout: timeout,
		logger:  log.Named("jupiter"),
	}
}

// Quote fetches a quote from the given source.
func (c *Client) Quote(ctx context.Context, source Source, input, output solana.PublicKey, amount uint64, slippageBps int, directOnly bool) (*arb.Quote, error) {
	base := c.baseURL
	if source == SourceLite {
		base = c.liteURL
	}

	params := url.Values{}
	params.Set("inputMint", input.String())
	params.Set("outputMint", output.String())
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))
	if directOnly {
		params.Set("onlyDirectRoutes", "true")
	}
	if c.maxAccounts > 0 {
		params.Set("maxAccounts", strconv.Itoa(c.maxAccounts))
	}

	endpoint := fmt.Sprintf("%s/quote?%s", base, params.Encode())

	start := time.Now()
	raw, err := c.get(ctx, endpoint, string(source))
	if err != nil {
		return nil, err
	}

	quote, err := decodeQuote(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("quote",
		"source", source,
		"in", input.String(),
		"out", output.String(),
		"amount", amount,
		"out_amount", quote.OutAmount,
		"latency_ms", time.Since(start).Milliseconds())
	return quote, nil
}

// swapInstructionsRequest mirrors the aggregator's POST body. The quote
// payload is the raw blob from the quote step, passed back untouched.
type swapInstructionsRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	UseTokenLedger            bool            `json:"useTokenLedger,omitempty"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
}

// SwapInstructions fetches the per-leg instruction bundle for a quote.
// The quote's raw blob is required; a quote without one cannot be
// replayed to the aggregator.
func (c *Client) SwapInstructions(ctx context.Context, quote *arb.Quote, user solana.PublicKey, wrapNative, useTokenLedger bool) (*arb.SwapInstructionBundle, error) {
	if len(quote.Raw) == 0 {
		return nil, fmt.Errorf("quote has no raw payload")
	}

	body, err := json.Marshal(swapInstructionsRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             user.String(),
		WrapAndUnwrapSol:          wrapNative,
		UseTokenLedger:            useTokenLedger,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap-instructions request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/swap-instructions", c.baseURL)
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var wire swapInstructionsResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode swap-instructions: %w", err)
	}
	return wire.toBundle()
}

func (c *Client) get(ctx context.Context, endpoint, source string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, req, source)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, req, string(SourcePrimary))
}

// do runs the request under the per-request deadline and maps transport
// and HTTP status failures onto the shared error taxonomy.
func (c *Client) do(ctx context.Context, req *http.Request, source string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req.WithContext(reqCtx))
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &arb.TimeoutError{Elapsed: time.Since(start).Milliseconds()}
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &arb.RateLimitedError{Source: source}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &arb.ProviderRequestError{Status: resp.StatusCode, Body: truncate(string(body), 256)}
	default:
		// 5xx: retriable upstream, surfaced as a plain error.
		return nil, fmt.Errorf("provider error (%d): %s", resp.StatusCode, truncate(string(body), 256))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
