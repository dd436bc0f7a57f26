// Package jito submits transactions through a priority-auction
// block-engine endpoint. A transfer to one of the engine's tip accounts,
// placed last in the transaction, ranks it for inclusion.
package jito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/DimaJoyti/solana-flash-arb/internal/arb"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

// regionEndpoints maps --tip-region values to block-engine hosts.
var regionEndpoints = map[string]string{
	"default":   "https://mainnet.block-engine.jito.wtf",
	"ny":        "https://ny.mainnet.block-engine.jito.wtf",
	"amsterdam": "https://amsterdam.mainnet.block-engine.jito.wtf",
	"frankfurt": "https://frankfurt.mainnet.block-engine.jito.wtf",
	"tokyo":     "https://tokyo.mainnet.block-engine.jito.wtf",
	"slc":       "https://slc.mainnet.block-engine.jito.wtf",
}

// tipAccounts is the engine's fixed tip-account set; one is chosen
// uniformly at random per submission.
var tipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// BundleStatus is the engine's view of a submitted bundle.
type BundleStatus string

const (
	BundleInvalid BundleStatus = "Invalid"
	BundlePending BundleStatus = "Pending"
	BundleFailed  BundleStatus = "Failed"
	BundleLanded  BundleStatus = "Landed"
)

// Client talks to the block-engine HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a block-engine client for a region.
func NewClient(region string, log *logger.Logger) (*Client, error) {
	endpoint, ok := regionEndpoints[region]
	if !ok {
		return nil, fmt.Errorf("unknown block-engine region %q", region)
	}
	return &Client{
		baseURL:    endpoint,
		httpClient: &http.Client{Timeout: 8 * time.Second},
		logger:     log.Named("jito"),
	}, nil
}

// NewClientWithURL creates a client against an explicit endpoint. Used
// in tests.
func NewClientWithURL(url string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    url,
		httpClient: &http.Client{Timeout: 8 * time.Second},
		logger:     log.Named("jito"),
	}
}

// RandomTipAccount picks one of the fixed tip accounts.
func RandomTipAccount() solana.PublicKey {
	return tipAccounts[rand.Intn(len(tipAccounts))]
}

// Regions lists the supported region names.
func Regions() []string {
	return []string{"default", "ny", "amsterdam", "frankfurt", "tokyo", "slc"}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendTransaction submits one signed transaction, base58-encoded.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	encoded, err := encodeTx(tx)
	if err != nil {
		return "", err
	}

	raw, err := c.call(ctx, "/api/v1/transactions", "sendTransaction", []interface{}{encoded})
	if err != nil {
		return "", err
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return "", fmt.Errorf("decode send result: %w", err)
	}
	c.logger.Info("transaction submitted to block engine", "signature", signature)
	return signature, nil
}

// SendBundle submits 1-5 ordered transactions; the last one must carry
// the tip transfer.
func (c *Client) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	if len(txs) == 0 || len(txs) > 5 {
		return "", fmt.Errorf("bundle must contain 1-5 transactions, got %d", len(txs))
	}

	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		e, err := encodeTx(tx)
		if err != nil {
			return "", err
		}
		encoded = append(encoded, e)
	}

	raw, err := c.call(ctx, "/api/v1/bundles", "sendBundle", []interface{}{encoded})
	if err != nil {
		return "", err
	}

	var bundleID string
	if err := json.Unmarshal(raw, &bundleID); err != nil {
		return "", fmt.Errorf("decode bundle result: %w", err)
	}
	c.logger.Info("bundle submitted", "bundle_id", bundleID, "txs", len(txs))
	return bundleID, nil
}

type bundleStatusesResult struct {
	Value []struct {
		BundleID string       `json:"bundle_id"`
		Status   BundleStatus `json:"status"`
	} `json:"value"`
}

// GetBundleStatuses polls the status of previously submitted bundles.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs []string) (map[string]BundleStatus, error) {
	raw, err := c.call(ctx, "/api/v1/bundles", "getBundleStatuses", []interface{}{bundleIDs})
	if err != nil {
		return nil, err
	}

	var result bundleStatusesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode bundle statuses: %w", err)
	}

	statuses := make(map[string]BundleStatus, len(result.Value))
	for _, entry := range result.Value {
		statuses[entry.BundleID] = entry.Status
	}
	return statuses, nil
}

func (c *Client) call(ctx context.Context, path, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("block-engine request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &arb.RateLimitedError{Source: "block-engine"}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &arb.ProviderRequestError{Status: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("block-engine error (%d): %s", resp.StatusCode, respBody)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("block-engine rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func encodeTx(tx *solana.Transaction) (string, error) {
	bin, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return base58.Encode(bin), nil
}
