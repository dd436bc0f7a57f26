package blockchain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/DimaJoyti/solana-flash-arb/pkg/config"
	"github.com/DimaJoyti/solana-flash-arb/pkg/logger"
)

const lookupTableBatchSize = 10

// Client wraps the chain RPC and WebSocket endpoints used by the bot.
type Client struct {
	rpcClient  *rpc.Client
	wsClient   *ws.Client
	commitment rpc.CommitmentType
	timeout    time.Duration
	logger     *logger.Logger
}

// BlockRef is the recent block reference a transaction is compiled
// against. The same reference must be used to confirm it.
type BlockRef struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// LogEvent is one notification from a program log subscription.
type LogEvent struct {
	Signature solana.Signature
	Err       interface{}
	Logs      []string
	Slot      uint64
}

// SimulationResult is the outcome of a local transaction simulation.
type SimulationResult struct {
	Err   interface{}
	Logs  []string
	Units uint64
}

// TokenBalanceDelta is the net balance change of one mint across a
// parsed transaction.
type TokenBalanceDelta struct {
	Mint  solana.PublicKey
	Delta int64
}

// NewClient creates a new chain client. The WebSocket connection is
// optional; listeners degrade to polling without it.
func NewClient(ctx context.Context, cfg config.RPCConfig, log *logger.Logger) (*Client, error) {
	rpcClient := rpc.New(cfg.URL)

	var wsClient *ws.Client
	if cfg.WSURL != "" {
		var err error
		wsClient, err = ws.Connect(ctx, cfg.WSURL)
		if err != nil {
			log.Warn("websocket connect failed, log subscriptions disabled", "error", err)
			wsClient = nil
		}
	}

	commitment := rpc.CommitmentConfirmed
	if cfg.Commitment == "finalized" {
		commitment = rpc.CommitmentFinalized
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	return &Client{
		rpcClient:  rpcClient,
		wsClient:   wsClient,
		commitment: commitment,
		timeout:    timeout,
		logger:     log.Named("chain"),
	}, nil
}

// HasWebsocket reports whether log subscriptions are available.
func (c *Client) HasWebsocket() bool {
	return c.wsClient != nil
}

// Balance returns the lamport balance of an account.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpcClient.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Value, nil
}

// Slot returns the current slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	slot, err := c.rpcClient.GetSlot(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// AccountInfo returns the raw account for a pubkey, or nil when the
// account does not exist.
func (c *Client) AccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		if err == rpc.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get account info: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}
	return out.Value, nil
}

// AccountData returns an account's raw data, or nil when it is missing.
func (c *Client) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	info, err := c.AccountInfo(ctx, account)
	if err != nil || info == nil {
		return nil, err
	}
	return info.Data.GetBinary(), nil
}

// LatestBlockRef fetches a fresh (blockhash, last valid block height).
func (c *Client) LatestBlockRef(ctx context.Context) (BlockRef, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return BlockRef{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return BlockRef{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// Simulate runs the transaction against the current confirmed state.
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpcClient.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}

	result := &SimulationResult{
		Err:  out.Value.Err,
		Logs: out.Value.Logs,
	}
	if out.Value.UnitsConsumed != nil {
		result.Units = *out.Value.UnitsConsumed
	}
	return result, nil
}

// Send submits a signed transaction. Preflight is skipped by callers
// that already simulated.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction, skipPreflight bool, maxRetries uint) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: skipPreflight,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// Confirm polls the signature status until the transaction confirms or
// the chain moves past the block reference it was compiled against.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature, ref BlockRef) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		out, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			c.logger.Debug("signature status poll failed", "error", err)
			continue
		}
		if len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction reverted: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		height, err := c.rpcClient.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			continue
		}
		if height > ref.LastValidBlockHeight {
			return fmt.Errorf("block height %d exceeded last valid %d", height, ref.LastValidBlockHeight)
		}
	}
}

// TokenBalanceDeltas fetches a parsed transaction and sums the pre/post
// token-balance change per mint.
func (c *Client) TokenBalanceDeltas(ctx context.Context, sig solana.Signature) ([]TokenBalanceDelta, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxVersion := uint64(0)
	out, err := c.rpcClient.GetParsedTransaction(ctx, sig, &rpc.GetParsedTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("get parsed transaction: %w", err)
	}
	if out == nil || out.Meta == nil {
		return nil, nil
	}

	deltas := make(map[solana.PublicKey]int64)
	for _, balance := range out.Meta.PreTokenBalances {
		amount := parseRawAmount(balance.UiTokenAmount)
		deltas[balance.Mint] -= amount
	}
	for _, balance := range out.Meta.PostTokenBalances {
		amount := parseRawAmount(balance.UiTokenAmount)
		deltas[balance.Mint] += amount
	}

	result := make([]TokenBalanceDelta, 0, len(deltas))
	for mint, delta := range deltas {
		if delta != 0 {
			result = append(result, TokenBalanceDelta{Mint: mint, Delta: delta})
		}
	}
	return result, nil
}

// TransactionMints fetches a parsed transaction and returns the distinct
// mints touched by its token balances.
func (c *Client) TransactionMints(ctx context.Context, sig solana.Signature) ([]solana.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxVersion := uint64(0)
	out, err := c.rpcClient.GetParsedTransaction(ctx, sig, &rpc.GetParsedTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("get parsed transaction: %w", err)
	}
	if out == nil || out.Meta == nil {
		return nil, nil
	}

	seen := make(map[solana.PublicKey]struct{})
	var mints []solana.PublicKey
	for _, balances := range [][]rpc.TokenBalance{out.Meta.PreTokenBalances, out.Meta.PostTokenBalances} {
		for _, balance := range balances {
			if _, ok := seen[balance.Mint]; !ok {
				seen[balance.Mint] = struct{}{}
				mints = append(mints, balance.Mint)
			}
		}
	}
	return mints, nil
}

// LookupTables fetches and decodes address lookup tables in batches.
func (c *Client) LookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	tables := make(map[solana.PublicKey]solana.PublicKeySlice, len(addresses))

	for start := 0; start < len(addresses); start += lookupTableBatchSize {
		end := start + lookupTableBatchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		batch := addresses[start:end]

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		out, err := c.rpcClient.GetMultipleAccountsWithOpts(reqCtx, batch, &rpc.GetMultipleAccountsOpts{
			Commitment: c.commitment,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("get lookup tables: %w", err)
		}

		for i, account := range out.Value {
			if account == nil {
				continue
			}
			state, err := addresslookuptable.DecodeAddressLookupTableState(account.Data.GetBinary())
			if err != nil {
				c.logger.Warn("undecodable lookup table", "address", batch[i].String(), "error", err)
				continue
			}
			tables[batch[i]] = state.Addresses
		}
	}
	return tables, nil
}

// OnLogs subscribes to a program's log stream and forwards events until
// the context is cancelled. It returns after the subscription ends.
func (c *Client) OnLogs(ctx context.Context, program solana.PublicKey, handler func(LogEvent)) error {
	if c.wsClient == nil {
		return fmt.Errorf("websocket not connected")
	}

	sub, err := c.wsClient.LogsSubscribeMentions(program, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("logs subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Debug("log subscription active", "program", program.String())
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		event, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("logs recv: %w", err)
		}
		handler(LogEvent{
			Signature: event.Value.Signature,
			Err:       event.Value.Err,
			Logs:      event.Value.Logs,
			Slot:      event.Context.Slot,
		})
	}
}

// Close tears down the websocket connection.
func (c *Client) Close() {
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

func parseRawAmount(amount *rpc.UiTokenAmount) int64 {
	if amount == nil {
		return 0
	}
	v, err := strconv.ParseInt(amount.Amount, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
