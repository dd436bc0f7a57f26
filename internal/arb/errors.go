package arb

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrNoRoute means the aggregator returned a zero output for a leg.
	// Scanners treat it as "no opportunity"; it is never fatal.
	ErrNoRoute = errors.New("no route")

	// ErrPreflightFailed means the signer cannot cover the gas floor.
	ErrPreflightFailed = errors.New("preflight failed: insufficient gas balance")

	// ErrPoolPaused means the flash-loan pool is not active.
	ErrPoolPaused = errors.New("flash-loan pool is paused")

	// ErrInsufficientLiquidity means the pool deposits cannot cover the borrow.
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")

	// ErrUnauthorized means the signer is not the pool admin.
	ErrUnauthorized = errors.New("unauthorized: signer is not the pool admin")
)

// ProviderRequestError is a non-retriable 4xx from an HTTP source.
type ProviderRequestError struct {
	Status int
	Body   string
}

func (e *ProviderRequestError) Error() string {
	return fmt.Sprintf("provider request failed (%d): %s", e.Status, e.Body)
}

// RateLimitedError is a 429 or provider-specific throttling response.
// It triggers cooldown, bucket drain and back-off before bubbling out.
type RateLimitedError struct {
	Source string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider rate limited: %s", e.Source)
}

// TimeoutError means a request exceeded its per-request deadline.
type TimeoutError struct {
	Elapsed int64 // milliseconds
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %dms", e.Elapsed)
}

// QuotesStaleError is returned by the composer when an opportunity's
// quotes are older than the freshness window.
type QuotesStaleError struct {
	AgeMs int64
	MaxMs int64
}

func (e *QuotesStaleError) Error() string {
	return fmt.Sprintf("quotes stale: age %dms exceeds %dms", e.AgeMs, e.MaxMs)
}

// TransactionTooLargeError means the composed transaction exceeds the
// wire limit. The composer does not retry.
type TransactionTooLargeError struct {
	Bytes int
	Max   int
}

func (e *TransactionTooLargeError) Error() string {
	return fmt.Sprintf("transaction too large: %d bytes (max %d)", e.Bytes, e.Max)
}

// SimulationFailedError records a failed local simulation.
type SimulationFailedError struct {
	Logs  []string
	Units uint64
}

func (e *SimulationFailedError) Error() string {
	tail := ""
	if n := len(e.Logs); n > 0 {
		tail = e.Logs[n-1]
	}
	return fmt.Sprintf("simulation failed (%d units): %s", e.Units, tail)
}

// ChainError records a post-submission on-chain revert.
type ChainError struct {
	Err interface{}
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain error: %v", e.Err)
}
