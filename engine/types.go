// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine implements the Batch Settlement Engine: it nets
// revealed spot and perp intents into a single pool invocation per
// batch, distributes output pro-rata, and advances positions.
package engine

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/batchengine/poolkey"
)

var (
	ErrInsufficientCommitments = errors.New("insufficient commitments")
	ErrBatchConditionsNotMet   = errors.New("batch conditions not met")
	ErrInvalidCommitment       = errors.New("invalid commitment")
	ErrInvalidSwapDirection    = errors.New("invalid swap direction")
	ErrNetDeltaMismatch        = errors.New("net delta mismatch")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidPerpCommitment   = errors.New("invalid perp commitment")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrReentrant               = errors.New("reentrancy detected")
	ErrNonZeroDelta            = errors.New("non-zero balance delta after settlement")
)

// SlippageExceededError is raised per-user, before any output is
// distributed, when the user's floor-divided pro-rata share falls below
// the user's declared minimum. It carries the offending recipient so a caller can
// drop that user and rebatch, matching the spec's recoverability note.
type SlippageExceededError struct {
	Recipient    common.Address
	MinAmountOut *big.Int
	ActualOut    *big.Int
}

func (e *SlippageExceededError) Error() string {
	return "slippage exceeded for user " + e.Recipient.Hex()
}

// PoolCallback is the single external collaborator the engine depends
// on for swap execution: the AMM pool manager. Swap follows the
// flash-accounting convention (negative amountSpecified = exact
// input); the returned deltas are signed from the pool's perspective.
type PoolCallback interface {
	Swap(key poolkey.Key, zeroForOne bool, amountSpecified *big.Int, priceLimit *big.Int) (amount0, amount1 *big.Int, err error)
}

// OracleAdapter is the shape of an external price source. Nothing in
// this module calls it: the Position Manager takes mark and entry
// prices as arguments, and the engine derives execution prices from
// the pool's actual output.
type OracleAdapter interface {
	Price(market common.Address) (*big.Int, error)
}

// BatchState tracks, per pool and per intent kind, when the pool was
// last settled and how many batches have executed.
type BatchState struct {
	LastBatchTimestamp uint64
	BatchNonce         uint64
}

// spotContribution is one revealed intent's accumulated effect on the
// pool-side net delta, tracked internally during accumulate/validate.
type spotContribution struct {
	hash         [32]byte
	recipient    common.Address
	tokenIn      common.Address
	amountIn     *big.Int
	minAmountOut *big.Int
	nonce        uint64
	user         common.Address
}
