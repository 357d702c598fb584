// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package params holds the fixed, deployment-wide constants shared by
// every component of the batch execution engine.
package params

import (
	"math/big"
	"time"
)

// Precision is the fixed-point scale (Q18) used for collateral, size,
// prices and leverage throughout the engine.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const (
	// MinCommitments is the minimum number of revealed intents a batch
	// must aggregate before it can execute.
	MinCommitments = 2

	// BatchInterval is the minimum time that must elapse between two
	// successful batches for the same pool.
	BatchInterval = 300 * time.Second

	// FundingPeriod is the nominal period a funding rate is quoted over.
	FundingPeriod = 8 * time.Hour

	// LiquidationFeeBps is the fee taken to the insurance fund on
	// liquidation, in basis points of freed collateral.
	LiquidationFeeBps = 500

	// MaxOracleStaleness bounds how old an oracle price may be before
	// it is rejected by components that consume it.
	MaxOracleStaleness = 3600 * time.Second

	// MaxFeeBps is the maximum pool fee, matching the EVM convention
	// of fee expressed in hundredths of a basis point out of 1e6.
	MaxFeeBps = 1_000_000
)

// BpsDenominator is the denominator basis-point fees and the
// liquidation fee are expressed over.
const BpsDenominator = 10_000

// MinSqrtPrice and MaxSqrtPrice bound the sqrt(price)*2^96 a pool
// invocation may ever reach; the engine passes MinSqrtPrice+1 or
// MaxSqrtPrice-1 as the pool's price limit on every batch swap, since
// the batch has no user-facing slippage limit of its own (per-user
// slippage is enforced during pro-rata distribution instead).
var (
	MinSqrtPrice    = new(big.Int).SetUint64(4295128739)
	MaxSqrtPrice, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)
