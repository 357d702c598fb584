// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package perp implements the Position Manager: margin accounting and
// perpetual futures positions settled exclusively by the Batch
// Settlement Engine's authorized executor, plus permissionless
// liquidation.
package perp

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

var (
	ErrMarketExists       = errors.New("market already exists")
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketNotActive    = errors.New("market not active")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInvalidLeverage    = errors.New("invalid leverage")
	ErrInvalidSize        = errors.New("invalid size")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrNotLiquidatable    = errors.New("position not liquidatable")
	ErrOnlyOwner          = errors.New("caller is not owner")
	ErrOnlyExecutor       = errors.New("caller is not executor")
	ErrExecutorNotSet     = errors.New("executor not set")
)

// Market is one perpetual futures market: a base/quote pair priced
// against poolID's AMM pool, with an independent oracle for mark-price
// discovery and liquidation checks.
type Market struct {
	ID                common.Address
	PoolID            [32]byte
	Oracle            common.Address
	Active            bool
	MaxLeverage       *big.Int // 18-decimal fixed point
	MaintenanceMargin *big.Int // 18-decimal fraction of notional
	CumulativeFunding *big.Int // 18-decimal fixed point, keeper-posted
}

// Position is one user's open exposure in one market. Size is always
// non-negative; direction is carried in IsLong.
type Position struct {
	User            common.Address
	Market          common.Address
	Size            *big.Int
	IsLong          bool
	EntryPrice      *big.Int
	Collateral      *big.Int
	Leverage        *big.Int
	EntryCumulative *big.Int
}

func (p *Position) isEmpty() bool {
	return p.Size.Sign() == 0
}
