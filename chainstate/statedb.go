// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chainstate defines the host-facing surface the engine is
// embedded against: the balance/storage view it reads and mutates,
// and the module-registration shape used to pin it to a reserved
// precompile address range.
package chainstate

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// StateDB is the balance/storage view the engine and position manager
// are embedded against. It is intentionally narrow: only what flash
// accounting and collateral bookkeeping need.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int)
	Exist(addr common.Address) bool
}
