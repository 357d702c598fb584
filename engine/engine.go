// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/batchengine/chainstate"
	"github.com/luxfi/batchengine/commitreveal"
	"github.com/luxfi/batchengine/perp"
)

// Engine is the Batch Settlement Engine for one deployment. It holds
// a single, process-wide holding account that is empty before and
// after every batch (any residue after commit is a defect), and is
// the sole authorized executor of the Position Manager it is wired
// to.
type Engine struct {
	mu sync.Mutex

	holdingAccount common.Address
	executor       common.Address
	executorSet    bool

	locked bool
	// currentDeltas tracks balance changes during the one pool
	// callback this engine ever holds open per batch, keyed by
	// currency address — mirroring the teacher's currentDeltas map,
	// simplified to a single locker since the engine is always its own
	// locker (see the concurrency model: one suspension point).
	currentDeltas map[common.Address]*big.Int

	store   *commitreveal.Store
	pool    PoolCallback
	perps   *perp.Manager
	stateDB chainstate.StateDB

	spotBatchState map[[32]byte]*BatchState
	perpBatchState map[[32]byte]*BatchState

	events []Event
	log    log.Logger
}

// New creates an Engine pinned to holdingAccount, settling against
// pool and store, and driving the given Position Manager. logger may
// be nil.
func New(holdingAccount common.Address, store *commitreveal.Store, pool PoolCallback, perps *perp.Manager, stateDB chainstate.StateDB, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.New()
	}
	return &Engine{
		holdingAccount: holdingAccount,
		currentDeltas:  make(map[common.Address]*big.Int),
		store:          store,
		pool:           pool,
		perps:          perps,
		stateDB:        stateDB,
		spotBatchState: make(map[[32]byte]*BatchState),
		perpBatchState: make(map[[32]byte]*BatchState),
		log:            logger,
	}
}

// SetExecutor pins the engine as the sole authorized caller into the
// Position Manager. One-time: a second call is rejected.
func (e *Engine) SetExecutor(addr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.executorSet {
		return ErrUnauthorized
	}
	e.executor = addr
	e.executorSet = true
	return nil
}

// batchStateFor returns (creating if absent) the BatchState for
// poolID in the given map. Callers must hold e.mu.
func batchStateFor(m map[[32]byte]*BatchState, poolID [32]byte) *BatchState {
	bs, ok := m[poolID]
	if !ok {
		bs = &BatchState{}
		m[poolID] = bs
	}
	return bs
}

// lock acquires the engine's single reentrancy guard for the duration
// of one pool invocation, mirroring the teacher's locked flag.
func (e *Engine) lock() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrReentrant
	}
	e.locked = true
	e.currentDeltas = make(map[common.Address]*big.Int)
	return nil
}

func (e *Engine) unlock() {
	e.mu.Lock()
	e.locked = false
	e.mu.Unlock()
}

// Settle pays currency from the holding account to the pool (amount >
// 0) or receives it back from the pool (amount < 0), exactly as the
// teacher's PoolManager.Settle reduces the owed delta before moving
// real balances.
func (e *Engine) Settle(currency common.Address, amount *big.Int) error {
	e.updateDelta(currency, new(big.Int).Neg(amount))

	switch amount.Sign() {
	case 1:
		amountU256, overflow := uint256.FromBig(amount)
		if overflow {
			return fmt.Errorf("%w: amount overflows uint256", ErrNonZeroDelta)
		}
		e.stateDB.SubBalance(e.holdingAccount, amountU256)
	case -1:
		amountU256, overflow := uint256.FromBig(new(big.Int).Abs(amount))
		if overflow {
			return fmt.Errorf("%w: amount overflows uint256", ErrNonZeroDelta)
		}
		e.stateDB.AddBalance(e.holdingAccount, amountU256)
	}
	return nil
}

// Take pulls currency owed to the holding account out to `to`,
// mirroring the teacher's PoolManager.Take.
func (e *Engine) Take(currency common.Address, to common.Address, amount *big.Int) error {
	e.updateDelta(currency, amount)

	amountU256, overflow := uint256.FromBig(amount)
	if overflow {
		return fmt.Errorf("%w: amount overflows uint256", ErrNonZeroDelta)
	}
	e.stateDB.SubBalance(e.holdingAccount, amountU256)
	e.stateDB.AddBalance(to, amountU256)
	return nil
}

// Sync is a no-op placeholder for reserve reconciliation after an
// external transfer directly to the holding account, matching the
// teacher's PoolManager.Sync (native balances are tracked directly by
// stateDB, nothing to reconcile).
func (e *Engine) Sync(currency common.Address) error { return nil }

func (e *Engine) updateDelta(currency common.Address, delta *big.Int) {
	current, ok := e.currentDeltas[currency]
	if !ok {
		current = big.NewInt(0)
	}
	e.currentDeltas[currency] = new(big.Int).Add(current, delta)
}

// verifySettled ensures every tracked delta netted to zero at the end
// of a batch — the holding account must be empty before and after.
func (e *Engine) verifySettled() error {
	for currency, delta := range e.currentDeltas {
		if delta.Sign() != 0 {
			return fmt.Errorf("%w: currency=%s, delta=%s", ErrNonZeroDelta, currency.Hex(), delta.String())
		}
	}
	return nil
}
