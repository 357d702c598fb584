// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"math/big"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/batchengine/commitreveal"
	"github.com/luxfi/batchengine/params"
	"github.com/luxfi/batchengine/perp"
	"github.com/luxfi/batchengine/poolkey"
)

type perpContribution struct {
	hash     [32]byte
	user     common.Address
	market   common.Address
	size     *big.Int
	isLong   bool
	isOpen   bool
	leverage *big.Int
	nonce    uint64
}

// baseContribution returns this intent's signed effect on net base-asset
// size, per §4.E: opening adds in the position's direction, closing
// subtracts from it.
func (c perpContribution) baseContribution() *big.Int {
	contribution := new(big.Int).Set(c.size)
	if c.isOpen != c.isLong {
		contribution.Neg(contribution)
	}
	return contribution
}

// ExecutePerpBatch settles a batch of already-revealed perp intents
// against key's pool: it nets base-asset size, invokes a single pool
// swap for the net base amount, and applies the resulting execution
// price to every intent's open/close call on the Position Manager, in
// the caller-supplied commitmentHashes order.
func (e *Engine) ExecutePerpBatch(key poolkey.Key, commitmentHashes [][32]byte, baseIsCurrency0 bool) error {
	if len(commitmentHashes) < params.MinCommitments {
		return ErrInsufficientCommitments
	}

	poolID := key.ID()

	e.mu.Lock()
	bs := batchStateFor(e.perpBatchState, poolID)
	elapsed := time.Since(time.Unix(int64(bs.LastBatchTimestamp), 0))
	e.mu.Unlock()
	if bs.LastBatchTimestamp != 0 && elapsed < params.BatchInterval {
		return ErrBatchConditionsNotMet
	}

	contributions := make([]perpContribution, 0, len(commitmentHashes))
	netBase := big.NewInt(0)

	// seenNonces guards against two contributions in this same batch
	// sharing a (user, nonce): NonceUsed alone only rejects a nonce
	// already consumed by an earlier batch, since MarkRevealed (the
	// only place that consumes one) doesn't run until this batch
	// commits.
	type nonceSeenKey struct {
		user  common.Address
		nonce uint64
	}
	seenNonces := make(map[nonceSeenKey]bool, len(commitmentHashes))

	for _, hash := range commitmentHashes {
		c, ok := e.store.Commitment(poolID, hash)
		if !ok || c.Revealed {
			return ErrInvalidCommitment
		}
		intent, ok := e.store.PerpReveal(poolID, hash)
		if !ok {
			return ErrInvalidCommitment
		}
		if e.store.NonceUsed(poolID, [20]byte(intent.User), intent.Nonce) {
			return commitreveal.ErrInvalidNonce
		}
		seenKey := nonceSeenKey{user: intent.User, nonce: intent.Nonce}
		if seenNonces[seenKey] {
			return commitreveal.ErrInvalidNonce
		}
		seenNonces[seenKey] = true

		contribution := perpContribution{
			hash:     hash,
			user:     intent.User,
			market:   intent.Market,
			size:     intent.Size,
			isLong:   intent.IsLong,
			isOpen:   intent.IsOpen,
			leverage: intent.Leverage,
			nonce:    intent.Nonce,
		}
		contributions = append(contributions, contribution)
		netBase.Add(netBase, contribution.baseContribution())
	}

	if netBase.Sign() == 0 {
		return ErrInvalidPerpCommitment
	}

	// netBase > 0 means net-long: base is the output side of the swap.
	// If base is currency0, buying base means the swap runs currency1 ->
	// currency0, i.e. zeroForOne=false.
	var zeroForOne bool
	if baseIsCurrency0 {
		zeroForOne = netBase.Sign() < 0
	} else {
		zeroForOne = netBase.Sign() > 0
	}

	amountSpecified := new(big.Int).Abs(netBase)
	if netBase.Sign() < 0 {
		// Net-short: exact-input (selling |netBase| of base).
		amountSpecified.Neg(amountSpecified)
	}
	// netBase > 0 (net-long, buying base): exact-output, positive magnitude.

	actual0, actual1, err := e.invokePerpSwap(key, zeroForOne, amountSpecified)
	if err != nil {
		return err
	}

	deltaBase, deltaQuote := actual0, actual1
	if !baseIsCurrency0 {
		deltaBase, deltaQuote = actual1, actual0
	}

	executionPrice := new(big.Int).Mul(new(big.Int).Abs(deltaQuote), params.Precision)
	executionPrice.Div(executionPrice, new(big.Int).Abs(deltaBase))

	// ApplyPerpBatch commits every contribution's open/close under one
	// lock acquisition: either all of them take effect, or (on the
	// first failure) none do. Only once that succeeds is it safe to
	// mark commitments revealed and release their reveals; otherwise a
	// contribution rejected by the Position Manager would still have
	// consumed its nonce and vanished from the Reveal Store despite
	// never taking effect.
	ops := make([]perp.PerpOp, len(contributions))
	for i, c := range contributions {
		ops[i] = perp.PerpOp{
			User:     c.user,
			Market:   c.market,
			Size:     c.size,
			IsLong:   c.isLong,
			IsOpen:   c.isOpen,
			Leverage: c.leverage,
		}
	}
	if err := e.perps.ApplyPerpBatch(e.executor, ops, executionPrice); err != nil {
		return err
	}

	for _, c := range contributions {
		e.store.MarkRevealed(poolID, c.hash, [20]byte(c.user), c.nonce)
		e.store.DeletePerpReveal(poolID, c.hash)
	}

	e.mu.Lock()
	bs.LastBatchTimestamp = uint64(time.Now().Unix())
	bs.BatchNonce++
	e.mu.Unlock()

	e.emit(Event{
		Kind:           EventPerpBatchExecuted,
		PoolID:         poolID,
		BatchSize:      len(contributions),
		ExecutionPrice: executionPrice,
		Timestamp:      uint64(time.Now().Unix()),
	})
	e.log.Debug("perp batch executed", "pool", poolID, "size", len(contributions), "price", executionPrice)
	return nil
}

// invokePerpSwap is the perp batch's single suspension point, parallel
// to invokePoolSwap: it does not move per-user token balances, since
// the Position Manager's collateral accounting is margin-based and
// never touches external balances during open/close.
func (e *Engine) invokePerpSwap(key poolkey.Key, zeroForOne bool, amountSpecified *big.Int) (amount0, amount1 *big.Int, err error) {
	if err := e.lock(); err != nil {
		return nil, nil, err
	}
	defer e.unlock()

	priceLimit := new(big.Int).Sub(params.MaxSqrtPrice, big.NewInt(1))
	if zeroForOne {
		priceLimit = new(big.Int).Add(params.MinSqrtPrice, big.NewInt(1))
	}

	amount0, amount1, err = e.pool.Swap(key, zeroForOne, amountSpecified, priceLimit)
	if err != nil {
		return nil, nil, err
	}
	if err := e.verifySettled(); err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
