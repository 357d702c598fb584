// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"golang.org/x/crypto/sha3"

	"github.com/luxfi/batchengine/commitreveal"
	"github.com/luxfi/batchengine/params"
	"github.com/luxfi/batchengine/poolkey"
	"github.com/luxfi/batchengine/zkverify"
)

// ExecuteSpotBatch settles a batch of already-revealed spot intents
// against key's pool, netting them into a single swap and distributing
// the output pro-rata. commitmentHashes is processed in the given
// order; that order decides which contribution absorbs rounding dust.
func (e *Engine) ExecuteSpotBatch(key poolkey.Key, commitmentHashes [][32]byte) error {
	return e.executeSpotBatch(key, commitmentHashes, nil, nil)
}

// ExecuteSpotBatchWithProofs additionally re-verifies each commitment's
// Groth16 proof before settling; the matching reveal must have been
// submitted through the ZK reveal path.
func (e *Engine) ExecuteSpotBatchWithProofs(key poolkey.Key, commitmentHashes [][32]byte, proofs []zkverify.Proof, publicSignals []zkverify.PublicSignals) error {
	if len(proofs) != len(commitmentHashes) || len(publicSignals) != len(commitmentHashes) {
		return ErrInvalidCommitment
	}
	return e.executeSpotBatch(key, commitmentHashes, proofs, publicSignals)
}

func (e *Engine) executeSpotBatch(key poolkey.Key, commitmentHashes [][32]byte, proofs []zkverify.Proof, publicSignals []zkverify.PublicSignals) error {
	if len(commitmentHashes) < params.MinCommitments {
		return ErrInsufficientCommitments
	}

	poolID := key.ID()

	e.mu.Lock()
	bs := batchStateFor(e.spotBatchState, poolID)
	elapsed := time.Since(time.Unix(int64(bs.LastBatchTimestamp), 0))
	e.mu.Unlock()
	if bs.LastBatchTimestamp != 0 && elapsed < params.BatchInterval {
		return ErrBatchConditionsNotMet
	}

	contributions := make([]spotContribution, 0, len(commitmentHashes))
	delta0 := big.NewInt(0)
	delta1 := big.NewInt(0)

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

	for i, hash := range commitmentHashes {
		c, ok := e.store.Commitment(poolID, hash)
		if !ok || c.Revealed {
			return ErrInvalidCommitment
		}
		if proofs != nil {
			if err := e.store.Verifier().VerifyGroth16(e.store.KeyID(), proofs[i], hash); err != nil {
				return ErrInvalidCommitment
			}
		}

		intent, ok := e.store.SpotReveal(poolID, hash)
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

		contribution := spotContribution{
			hash:         hash,
			recipient:    intent.Recipient,
			tokenIn:      intent.TokenIn,
			amountIn:     intent.AmountIn,
			minAmountOut: intent.MinAmountOut,
			nonce:        intent.Nonce,
			user:         intent.User,
		}
		contributions = append(contributions, contribution)

		if intent.TokenIn == key.Currency0.Address {
			delta0.Add(delta0, intent.AmountIn)
			delta1.Sub(delta1, intent.MinAmountOut)
		} else {
			delta1.Add(delta1, intent.AmountIn)
			delta0.Sub(delta0, intent.MinAmountOut)
		}
	}

	zeroForOne, err := resolveDirection(delta0, delta1)
	if err != nil {
		return err
	}

	netInputCurrency := key.Currency1.Address
	if zeroForOne {
		netInputCurrency = key.Currency0.Address
	}
	for _, c := range contributions {
		if c.tokenIn != netInputCurrency {
			return ErrInvalidSwapDirection
		}
	}

	if err := verifySpotNetting(contributions, key, delta0, delta1); err != nil {
		return err
	}

	if err := e.collectSpotInputs(contributions); err != nil {
		return err
	}

	netInput := delta1
	if zeroForOne {
		netInput = delta0
	}

	actual0, actual1, err := e.invokePoolSwap(key, zeroForOne, new(big.Int).Abs(netInput))
	if err != nil {
		return err
	}

	var actualOutput *big.Int
	if zeroForOne {
		actualOutput = actual1
	} else {
		actualOutput = actual0
	}
	actualOutput = new(big.Int).Abs(actualOutput)

	outputToken := key.Currency1.Address
	if !zeroForOne {
		outputToken = key.Currency0.Address
	}

	totalIn := totalAmountIn(contributions)

	if err := e.validateSlippage(contributions, actualOutput, totalIn); err != nil {
		return err
	}

	if err := e.distributeSpotOutput(poolID, contributions, actualOutput, totalIn, outputToken); err != nil {
		return err
	}

	e.finalizeSpotBatch(poolID, bs, contributions, actual0, actual1)
	return nil
}

// resolveDirection implements the spec's direction-resolution rule:
// exactly one side must be strictly positive and the other strictly
// negative.
func resolveDirection(delta0, delta1 *big.Int) (zeroForOne bool, err error) {
	switch {
	case delta0.Sign() > 0 && delta1.Sign() < 0:
		return true, nil
	case delta1.Sign() > 0 && delta0.Sign() < 0:
		return false, nil
	default:
		return false, ErrInvalidSwapDirection
	}
}

// verifySpotNetting is the privacy self-check: it recomputes Δ₀/Δ₁
// from the stored contributions and asserts equality with the
// already-accumulated deltas, guarding against state mutation between
// accumulation and validation.
func verifySpotNetting(contributions []spotContribution, key poolkey.Key, delta0, delta1 *big.Int) error {
	check0 := big.NewInt(0)
	check1 := big.NewInt(0)
	for _, c := range contributions {
		if c.tokenIn == key.Currency0.Address {
			check0.Add(check0, c.amountIn)
			check1.Sub(check1, c.minAmountOut)
		} else {
			check1.Add(check1, c.amountIn)
			check0.Sub(check0, c.minAmountOut)
		}
	}
	if check0.Cmp(delta0) != 0 || check1.Cmp(delta1) != 0 {
		return ErrNetDeltaMismatch
	}
	return nil
}

// collectSpotInputs pulls amountIn of tokenIn from every contributor
// into the holding account, via the same per-account balance StateDB
// exposes to Settle/Take (the teacher's StateDB tracks one settlement
// balance per address; it is not itself currency-keyed, matching
// PoolManager.Settle/Take's own AddBalance/SubBalance calls). A
// contributor with insufficient balance fails the whole batch before
// any balance has moved; the pre-check sums a repeat contributor's
// amountIn across every one of their contributions in this batch, since
// checking each in isolation against the still-undebited balance would
// let two reveals from one user jointly overdraw it.
func (e *Engine) collectSpotInputs(contributions []spotContribution) error {
	required := make(map[common.Address]*big.Int, len(contributions))
	for _, c := range contributions {
		total, ok := required[c.user]
		if !ok {
			total = big.NewInt(0)
			required[c.user] = total
		}
		total.Add(total, c.amountIn)
	}
	for user, total := range required {
		amount, overflow := uint256.FromBig(total)
		if overflow || e.stateDB.GetBalance(user).Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
	}

	for _, c := range contributions {
		amount, _ := uint256.FromBig(c.amountIn)
		e.stateDB.SubBalance(c.user, amount)
		e.stateDB.AddBalance(e.holdingAccount, amount)
	}
	return nil
}

// invokePoolSwap performs the engine's single suspension point per
// batch: it acquires the reentrancy guard, calls into the pool, and
// verifies the holding account nets to zero before releasing it.
func (e *Engine) invokePoolSwap(key poolkey.Key, zeroForOne bool, exactInput *big.Int) (amount0, amount1 *big.Int, err error) {
	if err := e.lock(); err != nil {
		return nil, nil, err
	}
	defer e.unlock()

	priceLimit := params.MaxSqrtPrice
	priceLimit = new(big.Int).Sub(priceLimit, big.NewInt(1))
	if zeroForOne {
		priceLimit = new(big.Int).Add(params.MinSqrtPrice, big.NewInt(1))
	}

	amount0, amount1, err = e.pool.Swap(key, zeroForOne, new(big.Int).Neg(exactInput), priceLimit)
	if err != nil {
		return nil, nil, err
	}
	if err := e.verifySettled(); err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func totalAmountIn(contributions []spotContribution) *big.Int {
	total := big.NewInt(0)
	for _, c := range contributions {
		total.Add(total, c.amountIn)
	}
	return total
}

// validateSlippage checks every contribution's floor-divided
// guaranteed share against its declared minimum before any output
// moves.
func (e *Engine) validateSlippage(contributions []spotContribution, actualOutput, totalIn *big.Int) error {
	for _, c := range contributions {
		guaranteed := floorShare(actualOutput, c.amountIn, totalIn)
		if guaranteed.Cmp(c.minAmountOut) < 0 {
			return &SlippageExceededError{Recipient: c.recipient, MinAmountOut: c.minAmountOut, ActualOut: guaranteed}
		}
	}
	return nil
}

func floorShare(actualOutput, amountIn, totalIn *big.Int) *big.Int {
	num := new(big.Int).Mul(actualOutput, amountIn)
	return num.Div(num, totalIn)
}

// distributeSpotOutput pays every contribution its floor-divided
// share; the last contribution absorbs the rounding remainder so no
// dust is left in the holding account.
func (e *Engine) distributeSpotOutput(poolID [32]byte, contributions []spotContribution, actualOutput, totalIn *big.Int, outputToken common.Address) error {
	distributed := big.NewInt(0)
	for i, c := range contributions {
		var share *big.Int
		if i == len(contributions)-1 {
			share = new(big.Int).Sub(actualOutput, distributed)
		} else {
			share = floorShare(actualOutput, c.amountIn, totalIn)
		}
		distributed.Add(distributed, share)

		if share.Sign() <= 0 {
			continue
		}
		if err := e.Take(outputToken, c.recipient, share); err != nil {
			return err
		}
		e.emit(Event{
			Kind:          EventTokensDistributed,
			PoolID:        poolID,
			RecipientHash: keccakAddress(c.recipient),
			Token:         [20]byte(outputToken),
			Amount:        share,
		})
	}
	return nil
}

func (e *Engine) finalizeSpotBatch(poolID [32]byte, bs *BatchState, contributions []spotContribution, actual0, actual1 *big.Int) {
	for _, c := range contributions {
		e.store.MarkRevealed(poolID, c.hash, [20]byte(c.user), c.nonce)
		e.store.DeleteSpotReveal(poolID, c.hash)
	}

	e.mu.Lock()
	bs.LastBatchTimestamp = uint64(time.Now().Unix())
	bs.BatchNonce++
	e.mu.Unlock()

	e.emit(Event{
		Kind:      EventBatchExecuted,
		PoolID:    poolID,
		NetDelta0: actual0,
		NetDelta1: actual1,
		BatchSize: len(contributions),
		Timestamp: uint64(time.Now().Unix()),
	})
	e.log.Debug("spot batch executed", "pool", poolID, "size", len(contributions))
}

// keccakAddress implements the spec's recipientHash = Keccak256(recipient):
// recipients are hashed before emission so a batch's participants are
// never disclosed in clear.
func keccakAddress(addr common.Address) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(addr.Bytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
