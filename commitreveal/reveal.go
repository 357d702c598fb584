// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commitreveal

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
	"golang.org/x/crypto/sha3"
)

// RevealSpot processes a non-ZK reveal of a spot intent: it checks the
// deadline and nonce, recomputes the commitment hash from the intent's
// canonical encoding, and requires it to match an unrevealed
// commitment already in the Registry. Does not mark the commitment
// revealed — the Settlement Engine does that atomically with
// consumption.
//
// A second reveal for the same hash overwrites the stored intent
// (last-valid-write-wins): only the original committer can reproduce a
// colliding hash, so the overwrite is benign self-correction.
func (s *Store) RevealSpot(poolID [32]byte, intent SpotIntent) error {
	if err := s.checkDeadlineAndNonce(poolID, intent.User, intent.Nonce, intent.Deadline); err != nil {
		return err
	}

	hash := hashSpotIntent(intent)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commitments[poolID][hash]
	if !ok || c.Revealed {
		return ErrInvalidCommitment
	}

	pool, exists := s.spotReveals[poolID]
	if !exists {
		pool = make(map[[32]byte]*SpotIntent)
		s.spotReveals[poolID] = pool
	}
	stored := intent
	pool[hash] = &stored

	s.emit(Event{Kind: EventCommitmentRevealed, PoolID: poolID, CommitmentHash: hash})
	s.log.Debug("spot intent revealed", "pool", poolID, "hash", hash)
	return nil
}

// RevealSpotForZK is RevealSpot's ZK-path counterpart: instead of
// recomputing the hash (the Poseidon hash can't be cheaply re-derived
// here), it trusts a commitmentHash already marked verified by a prior
// SubmitWithProof call.
func (s *Store) RevealSpotForZK(poolID [32]byte, commitmentHash [32]byte, intent SpotIntent) error {
	if err := s.checkDeadlineAndNonce(poolID, intent.User, intent.Nonce, intent.Deadline); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commitments[poolID][commitmentHash]
	if !ok || !c.Verified || c.Revealed {
		return ErrInvalidCommitment
	}

	pool, exists := s.spotReveals[poolID]
	if !exists {
		pool = make(map[[32]byte]*SpotIntent)
		s.spotReveals[poolID] = pool
	}
	stored := intent
	pool[commitmentHash] = &stored

	s.emit(Event{Kind: EventCommitmentRevealed, PoolID: poolID, CommitmentHash: commitmentHash})
	return nil
}

// RevealPerp is the perp analogue of RevealSpot.
func (s *Store) RevealPerp(poolID [32]byte, intent PerpIntent) error {
	if err := s.checkDeadlineAndNonce(poolID, intent.User, intent.Nonce, intent.Deadline); err != nil {
		return err
	}

	hash := hashPerpIntent(intent)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commitments[poolID][hash]
	if !ok || c.Revealed {
		return ErrInvalidCommitment
	}

	pool, exists := s.perpReveals[poolID]
	if !exists {
		pool = make(map[[32]byte]*PerpIntent)
		s.perpReveals[poolID] = pool
	}
	stored := intent
	pool[hash] = &stored

	s.emit(Event{Kind: EventCommitmentRevealed, PoolID: poolID, CommitmentHash: hash})
	return nil
}

// RevealPerpForZK is RevealPerp's ZK-path counterpart.
func (s *Store) RevealPerpForZK(poolID [32]byte, commitmentHash [32]byte, intent PerpIntent) error {
	if err := s.checkDeadlineAndNonce(poolID, intent.User, intent.Nonce, intent.Deadline); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commitments[poolID][commitmentHash]
	if !ok || !c.Verified || c.Revealed {
		return ErrInvalidCommitment
	}

	pool, exists := s.perpReveals[poolID]
	if !exists {
		pool = make(map[[32]byte]*PerpIntent)
		s.perpReveals[poolID] = pool
	}
	stored := intent
	pool[commitmentHash] = &stored

	s.emit(Event{Kind: EventCommitmentRevealed, PoolID: poolID, CommitmentHash: commitmentHash})
	return nil
}

func (s *Store) checkDeadlineAndNonce(poolID [32]byte, user common.Address, nonce, deadline uint64) error {
	if uint64(time.Now().Unix()) > deadline {
		return ErrDeadlineExpired
	}

	s.mu.Lock()
	used := nonceUsed(s.nonces, poolID, [20]byte(user), nonce)
	s.mu.Unlock()
	if used {
		return ErrInvalidNonce
	}
	return nil
}

// hashSpotIntent computes Keccak256(canonical_abi_encode(fields)) in
// the fields' declared order, matching spec's non-ZK commitment-hash
// function.
func hashSpotIntent(intent SpotIntent) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(intent.User.Bytes())
	h.Write(intent.TokenIn.Bytes())
	h.Write(intent.TokenOut.Bytes())
	writeUint256(h, intent.AmountIn)
	writeUint256(h, intent.MinAmountOut)
	h.Write(intent.Recipient.Bytes())
	writeUint64(h, intent.Nonce)
	writeUint64(h, intent.Deadline)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashPerpIntent(intent PerpIntent) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(intent.User.Bytes())
	h.Write(intent.Market.Bytes())
	writeUint256(h, intent.Size)
	writeBool(h, intent.IsLong)
	writeBool(h, intent.IsOpen)
	writeUint256(h, intent.Collateral)
	writeUint256(h, intent.Leverage)
	writeUint64(h, intent.Nonce)
	writeUint64(h, intent.Deadline)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

type binaryWriter interface {
	Write(p []byte) (int, error)
}

func writeUint256(w binaryWriter, v *big.Int) {
	buf := make([]byte, 32)
	v.FillBytes(buf)
	w.Write(buf)
}

func writeUint64(w binaryWriter, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

func writeBool(w binaryWriter, v bool) {
	if v {
		w.Write([]byte{1})
	} else {
		w.Write([]byte{0})
	}
}
