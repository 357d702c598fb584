// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package commitreveal

import (
	"math/big"
	"sync"

	log "github.com/luxfi/log"

	"github.com/luxfi/batchengine/zkverify"
)

type nonceKey struct {
	pool  [32]byte
	user  [20]byte
	nonce uint64
}

// Store is the Commitment Registry and Reveal Store for every pool in
// a deployment. The registry and the store share one mutex: a reveal
// must observe a commitment's current state without racing a
// concurrent submit, and this system has no real parallelism to lose
// by combining them (see the concurrency model).
type Store struct {
	mu sync.Mutex

	// commitments[poolID][hash] is the Commitment Registry.
	commitments map[[32]byte]map[[32]byte]*Commitment

	// spotReveals/perpReveals[poolID][hash] is the Reveal Store. A pool
	// only ever uses one of the two, selected by which Reveal* method
	// is called, mirroring the source's two parallel registries (see
	// the Redesign Flags for the un-adopted Intent-sum-type proposal).
	spotReveals map[[32]byte]map[[32]byte]*SpotIntent
	perpReveals map[[32]byte]map[[32]byte]*PerpIntent

	nonces map[nonceKey]bool

	verifier *zkverify.Verifier
	keyID    [32]byte

	events []Event
	log    log.Logger
}

// New creates a Store whose ZK path verifies proofs against the
// verifying key registered under keyID in verifier. logger may be nil.
func New(verifier *zkverify.Verifier, keyID [32]byte, logger log.Logger) *Store {
	if logger == nil {
		logger = log.New()
	}
	return &Store{
		commitments: make(map[[32]byte]map[[32]byte]*Commitment),
		spotReveals: make(map[[32]byte]map[[32]byte]*SpotIntent),
		perpReveals: make(map[[32]byte]map[[32]byte]*PerpIntent),
		nonces:      make(map[nonceKey]bool),
		verifier:    verifier,
		keyID:       keyID,
		log:         logger,
	}
}

// Verifier exposes the Groth16 verifier this Store checks ZK-path
// commitments against, so the Settlement Engine can reuse the same
// instance when it re-verifies proofs at batch-execution time.
func (s *Store) Verifier() *zkverify.Verifier {
	return s.verifier
}

// KeyID returns the verifying-key ID this Store's ZK path checks
// against.
func (s *Store) KeyID() [32]byte {
	return s.keyID
}

func addrKey(a [20]byte) [20]byte { return a }

func nonceUsed(n map[nonceKey]bool, poolID [32]byte, user [20]byte, nonce uint64) bool {
	return n[nonceKey{pool: poolID, user: addrKey(user), nonce: nonce}]
}

// NonceUsed reports whether (poolID, user, nonce) has already been
// consumed by a prior MarkRevealed call. RevealSpot/RevealPerp check
// this at reveal time but do not consume it — two distinct intents can
// share a nonce right up until one of them is actually settled — so the
// Settlement Engine must call NonceUsed again immediately before
// processing each contribution in a batch, not rely on the reveal-time
// check alone.
func (s *Store) NonceUsed(poolID [32]byte, user [20]byte, nonce uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nonceUsed(s.nonces, poolID, user, nonce)
}

// Submit appends a new commitment for poolID if hash has not already
// been appended in that pool. It records no committer identity.
func (s *Store) Submit(poolID [32]byte, hash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.poolCommitments(poolID)
	if _, exists := pool[hash]; exists {
		return ErrDuplicateCommitment
	}
	pool[hash] = &Commitment{Hash: hash}
	s.emit(Event{Kind: EventCommitmentSubmitted, PoolID: poolID, CommitmentHash: hash})
	s.log.Debug("commitment submitted", "pool", poolID, "hash", hash)
	return nil
}

// SubmitWithProof verifies proof against publicSignals before
// appending, and requires publicSignals[0] to equal hash interpreted
// as a field element. On success the commitment is marked verified.
func (s *Store) SubmitWithProof(poolID [32]byte, hash [32]byte, proof zkverify.Proof, publicSignals zkverify.PublicSignals) error {
	if len(publicSignals) != 1 || publicSignals[0] == nil || publicSignals[0].Cmp(new(big.Int).SetBytes(hash[:])) != 0 {
		return ErrInvalidCommitment
	}

	if err := s.verifier.VerifyGroth16(s.keyID, proof, hash); err != nil {
		return ErrInvalidCommitment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.poolCommitments(poolID)
	c, exists := pool[hash]
	if !exists {
		c = &Commitment{Hash: hash}
		pool[hash] = c
		s.emit(Event{Kind: EventCommitmentSubmitted, PoolID: poolID, CommitmentHash: hash})
	}
	c.Verified = true
	s.emit(Event{Kind: EventCommitmentVerified, PoolID: poolID, CommitmentHash: hash})
	s.log.Debug("commitment verified", "pool", poolID, "hash", hash)
	return nil
}

// PendingCount returns the number of commitments in poolID not yet
// marked revealed.
func (s *Store) PendingCount(poolID [32]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, c := range s.commitments[poolID] {
		if !c.Revealed {
			count++
		}
	}
	return count
}

// poolCommitments returns (creating if absent) the commitment map for
// poolID. Callers must hold s.mu.
func (s *Store) poolCommitments(poolID [32]byte) map[[32]byte]*Commitment {
	pool, ok := s.commitments[poolID]
	if !ok {
		pool = make(map[[32]byte]*Commitment)
		s.commitments[poolID] = pool
	}
	return pool
}

// Commitment returns the registry entry for hash in poolID, for
// callers (the Settlement Engine) that need to check its
// revealed/verified state without mutating it.
func (s *Store) Commitment(poolID, hash [32]byte) (Commitment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commitments[poolID][hash]
	if !ok {
		return Commitment{}, false
	}
	return *c, true
}

// MarkRevealed flips a commitment to its terminal revealed state and
// consumes the (pool, user, nonce) tuple. Called by the Settlement
// Engine at the point a batch consumes the commitment — the "revealed"
// flag must become true atomically with consumption, not at reveal
// time (see the Reveal Store's failure model).
func (s *Store) MarkRevealed(poolID, hash [32]byte, user [20]byte, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.commitments[poolID][hash]; ok {
		c.Revealed = true
	}
	s.nonces[nonceKey{pool: poolID, user: addrKey(user), nonce: nonce}] = true
}

// DeleteSpotReveal/DeletePerpReveal release a consumed reveal from the
// Reveal Store, per the ownership rule: the Registry owns Commitments,
// the Engine releases consumed reveals.
func (s *Store) DeleteSpotReveal(poolID, hash [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spotReveals[poolID], hash)
}

func (s *Store) DeletePerpReveal(poolID, hash [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.perpReveals[poolID], hash)
}

// SpotReveal returns the stored spot intent for hash in poolID.
func (s *Store) SpotReveal(poolID, hash [32]byte) (*SpotIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.spotReveals[poolID][hash]
	return intent, ok
}

// PerpReveal returns the stored perp intent for hash in poolID.
func (s *Store) PerpReveal(poolID, hash [32]byte) (*PerpIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.perpReveals[poolID][hash]
	return intent, ok
}

// ClearPendingReveals is the administrative escape hatch for
// stale/bad reveals blocking a batch: it deletes the named hashes from
// both reveal maps without touching the Commitment Registry.
func (s *Store) ClearPendingReveals(poolID [32]byte, hashes [][32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hashes {
		delete(s.spotReveals[poolID], h)
		delete(s.perpReveals[poolID], h)
	}
}
