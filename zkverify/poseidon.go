// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zkverify

import (
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/zeebo/blake3"
)

var poseidon2HasherFactory = poseidon2.NewMerkleDamgardHasher

var (
	ErrInvalidInputLength = errors.New("invalid input length: must be multiple of 32 bytes")
	ErrTooManyInputs      = errors.New("too many inputs: maximum 16 field elements")
)

// PoseidonHasher computes the Poseidon2 hash over BN254 scalar field
// elements. It is the only hash used on the ZK path: the public
// signal a Groth16 proof is checked against is Poseidon(intent
// fields), never re-derived from the proof itself.
type PoseidonHasher struct {
	cache    map[[32]byte][32]byte
	cacheMu  sync.RWMutex
	cacheMax int
}

// NewPoseidonHasher creates a hasher with a bounded result cache,
// matching the teacher's Poseidon2Hasher sizing.
func NewPoseidonHasher() *PoseidonHasher {
	return &PoseidonHasher{
		cache:    make(map[[32]byte][32]byte),
		cacheMax: 10_000,
	}
}

// Hash computes Poseidon2 over 1-16 concatenated 32-byte field
// elements.
func (p *PoseidonHasher) Hash(input []byte) ([32]byte, error) {
	if len(input) == 0 || len(input)%32 != 0 {
		return [32]byte{}, ErrInvalidInputLength
	}
	numElements := len(input) / 32
	if numElements > 16 {
		return [32]byte{}, ErrTooManyInputs
	}

	cacheKey := cacheKeyOf(input)
	p.cacheMu.RLock()
	if cached, ok := p.cache[cacheKey]; ok {
		p.cacheMu.RUnlock()
		return cached, nil
	}
	p.cacheMu.RUnlock()

	elements := make([]fr.Element, numElements)
	for i := 0; i < numElements; i++ {
		elements[i].SetBytes(input[i*32 : (i+1)*32])
	}

	hasher := poseidon2HasherFactory()
	for _, elem := range elements {
		elemBytes := elem.Bytes()
		hasher.Write(elemBytes[:])
	}

	var result [32]byte
	copy(result[:], hasher.Sum(nil))

	p.cacheMu.Lock()
	if len(p.cache) < p.cacheMax {
		p.cache[cacheKey] = result
	}
	p.cacheMu.Unlock()

	return result, nil
}

// HashFieldElements is a convenience wrapper over Hash for callers
// that already have the intent fields as field elements rather than
// raw bytes (the form the ZK circuit's public signal is declared in).
func (p *PoseidonHasher) HashFieldElements(elements ...[32]byte) ([32]byte, error) {
	input := make([]byte, 32*len(elements))
	for i, e := range elements {
		copy(input[i*32:(i+1)*32], e[:])
	}
	return p.Hash(input)
}

// cacheKeyOf derives the lookup key from raw input bytes rather than
// the (expensive) Poseidon2 output, so a cache hit never pays for a
// field-element parse.
func cacheKeyOf(input []byte) [32]byte {
	h := blake3.New()
	h.Write(input)
	var key [32]byte
	h.Digest().Read(key[:])
	return key
}
