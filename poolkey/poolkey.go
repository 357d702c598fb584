// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package poolkey defines the currency and pool-key primitives every
// other component keys its per-pool state on.
package poolkey

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

var (
	ErrCurrencyNotSorted = errors.New("currencies not sorted")
	ErrInvalidFee        = errors.New("invalid fee")
)

// uint24/int24 follow the teacher's convention of aliasing to the
// narrowest native Go integer that holds the range, validated at
// construction rather than by the type system.
type (
	Uint24 = uint32
	Int24  = int32
)

// Currency is a distinguished ERC20-style token address. The zero
// address is reserved for the chain's native asset.
type Currency struct {
	Address common.Address
}

// IsNative reports whether c represents the chain's native asset.
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// Less reports whether c sorts before other as an unsigned 160-bit
// integer, the ordering a pool's currency0/currency1 must satisfy.
func (c Currency) Less(other Currency) bool {
	return bytesLess(c.Address.Bytes(), other.Address.Bytes())
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Key uniquely identifies a pool: the ordered currency pair, the fee
// tier, the tick spacing of the backing AMM, and an optional hook
// contract. Its canonical PoolId is the blake3 hash of its canonical
// byte encoding, matching the teacher's PoolKey.ID().
type Key struct {
	Currency0   Currency
	Currency1   Currency
	Fee         Uint24
	TickSpacing Int24
	Hook        common.Address
}

// Validate checks the two pool-key invariants from the spec: the
// currencies are sorted, and the fee does not exceed the maximum.
func (k Key) Validate() error {
	if !k.Currency0.Less(k.Currency1) {
		return ErrCurrencyNotSorted
	}
	if k.Fee > 1_000_000 {
		return ErrInvalidFee
	}
	return nil
}

// ID computes the canonical 32-byte PoolId.
func (k Key) ID() [32]byte {
	h := blake3.New()
	h.Write(k.Currency0.ToBytes())
	h.Write(k.Currency1.ToBytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], k.Fee)
	h.Write(feeBytes[1:]) // uint24

	var tickBytes [4]byte
	binary.BigEndian.PutUint32(tickBytes[:], uint32(k.TickSpacing))
	h.Write(tickBytes[1:]) // int24

	h.Write(k.Hook.Bytes())

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Has reports whether currency c is one of the pool's two sides.
func (k Key) Has(c Currency) bool {
	return c.Address == k.Currency0.Address || c.Address == k.Currency1.Address
}
