// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package commitreveal implements the per-pool Commitment Registry and
// Reveal Store: an append-only list of hiding commitments plus the map
// of revealed intents waiting to be consumed by a batch.
package commitreveal

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

var (
	ErrDuplicateCommitment = errors.New("commitment already submitted")
	ErrInvalidCommitment   = errors.New("invalid commitment")
	ErrDeadlineExpired     = errors.New("deadline expired")
	ErrInvalidNonce        = errors.New("nonce already used")
	ErrAlreadyRevealed     = errors.New("commitment already revealed")
)

// Commitment is a hiding commitment submitted to one pool's registry.
// It deliberately carries no committer identity — the anonymity
// requirement is enforced by never recording one.
type Commitment struct {
	Hash      [32]byte
	Timestamp uint64
	Revealed  bool
	Verified  bool // set once a Groth16 proof has been checked against Hash
}

// SpotIntent is the revealed form of a spot swap.
type SpotIntent struct {
	User         common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
	Nonce        uint64
	Deadline     uint64
}

// PerpIntent is the revealed form of a perpetual position change.
type PerpIntent struct {
	User       common.Address
	Market     common.Address
	Size       *big.Int
	IsLong     bool
	IsOpen     bool
	Collateral *big.Int
	Leverage   *big.Int // 18-decimal fixed point
	Nonce      uint64
	Deadline   uint64
}
