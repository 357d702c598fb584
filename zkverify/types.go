// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package zkverify implements Groth16 proof verification over BN254
// and the Poseidon2 hash used as the sole public signal binding a
// revealed intent to its commitment.
package zkverify

import (
	"errors"
	"math/big"
)

// ErrInvalidCommitment is the single error surfaced for any
// verification failure: a malformed proof, a point off-curve or out
// of subgroup, a failed pairing check, or a public-signal mismatch.
// The spec requires this to stay unified so a caller cannot learn
// which check failed.
var ErrInvalidCommitment = errors.New("invalid commitment")

var ErrUnknownVerifyingKey = errors.New("unknown verifying key")

// VerifyingKey is the Groth16 verification key baked in at deployment
// for a given circuit: alpha, beta, gamma, delta and the IC vector.
// This system's circuit has exactly one public signal, so IC has
// exactly two elements (IC[0], IC[1]).
type VerifyingKey struct {
	Alpha []byte // G1
	Beta  []byte // G2
	Gamma []byte // G2
	Delta []byte // G2
	IC    [][]byte
}

// Proof is a Groth16 proof triple.
type Proof struct {
	A []byte // G1
	B []byte // G2
	C []byte // G1
}

// PublicSignals is the vector of public inputs a proof is checked
// against. In this system it always has length 1: the Poseidon
// commitment hash as a field element.
type PublicSignals []*big.Int
