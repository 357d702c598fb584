// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zkverify

import (
	"math/big"
	"sync"

	"github.com/luxfi/crypto/bn256"
)

// Verifier holds the verifying key(s) registered for this deployment
// and checks Groth16 proofs against them.
//
// This system has a single circuit with one public signal (the
// Poseidon commitment hash), but the Verifier is keyed by an opaque
// key ID so a deployment can rotate verifying keys without touching
// callers.
type Verifier struct {
	mu   sync.RWMutex
	keys map[[32]byte]*VerifyingKey

	hasher *PoseidonHasher

	// stats are retained for operational visibility only; they are
	// never consulted to decide verification outcomes.
	totalVerifications uint64
	totalValid         uint64
	totalFailed        uint64
}

// NewVerifier creates a Verifier with no registered keys.
func NewVerifier() *Verifier {
	return &Verifier{
		keys:   make(map[[32]byte]*VerifyingKey),
		hasher: NewPoseidonHasher(),
	}
}

// Poseidon exposes the verifier's hasher so callers (the Commitment
// Registry) can compute the public signal for a ZK-path commitment
// without constructing a second hasher.
func (v *Verifier) Poseidon() *PoseidonHasher {
	return v.hasher
}

// RegisterVerifyingKey installs vk under keyID, overwriting any
// existing key with that ID.
func (v *Verifier) RegisterVerifyingKey(keyID [32]byte, vk *VerifyingKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[keyID] = vk
}

// VerifyGroth16 checks proof against the verifying key registered
// under keyID, requiring the proof's sole public signal to equal
// commitmentHash interpreted as a field element. Every failure mode —
// unknown key, malformed points, a failed pairing check, or a
// mismatched public signal — collapses to ErrInvalidCommitment; the
// spec requires verification failure to leak no further information.
func (v *Verifier) VerifyGroth16(keyID [32]byte, proof Proof, commitmentHash [32]byte) error {
	v.mu.RLock()
	vk, ok := v.keys[keyID]
	v.mu.RUnlock()
	if !ok {
		v.recordFailure()
		return ErrInvalidCommitment
	}

	publicInputs := PublicSignals{new(big.Int).SetBytes(commitmentHash[:])}
	if len(publicInputs) != len(vk.IC)-1 {
		v.recordFailure()
		return ErrInvalidCommitment
	}

	if !groth16PairingCheck(vk, proof, publicInputs) {
		v.recordFailure()
		return ErrInvalidCommitment
	}

	v.recordSuccess()
	return nil
}

func (v *Verifier) recordSuccess() {
	v.mu.Lock()
	v.totalVerifications++
	v.totalValid++
	v.mu.Unlock()
}

func (v *Verifier) recordFailure() {
	v.mu.Lock()
	v.totalVerifications++
	v.totalFailed++
	v.mu.Unlock()
}

// Stats returns (total, valid, failed) verification counts, for
// operator dashboards only.
func (v *Verifier) Stats() (total, valid, failed uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalVerifications, v.totalValid, v.totalFailed
}

// groth16PairingCheck implements the Groth16 pairing verification
// equation: e(A, B) = e(α, β) · e(∑ᵢ pubᵢ·ICᵢ + IC₀, γ) · e(C, δ),
// equivalently e(A,B) · e(-α,β) · e(-vk_x,γ) · e(-C,δ) = 1.
func groth16PairingCheck(vk *VerifyingKey, proof Proof, publicInputs PublicSignals) bool {
	var a bn256.G1
	if _, err := a.Unmarshal(proof.A); err != nil {
		return false
	}
	var b bn256.G2
	if _, err := b.Unmarshal(proof.B); err != nil {
		return false
	}
	var c bn256.G1
	if _, err := c.Unmarshal(proof.C); err != nil {
		return false
	}

	var alpha bn256.G1
	if _, err := alpha.Unmarshal(vk.Alpha); err != nil {
		return false
	}
	var beta bn256.G2
	if _, err := beta.Unmarshal(vk.Beta); err != nil {
		return false
	}
	var gamma bn256.G2
	if _, err := gamma.Unmarshal(vk.Gamma); err != nil {
		return false
	}
	var delta bn256.G2
	if _, err := delta.Unmarshal(vk.Delta); err != nil {
		return false
	}

	if len(vk.IC) < 1 {
		return false
	}
	ic := make([]*bn256.G1, len(vk.IC))
	for i, icBytes := range vk.IC {
		ic[i] = new(bn256.G1)
		if _, err := ic[i].Unmarshal(icBytes); err != nil {
			return false
		}
	}

	// vk_x = IC[0] + Σᵢ publicInputs[i]·IC[i+1]
	vkX := new(bn256.G1)
	vkX.ScalarMult(ic[0], big.NewInt(1))
	for i, input := range publicInputs {
		if i+1 >= len(ic) {
			return false
		}
		term := new(bn256.G1)
		term.ScalarMult(ic[i+1], input)
		vkX.Add(vkX, term)
	}

	negAlpha := new(bn256.G1).ScalarMult(&alpha, big.NewInt(-1))
	negVkX := new(bn256.G1).ScalarMult(vkX, big.NewInt(-1))
	negC := new(bn256.G1).ScalarMult(&c, big.NewInt(-1))

	g1Points := []*bn256.G1{&a, negAlpha, negVkX, negC}
	g2Points := []*bn256.G2{&b, &beta, &gamma, &delta}
	return bn256.PairingCheck(g1Points, g2Points)
}
