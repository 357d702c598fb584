// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zkverify

import (
	"testing"
)

func TestVerifyGroth16UnknownKey(t *testing.T) {
	v := NewVerifier()
	err := v.VerifyGroth16([32]byte{1}, Proof{A: []byte("a"), B: []byte("b"), C: []byte("c")}, [32]byte{2})
	if err != ErrInvalidCommitment {
		t.Fatalf("err = %v, want %v", err, ErrInvalidCommitment)
	}
}

func TestVerifyGroth16WrongPublicInputCount(t *testing.T) {
	v := NewVerifier()
	keyID := [32]byte{9}
	// IC with 3 elements implies 2 public inputs; this system's
	// circuit declares exactly 1, so verifying against a key shaped for
	// 2 must be rejected rather than silently truncated.
	v.RegisterVerifyingKey(keyID, &VerifyingKey{
		Alpha: make([]byte, 64),
		Beta:  make([]byte, 128),
		Gamma: make([]byte, 128),
		Delta: make([]byte, 128),
		IC:    [][]byte{make([]byte, 64), make([]byte, 64), make([]byte, 64)},
	})

	err := v.VerifyGroth16(keyID, Proof{A: make([]byte, 64), B: make([]byte, 128), C: make([]byte, 64)}, [32]byte{3})
	if err != ErrInvalidCommitment {
		t.Fatalf("err = %v, want %v", err, ErrInvalidCommitment)
	}
}

func TestVerifyGroth16MalformedProof(t *testing.T) {
	v := NewVerifier()
	keyID := [32]byte{7}
	v.RegisterVerifyingKey(keyID, &VerifyingKey{
		Alpha: make([]byte, 64),
		Beta:  make([]byte, 128),
		Gamma: make([]byte, 128),
		Delta: make([]byte, 128),
		IC:    [][]byte{make([]byte, 64), make([]byte, 64)},
	})

	// Too short to be a valid G1/G2 encoding.
	err := v.VerifyGroth16(keyID, Proof{A: []byte("short"), B: []byte("short"), C: []byte("short")}, [32]byte{4})
	if err != ErrInvalidCommitment {
		t.Fatalf("err = %v, want %v", err, ErrInvalidCommitment)
	}

	total, valid, failed := v.Stats()
	if total != 1 || valid != 0 || failed != 1 {
		t.Fatalf("Stats() = (%d,%d,%d), want (1,0,1)", total, valid, failed)
	}
}

func TestPoseidonHasherDeterministic(t *testing.T) {
	h := NewPoseidonHasher()
	var a, b [32]byte
	a[31] = 1
	b[31] = 2

	h1, err := h.HashFieldElements(a, b)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := h.HashFieldElements(a, b)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("Poseidon hash not deterministic: %x != %x", h1, h2)
	}

	h3, err := h.HashFieldElements(b, a)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("order-swapped input produced the same hash")
	}
}

func TestPoseidonHasherRejectsTooManyElements(t *testing.T) {
	h := NewPoseidonHasher()
	input := make([]byte, 32*17)
	if _, err := h.Hash(input); err != ErrTooManyInputs {
		t.Fatalf("err = %v, want %v", err, ErrTooManyInputs)
	}
}

func TestPoseidonHasherRejectsBadLength(t *testing.T) {
	h := NewPoseidonHasher()
	if _, err := h.Hash([]byte{1, 2, 3}); err != ErrInvalidInputLength {
		t.Fatalf("err = %v, want %v", err, ErrInvalidInputLength)
	}
}

