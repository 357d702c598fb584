// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainstate

import (
	"testing"

	"github.com/luxfi/geth/common"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	engine := Module{ConfigKey: "engine", Address: common.HexToAddress("0x0000000000000000000000000000000000009010")}
	verifier := Module{ConfigKey: "zkverifier", Address: common.HexToAddress("0x0000000000000000000000000000000000004010")}

	if err := r.Register(engine); err != nil {
		t.Fatalf("Register(engine) failed: %v", err)
	}
	if err := r.Register(verifier); err != nil {
		t.Fatalf("Register(verifier) failed: %v", err)
	}

	got, ok := r.ByAddress(engine.Address)
	if !ok || got.ConfigKey != "engine" {
		t.Fatalf("ByAddress(engine) = %v, %v", got, ok)
	}
	got, ok = r.ByConfigKey("zkverifier")
	if !ok || got.Address != verifier.Address {
		t.Fatalf("ByConfigKey(zkverifier) = %v, %v", got, ok)
	}

	all := r.All()
	if len(all) != 2 || all[0].Address != verifier.Address {
		t.Fatalf("All() not sorted by address: %v", all)
	}
}

func TestRegistryRejectsOutOfRangeAddress(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Module{ConfigKey: "bad", Address: common.HexToAddress("0x1234")})
	if err == nil {
		t.Fatal("expected error for out-of-range address")
	}
}

func TestRegistryRejectsDuplicateConfigKey(t *testing.T) {
	r := NewRegistry()
	addr1 := common.HexToAddress("0x0000000000000000000000000000000000009010")
	addr2 := common.HexToAddress("0x0000000000000000000000000000000000009011")
	if err := r.Register(Module{ConfigKey: "engine", Address: addr1}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(Module{ConfigKey: "engine", Address: addr2}); err == nil {
		t.Fatal("expected error for duplicate config key")
	}
}

func TestRegistryRejectsDuplicateAddress(t *testing.T) {
	r := NewRegistry()
	addr := common.HexToAddress("0x0000000000000000000000000000000000009010")
	if err := r.Register(Module{ConfigKey: "a", Address: addr}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(Module{ConfigKey: "b", Address: addr}); err == nil {
		t.Fatal("expected error for duplicate address")
	}
}

func TestRegistryRejectsBlackholeAddress(t *testing.T) {
	r := NewRegistry()
	blackhole := common.Address{1}
	if err := r.Register(Module{ConfigKey: "bad", Address: blackhole}); err == nil {
		t.Fatal("expected error for blackhole address")
	}
}
