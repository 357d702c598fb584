// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainstate

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/geth/common"
)

// AddressRange is a continuous, inclusive range of precompile addresses.
type AddressRange struct {
	Start common.Address
	End   common.Address
}

// Contains reports whether addr falls within the range.
func (a AddressRange) Contains(addr common.Address) bool {
	b := addr.Bytes()
	return bytes.Compare(b, a.Start[:]) >= 0 && bytes.Compare(b, a.End[:]) <= 0
}

// dexMarketsRange is LP-9xxx, the reserved band this system's
// commitment registry, settlement engine and position manager are
// pinned into.
var dexMarketsRange = AddressRange{
	Start: common.HexToAddress("0x0000000000000000000000000000000000009000"),
	End:   common.HexToAddress("0x0000000000000000000000000000000000009fff"),
}

// privacyZKRange is LP-4xxx, the reserved band the Groth16 verifier
// and Poseidon2 hasher are pinned into.
var privacyZKRange = AddressRange{
	Start: common.HexToAddress("0x0000000000000000000000000000000000004000"),
	End:   common.HexToAddress("0x0000000000000000000000000000000000004fff"),
}

// reservedRanges lists the bands a Module's Address must fall into.
var reservedRanges = []AddressRange{dexMarketsRange, privacyZKRange}

// blackholeAddr is never a valid module address: it is where burned
// assets are sent, not where a contract lives.
var blackholeAddr = common.Address{1}

// Module pins one component of this system (the commitment registry,
// the settlement engine, the position manager, the ZK verifier) to a
// fixed address within a reserved range, under a human-readable
// config key used for lookups and config-file wiring.
type Module struct {
	ConfigKey string
	Address   common.Address
}

// Registry holds the modules active in a deployment. Unlike the
// teacher's package-level registerer, Registry is an instance so
// tests can build an isolated set without cross-contaminating global
// state.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds m, enforcing a reserved address, and that neither the
// config key nor the address collides with an already-registered
// module. Modules are kept sorted by address for deterministic
// iteration.
func (r *Registry) Register(m Module) error {
	if m.Address == blackholeAddr {
		return fmt.Errorf("address %s is the blackhole address", m.Address)
	}
	if !reservedAddress(m.Address) {
		return fmt.Errorf("address %s not in a reserved range", m.Address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.modules {
		if existing.ConfigKey == m.ConfigKey {
			return fmt.Errorf("config key %q already registered", m.ConfigKey)
		}
		if existing.Address == m.Address {
			return fmt.Errorf("address %s already registered", m.Address)
		}
	}

	r.modules = append(r.modules, m)
	sort.Slice(r.modules, func(i, j int) bool {
		return bytes.Compare(r.modules[i].Address[:], r.modules[j].Address[:]) < 0
	})
	return nil
}

// ByAddress looks up the module registered at addr.
func (r *Registry) ByAddress(addr common.Address) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if m.Address == addr {
			return m, true
		}
	}
	return Module{}, false
}

// ByConfigKey looks up the module registered under key.
func (r *Registry) ByConfigKey(key string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if m.ConfigKey == key {
			return m, true
		}
	}
	return Module{}, false
}

// All returns the registered modules in address order.
func (r *Registry) All() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

func reservedAddress(addr common.Address) bool {
	for _, rng := range reservedRanges {
		if rng.Contains(addr) {
			return true
		}
	}
	return false
}
