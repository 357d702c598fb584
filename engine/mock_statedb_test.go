// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// memStateDB is an in-memory chainstate.StateDB for tests, grounded on
// the teacher's own mock state pattern of keying everything off plain
// Go maps rather than a real trie.
type memStateDB struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
}

func newMemStateDB() *memStateDB {
	return &memStateDB{
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		balances: make(map[common.Address]*uint256.Int),
	}
}

func (s *memStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	slots, ok := s.storage[addr]
	if !ok {
		return common.Hash{}
	}
	return slots[key]
}

func (s *memStateDB) SetState(addr common.Address, key common.Hash, value common.Hash) {
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.storage[addr] = slots
	}
	slots[key] = value
}

func (s *memStateDB) GetBalance(addr common.Address) *uint256.Int {
	bal, ok := s.balances[addr]
	if !ok {
		return uint256.NewInt(0)
	}
	return bal
}

func (s *memStateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	bal := s.balanceOf(addr)
	bal.Add(bal, amount)
}

func (s *memStateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	bal := s.balanceOf(addr)
	bal.Sub(bal, amount)
}

func (s *memStateDB) Exist(addr common.Address) bool {
	_, ok := s.balances[addr]
	return ok
}

func (s *memStateDB) balanceOf(addr common.Address) *uint256.Int {
	bal, ok := s.balances[addr]
	if !ok {
		bal = uint256.NewInt(0)
		s.balances[addr] = bal
	}
	return bal
}
