// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import "math/big"

type EventKind uint8

const (
	EventBatchExecuted EventKind = iota
	EventTokensDistributed
	EventPerpBatchExecuted
)

// Event is one settlement-level lifecycle transition. Field meaning
// depends on Kind; unused fields are left zero, matching the
// canonical per-event schemas in the external interface contract.
type Event struct {
	Kind           EventKind
	PoolID         [32]byte
	NetDelta0      *big.Int
	NetDelta1      *big.Int
	BatchSize      int
	Timestamp      uint64
	RecipientHash  [32]byte
	Token          [20]byte
	Amount         *big.Int
	ExecutionPrice *big.Int
}

func (e *Engine) emit(ev Event) {
	e.events = append(e.events, ev)
}

// Events returns and clears the accumulated event log.
func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	return out
}
