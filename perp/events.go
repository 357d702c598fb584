// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perp

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

type EventKind uint8

const (
	EventPositionOpened EventKind = iota
	EventPositionClosed
	EventPositionLiquidated
	EventCollateralDeposited
	EventCollateralWithdrawn
	EventFundingApplied
)

// Event is one Position Manager lifecycle transition. Field meaning
// depends on Kind; unused fields are left zero.
type Event struct {
	Kind       EventKind
	User       common.Address
	Market     common.Address
	Liquidator common.Address
	Amount     *big.Int
	Rate       *big.Int
}

func (m *Manager) emit(ev Event) {
	m.events = append(m.events, ev)
}

// Events returns and clears the accumulated event log.
func (m *Manager) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out
}
