// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perp

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/batchengine/params"
)

// checkLiquidation implements the spec's sole liquidation predicate:
// equity = max(0, collateral + unrealizedPnL); notional = |size|*mark/1e18;
// liquidatable iff notional > 0 and equity*1e18/notional <= maintenanceMargin.
// Callers must hold m.mu.
func checkLiquidation(position *Position, market *Market, mark *big.Int) bool {
	unrealized := unrealizedPnL(position, mark)
	equity := maxBig(big.NewInt(0), new(big.Int).Add(position.Collateral, unrealized))
	notional := notionalOf(position.Size, mark)
	if notional.Sign() <= 0 {
		return false
	}
	ratio := new(big.Int).Mul(equity, params.Precision)
	ratio.Div(ratio, notional)
	return ratio.Cmp(market.MaintenanceMargin) <= 0
}

// unrealizedPnL is realizedPnL evaluated over the position's full
// remaining size: the PnL a close of the whole position would realize
// at mark right now.
func unrealizedPnL(position *Position, mark *big.Int) *big.Int {
	return realizedPnL(position, position.Size, mark)
}

// CheckLiquidation reports whether user's position in marketID is
// liquidatable at mark. Exposed for callers (keepers) that want to
// filter candidates before calling Liquidate.
func (m *Manager) CheckLiquidation(user, marketID common.Address, mark *big.Int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return false, ErrMarketNotFound
	}
	userPositions, ok := m.positions[user]
	if !ok {
		return false, ErrPositionNotFound
	}
	position, ok := userPositions[marketID]
	if !ok {
		return false, ErrPositionNotFound
	}
	return checkLiquidation(position, market, mark), nil
}

// Liquidate is permissionless: anyone may call it, and it succeeds
// only if checkLiquidation holds at mark. A 5% fee of freed collateral
// is credited to the insurance fund's balance; the liquidator receives
// nothing. The remainder is credited to the user's totalCollateral and
// the position is removed — crediting it is correct precisely because
// Open already moved the original pledge out of totalCollateral, so
// this never re-adds principal on top of what's still on deposit.
func (m *Manager) Liquidate(liquidator, user, marketID common.Address, mark *big.Int) error {
	m.mu.Lock()

	market, ok := m.markets[marketID]
	if !ok {
		m.mu.Unlock()
		return ErrMarketNotFound
	}
	userPositions, ok := m.positions[user]
	if !ok {
		m.mu.Unlock()
		return ErrPositionNotFound
	}
	position, ok := userPositions[marketID]
	if !ok {
		m.mu.Unlock()
		return ErrPositionNotFound
	}

	if !checkLiquidation(position, market, mark) {
		m.mu.Unlock()
		return ErrNotLiquidatable
	}

	m.settleFunding(position, market)

	pnl := realizedPnL(position, position.Size, mark)
	freed := maxBig(big.NewInt(0), new(big.Int).Add(position.Collateral, pnl))

	fee := new(big.Int).Mul(freed, big.NewInt(params.LiquidationFeeBps))
	fee.Div(fee, big.NewInt(params.BpsDenominator))
	remainder := new(big.Int).Sub(freed, fee)

	m.collateralOf(m.insuranceFund).Add(m.collateralOf(m.insuranceFund), fee)
	m.collateralOf(user).Add(m.collateralOf(user), remainder)
	delete(userPositions, marketID)

	m.mu.Unlock()

	m.emit(Event{Kind: EventPositionLiquidated, User: user, Market: marketID, Liquidator: liquidator})
	m.log.Debug("position liquidated", "user", user, "market", marketID, "liquidator", liquidator)
	return nil
}

// FindLiquidatable scans every open position in marketID and returns
// the users whose positions satisfy checkLiquidation at mark.
func (m *Manager) FindLiquidatable(marketID common.Address, mark *big.Int) ([]common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return nil, ErrMarketNotFound
	}

	var out []common.Address
	for user, positions := range m.positions {
		position, ok := positions[marketID]
		if !ok {
			continue
		}
		if checkLiquidation(position, market, mark) {
			out = append(out, user)
		}
	}
	return out, nil
}

// EstimateLiquidationPrice is an off-chain convenience for keepers: it
// bisects for the mark price at which checkLiquidation flips from
// false to true, starting from the position's entry price. It is
// never consulted by Liquidate itself, which always re-evaluates
// checkLiquidation at the caller-supplied mark.
func (m *Manager) EstimateLiquidationPrice(user, marketID common.Address) (*big.Int, error) {
	m.mu.Lock()
	market, ok := m.markets[marketID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrMarketNotFound
	}
	userPositions, ok := m.positions[user]
	if !ok {
		m.mu.Unlock()
		return nil, ErrPositionNotFound
	}
	position, ok := userPositions[marketID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrPositionNotFound
	}
	entry := new(big.Int).Set(position.EntryPrice)
	snapshot := *position
	m.mu.Unlock()

	// Liquidation moves price against the position's direction: falling
	// for longs, rising for shorts. priceAt(t) walks from the entry
	// price (t=0, healthy) toward the adverse extreme (t=scale, surely
	// liquidatable); checkLiquidation is monotonic in t, so bisect on t.
	const scale = 1_000_000
	priceAt := func(t int64) *big.Int {
		if snapshot.IsLong {
			// entry * (scale-t) / scale: walks entry -> 0.
			p := new(big.Int).Mul(entry, big.NewInt(scale-t))
			return p.Div(p, big.NewInt(scale))
		}
		// entry * (scale+999t) / scale: walks entry -> 1000*entry.
		p := new(big.Int).Mul(entry, big.NewInt(scale+t*999))
		return p.Div(p, big.NewInt(scale))
	}

	lo, hi := int64(0), int64(scale)
	for i := 0; i < 48; i++ {
		mid := (lo + hi) / 2
		if checkLiquidation(&snapshot, market, priceAt(mid)) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return priceAt(hi), nil
}
