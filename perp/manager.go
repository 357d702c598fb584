// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package perp

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/batchengine/params"
)

// Manager is the Position Manager for one deployment: it owns every
// user's collateral and every open position, mutated only by
// deposit/withdraw (self-service) and by the one pinned executor
// (open/close), with liquidation left permissionless.
type Manager struct {
	mu sync.Mutex

	owner       common.Address
	executor    common.Address
	executorSet bool

	markets   map[common.Address]*Market
	positions map[common.Address]map[common.Address]*Position

	// totalCollateral[user] is the user's free balance, 18-decimal fixed
	// point: margin pledged to an open position is moved out of it at
	// Open, so availableMargin returns it as is.
	totalCollateral map[common.Address]*big.Int

	insuranceFund common.Address

	events []Event
	log    log.Logger
}

// New creates a Manager owned by owner, paying liquidation fees to
// insuranceFund. logger may be nil.
func New(owner, insuranceFund common.Address, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.New()
	}
	return &Manager{
		owner:           owner,
		markets:         make(map[common.Address]*Market),
		positions:       make(map[common.Address]map[common.Address]*Position),
		totalCollateral: make(map[common.Address]*big.Int),
		insuranceFund:   insuranceFund,
		log:             logger,
	}
}

// SetExecutor pins the sole address authorized to open/close
// positions. One-time: a second call is rejected.
func (m *Manager) SetExecutor(caller, addr common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return ErrOnlyOwner
	}
	if m.executorSet {
		return ErrOnlyOwner
	}
	m.executor = addr
	m.executorSet = true
	return nil
}

// CreateMarket registers a new perpetual market, owner-only.
func (m *Manager) CreateMarket(caller common.Address, marketID common.Address, poolID [32]byte, oracle common.Address, maxLeverage, maintenanceMargin *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return ErrOnlyOwner
	}
	if _, exists := m.markets[marketID]; exists {
		return ErrMarketExists
	}
	m.markets[marketID] = &Market{
		ID:                marketID,
		PoolID:            poolID,
		Oracle:            oracle,
		Active:            true,
		MaxLeverage:       new(big.Int).Set(maxLeverage),
		MaintenanceMargin: new(big.Int).Set(maintenanceMargin),
		CumulativeFunding: big.NewInt(0),
	}
	return nil
}

// PauseMarket/UnpauseMarket toggle a market's tradability, owner-only.
func (m *Manager) PauseMarket(caller, marketID common.Address) error {
	return m.setActive(caller, marketID, false)
}

func (m *Manager) UnpauseMarket(caller, marketID common.Address) error {
	return m.setActive(caller, marketID, true)
}

func (m *Manager) setActive(caller, marketID common.Address, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return ErrOnlyOwner
	}
	market, ok := m.markets[marketID]
	if !ok {
		return ErrMarketNotFound
	}
	market.Active = active
	return nil
}

// SetMaxLeverage updates a market's leverage ceiling, owner-only.
func (m *Manager) SetMaxLeverage(caller, marketID common.Address, maxLeverage *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return ErrOnlyOwner
	}
	market, ok := m.markets[marketID]
	if !ok {
		return ErrMarketNotFound
	}
	market.MaxLeverage = new(big.Int).Set(maxLeverage)
	return nil
}

// ApplyFunding is the keeper-posted funding update: it folds rateDelta
// into the market's cumulative funding index.
func (m *Manager) ApplyFunding(marketID common.Address, rateDelta *big.Int) error {
	m.mu.Lock()
	market, ok := m.markets[marketID]
	if !ok {
		m.mu.Unlock()
		return ErrMarketNotFound
	}
	market.CumulativeFunding = new(big.Int).Add(market.CumulativeFunding, rateDelta)
	m.mu.Unlock()

	m.emit(Event{Kind: EventFundingApplied, Market: marketID, Rate: rateDelta})
	return nil
}

// Deposit credits amount (already 18-decimal fixed point) to user's
// total collateral.
func (m *Manager) Deposit(user common.Address, amount *big.Int) error {
	m.mu.Lock()
	bal := m.collateralOf(user)
	bal.Add(bal, amount)
	m.mu.Unlock()

	m.emit(Event{Kind: EventCollateralDeposited, User: user, Amount: amount})
	return nil
}

// Withdraw debits amount from user's total collateral, requiring it
// not exceed availableMargin.
func (m *Manager) Withdraw(user common.Address, amount *big.Int) error {
	m.mu.Lock()
	if m.availableMargin(user).Cmp(amount) < 0 {
		m.mu.Unlock()
		return ErrInsufficientMargin
	}
	bal := m.collateralOf(user)
	bal.Sub(bal, amount)
	m.mu.Unlock()

	m.emit(Event{Kind: EventCollateralWithdrawn, User: user, Amount: amount})
	return nil
}

// Position returns a copy of user's open position in marketID, if any.
func (m *Manager) Position(user, marketID common.Address) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	position, ok := m.positions[user][marketID]
	if !ok {
		return Position{}, false
	}
	return *position, true
}

// AvailableMargin returns user's free collateral: deposited balance
// not currently pledged to an open position. Pledged margin is moved
// out of totalCollateral at Open and only returned to it at Close/
// Liquidate, so this is simply the user's tracked balance — it must
// never also subtract position.Collateral, or a closed position's
// refund would be double-counted against it.
func (m *Manager) AvailableMargin(user common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableMargin(user)
}

// Callers must hold m.mu.
func (m *Manager) availableMargin(user common.Address) *big.Int {
	return new(big.Int).Set(m.collateralOf(user))
}

// Callers must hold m.mu.
func (m *Manager) collateralOf(user common.Address) *big.Int {
	bal, ok := m.totalCollateral[user]
	if !ok {
		bal = big.NewInt(0)
		m.totalCollateral[user] = bal
	}
	return bal
}

func (m *Manager) requireExecutor(caller common.Address) error {
	if !m.executorSet {
		return ErrExecutorNotSet
	}
	if caller != m.executor {
		return ErrOnlyExecutor
	}
	return nil
}

// Open opens or adds to a position at entryPrice, callable only by the
// authorized executor (the Settlement Engine, immediately after a perp
// batch's pool invocation). An existing opposite-direction position is
// rejected with ErrInvalidSize: same-batch flips are disallowed, the
// user must Close first.
func (m *Manager) Open(caller, user, marketID common.Address, size *big.Int, isLong bool, leverage, entryPrice *big.Int) error {
	if err := m.requireExecutor(caller); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(user, marketID, size, isLong, leverage, entryPrice)
}

// openLocked is Open's body once the caller is authorized; ApplyPerpBatch
// calls it directly, under one lock acquisition shared across an entire
// batch, so a mid-batch failure can be rolled back atomically. Callers
// must hold m.mu.
func (m *Manager) openLocked(user, marketID common.Address, size *big.Int, isLong bool, leverage, entryPrice *big.Int) error {
	if size.Sign() <= 0 {
		return ErrInvalidSize
	}
	if leverage.Sign() <= 0 {
		return ErrInvalidLeverage
	}

	market, ok := m.markets[marketID]
	if !ok {
		return ErrMarketNotFound
	}
	if !market.Active {
		return ErrMarketNotActive
	}
	if leverage.Cmp(market.MaxLeverage) > 0 {
		return ErrInvalidLeverage
	}

	newNotional := notionalOf(size, entryPrice)
	requiredMargin := new(big.Int).Mul(newNotional, params.Precision)
	requiredMargin.Div(requiredMargin, leverage)

	if requiredMargin.Cmp(m.availableMargin(user)) > 0 {
		return ErrInsufficientMargin
	}

	userPositions, ok := m.positions[user]
	if !ok {
		userPositions = make(map[common.Address]*Position)
		m.positions[user] = userPositions
	}

	position, exists := userPositions[marketID]
	if !exists {
		position = &Position{
			User:            user,
			Market:          marketID,
			Size:            new(big.Int).Set(size),
			IsLong:          isLong,
			EntryPrice:      new(big.Int).Set(entryPrice),
			Collateral:      requiredMargin,
			Leverage:        new(big.Int).Set(leverage),
			EntryCumulative: new(big.Int).Set(market.CumulativeFunding),
		}
		userPositions[marketID] = position
	} else {
		m.settleFunding(position, market)

		if position.IsLong != isLong {
			return ErrInvalidSize
		}

		totalSize := new(big.Int).Add(position.Size, size)
		position.EntryPrice = weightedEntryPrice(position.Size, position.EntryPrice, size, entryPrice, totalSize)
		position.Size = totalSize
		position.Collateral = new(big.Int).Add(position.Collateral, requiredMargin)
		position.Leverage = new(big.Int).Set(leverage)
	}

	// requiredMargin moves out of the user's free balance and into the
	// position's pledge; Close/Liquidate move it back (net of PnL and
	// funding) when the position shrinks or closes.
	m.collateralOf(user).Sub(m.collateralOf(user), requiredMargin)

	m.emit(Event{Kind: EventPositionOpened, User: user, Market: marketID, Amount: size})
	m.log.Debug("position opened", "user", user, "market", marketID, "size", size)
	return nil
}

// weightedEntryPrice computes the size-weighted average entry price
// after adding addSize at entryPrice to an existing oldSize at
// oldEntry. It intentionally works with the raw (un-normalized)
// size*price products rather than notionalOf's 1e18-normalized
// notional: dividing the raw product sum by totalSize recovers a
// correctly 1e18-scaled price directly, since normalizing first would
// cancel a factor of the fixed-point scale.
func weightedEntryPrice(oldSize, oldEntry, addSize, entryPrice, totalSize *big.Int) *big.Int {
	oldRaw := new(big.Int).Mul(oldSize, oldEntry)
	addRaw := new(big.Int).Mul(addSize, entryPrice)
	total := new(big.Int).Add(oldRaw, addRaw)
	return total.Div(total, totalSize)
}

// notionalOf computes size * price / PRECISION.
func notionalOf(size, price *big.Int) *big.Int {
	n := new(big.Int).Mul(size, price)
	return n.Div(n, params.Precision)
}

// Close settles accrued funding, realizes PnL, and shrinks the
// position by sizeToClose. A full close refunds remaining collateral
// to the user's free balance and removes the position.
func (m *Manager) Close(caller, user, marketID common.Address, sizeToClose, markPrice *big.Int) (*big.Int, error) {
	if err := m.requireExecutor(caller); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked(user, marketID, sizeToClose, markPrice)
}

// closeLocked is Close's body once the caller is authorized; see
// openLocked. Callers must hold m.mu.
func (m *Manager) closeLocked(user, marketID common.Address, sizeToClose, markPrice *big.Int) (*big.Int, error) {
	market, ok := m.markets[marketID]
	if !ok {
		return nil, ErrMarketNotFound
	}
	userPositions, ok := m.positions[user]
	if !ok {
		return nil, ErrPositionNotFound
	}
	position, ok := userPositions[marketID]
	if !ok {
		return nil, ErrPositionNotFound
	}

	m.settleFunding(position, market)

	pnl := realizedPnL(position, sizeToClose, markPrice)

	position.Collateral = maxBig(big.NewInt(0), new(big.Int).Add(position.Collateral, pnl))

	if sizeToClose.Cmp(position.Size) >= 0 {
		sizeToClose = new(big.Int).Set(position.Size)
		m.collateralOf(user).Add(m.collateralOf(user), position.Collateral)
		delete(userPositions, marketID)
	} else {
		position.Size = new(big.Int).Sub(position.Size, sizeToClose)
	}

	m.emit(Event{Kind: EventPositionClosed, User: user, Market: marketID, Amount: sizeToClose})
	return pnl, nil
}

// PerpOp is one contribution's open/close instruction for ApplyPerpBatch.
type PerpOp struct {
	User     common.Address
	Market   common.Address
	Size     *big.Int
	IsLong   bool
	IsOpen   bool
	Leverage *big.Int // unused when IsOpen is false
}

// ApplyPerpBatch applies every op at execPrice under a single lock
// acquisition, so a batch either takes full effect or none: if any op
// fails, the Manager's collateral and position state is rolled back to
// what it was before the first op in this call, and no earlier op's
// effect (including its emitted events) survives. Callers (the
// Settlement Engine) must not mark any commitment revealed or delete
// any reveal until this returns nil.
func (m *Manager) ApplyPerpBatch(caller common.Address, ops []PerpOp, execPrice *big.Int) error {
	if err := m.requireExecutor(caller); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	collateralSnapshot := make(map[common.Address]*big.Int, len(m.totalCollateral))
	for user, bal := range m.totalCollateral {
		collateralSnapshot[user] = new(big.Int).Set(bal)
	}
	positionsSnapshot := make(map[common.Address]map[common.Address]*Position, len(m.positions))
	for user, byMarket := range m.positions {
		inner := make(map[common.Address]*Position, len(byMarket))
		for market, p := range byMarket {
			cp := *p
			cp.Size = new(big.Int).Set(p.Size)
			cp.EntryPrice = new(big.Int).Set(p.EntryPrice)
			cp.Collateral = new(big.Int).Set(p.Collateral)
			cp.Leverage = new(big.Int).Set(p.Leverage)
			cp.EntryCumulative = new(big.Int).Set(p.EntryCumulative)
			inner[market] = &cp
		}
		positionsSnapshot[user] = inner
	}
	eventsLen := len(m.events)

	for _, op := range ops {
		var err error
		if op.IsOpen {
			err = m.openLocked(op.User, op.Market, op.Size, op.IsLong, op.Leverage, execPrice)
		} else {
			_, err = m.closeLocked(op.User, op.Market, op.Size, execPrice)
		}
		if err != nil {
			m.totalCollateral = collateralSnapshot
			m.positions = positionsSnapshot
			m.events = m.events[:eventsLen]
			return err
		}
	}
	return nil
}

// realizedPnL computes the long/short PnL formula from §4.F: positive
// for a profitable close, negative for a loss.
func realizedPnL(position *Position, sizeToClose, markPrice *big.Int) *big.Int {
	diff := new(big.Int).Sub(markPrice, position.EntryPrice)
	if !position.IsLong {
		diff.Neg(diff)
	}
	pnl := new(big.Int).Mul(sizeToClose, diff)
	return pnl.Div(pnl, params.Precision)
}

// settleFunding applies accrued funding payment since the position's
// last touch and advances its funding checkpoint. Callers must hold
// m.mu.
func (m *Manager) settleFunding(position *Position, market *Market) {
	notional := notionalOf(position.Size, position.EntryPrice)
	delta := new(big.Int).Sub(market.CumulativeFunding, position.EntryCumulative)
	payment := new(big.Int).Mul(notional, delta)
	payment.Div(payment, params.Precision)

	position.Collateral = maxBig(big.NewInt(0), new(big.Int).Sub(position.Collateral, payment))
	position.EntryCumulative = new(big.Int).Set(market.CumulativeFunding)
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
