// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token implements the rebase accounting engine for the stablecoin.
//
// Participating accounts hold shares; their token balance is shares times the
// global rebase index. Accounts may opt out of rebasing, in which case their
// balance is stored directly in token units and excluded from index growth.
// Every upward index move skims a configured tax from the growth and mints it
// as shares to the fee collector.
package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/stablecoin/config"
)

var (
	ErrZeroAddress         = errors.New("zero address")
	ErrZeroAmount          = errors.New("zero amount")
	ErrZeroRebaseIndex     = errors.New("zero rebase index")
	ErrValueUnchanged      = errors.New("value unchanged")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSupplyLimitExceeded = errors.New("total supply limit exceeded")
	ErrUnauthorized        = errors.New("caller lacks required role")

	scale18 = big.NewInt(1e18)
)

// AccountState is the exported form of one account balance.
type AccountState struct {
	Address  ids.ShortID `json:"address"`
	OptedOut bool        `json:"optedOut"`
	Shares   *big.Int    `json:"shares"`
	Tokens   *big.Int    `json:"tokens"`
}

// State is the exported form of the engine, used for persistence.
type State struct {
	Index          *big.Int       `json:"index"`
	TotalShares    *big.Int       `json:"totalShares"`
	OptedOutSupply *big.Int       `json:"optedOutSupply"`
	SupplyLimit    *big.Int       `json:"supplyLimit"`
	Accounts       []AccountState `json:"accounts"`
}

// Token is the rebase accounting engine. Invariant after every mutation:
//
//	TotalSupply() == totalShares*index/1e18 + optedOutSupply
type Token struct {
	mu  sync.RWMutex
	log log.Logger
	cfg *config.Config

	index          *big.Int
	totalShares    *big.Int
	optedOutSupply *big.Int
	supplyLimit    *big.Int

	accounts map[ids.ShortID]*balance
}

// New creates a rebase engine with index 1.0 and the configured supply limit.
func New(cfg *config.Config, logger log.Logger) *Token {
	limit := new(big.Int)
	if cfg.SupplyLimit != nil {
		limit.Set(cfg.SupplyLimit)
	}
	return &Token{
		log:            logger,
		cfg:            cfg,
		index:          new(big.Int).Set(scale18),
		totalShares:    new(big.Int),
		optedOutSupply: new(big.Int),
		supplyLimit:    limit,
		accounts:       make(map[ids.ShortID]*balance),
	}
}

// BalanceOf returns the token balance of an account. Unknown accounts have a
// zero balance.
func (t *Token) BalanceOf(addr ids.ShortID) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	acct, ok := t.accounts[addr]
	if !ok {
		return new(big.Int)
	}
	return acct.value(t.index)
}

// TotalSupply returns the current total token supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupplyLocked()
}

func (t *Token) totalSupplyLocked() *big.Int {
	supply := new(big.Int).Mul(t.totalShares, t.index)
	supply.Div(supply, scale18)
	return supply.Add(supply, t.optedOutSupply)
}

// RebaseIndex returns the current rebase index (1e18 scale).
func (t *Token) RebaseIndex() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.index)
}

// TotalShares returns the share count backing participating balances.
func (t *Token) TotalShares() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalShares)
}

// OptedOutSupply returns the token units held by opted-out accounts.
func (t *Token) OptedOutSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.optedOutSupply)
}

// SupplyLimit returns the total supply cap.
func (t *Token) SupplyLimit() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.supplyLimit)
}

// SharesOf returns the share balance of a participating account. Opted-out
// accounts have zero shares.
func (t *Token) SharesOf(addr ids.ShortID) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	acct, ok := t.accounts[addr]
	if !ok || acct.optedOut {
		return new(big.Int)
	}
	return new(big.Int).Set(acct.shares)
}

// IsOptedOut reports whether an account is excluded from rebasing.
func (t *Token) IsOptedOut(addr ids.ShortID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	acct, ok := t.accounts[addr]
	return ok && acct.optedOut
}

// Mint credits amount to an account, creating it on first use. Fails if the
// new total supply would exceed the supply limit.
func (t *Token) Mint(to ids.ShortID, amount *big.Int) error {
	if to == ids.ShortEmpty {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	newSupply := new(big.Int).Add(t.totalSupplyLocked(), amount)
	if newSupply.Cmp(t.supplyLimit) > 0 {
		return ErrSupplyLimitExceeded
	}

	t.creditLocked(t.getOrCreateLocked(to), amount)
	t.log.Debug("minted", "to", to, "amount", amount)
	return nil
}

// Burn debits amount from an account.
func (t *Token) Burn(from ids.ShortID, amount *big.Int) error {
	if from == ids.ShortEmpty {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	acct, ok := t.accounts[from]
	if !ok {
		return ErrInsufficientBalance
	}
	if err := t.debitLocked(acct, amount); err != nil {
		return err
	}
	t.log.Debug("burned", "from", from, "amount", amount)
	return nil
}

// Transfer moves amount between two accounts, preserving each account's
// balance representation.
func (t *Token) Transfer(from, to ids.ShortID, amount *big.Int) error {
	if from == ids.ShortEmpty || to == ids.ShortEmpty {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fromAcct, ok := t.accounts[from]
	if !ok {
		return ErrInsufficientBalance
	}
	if err := t.debitLocked(fromAcct, amount); err != nil {
		return err
	}
	t.creditLocked(t.getOrCreateLocked(to), amount)
	return nil
}

// SetRebaseIndex moves the global rebase index. Restricted to the rebase
// manager. The growth attributable to participating supply is taxed at the
// configured rate and the skim is minted to the fee collector, valued at the
// new index. A decreasing index is accepted and skims nothing; monotonicity
// is the caller's responsibility. Fails if the grown supply plus the skim
// would exceed the supply limit.
func (t *Token) SetRebaseIndex(caller ids.ShortID, newIndex *big.Int) error {
	if !t.cfg.IsRebaseManager(caller) {
		return ErrUnauthorized
	}
	if newIndex == nil || newIndex.Sign() <= 0 {
		return ErrZeroRebaseIndex
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	oldValue := new(big.Int).Mul(t.totalShares, t.index)
	oldValue.Div(oldValue, scale18)
	newValue := new(big.Int).Mul(t.totalShares, newIndex)
	newValue.Div(newValue, scale18)

	tax := new(big.Int)
	if growth := new(big.Int).Sub(newValue, oldValue); growth.Sign() > 0 {
		tax.Mul(growth, big.NewInt(int64(t.cfg.RebaseTaxBps)))
		tax.Div(tax, big.NewInt(10000))
	}

	// The skim credit floors its share conversion, so the projected
	// supply bounds the actual post-rebase supply from above.
	projected := new(big.Int).Add(newValue, t.optedOutSupply)
	projected.Add(projected, tax)
	if projected.Cmp(t.supplyLimit) > 0 {
		return ErrSupplyLimitExceeded
	}

	oldIndex := t.index
	t.index = new(big.Int).Set(newIndex)
	if tax.Sign() > 0 {
		t.creditLocked(t.getOrCreateLocked(t.cfg.FeeCollector), tax)
	}

	t.log.Info("rebase index set",
		"oldIndex", oldIndex,
		"newIndex", newIndex,
		"taxSkimmed", tax,
	)
	return nil
}

// SetSupplyLimit replaces the total supply cap. Admin only. The cap may be
// set below the current supply; that only blocks further minting.
func (t *Token) SetSupplyLimit(caller ids.ShortID, limit *big.Int) error {
	if !t.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if limit == nil {
		return ErrZeroAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.supplyLimit.Cmp(limit) == 0 {
		return ErrValueUnchanged
	}
	t.supplyLimit = new(big.Int).Set(limit)
	return nil
}

// DisableRebase switches an account between the participating and opted-out
// representations, converting at the current index. Fails if the flag already
// matches the account's state.
func (t *Token) DisableRebase(account ids.ShortID, disable bool) error {
	if account == ids.ShortEmpty {
		return ErrZeroAddress
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	acct := t.getOrCreateLocked(account)
	if acct.optedOut == disable {
		return ErrValueUnchanged
	}

	if disable {
		fixed := acct.value(t.index)
		t.totalShares.Sub(t.totalShares, acct.shares)
		t.optedOutSupply.Add(t.optedOutSupply, fixed)
		acct.shares.SetInt64(0)
		acct.tokens.Set(fixed)
		acct.optedOut = true
	} else {
		shares := new(big.Int).Mul(acct.tokens, scale18)
		shares.Div(shares, t.index)
		t.totalShares.Add(t.totalShares, shares)
		t.optedOutSupply.Sub(t.optedOutSupply, acct.tokens)
		acct.shares.Set(shares)
		acct.tokens.SetInt64(0)
		acct.optedOut = false
	}

	t.log.Debug("rebase participation changed", "account", account, "optedOut", disable)
	return nil
}

// ExportState returns a deep copy of the engine state.
func (t *Token) ExportState() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := &State{
		Index:          new(big.Int).Set(t.index),
		TotalShares:    new(big.Int).Set(t.totalShares),
		OptedOutSupply: new(big.Int).Set(t.optedOutSupply),
		SupplyLimit:    new(big.Int).Set(t.supplyLimit),
		Accounts:       make([]AccountState, 0, len(t.accounts)),
	}
	for addr, acct := range t.accounts {
		s.Accounts = append(s.Accounts, AccountState{
			Address:  addr,
			OptedOut: acct.optedOut,
			Shares:   new(big.Int).Set(acct.shares),
			Tokens:   new(big.Int).Set(acct.tokens),
		})
	}
	return s
}

// RestoreState replaces the engine state with a previously exported one.
func (t *Token) RestoreState(s *State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.index = new(big.Int).Set(s.Index)
	t.totalShares = new(big.Int).Set(s.TotalShares)
	t.optedOutSupply = new(big.Int).Set(s.OptedOutSupply)
	t.supplyLimit = new(big.Int).Set(s.SupplyLimit)
	t.accounts = make(map[ids.ShortID]*balance, len(s.Accounts))
	for _, a := range s.Accounts {
		t.accounts[a.Address] = &balance{
			optedOut: a.OptedOut,
			shares:   new(big.Int).Set(a.Shares),
			tokens:   new(big.Int).Set(a.Tokens),
		}
	}
}

func (t *Token) getOrCreateLocked(addr ids.ShortID) *balance {
	acct, ok := t.accounts[addr]
	if !ok {
		acct = newBalance()
		t.accounts[addr] = acct
	}
	return acct
}

// creditLocked adds amount to an account in its current representation.
// Participating credits convert to shares at the current index; flooring may
// lose sub-unit dust, bounded by one base unit per credit.
func (t *Token) creditLocked(acct *balance, amount *big.Int) {
	if acct.optedOut {
		acct.tokens.Add(acct.tokens, amount)
		t.optedOutSupply.Add(t.optedOutSupply, amount)
		return
	}
	shares := new(big.Int).Mul(amount, scale18)
	shares.Div(shares, t.index)
	acct.shares.Add(acct.shares, shares)
	t.totalShares.Add(t.totalShares, shares)
}

// debitLocked removes amount from an account, failing if the balance is
// insufficient. Participating debits round the share count up so the account
// can never retain value it no longer owns.
func (t *Token) debitLocked(acct *balance, amount *big.Int) error {
	if acct.value(t.index).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if acct.optedOut {
		acct.tokens.Sub(acct.tokens, amount)
		t.optedOutSupply.Sub(t.optedOutSupply, amount)
		return nil
	}
	shares := new(big.Int).Mul(amount, scale18)
	shares.Add(shares, new(big.Int).Sub(t.index, big.NewInt(1)))
	shares.Div(shares, t.index)
	if shares.Cmp(acct.shares) > 0 {
		shares.Set(acct.shares)
	}
	acct.shares.Sub(acct.shares, shares)
	t.totalShares.Sub(t.totalShares, shares)
	return nil
}
