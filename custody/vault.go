// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package custody tracks collateral held by the protocol. Actual value
// movement is executed by an external custodian; the vault is the engine's
// ledger of what is held per asset.
package custody

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/ids"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds in custody")
)

// Holding is a per-asset custody balance, used for state export.
type Holding struct {
	Asset   ids.ShortID `json:"asset"`
	Balance *big.Int    `json:"balance"`
}

// Vault tracks per-asset collateral balances held in custody.
type Vault struct {
	mu       sync.RWMutex
	balances map[ids.ShortID]*big.Int
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		balances: make(map[ids.ShortID]*big.Int),
	}
}

// TransferIn credits collateral received from an account.
func (v *Vault) TransferIn(asset, from ids.ShortID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	bal, ok := v.balances[asset]
	if !ok {
		bal = new(big.Int)
		v.balances[asset] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// TransferOut debits collateral sent to an account.
func (v *Vault) TransferOut(asset, to ids.ShortID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	bal, ok := v.balances[asset]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	bal.Sub(bal, amount)
	return nil
}

// Balance returns the custody balance for an asset.
func (v *Vault) Balance(asset ids.ShortID) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	bal, ok := v.balances[asset]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// ExportState returns all holdings. Drained holdings are included: the
// persisted snapshot overwrites by key, so the zero must be written to
// displace a previously saved balance.
func (v *Vault) ExportState() []Holding {
	v.mu.RLock()
	defer v.mu.RUnlock()

	holdings := make([]Holding, 0, len(v.balances))
	for asset, bal := range v.balances {
		holdings = append(holdings, Holding{
			Asset:   asset,
			Balance: new(big.Int).Set(bal),
		})
	}
	return holdings
}

// RestoreState replaces the vault contents with the given holdings.
func (v *Vault) RestoreState(holdings []Holding) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.balances = make(map[ids.ShortID]*big.Int, len(holdings))
	for _, h := range holdings {
		v.balances[h.Asset] = new(big.Int).Set(h.Balance)
	}
}
