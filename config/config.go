// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration for the stablecoin engine.
package config

import (
	"math/big"
	"time"

	"github.com/luxfi/ids"
)

// Config contains the protocol parameters and role identities for the
// stablecoin engine. It is injected into each component at construction;
// callers are authorized by comparing their identity against these fields.
type Config struct {
	// Role identities
	Owner         ids.ShortID `json:"owner"`
	Admin         ids.ShortID `json:"admin"`
	Whitelister   ids.ShortID `json:"whitelister"`
	Custodian     ids.ShortID `json:"custodian"`
	RebaseManager ids.ShortID `json:"rebaseManager"`

	// FeeCollector receives the shares minted by the rebase tax skim.
	FeeCollector ids.ShortID `json:"feeCollector"`

	// TokenAddress is the stablecoin's own address. It can never be
	// registered as collateral.
	TokenAddress ids.ShortID `json:"tokenAddress"`

	// MintTaxBps is deducted from mint and redeem quotes (100 = 1%).
	MintTaxBps uint16 `json:"mintTaxBps"`
	// RebaseTaxBps is skimmed from rebase growth and minted to the
	// fee collector.
	RebaseTaxBps uint16 `json:"rebaseTaxBps"`

	// ClaimDelay is the waiting period before a redemption request
	// becomes payable.
	ClaimDelay time.Duration `json:"claimDelay"`

	// PerBlockMintLimit caps collateral accepted per block. Nil disables
	// the cap.
	PerBlockMintLimit *big.Int `json:"perBlockMintLimit"`

	// SupplyLimit caps the stablecoin total supply.
	SupplyLimit *big.Int `json:"supplyLimit"`

	// WhitelistEnabled gates minting to whitelisted accounts.
	WhitelistEnabled bool `json:"whitelistEnabled"`
}

// DefaultConfig returns the default protocol configuration. Role identities
// are zero and must be set by the operator.
func DefaultConfig() Config {
	supplyLimit, _ := new(big.Int).SetString("100000000000000000000000000", 10) // 100M tokens
	return Config{
		MintTaxBps:        0,
		RebaseTaxBps:      1000, // 10% of rebase growth
		ClaimDelay:        7 * 24 * time.Hour,
		PerBlockMintLimit: nil,
		SupplyLimit:       supplyLimit,
		WhitelistEnabled:  false,
	}
}

// IsAdmin reports whether the caller holds the admin or owner role.
func (c *Config) IsAdmin(caller ids.ShortID) bool {
	return caller == c.Admin || caller == c.Owner
}

// IsWhitelister reports whether the caller may manage the whitelist.
func (c *Config) IsWhitelister(caller ids.ShortID) bool {
	return caller == c.Whitelister || c.IsAdmin(caller)
}

// IsCustodian reports whether the caller holds the custodian role.
func (c *Config) IsCustodian(caller ids.ShortID) bool {
	return caller == c.Custodian
}

// IsRebaseManager reports whether the caller may move the rebase index.
func (c *Config) IsRebaseManager(caller ids.ShortID) bool {
	return caller == c.RebaseManager
}
