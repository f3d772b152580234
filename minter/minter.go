// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package minter is the externally callable surface of the stablecoin
// engine. It quotes mints and redemptions against the price oracle, enforces
// whitelist, per-block and supply limits, and orchestrates the token engine,
// asset registry, redemption ledger and custody vault.
//
// All mutating operations are serialized behind a single lock; each either
// commits every state change it implies or fails with no partial effect.
package minter

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/stablecoin/config"
	"github.com/luxfi/stablecoin/custody"
	"github.com/luxfi/stablecoin/metrics"
	"github.com/luxfi/stablecoin/oracle"
	"github.com/luxfi/stablecoin/redemption"
	"github.com/luxfi/stablecoin/registry"
	"github.com/luxfi/stablecoin/token"
	"github.com/luxfi/stablecoin/utils/timer/mockable"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAssetNotSupported   = errors.New("asset not supported")
	ErrNotWhitelisted      = errors.New("caller not whitelisted")
	ErrMintLimitExceeded   = errors.New("per-block mint limit exceeded")
	ErrSlippage            = errors.New("quoted amount below minimum")
	ErrNothingClaimable    = errors.New("nothing claimable")
	ErrNoFundsWithdrawable = errors.New("no funds withdrawable")
	ErrUnauthorized        = errors.New("caller lacks required role")

	scale18      = big.NewInt(1e18)
	bpsDivisor   = big.NewInt(10000)
	taxRateLimit = uint16(10000)
)

// Minter orchestrates minting and redemption.
type Minter struct {
	mu  sync.Mutex
	log log.Logger
	cfg *config.Config

	token    *token.Token
	registry *registry.Registry
	ledger   *redemption.Ledger
	oracle   oracle.PriceOracle
	vault    *custody.Vault
	clock    *mockable.Clock
	metrics  *metrics.Metrics

	whitelist map[ids.ShortID]bool

	blockHeight   uint64
	mintedInBlock *big.Int
}

// New wires the facade. The clock is shared with the caller so tests can
// fake time.
func New(
	cfg *config.Config,
	tok *token.Token,
	reg *registry.Registry,
	ledger *redemption.Ledger,
	priceOracle oracle.PriceOracle,
	vault *custody.Vault,
	clock *mockable.Clock,
	registerer metric.Registerer,
	logger log.Logger,
) (*Minter, error) {
	m, err := metrics.New(registerer)
	if err != nil {
		return nil, err
	}
	return &Minter{
		log:           logger,
		cfg:           cfg,
		token:         tok,
		registry:      reg,
		ledger:        ledger,
		oracle:        priceOracle,
		vault:         vault,
		clock:         clock,
		metrics:       m,
		whitelist:     make(map[ids.ShortID]bool),
		mintedInBlock: new(big.Int),
	}, nil
}

// BeginBlock advances the facade to a new block height and resets the
// per-block mint accounting. The host ledger drives this once per block.
func (m *Minter) BeginBlock(height uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if height != m.blockHeight {
		m.blockHeight = height
		m.mintedInBlock.SetInt64(0)
	}
}

// QuoteMint returns the stablecoin amount minted for amountIn of the asset
// at the current oracle price, after the mint tax.
func (m *Minter) QuoteMint(asset ids.ShortID, amountIn *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteMintLocked(asset, amountIn)
}

// quoteMintLocked reads the tax rate, so m.mu must be held.
func (m *Minter) quoteMintLocked(asset ids.ShortID, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	price, err := m.oracle.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amountIn, price)
	out.Div(out, scale18)
	return applyTax(out, m.cfg.MintTaxBps), nil
}

// QuoteRedeem returns the collateral paid out for amountIn of stablecoin at
// the current oracle price, after the mint tax.
func (m *Minter) QuoteRedeem(asset ids.ShortID, amountIn *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteRedeemLocked(asset, amountIn)
}

// quoteRedeemLocked reads the tax rate, so m.mu must be held.
func (m *Minter) quoteRedeemLocked(asset ids.ShortID, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	price, err := m.oracle.GetPrice(asset)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amountIn, scale18)
	out.Div(out, price)
	return applyTax(out, m.cfg.MintTaxBps), nil
}

// Mint accepts amountIn of collateral from the caller and mints the quoted
// stablecoin amount. minAmountOut guards against oracle moves between quote
// and execution; nil disables the guard.
func (m *Minter) Mint(caller, asset ids.ShortID, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.IsSupported(asset) {
		return nil, ErrAssetNotSupported
	}
	if m.cfg.WhitelistEnabled && !m.whitelist[caller] {
		return nil, ErrNotWhitelisted
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if limit := m.cfg.PerBlockMintLimit; limit != nil {
		used := new(big.Int).Add(m.mintedInBlock, amountIn)
		if used.Cmp(limit) > 0 {
			return nil, ErrMintLimitExceeded
		}
	}

	quote, err := m.quoteMintLocked(asset, amountIn)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && quote.Cmp(minAmountOut) < 0 {
		return nil, ErrSlippage
	}

	// The token mint is the only remaining step that can fail (supply
	// cap); do it before touching custody so a revert leaves no state.
	if err := m.token.Mint(caller, quote); err != nil {
		return nil, err
	}
	if err := m.vault.TransferIn(asset, caller, amountIn); err != nil {
		// Unwind the mint; custody rejected the deposit.
		_ = m.token.Burn(caller, quote)
		return nil, err
	}
	m.mintedInBlock.Add(m.mintedInBlock, amountIn)

	m.metrics.MarkMint()
	m.updateAggregatesLocked()
	m.log.Info("minted",
		"account", caller,
		"asset", asset,
		"amountIn", amountIn,
		"amountOut", quote,
	)
	return quote, nil
}

// RequestRedeem burns amount of the caller's stablecoin and appends a
// redemption request for the quoted collateral payout, claimable after the
// configured delay.
func (m *Minter) RequestRedeem(caller, asset ids.ShortID, amount *big.Int) (*redemption.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.IsSupported(asset) {
		return nil, ErrAssetNotSupported
	}
	payout, err := m.quoteRedeemLocked(asset, amount)
	if err != nil {
		return nil, err
	}
	if payout.Sign() == 0 {
		return nil, ErrInvalidAmount
	}
	if err := m.token.Burn(caller, amount); err != nil {
		return nil, err
	}

	now := m.clock.Time()
	req, err := m.ledger.Append(caller, asset, payout, now, now.Add(m.cfg.ClaimDelay))
	if err != nil {
		// Restore the burned balance; the request was not recorded.
		_ = m.token.Mint(caller, amount)
		return nil, err
	}

	m.metrics.MarkRequest()
	m.updateAggregatesLocked()
	m.log.Info("redemption requested",
		"account", caller,
		"asset", asset,
		"burned", amount,
		"payout", payout,
		"claimableAfter", req.ClaimableAfter,
	)
	return req, nil
}

// ClaimableTokens returns the coverage-scaled collateral the account can
// claim for the asset right now.
func (m *Minter) ClaimableTokens(account, asset ids.ShortID) *big.Int {
	return m.ledger.Claimable(account, asset, m.clock.Time())
}

// ClaimTokens settles the caller's unlocked requests for the asset in
// creation order and transfers the collateral out of custody. A non-nil
// limit caps the payout. Fails if nothing is payable.
func (m *Minter) ClaimTokens(caller, asset ids.ShortID, limit *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	effective := m.vault.Balance(asset)
	if effective.Sign() == 0 {
		return nil, ErrNothingClaimable
	}
	if limit != nil && limit.Cmp(effective) < 0 {
		effective = new(big.Int).Set(limit)
	}

	paid := m.ledger.Settle(caller, asset, effective, m.clock.Time())
	if paid.Sign() == 0 {
		return nil, ErrNothingClaimable
	}
	if err := m.vault.TransferOut(asset, caller, paid); err != nil {
		// Settle never pays more than the custody balance captured
		// above; a failure here means the vault was mutated outside
		// the facade's serialization.
		return nil, err
	}

	m.metrics.MarkClaim()
	m.updateAggregatesLocked()
	m.log.Info("claimed", "account", caller, "asset", asset, "paid", paid)
	return paid, nil
}

// Requests returns the caller's request history for the asset.
func (m *Minter) Requests(account, asset ids.ShortID) []redemption.Request {
	return m.ledger.Requests(account, asset)
}

// ExtendClaimTimestamp overwrites the unlock time of one request. Admin
// only; an operational lever to delay a single large redemption.
func (m *Minter) ExtendClaimTimestamp(caller, account, asset ids.ShortID, index int, newTime time.Time) error {
	if !m.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.ExtendClaimableAfter(account, asset, index, newTime)
}

// WithdrawFunds releases custody collateral not owed to pending requests.
// Custodian only.
func (m *Minter) WithdrawFunds(caller, asset ids.ShortID, amount *big.Int) error {
	if !m.cfg.IsCustodian(caller) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	free := new(big.Int).Sub(m.vault.Balance(asset), m.ledger.PendingClaims(asset))
	if free.Sign() < 0 || amount.Cmp(free) > 0 {
		return ErrNoFundsWithdrawable
	}
	if err := m.vault.TransferOut(asset, caller, amount); err != nil {
		return err
	}
	m.log.Info("custody withdrawal", "asset", asset, "amount", amount)
	return nil
}

// SetCoverageRatio replaces the coverage ratio. Admin only.
func (m *Minter) SetCoverageRatio(caller ids.ShortID, ratio *big.Int) error {
	if !m.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.SetCoverageRatio(ratio); err != nil {
		return err
	}
	m.updateAggregatesLocked()
	return nil
}

// SetRebaseIndex forwards to the token engine and refreshes the aggregate
// gauges. Rebase manager only (enforced by the engine).
func (m *Minter) SetRebaseIndex(caller ids.ShortID, newIndex *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.token.SetRebaseIndex(caller, newIndex); err != nil {
		return err
	}
	m.metrics.MarkRebase()
	m.updateAggregatesLocked()
	return nil
}

// SetMintTax replaces the mint/redeem tax rate. Admin only.
func (m *Minter) SetMintTax(caller ids.ShortID, bps uint16) error {
	if !m.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if bps > taxRateLimit {
		return redemption.ErrValueTooHigh
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MintTaxBps == bps {
		return redemption.ErrValueUnchanged
	}
	m.cfg.MintTaxBps = bps
	return nil
}

// SetClaimDelay replaces the redemption claim delay. Admin only. Existing
// requests keep their recorded unlock times.
func (m *Minter) SetClaimDelay(caller ids.ShortID, delay time.Duration) error {
	if !m.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if delay < 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.ClaimDelay = delay
	return nil
}

// SetPerBlockMintLimit replaces the per-block mint cap. Nil disables it.
// Admin only.
func (m *Minter) SetPerBlockMintLimit(caller ids.ShortID, limit *big.Int) error {
	if !m.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit == nil {
		m.cfg.PerBlockMintLimit = nil
	} else {
		m.cfg.PerBlockMintLimit = new(big.Int).Set(limit)
	}
	return nil
}

// AddWhitelisted grants an account mint access. Whitelister only.
func (m *Minter) AddWhitelisted(caller, account ids.ShortID) error {
	if !m.cfg.IsWhitelister(caller) {
		return ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whitelist[account] = true
	return nil
}

// RemoveWhitelisted revokes an account's mint access. Whitelister only.
func (m *Minter) RemoveWhitelisted(caller, account ids.ShortID) error {
	if !m.cfg.IsWhitelister(caller) {
		return ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.whitelist, account)
	return nil
}

// IsWhitelisted reports whether an account may mint while whitelisting is
// enabled.
func (m *Minter) IsWhitelisted(account ids.ShortID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.whitelist[account]
}

// Token returns the rebase engine.
func (m *Minter) Token() *token.Token { return m.token }

// Registry returns the asset registry.
func (m *Minter) Registry() *registry.Registry { return m.registry }

// Ledger returns the redemption ledger.
func (m *Minter) Ledger() *redemption.Ledger { return m.ledger }

// Vault returns the custody vault.
func (m *Minter) Vault() *custody.Vault { return m.vault }

func (m *Minter) updateAggregatesLocked() {
	m.metrics.UpdateAggregates(
		m.token.TotalSupply(),
		m.token.RebaseIndex(),
		m.ledger.TotalPending(),
		m.ledger.CoverageRatio(),
	)
}

// applyTax deducts bps/10000 from amount.
func applyTax(amount *big.Int, bps uint16) *big.Int {
	if bps == 0 {
		return amount
	}
	tax := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	tax.Div(tax, bpsDivisor)
	return amount.Sub(amount, tax)
}
