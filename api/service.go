// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api provides the JSON-RPC service for the stablecoin engine.
// Amounts cross the wire as decimal strings to avoid precision loss.
package api

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/luxfi/ids"

	"github.com/luxfi/stablecoin/minter"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Service exposes the mint/redeem facade over RPC.
type Service struct {
	minter *minter.Minter
}

// NewService creates the RPC service.
func NewService(m *minter.Minter) *Service {
	return &Service{minter: m}
}

// PingArgs is the argument for the Ping API.
type PingArgs struct{}

// PingReply is the reply for the Ping API.
type PingReply struct {
	Success bool `json:"success"`
}

// Ping returns a simple health check response.
func (s *Service) Ping(_ *http.Request, _ *PingArgs, reply *PingReply) error {
	reply.Success = true
	return nil
}

// BalanceArgs identifies an account.
type BalanceArgs struct {
	Address string `json:"address"`
}

// BalanceReply carries a token balance.
type BalanceReply struct {
	Balance string `json:"balance"`
}

// BalanceOf returns the stablecoin balance of an account.
func (s *Service) BalanceOf(_ *http.Request, args *BalanceArgs, reply *BalanceReply) error {
	addr, err := ids.ShortFromString(args.Address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	reply.Balance = s.minter.Token().BalanceOf(addr).String()
	return nil
}

// SupplyArgs is the argument for the supply APIs.
type SupplyArgs struct{}

// SupplyReply carries the supply aggregates.
type SupplyReply struct {
	TotalSupply    string `json:"totalSupply"`
	TotalShares    string `json:"totalShares"`
	OptedOutSupply string `json:"optedOutSupply"`
	RebaseIndex    string `json:"rebaseIndex"`
	SupplyLimit    string `json:"supplyLimit"`
}

// Supply returns the supply aggregates and rebase index.
func (s *Service) Supply(_ *http.Request, _ *SupplyArgs, reply *SupplyReply) error {
	tok := s.minter.Token()
	reply.TotalSupply = tok.TotalSupply().String()
	reply.TotalShares = tok.TotalShares().String()
	reply.OptedOutSupply = tok.OptedOutSupply().String()
	reply.RebaseIndex = tok.RebaseIndex().String()
	reply.SupplyLimit = tok.SupplyLimit().String()
	return nil
}

// QuoteArgs identifies an asset and input amount.
type QuoteArgs struct {
	Asset    string `json:"asset"`
	AmountIn string `json:"amountIn"`
}

// QuoteReply carries a quoted output amount.
type QuoteReply struct {
	AmountOut string `json:"amountOut"`
}

// QuoteMint quotes the stablecoin minted for a collateral deposit.
func (s *Service) QuoteMint(_ *http.Request, args *QuoteArgs, reply *QuoteReply) error {
	asset, amount, err := parseAssetAmount(args.Asset, args.AmountIn)
	if err != nil {
		return err
	}
	out, err := s.minter.QuoteMint(asset, amount)
	if err != nil {
		return err
	}
	reply.AmountOut = out.String()
	return nil
}

// QuoteRedeem quotes the collateral paid for a stablecoin redemption.
func (s *Service) QuoteRedeem(_ *http.Request, args *QuoteArgs, reply *QuoteReply) error {
	asset, amount, err := parseAssetAmount(args.Asset, args.AmountIn)
	if err != nil {
		return err
	}
	out, err := s.minter.QuoteRedeem(asset, amount)
	if err != nil {
		return err
	}
	reply.AmountOut = out.String()
	return nil
}

// MintArgs describes a mint operation.
type MintArgs struct {
	Caller       string `json:"caller"`
	Asset        string `json:"asset"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut,omitempty"`
}

// MintReply carries the minted amount.
type MintReply struct {
	AmountOut string `json:"amountOut"`
}

// Mint deposits collateral and mints stablecoin to the caller.
func (s *Service) Mint(_ *http.Request, args *MintArgs, reply *MintReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return fmt.Errorf("invalid caller: %w", err)
	}
	asset, amountIn, err := parseAssetAmount(args.Asset, args.AmountIn)
	if err != nil {
		return err
	}
	var minOut *big.Int
	if args.MinAmountOut != "" {
		minOut, err = parseAmount(args.MinAmountOut)
		if err != nil {
			return err
		}
	}
	out, err := s.minter.Mint(caller, asset, amountIn, minOut)
	if err != nil {
		return err
	}
	reply.AmountOut = out.String()
	return nil
}

// RedeemArgs describes a redemption request.
type RedeemArgs struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// RedeemReply describes the recorded request.
type RedeemReply struct {
	RequestID      uint64 `json:"requestID"`
	Payout         string `json:"payout"`
	ClaimableAfter int64  `json:"claimableAfter"`
}

// RequestRedeem burns stablecoin and queues a redemption request.
func (s *Service) RequestRedeem(_ *http.Request, args *RedeemArgs, reply *RedeemReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return fmt.Errorf("invalid caller: %w", err)
	}
	asset, amount, err := parseAssetAmount(args.Asset, args.Amount)
	if err != nil {
		return err
	}
	req, err := s.minter.RequestRedeem(caller, asset, amount)
	if err != nil {
		return err
	}
	reply.RequestID = req.ID
	reply.Payout = req.Amount.String()
	reply.ClaimableAfter = req.ClaimableAfter.Unix()
	return nil
}

// ClaimableArgs identifies an account and asset.
type ClaimableArgs struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

// ClaimableReply carries the claimable amount.
type ClaimableReply struct {
	Amount string `json:"amount"`
}

// ClaimableTokens returns the coverage-scaled claimable collateral.
func (s *Service) ClaimableTokens(_ *http.Request, args *ClaimableArgs, reply *ClaimableReply) error {
	account, err := ids.ShortFromString(args.Account)
	if err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	asset, err := ids.ShortFromString(args.Asset)
	if err != nil {
		return fmt.Errorf("invalid asset: %w", err)
	}
	reply.Amount = s.minter.ClaimableTokens(account, asset).String()
	return nil
}

// ClaimArgs describes a claim operation. Amount is optional; empty claims
// everything payable.
type ClaimArgs struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	Amount string `json:"amount,omitempty"`
}

// ClaimReply carries the paid amount.
type ClaimReply struct {
	Paid string `json:"paid"`
}

// ClaimTokens settles unlocked redemption requests for the caller.
func (s *Service) ClaimTokens(_ *http.Request, args *ClaimArgs, reply *ClaimReply) error {
	caller, err := ids.ShortFromString(args.Caller)
	if err != nil {
		return fmt.Errorf("invalid caller: %w", err)
	}
	asset, err := ids.ShortFromString(args.Asset)
	if err != nil {
		return fmt.Errorf("invalid asset: %w", err)
	}
	var limit *big.Int
	if args.Amount != "" {
		limit, err = parseAmount(args.Amount)
		if err != nil {
			return err
		}
	}
	paid, err := s.minter.ClaimTokens(caller, asset, limit)
	if err != nil {
		return err
	}
	reply.Paid = paid.String()
	return nil
}

// AssetsArgs is the argument for the asset listing APIs.
type AssetsArgs struct{}

// AssetInfo describes one registry entry.
type AssetInfo struct {
	Address string `json:"address"`
	Oracle  string `json:"oracle"`
	Status  string `json:"status"`
}

// AssetsReply carries registry entries.
type AssetsReply struct {
	Assets []AssetInfo `json:"assets"`
}

// ActiveAssets lists the currently mintable collateral assets.
func (s *Service) ActiveAssets(_ *http.Request, _ *AssetsArgs, reply *AssetsReply) error {
	for _, a := range s.minter.Registry().ActiveAssets() {
		reply.Assets = append(reply.Assets, AssetInfo{
			Address: a.Address.String(),
			Oracle:  a.Oracle.String(),
			Status:  a.Status.String(),
		})
	}
	return nil
}

// AllAssets lists the full collateral history, removed assets included.
func (s *Service) AllAssets(_ *http.Request, _ *AssetsArgs, reply *AssetsReply) error {
	for _, a := range s.minter.Registry().AllAssets() {
		reply.Assets = append(reply.Assets, AssetInfo{
			Address: a.Address.String(),
			Oracle:  a.Oracle.String(),
			Status:  a.Status.String(),
		})
	}
	return nil
}

// PendingArgs identifies an asset; empty means the cross-asset total.
type PendingArgs struct {
	Asset string `json:"asset,omitempty"`
}

// PendingReply carries outstanding redemption obligations.
type PendingReply struct {
	Pending  string `json:"pending"`
	Coverage string `json:"coverage"`
}

// PendingClaims returns outstanding redemption obligations and the coverage
// ratio.
func (s *Service) PendingClaims(_ *http.Request, args *PendingArgs, reply *PendingReply) error {
	ledger := s.minter.Ledger()
	if args.Asset == "" {
		reply.Pending = ledger.TotalPending().String()
	} else {
		asset, err := ids.ShortFromString(args.Asset)
		if err != nil {
			return fmt.Errorf("invalid asset: %w", err)
		}
		reply.Pending = ledger.PendingClaims(asset).String()
	}
	reply.Coverage = ledger.CoverageRatio().String()
	return nil
}

func parseAssetAmount(assetStr, amountStr string) (ids.ShortID, *big.Int, error) {
	asset, err := ids.ShortFromString(assetStr)
	if err != nil {
		return ids.ShortEmpty, nil, fmt.Errorf("invalid asset: %w", err)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return ids.ShortEmpty, nil, err
	}
	return asset, amount, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return amount, nil
}
