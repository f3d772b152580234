// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package redemption implements the withdrawal request ledger.
//
// Requests are append-only: a request is recorded when a holder redeems
// stablecoin, becomes payable once its claim delay passes, and is paid down
// incrementally against the coverage ratio. Settled requests are retained as
// history. The pending-claim aggregates are maintained as running totals in
// the same critical section as every append and paydown, never recomputed by
// scanning the history.
package redemption

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrValueTooHigh    = errors.New("value too high")
	ErrValueUnchanged  = errors.New("value unchanged")
	ErrRequestNotFound = errors.New("request not found")

	scale18 = big.NewInt(1e18)
)

// Request is one redemption request. Amount is fixed at creation from the
// tax-adjusted quote, denominated in the output asset. Claimed accumulates
// toward Amount as the request is paid down; the record is never removed.
type Request struct {
	ID             uint64      `json:"id"`
	Account        ids.ShortID `json:"account"`
	Asset          ids.ShortID `json:"asset"`
	Amount         *big.Int    `json:"amount"`
	Claimed        *big.Int    `json:"claimed"`
	ClaimableAfter time.Time   `json:"claimableAfter"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Remaining returns the unpaid portion of the request.
func (r *Request) Remaining() *big.Int {
	return new(big.Int).Sub(r.Amount, r.Claimed)
}

// State is the exported ledger, used for persistence.
type State struct {
	Requests      []Request `json:"requests"`
	CoverageRatio *big.Int  `json:"coverageRatio"`
	NextID        uint64    `json:"nextID"`
}

type accountKey struct {
	account ids.ShortID
	asset   ids.ShortID
}

// Ledger is the redemption request ledger.
type Ledger struct {
	mu  sync.RWMutex
	log log.Logger

	arena  []*Request           // all requests, in creation order
	byUser map[accountKey][]int // arena positions per (account, asset)
	nextID uint64

	pending      map[ids.ShortID]*big.Int // asset -> Σ(amount-claimed)
	totalPending *big.Int

	// coverage scales claimable amounts; 1e18 means fully backed.
	coverage *big.Int
}

// NewLedger creates an empty ledger at full coverage.
func NewLedger(logger log.Logger) *Ledger {
	return &Ledger{
		log:          logger,
		byUser:       make(map[accountKey][]int),
		pending:      make(map[ids.ShortID]*big.Int),
		totalPending: new(big.Int),
		coverage:     new(big.Int).Set(scale18),
	}
}

// Append records a new request and grows the pending aggregates.
func (l *Ledger) Append(account, asset ids.ShortID, amount *big.Int, now, claimableAfter time.Time) (*Request, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	req := &Request{
		ID:             l.nextID,
		Account:        account,
		Asset:          asset,
		Amount:         new(big.Int).Set(amount),
		Claimed:        new(big.Int),
		ClaimableAfter: claimableAfter,
		CreatedAt:      now,
	}
	l.nextID++

	key := accountKey{account, asset}
	l.byUser[key] = append(l.byUser[key], len(l.arena))
	l.arena = append(l.arena, req)

	l.pendingFor(asset).Add(l.pendingFor(asset), amount)
	l.totalPending.Add(l.totalPending, amount)

	l.log.Debug("redemption requested",
		"id", req.ID,
		"account", account,
		"asset", asset,
		"amount", amount,
		"claimableAfter", claimableAfter,
	)
	copied := *req
	return &copied, nil
}

// Claimable returns the coverage-scaled amount the account could claim now
// for the asset.
func (l *Ledger) Claimable(account, asset ids.ShortID, now time.Time) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	unlocked := new(big.Int)
	for _, pos := range l.byUser[accountKey{account, asset}] {
		req := l.arena[pos]
		if req.ClaimableAfter.After(now) {
			continue
		}
		unlocked.Add(unlocked, req.Remaining())
	}
	unlocked.Mul(unlocked, l.coverage)
	return unlocked.Div(unlocked, scale18)
}

// Settle pays down the account's unlocked requests for the asset in creation
// order and returns the total paid. Each request pays its coverage-scaled
// remaining amount; Claimed grows by exactly what was paid, so a request
// fully clears only once coverage returns to 100%. A non-nil limit bounds the
// total payout. A zero return means nothing was payable.
func (l *Ledger) Settle(account, asset ids.ShortID, limit *big.Int, now time.Time) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	paid := new(big.Int)
	var capLeft *big.Int
	if limit != nil {
		capLeft = new(big.Int).Set(limit)
	}

	assetPending := l.pendingFor(asset)
	for _, pos := range l.byUser[accountKey{account, asset}] {
		if capLeft != nil && capLeft.Sign() == 0 {
			break
		}
		req := l.arena[pos]
		if req.ClaimableAfter.After(now) {
			continue
		}

		pay := req.Remaining()
		pay.Mul(pay, l.coverage)
		pay.Div(pay, scale18)
		if capLeft != nil && pay.Cmp(capLeft) > 0 {
			pay.Set(capLeft)
		}
		if pay.Sign() == 0 {
			continue
		}

		req.Claimed.Add(req.Claimed, pay)
		assetPending.Sub(assetPending, pay)
		l.totalPending.Sub(l.totalPending, pay)
		paid.Add(paid, pay)
		if capLeft != nil {
			capLeft.Sub(capLeft, pay)
		}

		l.log.Debug("request paid down", "id", req.ID, "paid", pay, "claimed", req.Claimed)
	}

	return paid
}

// ExtendClaimableAfter overwrites the unlock time of one request, identified
// by its position in the account's sequence for the asset.
func (l *Ledger) ExtendClaimableAfter(account, asset ids.ShortID, index int, newTime time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := l.byUser[accountKey{account, asset}]
	if index < 0 || index >= len(positions) {
		return ErrRequestNotFound
	}
	req := l.arena[positions[index]]
	req.ClaimableAfter = newTime
	l.log.Info("claim timestamp extended", "id", req.ID, "claimableAfter", newTime)
	return nil
}

// SetCoverageRatio replaces the coverage ratio. Ratios above 1e18 and writes
// of the current value are rejected.
func (l *Ledger) SetCoverageRatio(ratio *big.Int) error {
	if ratio == nil || ratio.Sign() < 0 {
		return ErrInvalidAmount
	}
	if ratio.Cmp(scale18) > 0 {
		return ErrValueTooHigh
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.coverage.Cmp(ratio) == 0 {
		return ErrValueUnchanged
	}
	l.coverage = new(big.Int).Set(ratio)
	l.log.Info("coverage ratio set", "ratio", ratio)
	return nil
}

// CoverageRatio returns the current coverage ratio.
func (l *Ledger) CoverageRatio() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.coverage)
}

// PendingClaims returns the outstanding unpaid obligations for an asset.
// This is also the amount of custody collateral protected from custodian
// withdrawal.
func (l *Ledger) PendingClaims(asset ids.ShortID) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pending, ok := l.pending[asset]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(pending)
}

// TotalPending returns the outstanding obligations summed over all assets.
func (l *Ledger) TotalPending() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalPending)
}

// Requests returns copies of the account's requests for the asset in
// creation order, settled ones included.
func (l *Ledger) Requests(account, asset ids.ShortID) []Request {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := l.byUser[accountKey{account, asset}]
	out := make([]Request, 0, len(positions))
	for _, pos := range positions {
		req := l.arena[pos]
		copied := *req
		copied.Amount = new(big.Int).Set(req.Amount)
		copied.Claimed = new(big.Int).Set(req.Claimed)
		out = append(out, copied)
	}
	return out
}

// ExportState returns the full request history and coverage ratio.
func (l *Ledger) ExportState() *State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := &State{
		Requests:      make([]Request, 0, len(l.arena)),
		CoverageRatio: new(big.Int).Set(l.coverage),
		NextID:        l.nextID,
	}
	for _, req := range l.arena {
		copied := *req
		copied.Amount = new(big.Int).Set(req.Amount)
		copied.Claimed = new(big.Int).Set(req.Claimed)
		s.Requests = append(s.Requests, copied)
	}
	return s
}

// RestoreState replaces the ledger contents and rebuilds the aggregates.
func (l *Ledger) RestoreState(s *State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.arena = make([]*Request, 0, len(s.Requests))
	l.byUser = make(map[accountKey][]int)
	l.pending = make(map[ids.ShortID]*big.Int)
	l.totalPending = new(big.Int)
	l.coverage = new(big.Int).Set(s.CoverageRatio)
	l.nextID = s.NextID

	for _, r := range s.Requests {
		req := r
		req.Amount = new(big.Int).Set(r.Amount)
		req.Claimed = new(big.Int).Set(r.Claimed)

		key := accountKey{req.Account, req.Asset}
		l.byUser[key] = append(l.byUser[key], len(l.arena))
		l.arena = append(l.arena, &req)

		remaining := req.Remaining()
		l.pendingFor(req.Asset).Add(l.pendingFor(req.Asset), remaining)
		l.totalPending.Add(l.totalPending, remaining)
	}
}

func (l *Ledger) pendingFor(asset ids.ShortID) *big.Int {
	pending, ok := l.pending[asset]
	if !ok {
		pending = new(big.Int)
		l.pending[asset] = pending
	}
	return pending
}
