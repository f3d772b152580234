// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import "math/big"

// balance is the per-account representation. Exactly one form is active at a
// time: a participating account holds shares valued through the global rebase
// index, an opted-out account holds a fixed token amount. The forms are
// switched only through Token.DisableRebase so the totalShares and
// optedOutSupply aggregates stay consistent.
type balance struct {
	optedOut bool
	shares   *big.Int
	tokens   *big.Int
}

func newBalance() *balance {
	return &balance{
		shares: new(big.Int),
		tokens: new(big.Int),
	}
}

// value returns the token-denominated balance at the given rebase index.
func (b *balance) value(index *big.Int) *big.Int {
	if b.optedOut {
		return new(big.Int).Set(b.tokens)
	}
	v := new(big.Int).Mul(b.shares, index)
	return v.Div(v, scale18)
}
