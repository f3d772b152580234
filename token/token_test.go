// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/stablecoin/config"
)

// bigMul multiplies a value by 10^18
func bigMul(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), scale18)
}

// Helper to create an engine with distinct role identities.
func newTestToken() (*Token, *config.Config) {
	cfg := config.DefaultConfig()
	cfg.Owner = ids.GenerateTestShortID()
	cfg.Admin = ids.GenerateTestShortID()
	cfg.RebaseManager = ids.GenerateTestShortID()
	cfg.FeeCollector = ids.GenerateTestShortID()
	return New(&cfg, log.NewNoOpLogger()), &cfg
}

// requireConserved checks that the sum of all balances never exceeds the
// total supply, and trails it by at most one base unit per account (share
// flooring dust).
func requireConserved(t *testing.T, tok *Token, accounts ...ids.ShortID) {
	t.Helper()
	require := require.New(t)

	sum := new(big.Int)
	for _, addr := range accounts {
		sum.Add(sum, tok.BalanceOf(addr))
	}
	supply := tok.TotalSupply()
	require.LessOrEqual(sum.Cmp(supply), 0, "balances exceed supply")

	dust := new(big.Int).Sub(supply, sum)
	require.LessOrEqual(dust.Cmp(big.NewInt(int64(len(accounts)))), 0, "dust exceeds one unit per account")
}

func TestNew(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	require.Equal(0, tok.RebaseIndex().Cmp(scale18))
	require.Equal(int64(0), tok.TotalSupply().Int64())
	require.Equal(int64(0), tok.TotalShares().Int64())
	require.Equal(0, tok.SupplyLimit().Cmp(cfg.SupplyLimit))
}

func TestMint(t *testing.T) {
	require := require.New(t)

	tok, _ := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.Mint(user, bigMul(100)))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(100)))
	require.Equal(0, tok.TotalSupply().Cmp(bigMul(100)))
	// At index 1.0 shares equal tokens.
	require.Equal(0, tok.SharesOf(user).Cmp(bigMul(100)))
}

func TestMintInvalid(t *testing.T) {
	require := require.New(t)

	tok, _ := newTestToken()
	user := ids.GenerateTestShortID()

	require.ErrorIs(tok.Mint(ids.ShortEmpty, bigMul(1)), ErrZeroAddress)
	require.ErrorIs(tok.Mint(user, nil), ErrZeroAmount)
	require.ErrorIs(tok.Mint(user, big.NewInt(0)), ErrZeroAmount)
	require.ErrorIs(tok.Mint(user, big.NewInt(-1)), ErrZeroAmount)
}

func TestMintSupplyLimit(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.SetSupplyLimit(cfg.Admin, bigMul(100)))
	require.NoError(tok.Mint(user, bigMul(100)))
	require.ErrorIs(tok.Mint(user, big.NewInt(1)), ErrSupplyLimitExceeded)

	// Raising the cap unblocks minting.
	require.NoError(tok.SetSupplyLimit(cfg.Admin, bigMul(200)))
	require.NoError(tok.Mint(user, bigMul(50)))
}

func TestBurn(t *testing.T) {
	require := require.New(t)

	tok, _ := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.Mint(user, bigMul(100)))
	require.NoError(tok.Burn(user, bigMul(40)))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(60)))
	require.Equal(0, tok.TotalSupply().Cmp(bigMul(60)))

	require.ErrorIs(tok.Burn(user, bigMul(61)), ErrInsufficientBalance)
	require.ErrorIs(tok.Burn(ids.GenerateTestShortID(), bigMul(1)), ErrInsufficientBalance)
}

func TestTransfer(t *testing.T) {
	require := require.New(t)

	tok, _ := newTestToken()
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(tok.Mint(alice, bigMul(100)))
	require.NoError(tok.Transfer(alice, bob, bigMul(30)))
	require.Equal(0, tok.BalanceOf(alice).Cmp(bigMul(70)))
	require.Equal(0, tok.BalanceOf(bob).Cmp(bigMul(30)))
	require.Equal(0, tok.TotalSupply().Cmp(bigMul(100)))

	require.ErrorIs(tok.Transfer(alice, bob, bigMul(71)), ErrInsufficientBalance)
	require.ErrorIs(tok.Transfer(bob, alice, nil), ErrZeroAmount)
	require.ErrorIs(tok.Transfer(ids.ShortEmpty, bob, bigMul(1)), ErrZeroAddress)
}

func TestSetRebaseIndex(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.Mint(user, bigMul(100)))

	// Double the index: growth 100, 10% tax skims 10 to the collector.
	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, bigMul(2)))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(200)))
	require.Equal(0, tok.BalanceOf(cfg.FeeCollector).Cmp(bigMul(10)))
	require.Equal(0, tok.TotalSupply().Cmp(bigMul(210)))

	requireConserved(t, tok, user, cfg.FeeCollector)
}

func TestSetRebaseIndexFractional(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.Mint(user, bigMul(10)))

	// Index 1.0 -> 1.5: the holder's balance grows to exactly 15; the
	// collector receives the 10% skim of the 5-token growth, minus at
	// most one unit of share-flooring dust.
	newIndex := new(big.Int).Div(new(big.Int).Mul(scale18, big.NewInt(3)), big.NewInt(2))
	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, newIndex))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(15)))

	tax := new(big.Int).Div(bigMul(5), big.NewInt(10))
	got := tok.BalanceOf(cfg.FeeCollector)
	diff := new(big.Int).Sub(tax, got)
	require.GreaterOrEqual(diff.Sign(), 0)
	require.LessOrEqual(diff.Cmp(big.NewInt(1)), 0)

	requireConserved(t, tok, user, cfg.FeeCollector)
}

func TestSetRebaseIndexDecrease(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.Mint(user, bigMul(100)))

	// A decrease is accepted, shrinks balances and skims nothing.
	half := new(big.Int).Div(scale18, big.NewInt(2))
	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, half))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(50)))
	require.Equal(int64(0), tok.BalanceOf(cfg.FeeCollector).Int64())
}

func TestSetRebaseIndexSupplyLimit(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.SetSupplyLimit(cfg.Admin, bigMul(100)))
	require.NoError(tok.Mint(user, bigMul(100)))

	// The grown supply would breach the cap; the rebase is rejected and
	// nothing moves.
	require.ErrorIs(tok.SetRebaseIndex(cfg.RebaseManager, bigMul(2)), ErrSupplyLimitExceeded)
	require.Equal(0, tok.RebaseIndex().Cmp(scale18))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(100)))
	require.Equal(int64(0), tok.BalanceOf(cfg.FeeCollector).Int64())

	// Raising the cap above supply plus skim admits the same rebase.
	require.NoError(tok.SetSupplyLimit(cfg.Admin, bigMul(210)))
	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, bigMul(2)))
	require.Equal(0, tok.TotalSupply().Cmp(bigMul(210)))
}

func TestSetRebaseIndexInvalid(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()

	require.ErrorIs(tok.SetRebaseIndex(ids.GenerateTestShortID(), bigMul(2)), ErrUnauthorized)
	require.ErrorIs(tok.SetRebaseIndex(cfg.RebaseManager, nil), ErrZeroRebaseIndex)
	require.ErrorIs(tok.SetRebaseIndex(cfg.RebaseManager, big.NewInt(0)), ErrZeroRebaseIndex)
	require.ErrorIs(tok.SetRebaseIndex(cfg.RebaseManager, big.NewInt(-1)), ErrZeroRebaseIndex)
}

func TestSetSupplyLimit(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()

	require.ErrorIs(tok.SetSupplyLimit(ids.GenerateTestShortID(), bigMul(1)), ErrUnauthorized)
	require.NoError(tok.SetSupplyLimit(cfg.Admin, bigMul(1)))
	require.ErrorIs(tok.SetSupplyLimit(cfg.Admin, bigMul(1)), ErrValueUnchanged)
	// The owner holds the admin role implicitly.
	require.NoError(tok.SetSupplyLimit(cfg.Owner, bigMul(2)))
}

func TestDisableRebase(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.Mint(user, bigMul(100)))
	require.NoError(tok.DisableRebase(user, true))
	require.True(tok.IsOptedOut(user))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(100)))
	require.Equal(int64(0), tok.SharesOf(user).Int64())
	require.Equal(0, tok.OptedOutSupply().Cmp(bigMul(100)))

	// An opted-out balance is immune to index moves.
	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, bigMul(2)))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(100)))

	// Opting back in converts at the current index.
	require.NoError(tok.DisableRebase(user, false))
	require.False(tok.IsOptedOut(user))
	require.Equal(0, tok.BalanceOf(user).Cmp(bigMul(100)))
	require.Equal(0, tok.SharesOf(user).Cmp(bigMul(50)))
	require.Equal(int64(0), tok.OptedOutSupply().Int64())
}

func TestDisableRebaseUnchanged(t *testing.T) {
	require := require.New(t)

	tok, _ := newTestToken()
	user := ids.GenerateTestShortID()

	require.NoError(tok.Mint(user, bigMul(1)))
	require.ErrorIs(tok.DisableRebase(user, false), ErrValueUnchanged)
	require.NoError(tok.DisableRebase(user, true))
	require.ErrorIs(tok.DisableRebase(user, true), ErrValueUnchanged)
	require.ErrorIs(tok.DisableRebase(ids.ShortEmpty, true), ErrZeroAddress)
}

func TestRebaseExcludesOptedOut(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	fixed := ids.GenerateTestShortID()
	floating := ids.GenerateTestShortID()

	require.NoError(tok.Mint(fixed, bigMul(100)))
	require.NoError(tok.Mint(floating, bigMul(100)))
	require.NoError(tok.DisableRebase(fixed, true))

	// Growth accrues on participating shares only: 100 -> 200, so the
	// collector's 10% skim is 10 and the fixed balance is untouched.
	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, bigMul(2)))
	require.Equal(0, tok.BalanceOf(fixed).Cmp(bigMul(100)))
	require.Equal(0, tok.BalanceOf(floating).Cmp(bigMul(200)))
	require.Equal(0, tok.BalanceOf(cfg.FeeCollector).Cmp(bigMul(10)))
	require.Equal(0, tok.TotalSupply().Cmp(bigMul(310)))
}

func TestTransferBetweenRepresentations(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(tok.Mint(alice, bigMul(100)))
	require.NoError(tok.Mint(bob, bigMul(100)))
	require.NoError(tok.DisableRebase(bob, true))

	// A transfer debits the sender's form and credits the receiver's.
	require.NoError(tok.Transfer(alice, bob, bigMul(25)))
	require.Equal(0, tok.BalanceOf(alice).Cmp(bigMul(75)))
	require.Equal(0, tok.BalanceOf(bob).Cmp(bigMul(125)))
	require.Equal(0, tok.OptedOutSupply().Cmp(bigMul(125)))

	require.NoError(tok.Transfer(bob, alice, bigMul(5)))
	require.Equal(0, tok.BalanceOf(alice).Cmp(bigMul(80)))
	require.Equal(0, tok.BalanceOf(bob).Cmp(bigMul(120)))

	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, bigMul(2)))
	requireConserved(t, tok, alice, bob, cfg.FeeCollector)
}

func TestExportRestoreState(t *testing.T) {
	require := require.New(t)

	tok, cfg := newTestToken()
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(tok.Mint(alice, bigMul(100)))
	require.NoError(tok.Mint(bob, bigMul(50)))
	require.NoError(tok.DisableRebase(bob, true))
	require.NoError(tok.SetRebaseIndex(cfg.RebaseManager, bigMul(2)))

	restored := New(cfg, log.NewNoOpLogger())
	restored.RestoreState(tok.ExportState())

	require.Equal(0, restored.RebaseIndex().Cmp(tok.RebaseIndex()))
	require.Equal(0, restored.TotalSupply().Cmp(tok.TotalSupply()))
	require.Equal(0, restored.BalanceOf(alice).Cmp(tok.BalanceOf(alice)))
	require.Equal(0, restored.BalanceOf(bob).Cmp(tok.BalanceOf(bob)))
	require.True(restored.IsOptedOut(bob))
}

func BenchmarkMint(b *testing.B) {
	cfg := config.DefaultConfig()
	cfg.SupplyLimit = new(big.Int).Lsh(big.NewInt(1), 200)
	tok := New(&cfg, log.NewNoOpLogger())
	user := ids.GenerateTestShortID()
	amount := big.NewInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tok.Mint(user, amount)
	}
}

func BenchmarkTransfer(b *testing.B) {
	cfg := config.DefaultConfig()
	tok := New(&cfg, log.NewNoOpLogger())
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	_ = tok.Mint(alice, bigMul(1000000))
	amount := big.NewInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tok.Transfer(alice, bob, amount)
	}
}
