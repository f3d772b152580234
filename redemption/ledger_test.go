// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redemption

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// bigMul multiplies a value by 10^18
func bigMul(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), scale18)
}

// ratio returns num/den on the 1e18 scale.
func ratio(num, den int64) *big.Int {
	r := new(big.Int).Mul(scale18, big.NewInt(num))
	return r.Div(r, big.NewInt(den))
}

func TestAppend(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	req, err := ledger.Append(account, asset, bigMul(10), now, now.Add(time.Hour))
	require.NoError(err)
	require.Equal(uint64(0), req.ID)
	require.Equal(0, req.Amount.Cmp(bigMul(10)))
	require.Equal(int64(0), req.Claimed.Int64())
	require.Equal(now.Add(time.Hour), req.ClaimableAfter)

	require.Equal(0, ledger.PendingClaims(asset).Cmp(bigMul(10)))
	require.Equal(0, ledger.TotalPending().Cmp(bigMul(10)))

	req2, err := ledger.Append(account, asset, bigMul(5), now, now.Add(time.Hour))
	require.NoError(err)
	require.Equal(uint64(1), req2.ID)
	require.Equal(0, ledger.TotalPending().Cmp(bigMul(15)))
}

func TestAppendInvalid(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	now := time.Now()

	_, err := ledger.Append(ids.GenerateTestShortID(), ids.GenerateTestShortID(), nil, now, now)
	require.ErrorIs(err, ErrInvalidAmount)
	_, err = ledger.Append(ids.GenerateTestShortID(), ids.GenerateTestShortID(), big.NewInt(0), now, now)
	require.ErrorIs(err, ErrInvalidAmount)
}

func TestClaimableRespectsDelay(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(account, asset, bigMul(10), now, now.Add(time.Hour))
	require.NoError(err)

	// Locked until the unlock time passes.
	require.Equal(int64(0), ledger.Claimable(account, asset, now).Int64())
	require.Equal(int64(0), ledger.Claimable(account, asset, now.Add(59*time.Minute)).Int64())
	require.Equal(0, ledger.Claimable(account, asset, now.Add(time.Hour)).Cmp(bigMul(10)))
}

func TestClaimableStaggeredUnlocks(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()
	delay := time.Hour

	// Two requests of 5, one second apart, unlock one second apart.
	_, err := ledger.Append(account, asset, bigMul(5), now, now.Add(delay))
	require.NoError(err)
	_, err = ledger.Append(account, asset, bigMul(5), now.Add(time.Second), now.Add(delay+time.Second))
	require.NoError(err)

	require.Equal(int64(0), ledger.Claimable(account, asset, now.Add(delay-time.Second)).Int64())
	require.Equal(0, ledger.Claimable(account, asset, now.Add(delay)).Cmp(bigMul(5)))
	require.Equal(0, ledger.Claimable(account, asset, now.Add(delay+time.Second)).Cmp(bigMul(10)))
}

func TestSettleFullCoverage(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(account, asset, bigMul(10), now, now)
	require.NoError(err)

	paid := ledger.Settle(account, asset, nil, now)
	require.Equal(0, paid.Cmp(bigMul(10)))
	require.Equal(int64(0), ledger.PendingClaims(asset).Int64())
	require.Equal(int64(0), ledger.TotalPending().Int64())

	// The request is retained as history, fully claimed.
	reqs := ledger.Requests(account, asset)
	require.Len(reqs, 1)
	require.Equal(0, reqs[0].Claimed.Cmp(bigMul(10)))
	require.Equal(int64(0), reqs[0].Remaining().Int64())

	// Nothing further is payable.
	require.Equal(int64(0), ledger.Settle(account, asset, nil, now).Int64())
}

func TestSettlePartialCoverage(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(account, asset, bigMul(10), now, now)
	require.NoError(err)

	// At 90% coverage a 10-token request pays out 9.
	require.NoError(ledger.SetCoverageRatio(ratio(9, 10)))
	require.Equal(0, ledger.Claimable(account, asset, now).Cmp(bigMul(9)))

	paid := ledger.Settle(account, asset, nil, now)
	require.Equal(0, paid.Cmp(bigMul(9)))

	// The unpaid tail stays pending until coverage recovers.
	require.Equal(0, ledger.PendingClaims(asset).Cmp(bigMul(1)))
	reqs := ledger.Requests(account, asset)
	require.Equal(0, reqs[0].Remaining().Cmp(bigMul(1)))

	// At 90% coverage the remaining 1 pays 0.9; only full coverage
	// clears the request.
	require.NoError(ledger.SetCoverageRatio(scale18))
	paid = ledger.Settle(account, asset, nil, now)
	require.Equal(0, paid.Cmp(bigMul(1)))
	require.Equal(int64(0), ledger.TotalPending().Int64())
}

func TestSettleCreationOrder(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(account, asset, bigMul(10), now, now)
	require.NoError(err)
	_, err = ledger.Append(account, asset, bigMul(20), now, now)
	require.NoError(err)

	// A limit below the first request pays the oldest request first.
	paid := ledger.Settle(account, asset, bigMul(6), now)
	require.Equal(0, paid.Cmp(bigMul(6)))

	reqs := ledger.Requests(account, asset)
	require.Equal(0, reqs[0].Claimed.Cmp(bigMul(6)))
	require.Equal(int64(0), reqs[1].Claimed.Int64())

	// The next settlement finishes the first request before starting
	// the second.
	paid = ledger.Settle(account, asset, bigMul(10), now)
	require.Equal(0, paid.Cmp(bigMul(10)))
	reqs = ledger.Requests(account, asset)
	require.Equal(int64(0), reqs[0].Remaining().Int64())
	require.Equal(0, reqs[1].Claimed.Cmp(bigMul(6)))
}

func TestSettleSkipsLocked(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(account, asset, bigMul(10), now, now.Add(time.Hour))
	require.NoError(err)
	_, err = ledger.Append(account, asset, bigMul(20), now, now)
	require.NoError(err)

	// The older request is still locked, so only the second one pays.
	paid := ledger.Settle(account, asset, nil, now)
	require.Equal(0, paid.Cmp(bigMul(20)))
	require.Equal(0, ledger.PendingClaims(asset).Cmp(bigMul(10)))
}

func TestSettleIsolatesAccountsAndAssets(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	assetA := ids.GenerateTestShortID()
	assetB := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(alice, assetA, bigMul(10), now, now)
	require.NoError(err)
	_, err = ledger.Append(alice, assetB, bigMul(20), now, now)
	require.NoError(err)
	_, err = ledger.Append(bob, assetA, bigMul(30), now, now)
	require.NoError(err)

	paid := ledger.Settle(alice, assetA, nil, now)
	require.Equal(0, paid.Cmp(bigMul(10)))
	require.Equal(0, ledger.PendingClaims(assetA).Cmp(bigMul(30)))
	require.Equal(0, ledger.PendingClaims(assetB).Cmp(bigMul(20)))
	require.Equal(0, ledger.TotalPending().Cmp(bigMul(50)))
}

func TestExtendClaimableAfter(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(account, asset, bigMul(10), now, now)
	require.NoError(err)

	require.NoError(ledger.ExtendClaimableAfter(account, asset, 0, now.Add(time.Hour)))
	require.Equal(int64(0), ledger.Claimable(account, asset, now).Int64())
	require.Equal(0, ledger.Claimable(account, asset, now.Add(time.Hour)).Cmp(bigMul(10)))

	require.ErrorIs(ledger.ExtendClaimableAfter(account, asset, 1, now), ErrRequestNotFound)
	require.ErrorIs(ledger.ExtendClaimableAfter(account, asset, -1, now), ErrRequestNotFound)
	require.ErrorIs(ledger.ExtendClaimableAfter(ids.GenerateTestShortID(), asset, 0, now), ErrRequestNotFound)
}

func TestSetCoverageRatio(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	require.Equal(0, ledger.CoverageRatio().Cmp(scale18))

	require.ErrorIs(ledger.SetCoverageRatio(nil), ErrInvalidAmount)
	require.ErrorIs(ledger.SetCoverageRatio(big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(ledger.SetCoverageRatio(new(big.Int).Add(scale18, big.NewInt(1))), ErrValueTooHigh)
	require.ErrorIs(ledger.SetCoverageRatio(scale18), ErrValueUnchanged)

	require.NoError(ledger.SetCoverageRatio(ratio(1, 2)))
	require.Equal(0, ledger.CoverageRatio().Cmp(ratio(1, 2)))
}

func TestLedgerExportRestore(t *testing.T) {
	require := require.New(t)

	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()

	_, err := ledger.Append(account, asset, bigMul(10), now, now)
	require.NoError(err)
	_, err = ledger.Append(account, asset, bigMul(20), now, now.Add(time.Hour))
	require.NoError(err)
	require.NoError(ledger.SetCoverageRatio(ratio(3, 4)))
	ledger.Settle(account, asset, nil, now)

	restored := NewLedger(log.NewNoOpLogger())
	restored.RestoreState(ledger.ExportState())

	require.Equal(0, restored.CoverageRatio().Cmp(ledger.CoverageRatio()))
	require.Equal(0, restored.PendingClaims(asset).Cmp(ledger.PendingClaims(asset)))
	require.Equal(0, restored.TotalPending().Cmp(ledger.TotalPending()))
	require.Equal(ledger.Requests(account, asset), restored.Requests(account, asset))

	// New requests pick up after the restored ID sequence.
	req, err := restored.Append(account, asset, bigMul(1), now, now)
	require.NoError(err)
	require.Equal(uint64(2), req.ID)
}

func BenchmarkAppend(b *testing.B) {
	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()
	amount := big.NewInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ledger.Append(account, asset, amount, now, now)
	}
}

func BenchmarkPendingClaims(b *testing.B) {
	ledger := NewLedger(log.NewNoOpLogger())
	account := ids.GenerateTestShortID()
	asset := ids.GenerateTestShortID()
	now := time.Now()
	for i := 0; i < 10000; i++ {
		_, _ = ledger.Append(account, asset, big.NewInt(1), now, now)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ledger.PendingClaims(asset)
	}
}
