// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"math/big"

	"github.com/luxfi/metric"
)

var scale18Float = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Metrics tracks protocol activity and aggregate state.
type Metrics struct {
	numMints    metric.Counter
	numRequests metric.Counter
	numClaims   metric.Counter
	numRebases  metric.Counter

	totalSupply   metric.Gauge
	rebaseIndex   metric.Gauge
	totalPending  metric.Gauge
	coverageRatio metric.Gauge
}

// New creates and registers the protocol metrics.
func New(registerer metric.Registerer) (*Metrics, error) {
	m := &Metrics{
		numMints: metric.NewCounter(metric.CounterOpts{
			Name: "mints",
			Help: "Number of successful mint operations",
		}),
		numRequests: metric.NewCounter(metric.CounterOpts{
			Name: "redemption_requests",
			Help: "Number of redemption requests recorded",
		}),
		numClaims: metric.NewCounter(metric.CounterOpts{
			Name: "claims",
			Help: "Number of successful claim operations",
		}),
		numRebases: metric.NewCounter(metric.CounterOpts{
			Name: "rebases",
			Help: "Number of rebase index updates",
		}),
		totalSupply: metric.NewGauge(metric.GaugeOpts{
			Name: "total_supply",
			Help: "Stablecoin total supply in whole tokens",
		}),
		rebaseIndex: metric.NewGauge(metric.GaugeOpts{
			Name: "rebase_index",
			Help: "Current rebase index",
		}),
		totalPending: metric.NewGauge(metric.GaugeOpts{
			Name: "total_pending_claims",
			Help: "Outstanding redemption obligations in collateral units",
		}),
		coverageRatio: metric.NewGauge(metric.GaugeOpts{
			Name: "coverage_ratio",
			Help: "Fraction of requested redemptions currently honored",
		}),
	}

	for _, collector := range []metric.Counter{
		m.numMints, m.numRequests, m.numClaims, m.numRebases,
	} {
		if err := registerer.Register(metric.AsCollector(collector)); err != nil {
			return nil, err
		}
	}
	for _, gauge := range []metric.Gauge{
		m.totalSupply, m.rebaseIndex, m.totalPending, m.coverageRatio,
	} {
		if err := registerer.Register(metric.AsCollector(gauge)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MarkMint records a successful mint.
func (m *Metrics) MarkMint() { m.numMints.Inc() }

// MarkRequest records a new redemption request.
func (m *Metrics) MarkRequest() { m.numRequests.Inc() }

// MarkClaim records a successful claim.
func (m *Metrics) MarkClaim() { m.numClaims.Inc() }

// MarkRebase records a rebase index update.
func (m *Metrics) MarkRebase() { m.numRebases.Inc() }

// UpdateAggregates refreshes the gauges from current engine state.
func (m *Metrics) UpdateAggregates(totalSupply, rebaseIndex, totalPending, coverage *big.Int) {
	m.totalSupply.Set(toFloat(totalSupply))
	m.rebaseIndex.Set(toFloat(rebaseIndex))
	m.totalPending.Set(toFloat(totalPending))
	m.coverageRatio.Set(toFloat(coverage))
}

// toFloat converts a 1e18-scaled integer into a float gauge value.
func toFloat(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	f.Quo(f, scale18Float)
	out, _ := f.Float64()
	return out
}
