// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle defines the price oracle boundary for the stablecoin engine.
package oracle

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/ids"
)

var (
	ErrPriceNotAvailable = errors.New("price not available")
	ErrZeroPrice         = errors.New("asset price is zero")
)

// PriceOracle provides collateral asset prices.
type PriceOracle interface {
	// GetPrice returns the price of one unit of the asset denominated in
	// the stablecoin, scaled by 1e18.
	GetPrice(asset ids.ShortID) (*big.Int, error)
}

// SimplePriceOracle is an in-memory price oracle for testing and local runs.
type SimplePriceOracle struct {
	mu     sync.RWMutex
	prices map[ids.ShortID]*big.Int
}

// NewSimplePriceOracle creates a new simple price oracle.
func NewSimplePriceOracle() *SimplePriceOracle {
	return &SimplePriceOracle{
		prices: make(map[ids.ShortID]*big.Int),
	}
}

// SetPrice sets the price for an asset.
func (o *SimplePriceOracle) SetPrice(asset ids.ShortID, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = new(big.Int).Set(price)
}

// GetPrice returns the price for an asset.
func (o *SimplePriceOracle) GetPrice(asset ids.ShortID) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[asset]
	if !ok {
		return nil, ErrPriceNotAvailable
	}
	if price.Sign() == 0 {
		return nil, ErrZeroPrice
	}
	return new(big.Int).Set(price), nil
}
