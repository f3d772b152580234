// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry tracks the collateral assets the protocol accepts.
//
// Assets are never forgotten: removing an asset flips it to Removed but keeps
// it in the history so redemption requests recorded against it remain
// attributable and payable.
package registry

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/stablecoin/config"
)

var (
	ErrZeroAddress    = errors.New("zero address")
	ErrAssetIsToken   = errors.New("stablecoin cannot back itself")
	ErrAssetExists    = errors.New("asset already supported")
	ErrAssetNotActive = errors.New("asset not active")
	ErrAssetNotFound  = errors.New("asset not found")
	ErrUnauthorized   = errors.New("caller lacks required role")
)

// Status of a collateral asset.
type Status uint8

const (
	StatusActive Status = iota
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Asset is one collateral asset entry.
type Asset struct {
	Address ids.ShortID `json:"address"`
	Oracle  ids.ShortID `json:"oracle"`
	Status  Status      `json:"status"`
}

// Registry is the collateral asset registry.
type Registry struct {
	mu  sync.RWMutex
	log log.Logger
	cfg *config.Config

	assets map[ids.ShortID]*Asset
	order  []ids.ShortID // insertion order, never shrinks
}

// New creates an empty registry.
func New(cfg *config.Config, logger log.Logger) *Registry {
	return &Registry{
		log:    logger,
		cfg:    cfg,
		assets: make(map[ids.ShortID]*Asset),
	}
}

// AddAsset marks an asset Active. A previously removed asset is re-activated
// in place; an unseen asset is appended to the history. Admin only.
func (r *Registry) AddAsset(caller, asset, oracleRef ids.ShortID) error {
	if !r.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}
	if asset == ids.ShortEmpty {
		return ErrZeroAddress
	}
	if asset == r.cfg.TokenAddress {
		return ErrAssetIsToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.assets[asset]; ok {
		if existing.Status == StatusActive {
			return ErrAssetExists
		}
		existing.Status = StatusActive
		existing.Oracle = oracleRef
		r.log.Info("asset re-activated", "asset", asset)
		return nil
	}

	r.assets[asset] = &Asset{
		Address: asset,
		Oracle:  oracleRef,
		Status:  StatusActive,
	}
	r.order = append(r.order, asset)
	r.log.Info("asset added", "asset", asset, "oracle", oracleRef)
	return nil
}

// RemoveAsset flips an Active asset to Removed. Outstanding redemption
// requests against it remain payable. Admin only.
func (r *Registry) RemoveAsset(caller, asset ids.ShortID) error {
	if !r.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.assets[asset]
	if !ok || existing.Status != StatusActive {
		return ErrAssetNotActive
	}
	existing.Status = StatusRemoved
	r.log.Info("asset removed", "asset", asset)
	return nil
}

// RestoreAsset re-activates a known asset. Restoring an already Active asset
// is a no-op. Admin only.
func (r *Registry) RestoreAsset(caller, asset ids.ShortID) error {
	if !r.cfg.IsAdmin(caller) {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	if existing.Status != StatusActive {
		existing.Status = StatusActive
		r.log.Info("asset restored", "asset", asset)
	}
	return nil
}

// IsSupported reports whether the asset is currently Active.
func (r *Registry) IsSupported(asset ids.ShortID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.assets[asset]
	return ok && existing.Status == StatusActive
}

// Get returns a copy of the asset entry.
func (r *Registry) Get(asset ids.ShortID) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.assets[asset]
	if !ok {
		return Asset{}, ErrAssetNotFound
	}
	return *existing, nil
}

// ActiveAssets returns the Active assets in insertion order.
func (r *Registry) ActiveAssets() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]Asset, 0, len(r.order))
	for _, addr := range r.order {
		if a := r.assets[addr]; a.Status == StatusActive {
			active = append(active, *a)
		}
	}
	return active
}

// AllAssets returns the full asset history in insertion order, including
// removed entries.
func (r *Registry) AllAssets() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Asset, 0, len(r.order))
	for _, addr := range r.order {
		all = append(all, *r.assets[addr])
	}
	return all
}

// ExportState returns the asset history in insertion order.
func (r *Registry) ExportState() []Asset {
	return r.AllAssets()
}

// RestoreState replaces the registry contents, preserving the given order.
func (r *Registry) RestoreState(assets []Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assets = make(map[ids.ShortID]*Asset, len(assets))
	r.order = make([]ids.ShortID, 0, len(assets))
	for _, a := range assets {
		entry := a
		r.assets[a.Address] = &entry
		r.order = append(r.order, a.Address)
	}
}
