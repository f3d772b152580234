// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the stablecoin engine across restarts: the rebase
// scalars and balances, the asset registry, the full redemption request log,
// the coverage ratio and the custody holdings. The database is the durable
// store, not a cache.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"

	"github.com/luxfi/stablecoin/custody"
	"github.com/luxfi/stablecoin/redemption"
	"github.com/luxfi/stablecoin/registry"
	"github.com/luxfi/stablecoin/token"
)

var (
	ErrStateCorrupted = errors.New("state corrupted")

	// Database prefixes
	prefixRebase   = []byte("rebase")
	prefixAccount  = []byte("acct:")
	prefixAsset    = []byte("asset:")
	prefixRequest  = []byte("req:")
	prefixCoverage = []byte("coverage")
	prefixNextID   = []byte("reqNextID")
	prefixVault    = []byte("vault:")
)

// Snapshot is the full durable state of the engine.
type Snapshot struct {
	Token  *token.State
	Assets []registry.Asset
	Ledger *redemption.State
	Vault  []custody.Holding
}

// Store reads and writes engine snapshots.
type Store struct {
	db database.Database
}

// New creates a store over the given database.
func New(db database.Database) *Store {
	return &Store{db: db}
}

// Save writes the snapshot atomically: every entity commits together or the
// previous state survives. Records are overwritten by key and never deleted;
// this is sound because accounts, assets and requests are append-only, and
// vault holdings export their zeros once drained.
func (s *Store) Save(snap *Snapshot) error {
	vdb := versiondb.New(s.db)

	if err := s.saveToken(vdb, snap.Token); err != nil {
		return err
	}
	if err := s.saveAssets(vdb, snap.Assets); err != nil {
		return err
	}
	if err := s.saveLedger(vdb, snap.Ledger); err != nil {
		return err
	}
	if err := s.saveVault(vdb, snap.Vault); err != nil {
		return err
	}
	return vdb.Commit()
}

// Load reads a snapshot. A fresh database yields (nil, nil).
func (s *Store) Load() (*Snapshot, error) {
	has, err := s.db.Has(prefixRebase)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}

	tokenState, err := s.loadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token state: %w", err)
	}
	assets, err := s.loadAssets()
	if err != nil {
		return nil, fmt.Errorf("failed to load asset registry: %w", err)
	}
	ledger, err := s.loadLedger()
	if err != nil {
		return nil, fmt.Errorf("failed to load redemption ledger: %w", err)
	}
	vault, err := s.loadVault()
	if err != nil {
		return nil, fmt.Errorf("failed to load custody holdings: %w", err)
	}

	return &Snapshot{
		Token:  tokenState,
		Assets: assets,
		Ledger: ledger,
		Vault:  vault,
	}, nil
}

func (s *Store) saveToken(db database.Database, ts *token.State) error {
	p := newPacker()
	p.packBig(ts.Index)
	p.packBig(ts.TotalShares)
	p.packBig(ts.OptedOutSupply)
	p.packBig(ts.SupplyLimit)
	if err := db.Put(prefixRebase, p.bytes); err != nil {
		return err
	}

	for _, acct := range ts.Accounts {
		p := newPacker()
		p.packBool(acct.OptedOut)
		p.packBig(acct.Shares)
		p.packBig(acct.Tokens)
		key := append(append([]byte{}, prefixAccount...), acct.Address[:]...)
		if err := db.Put(key, p.bytes); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadToken() (*token.State, error) {
	data, err := s.db.Get(prefixRebase)
	if err != nil {
		return nil, err
	}
	u := newUnpacker(data)
	ts := &token.State{
		Index:          u.unpackBig(),
		TotalShares:    u.unpackBig(),
		OptedOutSupply: u.unpackBig(),
		SupplyLimit:    u.unpackBig(),
	}
	if u.err != nil {
		return nil, u.err
	}

	iter := s.db.NewIteratorWithPrefix(prefixAccount)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(prefixAccount)+20 {
			return nil, ErrStateCorrupted
		}
		var addr ids.ShortID
		copy(addr[:], key[len(prefixAccount):])

		u := newUnpacker(iter.Value())
		acct := token.AccountState{
			Address:  addr,
			OptedOut: u.unpackBool(),
			Shares:   u.unpackBig(),
			Tokens:   u.unpackBig(),
		}
		if u.err != nil {
			return nil, u.err
		}
		ts.Accounts = append(ts.Accounts, acct)
	}
	return ts, iter.Error()
}

func (s *Store) saveAssets(db database.Database, assets []registry.Asset) error {
	for i, asset := range assets {
		p := newPacker()
		p.packUint32(uint32(i)) // insertion order
		p.packBytes(asset.Oracle[:])
		p.packByte(byte(asset.Status))
		key := append(append([]byte{}, prefixAsset...), asset.Address[:]...)
		if err := db.Put(key, p.bytes); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadAssets() ([]registry.Asset, error) {
	type ordered struct {
		pos   uint32
		asset registry.Asset
	}
	var entries []ordered

	iter := s.db.NewIteratorWithPrefix(prefixAsset)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(prefixAsset)+20 {
			return nil, ErrStateCorrupted
		}
		var addr ids.ShortID
		copy(addr[:], key[len(prefixAsset):])

		u := newUnpacker(iter.Value())
		pos := u.unpackUint32()
		oracleBytes := u.unpackBytes()
		status := u.unpackByte()
		if u.err != nil || len(oracleBytes) != 20 {
			return nil, ErrStateCorrupted
		}
		asset := registry.Asset{
			Address: addr,
			Status:  registry.Status(status),
		}
		copy(asset.Oracle[:], oracleBytes)
		entries = append(entries, ordered{pos: pos, asset: asset})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	assets := make([]registry.Asset, len(entries))
	for _, e := range entries {
		if int(e.pos) >= len(assets) {
			return nil, ErrStateCorrupted
		}
		assets[e.pos] = e.asset
	}
	return assets, nil
}

func (s *Store) saveLedger(db database.Database, ls *redemption.State) error {
	p := newPacker()
	p.packBig(ls.CoverageRatio)
	if err := db.Put(prefixCoverage, p.bytes); err != nil {
		return err
	}

	nextID := make([]byte, 8)
	binary.BigEndian.PutUint64(nextID, ls.NextID)
	if err := db.Put(prefixNextID, nextID); err != nil {
		return err
	}

	for _, req := range ls.Requests {
		p := newPacker()
		p.packBytes(req.Account[:])
		p.packBytes(req.Asset[:])
		p.packBig(req.Amount)
		p.packBig(req.Claimed)
		p.packInt64(req.ClaimableAfter.Unix())
		p.packInt64(req.CreatedAt.Unix())

		key := make([]byte, len(prefixRequest)+8)
		copy(key, prefixRequest)
		binary.BigEndian.PutUint64(key[len(prefixRequest):], req.ID)
		if err := db.Put(key, p.bytes); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadLedger() (*redemption.State, error) {
	data, err := s.db.Get(prefixCoverage)
	if err != nil {
		return nil, err
	}
	u := newUnpacker(data)
	ls := &redemption.State{CoverageRatio: u.unpackBig()}
	if u.err != nil {
		return nil, u.err
	}

	nextID, err := s.db.Get(prefixNextID)
	if err != nil {
		return nil, err
	}
	if len(nextID) != 8 {
		return nil, ErrStateCorrupted
	}
	ls.NextID = binary.BigEndian.Uint64(nextID)

	// Keys are big-endian request ids, so iteration yields creation order.
	iter := s.db.NewIteratorWithPrefix(prefixRequest)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(prefixRequest)+8 {
			return nil, ErrStateCorrupted
		}
		req := redemption.Request{
			ID: binary.BigEndian.Uint64(key[len(prefixRequest):]),
		}

		u := newUnpacker(iter.Value())
		account := u.unpackBytes()
		asset := u.unpackBytes()
		req.Amount = u.unpackBig()
		req.Claimed = u.unpackBig()
		claimableAfter := u.unpackInt64()
		createdAt := u.unpackInt64()
		if u.err != nil || len(account) != 20 || len(asset) != 20 {
			return nil, ErrStateCorrupted
		}
		copy(req.Account[:], account)
		copy(req.Asset[:], asset)
		req.ClaimableAfter = time.Unix(claimableAfter, 0)
		req.CreatedAt = time.Unix(createdAt, 0)

		ls.Requests = append(ls.Requests, req)
	}
	return ls, iter.Error()
}

func (s *Store) saveVault(db database.Database, holdings []custody.Holding) error {
	for _, h := range holdings {
		p := newPacker()
		p.packBig(h.Balance)
		key := append(append([]byte{}, prefixVault...), h.Asset[:]...)
		if err := db.Put(key, p.bytes); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadVault() ([]custody.Holding, error) {
	var holdings []custody.Holding

	iter := s.db.NewIteratorWithPrefix(prefixVault)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) != len(prefixVault)+20 {
			return nil, ErrStateCorrupted
		}
		h := custody.Holding{}
		copy(h.Asset[:], key[len(prefixVault):])

		u := newUnpacker(iter.Value())
		h.Balance = u.unpackBig()
		if u.err != nil {
			return nil, u.err
		}
		holdings = append(holdings, h)
	}
	return holdings, iter.Error()
}
