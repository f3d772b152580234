// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// stabled runs the stablecoin engine as a standalone daemon serving the
// JSON-RPC API.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/spf13/cobra"

	"github.com/luxfi/stablecoin/api"
	"github.com/luxfi/stablecoin/config"
	"github.com/luxfi/stablecoin/custody"
	"github.com/luxfi/stablecoin/minter"
	"github.com/luxfi/stablecoin/oracle"
	"github.com/luxfi/stablecoin/redemption"
	"github.com/luxfi/stablecoin/registry"
	"github.com/luxfi/stablecoin/state"
	"github.com/luxfi/stablecoin/token"
	"github.com/luxfi/stablecoin/utils/timer/mockable"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		dbDir        string
		httpAddr     string
		ownerStr     string
		claimDelay   time.Duration
		saveInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stabled",
		Short: "Run the stablecoin engine daemon",
		RunE: func(*cobra.Command, []string) error {
			return run(dbDir, httpAddr, ownerStr, claimDelay, saveInterval)
		},
	}
	cmd.Flags().StringVar(&dbDir, "db-dir", "stabled-db", "database directory")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":9650", "HTTP listen address")
	cmd.Flags().StringVar(&ownerStr, "owner", "", "owner address (also admin, whitelister, custodian, rebase manager)")
	cmd.Flags().DurationVar(&claimDelay, "claim-delay", config.DefaultConfig().ClaimDelay, "redemption claim delay")
	cmd.Flags().DurationVar(&saveInterval, "save-interval", time.Minute, "state snapshot interval")
	return cmd
}

func run(dbDir, httpAddr, ownerStr string, claimDelay, saveInterval time.Duration) error {
	logger := log.Root()

	cfg := config.DefaultConfig()
	cfg.ClaimDelay = claimDelay
	if ownerStr != "" {
		owner, err := ids.ShortFromString(ownerStr)
		if err != nil {
			return fmt.Errorf("invalid owner address: %w", err)
		}
		cfg.Owner = owner
		cfg.Admin = owner
		cfg.Whitelister = owner
		cfg.Custodian = owner
		cfg.RebaseManager = owner
		cfg.FeeCollector = owner
	}

	db, err := badgerdb.New(dbDir, nil, "", nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	tok := token.New(&cfg, logger)
	reg := registry.New(&cfg, logger)
	ledger := redemption.NewLedger(logger)
	vault := custody.NewVault()
	clock := &mockable.Clock{}

	store := state.New(db)
	snap, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if snap != nil {
		tok.RestoreState(snap.Token)
		reg.RestoreState(snap.Assets)
		ledger.RestoreState(snap.Ledger)
		vault.RestoreState(snap.Vault)
		logger.Info("state restored", "accounts", len(snap.Token.Accounts), "requests", len(snap.Ledger.Requests))
	}

	m, err := minter.New(&cfg, tok, reg, ledger, oracle.NewSimplePriceOracle(), vault, clock, metric.NewRegistry(), logger)
	if err != nil {
		return fmt.Errorf("failed to wire engine: %w", err)
	}

	handler, err := api.NewHandler(m)
	if err != nil {
		return err
	}

	save := func() {
		err := store.Save(&state.Snapshot{
			Token:  tok.ExportState(),
			Assets: reg.ExportState(),
			Ledger: ledger.ExportState(),
			Vault:  vault.ExportState(),
		})
		if err != nil {
			logger.Error("state snapshot failed", "error", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	httpServer := &http.Server{Addr: httpAddr, Handler: handler}
	go func() {
		logger.Info("serving", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop <- syscall.SIGTERM
		}
	}()

	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			save()
		case <-stop:
			logger.Info("shutting down")
			save()
			return httpServer.Close()
		}
	}
}
