// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json"

	"github.com/luxfi/stablecoin/minter"
)

// NewHandler builds the HTTP handler for the engine: the JSON-RPC endpoint
// under /rpc and a plain health probe under /health.
func NewHandler(m *minter.Minter) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	server.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")

	if err := server.RegisterService(NewService(m), "stablecoin"); err != nil {
		return nil, fmt.Errorf("failed to register stablecoin service: %w", err)
	}

	router := mux.NewRouter()
	router.Handle("/rpc", server)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","totalSupply":%q}`, m.Token().TotalSupply())
	})
	return router, nil
}
