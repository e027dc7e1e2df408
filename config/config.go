// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads this core's node configuration (storage
// location, gas limits, worker pool size, listener addresses) via
// viper+pflag, mirroring the teacher pack's CLI/config wiring
// (cmd/evm-node flags bound through spf13/pflag and read back with
// spf13/cast-assisted accessors).
package config

import (
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ledgerd/shellcore/gas"
)

// Node holds every knob the shell binary needs at startup.
type Node struct {
	DataDir       string
	ChainID       string
	GenesisPath   string
	PerTxGasLimit uint64
	PerBlockLimit uint64
	VPWorkers     int
	MetricsAddr   string
	EventSubAddr  string
	RequestQueue  int
	ShutdownGrace time.Duration
}

// BindFlags registers every Node flag on fs, so a cmd/shelld command
// can compose this alongside its own urfave/cli flags or a bare
// pflag.FlagSet in tests.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("data-dir", "./data", "directory the storage substrate persists to")
	fs.String("chain-id", "", "chain id of the network (loaded into Node.ChainID; not written to storage)")
	fs.String("genesis", "", "path to a genesis YAML document")
	fs.Uint64("per-tx-gas-limit", gas.DefaultPerTxLimit, "gas limit for a single transaction")
	fs.Uint64("per-block-gas-limit", gas.DefaultPerBlockLimit, "gas limit accumulated across one block")
	fs.Int("vp-workers", 0, "bound on concurrent VP goroutines; 0 means unbounded")
	fs.String("metrics-addr", ":9100", "listen address for the Prometheus metrics endpoint")
	fs.String("eventsub-addr", ":9200", "listen address for the event subscription WebSocket hub")
	fs.Int("request-queue", 256, "bound on the shell's request mailbox")
	fs.Duration("shutdown-grace", 5*time.Second, "time allowed for in-flight requests to drain on shutdown")
}

// Load reads bound flags (and any matching environment variables,
// prefixed SHELLCORE_) from v into a Node.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Node, error) {
	if err := v.BindPFlags(fs); err != nil {
		return Node{}, err
	}
	v.SetEnvPrefix("SHELLCORE")
	v.AutomaticEnv()

	return Node{
		DataDir:       v.GetString("data-dir"),
		ChainID:       v.GetString("chain-id"),
		GenesisPath:   v.GetString("genesis"),
		PerTxGasLimit: cast.ToUint64(v.Get("per-tx-gas-limit")),
		PerBlockLimit: cast.ToUint64(v.Get("per-block-gas-limit")),
		VPWorkers:     v.GetInt("vp-workers"),
		MetricsAddr:   v.GetString("metrics-addr"),
		EventSubAddr:  v.GetString("eventsub-addr"),
		RequestQueue:  v.GetInt("request-queue"),
		ShutdownGrace: v.GetDuration("shutdown-grace"),
	}, nil
}
