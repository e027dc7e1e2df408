// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// shelld is a standalone binary for local development: it loads node
// configuration, applies a genesis document to an in-memory storage
// substrate, and registers the metrics collectors. It does not construct
// or drive a Shell, and no consensus front-end is attached.
package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/ledgerd/shellcore/config"
	"github.com/ledgerd/shellcore/logging"
	"github.com/ledgerd/shellcore/metrics"
	"github.com/ledgerd/shellcore/storage"
)

const clientIdentifier = "shelld"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "Ledgerd execution-core node: init/start/reset a shell instance",
	Version: "0.1.0",
}

func init() {
	app.Commands = []*cli.Command{
		initCommand,
		startCommand,
		resetCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadNodeConfig(ctx *cli.Context) (config.Node, error) {
	fs := pflag.NewFlagSet(clientIdentifier, pflag.ContinueOnError)
	config.BindFlags(fs)
	args := ctx.Args().Slice()
	if err := fs.Parse(args); err != nil {
		return config.Node{}, err
	}
	return config.Load(viper.New(), fs)
}

var initCommand = &cli.Command{
	Name:      "init",
	Usage:     "apply a genesis document to an in-memory store (nothing is written to the data directory)",
	ArgsUsage: "<genesis.yaml> [flags]",
	Action: func(ctx *cli.Context) error {
		node, err := loadNodeConfig(ctx)
		if err != nil {
			return err
		}
		path := node.GenesisPath
		if ctx.Args().Len() > 0 {
			path = ctx.Args().First()
		}
		if path == "" {
			return cli.Exit("shelld init: no genesis document given (use --genesis or a positional arg)", 1)
		}

		g, err := config.LoadGenesis(path)
		if err != nil {
			return err
		}

		store := storage.NewMem(0)
		if err := config.Apply(g, store); err != nil {
			return err
		}
		logging.Info("genesis applied", "chain_id", g.ChainID, "accounts", len(g.Accounts))
		return nil
	},
}

var startCommand = &cli.Command{
	Name:  "start",
	Usage: "validate configuration and register metrics collectors (no listener is started)",
	Action: func(ctx *cli.Context) error {
		node, err := loadNodeConfig(ctx)
		if err != nil {
			return err
		}
		reg := prometheus.NewRegistry()
		metrics.New(reg)
		logging.Info("shelld starting",
			"data_dir", node.DataDir,
			"metrics_addr", node.MetricsAddr,
			"eventsub_addr", node.EventSubAddr,
			"per_tx_gas_limit", node.PerTxGasLimit,
			"per_block_gas_limit", node.PerBlockLimit,
		)
		return cli.Exit("shelld start: wiring a live consensus front-end is outside this core's scope; this command only validates configuration and registers collectors", 0)
	},
}

var resetCommand = &cli.Command{
	Name:      "reset",
	Usage:     "remove the configured storage directory (no reset is signalled to the consensus front-end)",
	ArgsUsage: "[flags]",
	Action: func(ctx *cli.Context) error {
		node, err := loadNodeConfig(ctx)
		if err != nil {
			return err
		}
		if node.DataDir == "" {
			return cli.Exit("shelld reset: --data-dir is required", 1)
		}
		if err := os.RemoveAll(node.DataDir); err != nil {
			return fmt.Errorf("shelld reset: removing %s: %w", node.DataDir, err)
		}
		logging.Info("data directory reset; the consensus front-end must be restarted to pick up a fresh chain", "data_dir", node.DataDir)
		return nil
	},
}
