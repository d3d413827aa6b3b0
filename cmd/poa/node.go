// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/poa/consensus/poa"
	"github.com/erigontech/poa/core"
	"github.com/erigontech/poa/core/rawdb"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/miner"
	"github.com/erigontech/poa/params"
	"github.com/erigontech/poa/turbo/debug"
	"github.com/erigontech/poa/turbo/logging"
)

var nodeCommand = cli.Command{
	Action: runNode,
	Name:   "node",
	Usage:  "Run the node, producing blocks when --mine is set",
	Flags:  append(append(append([]cli.Flag{}, nodeFlags...), logging.Flags...), debug.Flags...),
	Description: `
The node command opens (or initializes) the chain database under --datadir and,
with --mine, produces blocks with the local keys whenever one of them is
authorized for the next slot.`,
}

var dumpConfigCommand = cli.Command{
	Action:    dumpConfig,
	Name:      "dumpconfig",
	Usage:     "Print the effective node configuration as TOML",
	ArgsUsage: "",
	Flags:     append(append(append([]cli.Flag{}, nodeFlags...), logging.Flags...), debug.Flags...),
}

// closer adapts a cancel function to io.Closer for the signal listener.
type closer func()

func (c closer) Close() error {
	c()
	return nil
}

func runNode(cliCtx *cli.Context) error {
	if configFilePath := cliCtx.String(ConfigFlag.Name); configFilePath != "" {
		if err := setFlagsFromConfigFile(cliCtx, configFilePath); err != nil {
			return fmt.Errorf("failed setting config flags from toml file: %w", err)
		}
	}
	logger, err := debug.Setup("poa", cliCtx)
	if err != nil {
		return err
	}
	defer debug.Exit()

	logger.Info("Build info", "git_branch", params.GitBranch, "git_tag", params.GitTag, "git_commit", params.GitCommit)

	cfg, err := newNodeConfig(cliCtx)
	if err != nil {
		return err
	}
	cache, _ := cfg.cacheSize()
	db, err := rawdb.Open(cfg.chaindata(), cache, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var genesis *types.Genesis
	if cfg.Genesis != "" {
		if genesis, err = core.ReadGenesis(cfg.Genesis); err != nil {
			return err
		}
	}
	chainConfig, genesisHeader, err := core.WriteGenesisBlock(db, genesis, logger)
	if err != nil {
		return err
	}

	engine, err := poa.New(chainConfig, rawdb.NewSnapshotStore(db), cfg.policy(), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	chain, err := core.NewHeaderChain(db, chainConfig, engine, logger)
	if err != nil {
		return err
	}
	var snapshots, latest uint64
	if err := rawdb.WalkPoASnapshots(db, 0, func(number uint64, _ common.Hash, _ []byte) error {
		snapshots, latest = snapshots+1, number
		return nil
	}); err != nil {
		return err
	}
	logger.Debug("Stored authority snapshots", "count", snapshots, "latest", latest)

	head := chain.CurrentHeader()
	logger.Info("Initialised chain configuration", "config", chainConfig, "genesis", genesisHeader.Hash(),
		"head", head.Number, "hash", head.Hash())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debug.ListenSignals(closer(cancel), logger)

	if !cfg.Mine {
		logger.Info("Block production disabled, waiting for interrupt")
		<-ctx.Done()
		return nil
	}
	keys, err := cfg.keyStore()
	if err != nil {
		return err
	}
	for _, addr := range keys.List() {
		logger.Info("Loaded signing key", "address", addr)
	}
	producer := miner.New(miner.Config{Extra: cfg.extra(), GasLimit: cfg.GasLimit}, chain, engine, keys,
		engine.Config().Period, logger)
	return producer.Run(ctx)
}

func dumpConfig(cliCtx *cli.Context) error {
	if configFilePath := cliCtx.String(ConfigFlag.Name); configFilePath != "" {
		if err := setFlagsFromConfigFile(cliCtx, configFilePath); err != nil {
			return err
		}
	}
	cfg, err := newNodeConfig(cliCtx)
	if err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = cliCtx.App.Writer.Write(out)
	return err
}
