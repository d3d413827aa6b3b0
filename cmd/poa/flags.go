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
	"github.com/urfave/cli/v2"

	"github.com/erigontech/poa/core"
	"github.com/erigontech/poa/params"
)

var (
	DataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the databases",
		Value: "poa-data",
	}
	ConfigFlag = cli.StringFlag{
		Name:  "config",
		Usage: "Sets node flags from a TOML file, explicit flags take precedence",
		Value: "",
	}
	GenesisFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "Path to the genesis JSON file (default = dev chain)",
	}
	DBCacheFlag = cli.StringFlag{
		Name:  "db.cache",
		Usage: "Block cache size of the chain database",
		Value: "64MB",
	}

	MiningEnabledFlag = cli.BoolFlag{
		Name:  "mine",
		Usage: "Enable block production",
	}
	MinerSigningKeyFileFlag = cli.StringSliceFlag{
		Name:  "miner.sigfile",
		Usage: "Private key files to sign blocks with",
	}
	MinerDevKeysFlag = cli.IntFlag{
		Name:  "miner.devkeys",
		Usage: "Number of well-known development keys to sign blocks with",
		Value: 0,
	}
	MinerExtraDataFlag = cli.StringFlag{
		Name:  "miner.extradata",
		Usage: "Block extra data vanity set by the miner (default = client version)",
	}
	MinerGasLimitFlag = cli.Uint64Flag{
		Name:  "miner.gaslimit",
		Usage: "Target gas limit for mined blocks (0 = keep the parent's)",
		Value: 0,
	}

	StrictTurnFlag = cli.BoolFlag{
		Name:  "poa.strict-turn",
		Usage: "Reject blocks sealed out of turn",
	}
	CheckpointMatchFlag = cli.BoolFlag{
		Name:  "poa.checkpoint-match",
		Usage: "Require checkpoint signer lists to equal the active authority set",
	}
	MaxFutureDriftFlag = cli.DurationFlag{
		Name:  "poa.max-drift",
		Usage: "Reject blocks further ahead of the local clock (0 = disabled)",
		Value: 0,
	}

	OutFlag = cli.StringFlag{
		Name:  "out",
		Usage: "Output file",
		Value: "genesis.json",
	}
	ChainIDFlag = cli.Uint64Flag{
		Name:  "chainid",
		Usage: "Chain id of the new network",
		Value: params.DevChainID,
	}
	PeriodFlag = cli.Uint64Flag{
		Name:  "period",
		Usage: "Seconds between blocks",
		Value: params.DevPeriod,
	}
	EpochFlag = cli.Uint64Flag{
		Name:  "epoch",
		Usage: "Blocks between signer list checkpoints",
		Value: params.DefaultEpoch,
	}
	SignersFlag = cli.StringSliceFlag{
		Name:  "signers",
		Usage: "Comma separated signer addresses in turn order (default = dev signers)",
	}
	GasLimitFlag = cli.Uint64Flag{
		Name:  "gaslimit",
		Usage: "Genesis block gas limit",
		Value: core.DefaultGasLimit,
	}
)

// nodeFlags are the flags a config file may set.
var nodeFlags = []cli.Flag{
	&DataDirFlag,
	&ConfigFlag,
	&GenesisFlag,
	&DBCacheFlag,
	&MiningEnabledFlag,
	&MinerSigningKeyFileFlag,
	&MinerDevKeysFlag,
	&MinerExtraDataFlag,
	&MinerGasLimitFlag,
	&StrictTurnFlag,
	&CheckpointMatchFlag,
	&MaxFutureDriftFlag,
}

var policyFlags = []cli.Flag{
	&StrictTurnFlag,
	&CheckpointMatchFlag,
	&MaxFutureDriftFlag,
}
