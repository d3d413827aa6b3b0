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
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/core"
	"github.com/erigontech/poa/crypto"
)

var genesisCommand = cli.Command{
	Action: writeGenesis,
	Name:   "genesis",
	Usage:  "Write a development genesis JSON file",
	Flags: []cli.Flag{
		&OutFlag,
		&ChainIDFlag,
		&PeriodFlag,
		&EpochFlag,
		&SignersFlag,
		&GasLimitFlag,
	},
	Description: `
The genesis command writes a genesis file with every development account
prefunded. The signer list is embedded in the extra-data of the genesis block.`,
}

var keygenCommand = cli.Command{
	Action: generateKey,
	Name:   "keygen",
	Usage:  "Generate a signing key and print its address",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "out",
			Usage: "Write the hex encoded key to this file instead of printing it",
		},
	},
}

func writeGenesis(cliCtx *cli.Context) error {
	signers := keystore.DevSigners()
	if cliCtx.IsSet(SignersFlag.Name) {
		var err error
		if signers, err = parseAddresses(cliCtx.StringSlice(SignersFlag.Name)); err != nil {
			return err
		}
	}
	builder := core.DevGenesisBuilder().
		WithChainID(cliCtx.Uint64(ChainIDFlag.Name)).
		WithPeriod(cliCtx.Uint64(PeriodFlag.Name)).
		WithEpoch(cliCtx.Uint64(EpochFlag.Name)).
		WithSigners(signers)
	builder.GasLimit = cliCtx.Uint64(GasLimitFlag.Name)

	genesis, err := builder.Build()
	if err != nil {
		return err
	}
	out := cliCtx.String(OutFlag.Name)
	if err := core.WriteGenesisFile(out, genesis); err != nil {
		return err
	}
	fmt.Fprintf(cliCtx.App.Writer, "Wrote genesis %x to %s (%d signers, period %ds, epoch %d)\n",
		core.GenesisToHeader(genesis).Hash(), out, len(signers), builder.Period, builder.Epoch)
	return nil
}

func generateKey(cliCtx *cli.Context) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if out := cliCtx.String("out"); out != "" {
		if err := crypto.SaveECDSA(out, key); err != nil {
			return err
		}
		fmt.Fprintf(cliCtx.App.Writer, "Address: %s\nKey file: %s\n", addr, out)
		return nil
	}
	fmt.Fprintf(cliCtx.App.Writer, "Address: %s\nPrivate key: %s\n", addr, hex.EncodeToString(crypto.FromECDSA(key)))
	return nil
}
