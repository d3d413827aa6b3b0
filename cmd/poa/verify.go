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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/poa/consensus/poa"
	"github.com/erigontech/poa/core"
	"github.com/erigontech/poa/core/rawdb"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/params"
	"github.com/erigontech/poa/turbo/logging"
)

const scratchCache = 16 * datasize.MB

var verifyCommand = cli.Command{
	Action:    verifyChain,
	Name:      "verify",
	Usage:     "Validate a JSON array of headers against a genesis",
	ArgsUsage: "<headersPath>",
	Flags:     append(append([]cli.Flag{&GenesisFlag}, policyFlags...), logging.Flags...),
	Description: `
The verify command imports the headers into a scratch database on top of the
genesis (--genesis, default dev chain) and exits with a non-zero status at the
first header the consensus rules reject.`,
}

var inspectCommand = cli.Command{
	Action:    inspectHeaders,
	Name:      "inspect",
	Usage:     "Print seal hash, signer and turn of headers",
	ArgsUsage: "<headersPath>",
	Flags:     []cli.Flag{&GenesisFlag},
}

// readHeaders decodes a JSON header or an array of them.
func readHeaders(path string) ([]*types.Header, error) {
	if path == "" {
		return nil, errors.New("must supply path to headers JSON file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var headers []*types.Header
		if err := json.Unmarshal(data, &headers); err != nil {
			return nil, fmt.Errorf("invalid headers file %s: %w", path, err)
		}
		for i, header := range headers {
			if header == nil || header.Number == nil {
				return nil, fmt.Errorf("invalid headers file %s: entry %d has no block number", path, i)
			}
		}
		return headers, nil
	}
	header := new(types.Header)
	if err := json.Unmarshal(data, header); err != nil {
		return nil, fmt.Errorf("invalid headers file %s: %w", path, err)
	}
	return []*types.Header{header}, nil
}

func loadGenesis(cliCtx *cli.Context) (*types.Genesis, error) {
	if path := cliCtx.String(GenesisFlag.Name); path != "" {
		return core.ReadGenesis(path)
	}
	return core.DevGenesisBlock(), nil
}

func verifyChain(cliCtx *cli.Context) error {
	logger := logging.SetupLoggerCtx("poa-verify", cliCtx)

	headers, err := readHeaders(cliCtx.Args().First())
	if err != nil {
		return err
	}
	types.SortHeadersAsc(headers)
	genesis, err := loadGenesis(cliCtx)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "poa-verify-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	db, err := rawdb.Open(dir, scratchCache, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	config, _, err := core.WriteGenesisBlock(db, genesis, logger)
	if err != nil {
		return err
	}
	policy := poa.Policy{
		StrictTurn:          cliCtx.Bool(StrictTurnFlag.Name),
		CheckpointMustMatch: cliCtx.Bool(CheckpointMatchFlag.Name),
		MaxFutureDrift:      cliCtx.Duration(MaxFutureDriftFlag.Name),
	}
	engine, err := poa.New(config, rawdb.NewSnapshotStore(db), policy, logger)
	if err != nil {
		return err
	}
	defer engine.Close()
	chain, err := core.NewHeaderChain(db, config, engine, logger)
	if err != nil {
		return err
	}

	n, err := chain.InsertHeaders(context.Background(), headers)
	if err != nil {
		if n < len(headers) {
			verdict := "rejected"
			if !poa.IsValidationError(err) {
				verdict = "not imported"
			}
			return fmt.Errorf("header %d (#%v %x) %s: %w", n, headers[n].Number, headers[n].Hash(), verdict, err)
		}
		return err
	}
	head := chain.CurrentHeader()
	fmt.Fprintf(cliCtx.App.Writer, "Verified %d headers, head #%d %x\n", n, head.Number.Uint64(), head.Hash())
	return nil
}

func inspectHeaders(cliCtx *cli.Context) error {
	headers, err := readHeaders(cliCtx.Args().First())
	if err != nil {
		return err
	}
	genesis, err := loadGenesis(cliCtx)
	if err != nil {
		return err
	}
	signers, err := core.GenesisSigners(genesis)
	if err != nil {
		return err
	}
	conf := genesis.Config.Clique
	if conf == nil {
		conf = params.DefaultPoAConfig()
	}
	epoch := conf.Epoch
	if epoch == 0 {
		epoch = params.DefaultEpoch
	}
	set, err := poa.NewAuthoritySet(signers, conf.Period, epoch)
	if err != nil {
		return err
	}

	w := cliCtx.App.Writer
	for _, header := range headers {
		if header.Number == nil {
			return errors.New("header without number")
		}
		number := header.Number.Uint64()
		fmt.Fprintf(w, "#%d hash=%x sealhash=%x difficulty=%v", number, header.Hash(), poa.SealHash(header), header.Difficulty)
		signer, err := poa.RecoverSigner(header)
		if err != nil {
			fmt.Fprintf(w, " signer=unknown err=%q\n", err)
		} else {
			fmt.Fprintf(w, " signer=%s authorized=%t inturn=%t\n", signer, set.IsAuthorized(signer), set.IsInTurn(number, signer))
		}
		if number > 0 && set.IsEpochBoundary(number) {
			if list, err := poa.ExtractSigners(header.Extra); err == nil && len(list) > 0 {
				if next, err := set.WithSigners(list); err == nil {
					set = next
					fmt.Fprintf(w, "  checkpoint: %d signers for the next epoch\n", set.Len())
				}
			}
		}
	}
	return nil
}
