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

// poa is a proof-of-authority header chain node: it seals blocks with local
// keys and validates headers against the epoch's authority set.
package main

import (
	"fmt"
	"os"

	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/poa/params"
)

func main() {
	defer func() {
		panicResult := recover()
		if panicResult == nil {
			return
		}

		log.Error("catch panic", "err", panicResult)
		os.Exit(1)
	}()

	if err := makeApp().Run(os.Args); err != nil {
		_, printErr := fmt.Fprintln(os.Stderr, err)
		if printErr != nil {
			log.Warn("Fprintln error", "err", printErr)
		}
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = params.ClientName
	app.Usage = "proof-of-authority sealing and validation node"
	app.Version = params.VersionWithCommit(params.GitCommit)
	app.Commands = []*cli.Command{
		&nodeCommand,
		&dumpConfigCommand,
		&genesisCommand,
		&keygenCommand,
		&verifyCommand,
		&inspectCommand,
	}
	return app
}

func defaultExtra() string {
	return params.ClientName + "/" + params.VersionWithCommit(params.GitCommit)
}
