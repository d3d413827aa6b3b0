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
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/consensus/poa"
	"github.com/erigontech/poa/core"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/crypto"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := makeApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"poa"}, args...))
	return out.String(), err
}

// sealedChain returns n in-turn headers on top of the dev genesis.
func sealedChain(t *testing.T, n int) []*types.Header {
	t.Helper()
	ks, err := keystore.NewDevKeyStore(keystore.DevSignerCount)
	require.NoError(t, err)
	sealer := poa.NewSealer(ks)
	signers := keystore.DevSigners()

	genesis := core.DevGenesisBlock()
	parent := core.GenesisToHeader(genesis)
	headers := make([]*types.Header, 0, n)
	for i := 0; i < n; i++ {
		number := parent.Number.Uint64() + 1
		h := &types.Header{
			ParentHash:  parent.Hash(),
			UncleHash:   types.EmptyUncleHash,
			Root:        parent.Root,
			TxHash:      types.EmptyRootHash,
			ReceiptHash: types.EmptyRootHash,
			Number:      new(big.Int).SetUint64(number),
			GasLimit:    parent.GasLimit,
			Time:        parent.Time + genesis.Config.Clique.Period,
			Difficulty:  new(big.Int).Set(poa.DiffInTurn),
			Extra:       poa.BuildExtra([]byte("cli test"), nil),
			BaseFee:     new(big.Int).Set(parent.BaseFee),
		}
		sealed, err := sealer.Seal(h, signers[number%uint64(len(signers))])
		require.NoError(t, err)
		headers = append(headers, sealed)
		parent = sealed
	}
	return headers
}

func writeHeaders(t *testing.T, headers []*types.Header) string {
	t.Helper()
	data, err := json.Marshal(headers)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "headers.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestGenesisCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	signers := []string{
		"0x1000000000000000000000000000000000000001",
		"0x2000000000000000000000000000000000000002",
	}
	out, err := runApp(t, "genesis", "--out", path, "--period", "5", "--epoch", "10", "--signers", strings.Join(signers, ","))
	require.NoError(t, err)
	assert.Contains(t, out, "2 signers")

	genesis, err := core.ReadGenesis(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), genesis.Config.Clique.Period)
	assert.Equal(t, uint64(10), genesis.Config.Clique.Epoch)
	list, err := core.GenesisSigners(genesis)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress(signers[0]), common.HexToAddress(signers[1])}, list)

	_, err = runApp(t, "genesis", "--out", path, "--signers", "nope")
	require.ErrorContains(t, err, "invalid address")
}

func TestKeygenCommand(t *testing.T) {
	out, err := runApp(t, "keygen")
	require.NoError(t, err)
	assert.Contains(t, out, "Address: 0x")
	assert.Contains(t, out, "Private key: ")

	path := filepath.Join(t.TempDir(), "key")
	out, err = runApp(t, "keygen", "--out", path)
	require.NoError(t, err)
	key, err := crypto.LoadECDSA(path)
	require.NoError(t, err)
	assert.Contains(t, out, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestVerifyCommand(t *testing.T) {
	headers := sealedChain(t, 4)

	out, err := runApp(t, "verify", writeHeaders(t, headers))
	require.NoError(t, err)
	assert.Contains(t, out, "Verified 4 headers")

	// Touching a sealed field breaks the signature
	bad := types.CopyHeader(headers[2])
	bad.Difficulty = new(big.Int).Set(poa.DiffNoTurn)
	_, err = runApp(t, "verify", writeHeaders(t, []*types.Header{headers[0], headers[1], bad}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header 2")

	_, err = runApp(t, "verify", writeHeaders(t, []*types.Header{headers[0], nil}))
	require.ErrorContains(t, err, "invalid headers file")

	_, err = runApp(t, "verify")
	require.ErrorContains(t, err, "must supply path")
}

func TestInspectCommand(t *testing.T) {
	headers := sealedChain(t, 2)
	out, err := runApp(t, "inspect", writeHeaders(t, headers))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "#1 ")
	assert.Contains(t, lines[0], "signer="+keystore.DevSigners()[1].Hex())
	assert.Contains(t, lines[0], "authorized=true inturn=true")

	// A single header object is accepted too
	data, err := json.Marshal(headers[1])
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "header.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	out, err = runApp(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "#2 ")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
datadir = "from-file"
mine = true
"poa.max-drift" = "5s"

[miner]
devkeys = 3
sigfile = ["a.key", "b.key"]
`), 0o644))

	out, err := runApp(t, "dumpconfig", "--config", path, "--datadir", filepath.Join(dir, "from-flag"))
	require.NoError(t, err)

	var cfg nodeConfig
	require.NoError(t, toml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, filepath.Join(dir, "from-flag"), cfg.DataDir)
	assert.True(t, cfg.Mine)
	assert.Equal(t, 3, cfg.DevKeys)
	assert.Equal(t, []string{"a.key", "b.key"}, cfg.SigFiles)
	assert.Equal(t, "5s", cfg.MaxFutureDriftText)
	assert.Equal(t, "64MB", cfg.DBCache)

	_, err = runApp(t, "dumpconfig", "--config", filepath.Join(dir, "node.yaml"))
	require.Error(t, err)
}

func TestNodeConfig(t *testing.T) {
	cfg := &nodeConfig{DBCache: "32MB", DevKeys: 2, MaxFutureDrift: 3 * time.Second, StrictTurn: true}
	size, err := cfg.cacheSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(32<<20), size.Bytes())

	policy := cfg.policy()
	assert.True(t, policy.StrictTurn)
	assert.Equal(t, 3*time.Second, policy.MaxFutureDrift)

	ks, err := cfg.keyStore()
	require.NoError(t, err)
	assert.Equal(t, 2, ks.Len())

	cfg.SigFiles = []string{filepath.Join(t.TempDir(), "missing")}
	_, err = cfg.keyStore()
	require.ErrorIs(t, err, keystore.ErrInvalidCredential)

	assert.True(t, strings.HasPrefix(string(cfg.extra()), "poa/"))
	cfg.DBCache = "lots"
	_, err = cfg.cacheSize()
	require.Error(t, err)
}
