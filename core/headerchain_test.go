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

package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/consensus"
	"github.com/erigontech/poa/consensus/poa"
	"github.com/erigontech/poa/core/rawdb"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/crypto"
	"github.com/erigontech/poa/params"
)

type chainEnv struct {
	db      *rawdb.DB
	ks      *keystore.KeyStore
	signers []common.Address
	config  *params.ChainConfig
	engine  *poa.Engine
	chain   *HeaderChain
}

func openTestDB(t *testing.T, dir string) *rawdb.DB {
	t.Helper()
	db, err := rawdb.Open(dir, 8*datasize.MB, log.New())
	require.NoError(t, err)
	return db
}

func newChainEnv(t *testing.T, dir string, epoch uint64) *chainEnv {
	t.Helper()
	ks, err := keystore.NewDevKeyStore(5)
	require.NoError(t, err)

	genesis, err := DevGenesisBuilder().WithEpoch(epoch).Build()
	require.NoError(t, err)

	db := openTestDB(t, dir)
	config, _, err := WriteGenesisBlock(db, genesis, log.New())
	require.NoError(t, err)

	engine, err := poa.New(config, rawdb.NewSnapshotStore(db), poa.Policy{}, log.New())
	require.NoError(t, err)
	chain, err := NewHeaderChain(db, config, engine, log.New())
	require.NoError(t, err)

	return &chainEnv{db: db, ks: ks, signers: keystore.DevSigners(), config: config, engine: engine, chain: chain}
}

func (env *chainEnv) close() {
	env.engine.Close()
	env.db.Close()
}

// makeHeaders builds n sealed headers on top of parent. offset shifts the
// signer rotation, any non zero offset produces an out-of-turn chain.
func (env *chainEnv) makeHeaders(t *testing.T, parent *types.Header, n int, offset int) []*types.Header {
	t.Helper()
	sealer := poa.NewSealer(env.ks)
	epoch := env.config.Clique.Epoch
	headers := make([]*types.Header, 0, n)
	for i := 0; i < n; i++ {
		number := parent.Number.Uint64() + 1
		signer := env.signers[(int(number)+offset)%len(env.signers)]
		difficulty := poa.DiffInTurn
		if offset%len(env.signers) != 0 {
			difficulty = poa.DiffNoTurn
		}
		h := &types.Header{
			ParentHash: parent.Hash(),
			UncleHash:  types.EmptyUncleHash,
			Root:       parent.Root,
			TxHash:     types.EmptyRootHash,
			Number:     new(big.Int).SetUint64(number),
			GasLimit:   parent.GasLimit,
			Time:       parent.Time + env.config.Clique.Period,
			Difficulty: new(big.Int).Set(difficulty),
			Extra:      poa.BuildExtra(nil, nil),
			BaseFee:    new(big.Int).Set(parent.BaseFee),
		}
		if number%epoch == 0 {
			h.Extra = poa.BuildExtra(nil, env.signers)
		}
		sealed, err := sealer.Seal(h, signer)
		require.NoError(t, err)
		headers = append(headers, sealed)
		parent = sealed
	}
	return headers
}

func TestWriteGenesisBlock(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	genesis := DevGenesisBlock()
	config, header, err := WriteGenesisBlock(db, genesis, log.New())
	require.NoError(t, err)
	assert.Equal(t, GenesisToHeader(genesis).Hash(), header.Hash())
	assert.Equal(t, header.Hash(), rawdb.ReadHeadHeaderHash(db))
	assert.Equal(t, params.DevPeriod, config.Clique.Period)

	// Same genesis again is a no-op
	_, again, err := WriteGenesisBlock(db, genesis, log.New())
	require.NoError(t, err)
	assert.Equal(t, header.Hash(), again.Hash())

	// Nil genesis accepts what is stored
	stored, again, err := WriteGenesisBlock(db, nil, log.New())
	require.NoError(t, err)
	assert.Equal(t, header.Hash(), again.Hash())
	assert.Equal(t, 0, stored.ChainID.Cmp(config.ChainID))

	other, err := DevGenesisBuilder().WithChainID(1).WithPeriod(7).Build()
	require.NoError(t, err)
	_, _, err = WriteGenesisBlock(db, other, log.New())
	var mismatch *types.GenesisMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, header.Hash(), mismatch.Stored)
}

func TestWriteGenesisBlockDefaultsToDev(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	config, header, err := WriteGenesisBlock(db, nil, log.New())
	require.NoError(t, err)
	assert.Equal(t, uint64(params.DevChainID), config.ChainID.Uint64())
	assert.Equal(t, GenesisToHeader(DevGenesisBlock()).Hash(), header.Hash())

	_, _, err = WriteGenesisBlock(db, &types.Genesis{}, log.New())
	require.ErrorIs(t, err, types.ErrGenesisNoConfig)
}

func TestNewHeaderChainWithoutGenesis(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	_, err := NewHeaderChain(db, params.NewChainConfig(1, params.DefaultPoAConfig()), nil, log.New())
	require.ErrorIs(t, err, ErrNoGenesis)
}

func TestInsertHeaders(t *testing.T) {
	dir := t.TempDir()
	env := newChainEnv(t, dir, 4)

	headers := env.makeHeaders(t, env.chain.Genesis(), 10, 0)
	n, err := env.chain.InsertHeaders(context.Background(), headers)
	require.NoError(t, err)
	assert.Equal(t, len(headers), n)

	head := env.chain.CurrentHeader()
	assert.Equal(t, uint64(10), head.Number.Uint64())
	assert.Equal(t, headers[9].Hash(), head.Hash())
	for _, h := range headers {
		assert.Equal(t, h.Hash(), env.chain.GetHeaderByNumber(h.Number.Uint64()).Hash())
		assert.NotNil(t, env.chain.GetHeaderByHash(h.Hash()))
		assert.NotNil(t, env.chain.GetHeader(h.Hash(), h.Number.Uint64()))
	}
	assert.Nil(t, env.chain.GetHeaderByNumber(11))

	// Checkpoints crossed by the batch got persisted
	for _, number := range []uint64{0, 4, 8} {
		hash := env.chain.GetHeaderByNumber(number).Hash()
		blob, err := rawdb.ReadPoASnapshot(env.db, number, hash)
		require.NoError(t, err)
		assert.NotNil(t, blob, "snapshot %d", number)
	}

	// Reinserting known headers is harmless
	n, err = env.chain.InsertHeaders(context.Background(), headers[5:])
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, headers[9].Hash(), env.chain.CurrentHeader().Hash())

	// The head survives a restart
	env.close()
	db := openTestDB(t, dir)
	defer db.Close()
	config, _, err := WriteGenesisBlock(db, nil, log.New())
	require.NoError(t, err)
	chain, err := NewHeaderChain(db, config, nil, log.New())
	require.NoError(t, err)
	assert.Equal(t, headers[9].Hash(), chain.CurrentHeader().Hash())
}

func TestInsertHeadersStopsAtInvalid(t *testing.T) {
	env := newChainEnv(t, t.TempDir(), 30000)
	defer env.close()

	headers := env.makeHeaders(t, env.chain.Genesis(), 6, 0)

	// Re-seal block 5 with a key outside the authority set
	outsider, err := crypto.HexToECDSA(keystore.DevKeys[4])
	require.NoError(t, err)
	forged, err := poa.NewSealer(env.ks).Seal(headers[4], crypto.PubkeyToAddress(outsider.PublicKey))
	require.NoError(t, err)
	headers[4] = forged
	headers[5].ParentHash = forged.Hash()

	n, err := env.chain.InsertHeaders(context.Background(), headers)
	require.Error(t, err)
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, consensus.ErrRejected)
	assert.ErrorIs(t, err, poa.ErrUnauthorizedSigner)
	assert.Equal(t, uint64(4), env.chain.CurrentHeader().Number.Uint64())
	assert.Nil(t, env.chain.GetHeaderByHash(forged.Hash()))
}

func TestInsertHeadersLinkage(t *testing.T) {
	env := newChainEnv(t, t.TempDir(), 30000)
	defer env.close()

	headers := env.makeHeaders(t, env.chain.Genesis(), 4, 0)

	n, err := env.chain.InsertHeaders(context.Background(), []*types.Header{headers[0], headers[2]})
	require.ErrorIs(t, err, ErrNonContiguous)
	assert.Equal(t, 1, n)

	_, err = env.chain.InsertHeaders(context.Background(), headers[1:])
	require.ErrorIs(t, err, errChainNotLinked)

	n, err = env.chain.InsertHeaders(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(0), env.chain.CurrentHeader().Number.Uint64())
}

func TestInsertHeadersWithoutNumber(t *testing.T) {
	env := newChainEnv(t, t.TempDir(), 30000)
	defer env.close()

	headers := env.makeHeaders(t, env.chain.Genesis(), 3, 0)
	noNumber := types.CopyHeader(headers[1])
	noNumber.Number = nil

	n, err := env.chain.InsertHeaders(context.Background(), []*types.Header{headers[0], noNumber, headers[2]})
	require.ErrorIs(t, err, errMissingNumber)
	assert.Equal(t, 1, n)

	n, err = env.chain.InsertHeaders(context.Background(), []*types.Header{headers[0], nil})
	require.ErrorIs(t, err, errMissingNumber)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(0), env.chain.CurrentHeader().Number.Uint64())
}

func TestInsertHeadersCancelled(t *testing.T) {
	env := newChainEnv(t, t.TempDir(), 30000)
	defer env.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := env.chain.InsertHeaders(ctx, env.makeHeaders(t, env.chain.Genesis(), 3, 0))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestSideChainReorg(t *testing.T) {
	env := newChainEnv(t, t.TempDir(), 30000)
	defer env.close()
	ctx := context.Background()

	main := env.makeHeaders(t, env.chain.Genesis(), 3, 0)
	_, err := env.chain.InsertHeaders(ctx, main)
	require.NoError(t, err)

	// A shorter side chain is stored but does not move the head
	short := env.makeHeaders(t, env.chain.Genesis(), 2, 1)
	_, err = env.chain.InsertHeaders(ctx, short)
	require.NoError(t, err)
	assert.Equal(t, main[2].Hash(), env.chain.CurrentHeader().Hash())
	assert.NotNil(t, env.chain.GetHeaderByHash(short[1].Hash()))
	assert.Equal(t, main[1].Hash(), env.chain.GetHeaderByNumber(2).Hash())

	// A longer one takes over
	long := env.makeHeaders(t, short[1], 2, 1)
	_, err = env.chain.InsertHeaders(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, long[1].Hash(), env.chain.CurrentHeader().Hash())
	assert.Equal(t, short[0].Hash(), env.chain.GetHeaderByNumber(1).Hash())
	assert.Equal(t, short[1].Hash(), env.chain.GetHeaderByNumber(2).Hash())
	assert.Equal(t, long[0].Hash(), env.chain.GetHeaderByNumber(3).Hash())
}

func TestSetHead(t *testing.T) {
	env := newChainEnv(t, t.TempDir(), 30000)
	defer env.close()
	ctx := context.Background()

	headers := env.makeHeaders(t, env.chain.Genesis(), 6, 0)
	_, err := env.chain.InsertHeaders(ctx, headers)
	require.NoError(t, err)

	require.NoError(t, env.chain.SetHead(3))
	assert.Equal(t, headers[2].Hash(), env.chain.CurrentHeader().Hash())
	assert.Nil(t, env.chain.GetHeaderByNumber(4))
	assert.NotNil(t, env.chain.GetHeaderByHash(headers[4].Hash()))

	// Rewinding forward is a no-op
	require.NoError(t, env.chain.SetHead(10))
	assert.Equal(t, uint64(3), env.chain.CurrentHeader().Number.Uint64())

	n, err := env.chain.InsertHeaders(ctx, headers[3:])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, headers[5].Hash(), env.chain.CurrentHeader().Hash())
	assert.Equal(t, headers[4].Hash(), env.chain.GetHeaderByNumber(5).Hash())
}
