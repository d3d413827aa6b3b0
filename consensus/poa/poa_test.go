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

package poa

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/consensus"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/params"
)

type engineEnv struct {
	ks      *keystore.KeyStore
	signers []common.Address
	set     *AuthoritySet
	chain   *testChain
	store   *memSnapshotStore
	engine  *Engine
}

func newEngineEnv(t *testing.T, epoch uint64, policy Policy) *engineEnv {
	t.Helper()
	ks, signers := newTestKeyStore(t, 3)
	config := params.NewChainConfig(params.DevChainID, &params.PoAConfig{Period: 2, Epoch: epoch, Signers: signers})
	chain := newTestChain(config, testGenesis(signers))
	store := newMemSnapshotStore()

	engine, err := New(config, store, policy, log.New())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	// the clock always sits on the next slot, so in-turn seals return at once
	engine.now = func() time.Time {
		return time.Unix(int64(chain.CurrentHeader().Time+2), 0)
	}

	set, err := NewAuthoritySet(signers, 2, epoch)
	require.NoError(t, err)
	return &engineEnv{ks: ks, signers: signers, set: set, chain: chain, store: store, engine: engine}
}

// mine prepares, seals and inserts n blocks, each by its in-turn signer.
func (env *engineEnv) mine(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		parent := env.chain.CurrentHeader()
		number := parent.Number.Uint64() + 1
		set, err := env.engine.AuthoritiesAt(env.chain, parent)
		require.NoError(t, err)
		signer, _ := set.ExpectedSigner(number)
		env.engine.Authorize(signer, env.ks)

		header := &types.Header{ParentHash: parent.Hash(), Number: new(big.Int).SetUint64(number)}
		require.NoError(t, env.engine.Prepare(env.chain, header))
		sealed, err := env.engine.Seal(context.Background(), env.chain, header)
		require.NoError(t, err)
		require.NoError(t, env.engine.VerifyHeader(env.chain, sealed))
		env.chain.append(sealed)
	}
}

func TestNewEngine(t *testing.T) {
	_, err := New(params.NewChainConfig(1, nil), nil, Policy{}, log.New())
	require.ErrorIs(t, err, errMissingConfig)

	signers := addrs(2)
	_, err = New(params.NewChainConfig(1, &params.PoAConfig{Signers: []common.Address{signers[0], signers[0]}}), nil, Policy{}, log.New())
	require.Error(t, err)

	cfg := &params.PoAConfig{Period: 2, Signers: signers}
	engine, err := New(params.NewChainConfig(1, cfg), nil, Policy{}, log.New())
	require.NoError(t, err)
	assert.Equal(t, params.DefaultEpoch, engine.Config().Epoch)
	assert.Zero(t, cfg.Epoch, "caller config is not modified")
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
}

func TestEngineMinesChain(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{StrictTurn: true})
	env.mine(t, 9)

	for n := uint64(1); n <= 9; n++ {
		h := env.chain.GetHeaderByNumber(n)
		author, err := env.engine.Author(h)
		require.NoError(t, err)
		expected, _ := env.set.ExpectedSigner(n)
		assert.Equal(t, expected, author, "block %d", n)
		assert.Equal(t, DiffInTurn, h.Difficulty)
		assert.Equal(t, env.chain.GetHeaderByNumber(n-1).Time+2, h.Time)
		assert.Equal(t, uint64(testGasLimit), h.GasLimit)

		wantExtra := MinExtraLength
		if n%4 == 0 {
			wantExtra += 3 * common.AddressLength
			signers, err := ExtractSigners(h.Extra)
			require.NoError(t, err)
			assert.Equal(t, env.signers, signers)
		}
		assert.Len(t, h.Extra, wantExtra, "block %d", n)
	}

	// checkpoints 0, 4 and 8 were persisted once each
	assert.Equal(t, 3, env.store.writes)
}

func TestEngineAdoptsCheckpointSigners(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	env.mine(t, 3)

	// block 4 shrinks the authority set to A and B
	a, b, c := env.signers[0], env.signers[1], env.signers[2]
	parent := env.chain.CurrentHeader()
	checkpoint := childHeader(parent, env.set, a)
	checkpoint.Extra = BuildExtra(nil, []common.Address{a, b})
	checkpoint = sealWith(t, env.ks, checkpoint, a)
	require.NoError(t, env.engine.VerifyHeader(env.chain, checkpoint))
	env.chain.append(checkpoint)

	next, err := env.engine.AuthoritiesAt(env.chain, checkpoint)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{a, b}, next.Signers())
	current, err := env.engine.AuthoritiesAt(env.chain, parent)
	require.NoError(t, err)
	assert.Equal(t, env.signers, current.Signers())

	byC := childHeader(checkpoint, next, c)
	byC.Difficulty = new(big.Int).Set(DiffNoTurn)
	err = env.engine.VerifyHeader(env.chain, sealWith(t, env.ks, byC, c))
	assert.ErrorIs(t, err, ErrUnauthorizedSigner)

	byB := sealWith(t, env.ks, childHeader(checkpoint, next, b), b)
	assert.Equal(t, DiffInTurn, byB.Difficulty)
	require.NoError(t, env.engine.VerifyHeader(env.chain, byB))
}

func TestEngineSideChainCheckpoint(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	env.mine(t, 3)
	a, b, c := env.signers[0], env.signers[1], env.signers[2]
	parent := env.chain.CurrentHeader()

	// canonical checkpoint 4 drops C, the competing checkpoint 4' keeps it
	canonical := childHeader(parent, env.set, b)
	canonical.Extra = BuildExtra(nil, []common.Address{a, b})
	canonical = sealWith(t, env.ks, canonical, b)
	require.NoError(t, env.engine.VerifyHeader(env.chain, canonical))
	env.chain.append(canonical)

	side := sealWith(t, env.ks, childHeader(parent, env.set, a), a)
	require.NoError(t, env.engine.VerifyHeader(env.chain, side))
	require.NotEqual(t, canonical.Hash(), side.Hash())

	onCanonical, err := env.engine.AuthoritiesAt(env.chain, canonical)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{a, b}, onCanonical.Signers())

	// block 5' is C's turn under the list of 4'
	sideChild := sealWith(t, env.ks, childHeader(side, env.set, c), c)
	assert.Equal(t, DiffInTurn, sideChild.Difficulty)
	for i, err := range env.engine.VerifyHeaders(context.Background(), env.chain, []*types.Header{side, sideChild}) {
		assert.NoError(t, err, "header %d", i)
	}

	env.chain.addSide(side)
	onSide, err := env.engine.AuthoritiesAt(env.chain, side)
	require.NoError(t, err)
	assert.Equal(t, env.signers, onSide.Signers())
	require.NoError(t, env.engine.VerifyHeader(env.chain, sideChild))

	// the same signer is still unauthorized on the canonical branch
	byC := childHeader(canonical, onCanonical, c)
	byC.Difficulty = new(big.Int).Set(DiffNoTurn)
	err = env.engine.VerifyHeader(env.chain, sealWith(t, env.ks, byC, c))
	assert.ErrorIs(t, err, ErrUnauthorizedSigner)
}

func TestEngineAuthoritiesUnknownAncestor(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	env.mine(t, 2)

	// a block whose ancestry is missing before its checkpoint
	orphan := &types.Header{ParentHash: common.Hash{1}, Number: big.NewInt(3)}
	_, err := env.engine.AuthoritiesAt(env.chain, orphan)
	require.ErrorIs(t, err, consensus.ErrUnknownAncestor)

	_, err = env.engine.AuthoritiesAt(env.chain, &types.Header{})
	require.ErrorIs(t, err, errUnknownBlock)
}

// buildBatch returns n sealed, unsaved children of the chain head.
func (env *engineEnv) buildBatch(t *testing.T, n int) []*types.Header {
	t.Helper()
	parent := env.chain.CurrentHeader()
	headers := make([]*types.Header, n)
	for i := range headers {
		number := parent.Number.Uint64() + 1
		signer, _ := env.set.ExpectedSigner(number)
		headers[i] = sealWith(t, env.ks, childHeader(parent, env.set, signer), signer)
		parent = headers[i]
	}
	return headers
}

func TestEngineVerifyHeaders(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})

	headers := env.buildBatch(t, 10)
	for i, err := range env.engine.VerifyHeaders(context.Background(), env.chain, headers) {
		assert.NoError(t, err, "header %d", i)
	}

	assert.Empty(t, env.engine.VerifyHeaders(context.Background(), env.chain, nil))
}

func TestEngineVerifyHeadersPropagatesFailure(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})

	headers := env.buildBatch(t, 6)
	// re-seal block 3 with the wrong difficulty and re-link its descendants
	bad := types.CopyHeader(headers[2])
	bad.Difficulty = new(big.Int).Set(DiffNoTurn)
	signer, _ := env.set.ExpectedSigner(3)
	headers[2] = sealWith(t, env.ks, bad, signer)
	for i := 3; i < len(headers); i++ {
		h := types.CopyHeader(headers[i])
		h.ParentHash = headers[i-1].Hash()
		signer, _ := env.set.ExpectedSigner(h.Number.Uint64())
		headers[i] = sealWith(t, env.ks, h, signer)
	}

	results := env.engine.VerifyHeaders(context.Background(), env.chain, headers)
	require.Len(t, results, 6)
	assert.NoError(t, results[0])
	assert.NoError(t, results[1])
	assert.ErrorIs(t, results[2], ErrInvalidDifficulty)
	for _, err := range results[3:] {
		assert.ErrorIs(t, err, consensus.ErrUnknownAncestor)
	}
}

func TestEngineVerifyHeadersUnknownParent(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	env.mine(t, 2)
	headers := env.buildBatch(t, 3)

	other := newEngineEnv(t, 4, Policy{})
	for _, err := range other.engine.VerifyHeaders(context.Background(), other.chain, headers) {
		assert.ErrorIs(t, err, consensus.ErrUnknownAncestor)
	}
	assert.ErrorIs(t, other.engine.VerifyHeader(other.chain, headers[0]), consensus.ErrUnknownAncestor)
	assert.ErrorIs(t, other.engine.VerifyHeader(other.chain, other.chain.CurrentHeader()), consensus.ErrInvalidNumber)
}

func TestEngineVerifyHeadersCancelled(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	headers := env.buildBatch(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range env.engine.VerifyHeaders(ctx, env.chain, headers) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestEngineSealErrors(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{StrictTurn: true})
	genesis := env.chain.CurrentHeader()
	header := childHeader(genesis, env.set, env.signers[1])

	_, err := env.engine.Seal(context.Background(), env.chain, header)
	require.ErrorIs(t, err, errNoSigningKey)

	_, err = env.engine.Seal(context.Background(), env.chain, genesis)
	require.ErrorIs(t, err, errUnknownBlock)

	outsiderKs, outsiders := newTestKeyStore(t, 4)
	env.engine.Authorize(outsiders[3], outsiderKs)
	_, err = env.engine.Seal(context.Background(), env.chain, header)
	require.ErrorIs(t, err, ErrUnauthorizedSigner)

	env.engine.Authorize(env.signers[2], env.ks)
	_, err = env.engine.Seal(context.Background(), env.chain, header)
	require.ErrorIs(t, err, ErrWrongSigner)
}

func TestEngineSealWaitsForSlot(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	env.engine.Authorize(env.signers[1], env.ks)
	header := childHeader(env.chain.CurrentHeader(), env.set, env.signers[1])
	header.Time += 3600

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := env.engine.Seal(ctx, env.chain, header)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		_, err := env.engine.Seal(context.Background(), env.chain, header)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, env.engine.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, errEngineClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("seal did not return after close")
	}
}

func TestEngineCalcDifficulty(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	genesis := env.chain.CurrentHeader()

	env.engine.Authorize(env.signers[1], env.ks)
	assert.Equal(t, DiffInTurn, env.engine.CalcDifficulty(env.chain, genesis))

	env.engine.Authorize(env.signers[2], env.ks)
	assert.Equal(t, DiffNoTurn, env.engine.CalcDifficulty(env.chain, genesis))

	orphan := &types.Header{Number: big.NewInt(100)}
	assert.Nil(t, env.engine.CalcDifficulty(env.chain, orphan))
}

func TestEnginePrepare(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	genesis := env.chain.CurrentHeader()
	env.engine.Authorize(env.signers[1], env.ks)

	header := &types.Header{
		ParentHash: genesis.Hash(),
		Number:     big.NewInt(1),
		Extra:      []byte("a vanity longer than thirty two bytes"),
		Coinbase:   common.HexToAddress("0x01"),
	}
	require.NoError(t, env.engine.Prepare(env.chain, header))
	assert.Len(t, header.Extra, MinExtraLength)
	assert.Equal(t, []byte("a vanity longer than thirty two "), header.Extra[:ExtraVanity])
	assert.Equal(t, common.Address{}, header.Coinbase)
	assert.Equal(t, types.EmptyUncleHash, header.UncleHash)
	assert.Equal(t, genesis.GasLimit, header.GasLimit)
	assert.Equal(t, genesis.BaseFee, header.BaseFee)
	assert.Equal(t, DiffInTurn, header.Difficulty)

	// a late clock moves the timestamp forward
	env.engine.now = func() time.Time { return time.Unix(100, 0) }
	require.NoError(t, env.engine.Prepare(env.chain, header))
	assert.Equal(t, uint64(100), header.Time)

	orphan := &types.Header{ParentHash: common.Hash{1}, Number: big.NewInt(1)}
	require.ErrorIs(t, env.engine.Prepare(env.chain, orphan), consensus.ErrUnknownAncestor)
	require.ErrorIs(t, env.engine.Prepare(env.chain, &types.Header{Number: big.NewInt(0)}), errUnknownBlock)
}

func TestEngineLoadsStoredSnapshot(t *testing.T) {
	env := newEngineEnv(t, 4, Policy{})
	genesis := env.chain.CurrentHeader()

	blob, err := json.Marshal(&Snapshot{Number: 0, Hash: genesis.Hash(), Signers: env.signers[:1]})
	require.NoError(t, err)
	require.NoError(t, env.store.WriteSnapshot(0, genesis.Hash(), blob))

	set, err := env.engine.AuthoritiesAt(env.chain, genesis)
	require.NoError(t, err)
	assert.Equal(t, env.signers[:1], set.Signers())

	// an undecodable snapshot is rebuilt from the header
	fresh := newEngineEnv(t, 4, Policy{})
	g := fresh.chain.CurrentHeader()
	require.NoError(t, fresh.store.WriteSnapshot(0, g.Hash(), []byte("{")))
	set, err = fresh.engine.AuthoritiesAt(fresh.chain, g)
	require.NoError(t, err)
	assert.Equal(t, fresh.signers, set.Signers())
}

func TestGenesisWithoutSignerList(t *testing.T) {
	ks, signers := newTestKeyStore(t, 2)
	config := params.NewChainConfig(params.DevChainID, &params.PoAConfig{Period: 2, Epoch: 10, Signers: signers})
	genesis := testGenesis(nil)
	chain := newTestChain(config, genesis)
	engine, err := New(config, nil, Policy{}, log.New())
	require.NoError(t, err)
	defer engine.Close()

	set, err := engine.AuthoritiesAt(chain, genesis)
	require.NoError(t, err)
	assert.Equal(t, signers, set.Signers())

	h := sealWith(t, ks, childHeader(genesis, set, signers[1]), signers[1])
	require.NoError(t, engine.VerifyHeader(chain, h))
}
