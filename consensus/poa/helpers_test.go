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
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/crypto"
	"github.com/erigontech/poa/params"
)

const testGasLimit = 30_000_000

// newTestKeyStore loads the first n dev keys and returns their addresses in
// key order.
func newTestKeyStore(t *testing.T, n int) (*keystore.KeyStore, []common.Address) {
	t.Helper()
	ks, err := keystore.NewDevKeyStore(n)
	require.NoError(t, err)
	addrs := make([]common.Address, n)
	for i, hex := range keystore.DevKeys[:n] {
		key, err := crypto.HexToECDSA(hex)
		require.NoError(t, err)
		addrs[i] = crypto.PubkeyToAddress(key.PublicKey)
	}
	return ks, addrs
}

func testGenesis(signers []common.Address) *types.Header {
	return &types.Header{
		UncleHash:  types.EmptyUncleHash,
		Root:       types.EmptyRootHash,
		TxHash:     types.EmptyRootHash,
		Number:     big.NewInt(0),
		GasLimit:   testGasLimit,
		Difficulty: big.NewInt(1),
		Extra:      BuildExtra([]byte("genesis"), signers),
		BaseFee:    big.NewInt(875_000_000),
	}
}

// childHeader returns an unsealed child of parent with the consensus fields a
// well behaved signer would use.
func childHeader(parent *types.Header, set *AuthoritySet, signer common.Address) *types.Header {
	number := parent.Number.Uint64() + 1
	h := &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Root:       parent.Root,
		TxHash:     types.EmptyRootHash,
		Number:     new(big.Int).SetUint64(number),
		GasLimit:   parent.GasLimit,
		Time:       parent.Time + set.Period(),
		Difficulty: calcDifficulty(set, number, signer),
		Extra:      BuildExtra(nil, nil),
	}
	if parent.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(parent.BaseFee)
	}
	if set.IsEpochBoundary(number) {
		h.Extra = BuildExtra(nil, set.Signers())
	}
	return h
}

func sealWith(t *testing.T, ks keystore.Signer, h *types.Header, signer common.Address) *types.Header {
	t.Helper()
	sealed, err := NewSealer(ks).Seal(h, signer)
	require.NoError(t, err)
	return sealed
}

// testChain is an in-memory consensus.ChainHeaderReader.
type testChain struct {
	config *params.ChainConfig

	mu     sync.RWMutex
	byHash map[common.Hash]*types.Header
	canon  []*types.Header
}

func newTestChain(config *params.ChainConfig, genesis *types.Header) *testChain {
	c := &testChain{config: config, byHash: make(map[common.Hash]*types.Header)}
	c.append(genesis)
	return c
}

func (c *testChain) append(headers ...*types.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range headers {
		c.byHash[h.Hash()] = h
		c.canon = append(c.canon, h)
	}
}

// addSide stores headers that are not part of the canonical chain.
func (c *testChain) addSide(headers ...*types.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range headers {
		c.byHash[h.Hash()] = h
	}
}

func (c *testChain) Config() *params.ChainConfig { return c.config }

func (c *testChain) CurrentHeader() *types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.canon[len(c.canon)-1]
}

func (c *testChain) GetHeader(hash common.Hash, number uint64) *types.Header {
	h := c.GetHeaderByHash(hash)
	if h == nil || h.Number.Uint64() != number {
		return nil
	}
	return h
}

func (c *testChain) GetHeaderByNumber(number uint64) *types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if number >= uint64(len(c.canon)) {
		return nil
	}
	return c.canon[number]
}

func (c *testChain) GetHeaderByHash(hash common.Hash) *types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byHash[hash]
}

// memSnapshotStore is an in-memory SnapshotStore counting its writes.
type memSnapshotStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	writes int
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{blobs: make(map[string][]byte)}
}

func (s *memSnapshotStore) key(number uint64, hash common.Hash) string {
	return fmt.Sprintf("%d-%x", number, hash)
}

func (s *memSnapshotStore) ReadSnapshot(number uint64, hash common.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[s.key(number, hash)], nil
}

func (s *memSnapshotStore) WriteSnapshot(number uint64, hash common.Hash, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[s.key(number, hash)] = blob
	s.writes++
	return nil
}
