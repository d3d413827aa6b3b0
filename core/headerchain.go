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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerwatch/log/v3"

	"github.com/erigontech/poa/consensus"
	"github.com/erigontech/poa/core/rawdb"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/metrics"
	"github.com/erigontech/poa/params"
)

var (
	ErrNoGenesis      = errors.New("genesis not found in chain")
	ErrNonContiguous  = errors.New("non contiguous insert")
	errChainNotLinked = errors.New("first header does not extend a known header")
	errMissingNumber  = errors.New("header without block number")
)

var (
	headHeaderGauge  = metrics.GetOrCreateGauge("chain_head_header")
	headersInserted  = metrics.GetOrCreateCounter("chain_headers_inserted")
	insertBatchTimer = metrics.GetOrCreateSummary("chain_insert_seconds")
)

// WriteGenesisBlock stores the genesis header and chain config unless the
// database already has a genesis. A nil genesis accepts whatever is stored.
// A stored genesis that differs from the supplied one is a
// *types.GenesisMismatchError.
func WriteGenesisBlock(db rawdb.RwDB, genesis *types.Genesis, logger log.Logger) (*params.ChainConfig, *types.Header, error) {
	if genesis != nil && genesis.Config == nil {
		return nil, nil, types.ErrGenesisNoConfig
	}
	storedHash, err := rawdb.ReadCanonicalHash(db, 0)
	if err != nil {
		return nil, nil, err
	}
	if storedHash == (common.Hash{}) {
		if genesis == nil {
			logger.Info("Writing dev genesis block")
			genesis = DevGenesisBlock()
		} else {
			logger.Info("Writing custom genesis block")
		}
		header := GenesisToHeader(genesis)
		if err := writeGenesis(db, header, genesis.Config); err != nil {
			return nil, nil, err
		}
		return genesis.Config, header, nil
	}

	stored := rawdb.ReadHeader(db, storedHash, 0)
	if stored == nil {
		return nil, nil, ErrNoGenesis
	}
	if genesis != nil {
		if hash := GenesisToHeader(genesis).Hash(); hash != storedHash {
			return nil, nil, &types.GenesisMismatchError{Stored: storedHash, New: hash}
		}
	}
	config, err := rawdb.ReadChainConfig(db, storedHash)
	if err != nil {
		return nil, nil, err
	}
	if config == nil {
		if genesis == nil {
			return nil, nil, types.ErrGenesisNoConfig
		}
		config = genesis.Config
		if err := rawdb.WriteChainConfig(db, storedHash, config); err != nil {
			return nil, nil, err
		}
	}
	return config, stored, nil
}

func writeGenesis(db rawdb.RwDB, header *types.Header, config *params.ChainConfig) error {
	hash := header.Hash()
	if err := rawdb.WriteHeader(db, header); err != nil {
		return err
	}
	if err := rawdb.WriteCanonicalHash(db, hash, 0); err != nil {
		return err
	}
	if err := rawdb.WriteHeadHeaderHash(db, hash); err != nil {
		return err
	}
	return rawdb.WriteChainConfig(db, hash, config)
}

// HeaderChain is the persistent chain of accepted headers. The canonical
// chain is the longest one, ties keep the current head.
type HeaderChain struct {
	db      *rawdb.DB
	config  *params.ChainConfig
	engine  consensus.Engine
	genesis *types.Header

	currentHeader atomic.Pointer[types.Header]
	insertLock    sync.Mutex

	logger log.Logger
}

var _ consensus.ChainHeaderReader = (*HeaderChain)(nil)

// NewHeaderChain opens the chain stored in db. WriteGenesisBlock must have
// run against db before.
func NewHeaderChain(db *rawdb.DB, config *params.ChainConfig, engine consensus.Engine, logger log.Logger) (*HeaderChain, error) {
	genesis := rawdb.ReadHeaderByNumber(db, 0)
	if genesis == nil {
		return nil, ErrNoGenesis
	}
	hc := &HeaderChain{
		db:      db,
		config:  config,
		engine:  engine,
		genesis: genesis,
		logger:  logger,
	}
	head := rawdb.ReadCurrentHeader(db)
	if head == nil {
		logger.Warn("Head header missing, resetting chain to genesis")
		if err := rawdb.WriteHeadHeaderHash(db, genesis.Hash()); err != nil {
			return nil, err
		}
		head = genesis
	}
	hc.currentHeader.Store(head)
	headHeaderGauge.SetUint64(head.Number.Uint64())
	return hc, nil
}

func (hc *HeaderChain) Config() *params.ChainConfig { return hc.config }

func (hc *HeaderChain) Genesis() *types.Header { return hc.genesis }

func (hc *HeaderChain) CurrentHeader() *types.Header { return hc.currentHeader.Load() }

func (hc *HeaderChain) GetHeader(hash common.Hash, number uint64) *types.Header {
	return rawdb.ReadHeader(hc.db, hash, number)
}

func (hc *HeaderChain) GetHeaderByNumber(number uint64) *types.Header {
	return rawdb.ReadHeaderByNumber(hc.db, number)
}

func (hc *HeaderChain) GetHeaderByHash(hash common.Hash) *types.Header {
	return rawdb.ReadHeaderByHash(hc.db, hash)
}

func (hc *HeaderChain) HasHeader(hash common.Hash, number uint64) bool {
	return rawdb.HasHeader(hc.db, hash, number)
}

// InsertHeaders verifies a contiguous run of headers with the consensus engine
// and persists the valid prefix. It returns the index of the first rejected
// header together with its error, or len(headers) and nil.
func (hc *HeaderChain) InsertHeaders(ctx context.Context, headers []*types.Header) (int, error) {
	if len(headers) == 0 {
		return 0, nil
	}
	for i, header := range headers {
		if header == nil || header.Number == nil {
			return i, fmt.Errorf("%w: item %d", errMissingNumber, i)
		}
	}
	for i := 1; i < len(headers); i++ {
		prev, cur := headers[i-1], headers[i]
		if cur.Number.Uint64() != prev.Number.Uint64()+1 || cur.ParentHash != prev.Hash() {
			return i, fmt.Errorf("%w: item %d is #%d [%x..], item %d is #%d [%x..] (parent [%x..])", ErrNonContiguous,
				i-1, prev.Number, prev.Hash().Bytes()[:4], i, cur.Number, cur.Hash().Bytes()[:4], cur.ParentHash[:4])
		}
	}
	hc.insertLock.Lock()
	defer hc.insertLock.Unlock()

	first := headers[0]
	if first.Number.Sign() == 0 || !hc.HasHeader(first.ParentHash, first.Number.Uint64()-1) {
		return 0, fmt.Errorf("%w: #%d [%x..]", errChainNotLinked, first.Number, first.Hash().Bytes()[:4])
	}

	start := time.Now()
	defer insertBatchTimer.ObserveDuration(start)

	valid, failed := len(headers), error(nil)
	for i, err := range hc.engine.VerifyHeaders(ctx, hc, headers) {
		if err != nil {
			valid, failed = i, err
			break
		}
	}
	if valid == 0 {
		return 0, failed
	}
	if err := hc.writeHeaders(headers[:valid]); err != nil {
		return 0, err
	}
	headersInserted.AddInt(valid)

	last := headers[valid-1]
	hc.logger.Debug("Inserted headers", "count", valid, "number", last.Number, "hash", last.Hash(),
		"elapsed", common.PrettyDuration(time.Since(start)))
	return valid, failed
}

func (hc *HeaderChain) writeHeaders(headers []*types.Header) error {
	batch := hc.db.NewBatch()
	defer batch.Rollback()

	for _, header := range headers {
		if err := rawdb.WriteHeader(batch, header); err != nil {
			return err
		}
	}
	tip := headers[len(headers)-1]
	head := hc.CurrentHeader()
	if tip.Number.Cmp(head.Number) <= 0 {
		// Side chain, keep the stored headers but leave the canonical chain alone
		hc.logger.Debug("Stored side chain", "number", tip.Number, "hash", tip.Hash(), "head", head.Number)
		return batch.Commit()
	}

	// Rewrite the canonical mapping back to the fork point
	for h := tip; h != nil && h.Number.Sign() > 0; {
		number := h.Number.Uint64()
		hash := h.Hash()
		canonical, err := rawdb.ReadCanonicalHash(batch, number)
		if err != nil {
			return err
		}
		if canonical == hash {
			break
		}
		if err := rawdb.WriteCanonicalHash(batch, hash, number); err != nil {
			return err
		}
		h = rawdb.ReadHeader(batch, h.ParentHash, number-1)
	}
	if err := rawdb.WriteHeadHeaderHash(batch, tip.Hash()); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	hc.currentHeader.Store(tip)
	headHeaderGauge.SetUint64(tip.Number.Uint64())
	return nil
}

// SetHead rewinds the canonical chain to number. Headers above it stay in the
// database but are no longer canonical.
func (hc *HeaderChain) SetHead(number uint64) error {
	hc.insertLock.Lock()
	defer hc.insertLock.Unlock()

	head := hc.CurrentHeader()
	if number >= head.Number.Uint64() {
		return nil
	}
	target := hc.GetHeaderByNumber(number)
	if target == nil {
		return fmt.Errorf("SetHead: no canonical header #%d", number)
	}
	batch := hc.db.NewBatch()
	defer batch.Rollback()
	if err := rawdb.TruncateCanonicalHash(batch, number+1, head.Number.Uint64()); err != nil {
		return err
	}
	if err := rawdb.WriteHeadHeaderHash(batch, target.Hash()); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	hc.currentHeader.Store(target)
	headHeaderGauge.SetUint64(number)
	hc.logger.Info("Rewound header chain", "from", head.Number, "to", number)
	return nil
}
