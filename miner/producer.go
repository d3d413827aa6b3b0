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

// Package miner produces empty proof-of-authority blocks on top of the local
// header chain with the keys held by the node.
package miner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ledgerwatch/log/v3"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/common/debug"
	"github.com/erigontech/poa/consensus"
	"github.com/erigontech/poa/consensus/poa"
	"github.com/erigontech/poa/core"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/metrics"
)

const (
	// resultQueueSize is the size of channel listening to sealing result.
	resultQueueSize = 1

	// minRetryInterval bounds the wait after a skipped slot on zero period chains.
	minRetryInterval = 100 * time.Millisecond
)

var (
	errNoLocalSigner = errors.New("no local key is authorized to sign")
	errStaleTask     = errors.New("chain head moved while sealing")
)

var (
	blocksProduced = metrics.GetOrCreateCounter("miner_blocks_produced")
	slotsSkipped   = metrics.GetOrCreateCounter("miner_slots_skipped")
	outOfTurn      = metrics.GetOrCreateCounter("miner_blocks_out_of_turn")
	minedHead      = metrics.GetOrCreateGauge("miner_head_block")
)

// Engine is the part of the proof-of-authority engine the producer drives.
type Engine interface {
	consensus.Engine
	AuthoritiesAt(chain consensus.ChainHeaderReader, parent *types.Header) (*poa.AuthoritySet, error)
	Authorize(signer common.Address, ks keystore.Signer)
}

// Chain is the header chain blocks are built on and inserted into.
type Chain interface {
	consensus.ChainHeaderReader
	InsertHeaders(ctx context.Context, headers []*types.Header) (int, error)
}

// Keys are the local signing keys.
type Keys interface {
	keystore.Signer
	Contains(addr common.Address) bool
	List() []common.Address
}

// Config holds the knobs of block production.
type Config struct {
	Extra    []byte // Vanity the producer stamps into its blocks
	GasLimit uint64 // Target gas limit, approached step by step; zero keeps the parent's
}

type Producer struct {
	config Config
	chain  Chain
	engine Engine
	keys   Keys

	retry  time.Duration
	logger log.Logger
}

func New(config Config, chain Chain, engine Engine, keys Keys, period uint64, logger log.Logger) *Producer {
	retry := time.Duration(period) * time.Second
	if retry < minRetryInterval {
		retry = minRetryInterval
	}
	return &Producer{
		config: config,
		chain:  chain,
		engine: engine,
		keys:   keys,
		retry:  retry,
		logger: logger,
	}
}

// Run produces blocks until ctx is done. A slot that cannot be signed is
// skipped and retried after one block period.
func (p *Producer) Run(ctx context.Context) error {
	defer debug.LogPanic()
	p.logger.Info("Block production started", "signers", len(p.keys.List()))
	defer p.logger.Info("Block production stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		header, err := p.ProduceBlock(ctx)
		if err == nil {
			p.logger.Info("Produced block", "number", header.Number, "hash", header.Hash(),
				"difficulty", header.Difficulty)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		slotsSkipped.Inc()
		p.logger.Warn("Skipped block slot", "err", err)

		timer := time.NewTimer(p.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// ProduceBlock builds, seals and inserts a single child of the current head.
// It blocks until the slot of the new block arrives.
func (p *Producer) ProduceBlock(ctx context.Context) (*types.Header, error) {
	timer := metrics.NewHistTimer("miner_block_seconds")
	defer timer.PutSince()

	parent := p.chain.CurrentHeader()
	number := parent.Number.Uint64() + 1

	set, err := p.engine.AuthoritiesAt(p.chain, parent)
	if err != nil {
		return nil, err
	}
	signer, inturn, ok := p.pickSigner(set, number)
	if !ok {
		return nil, fmt.Errorf("%w: block %d, authorities %v", errNoLocalSigner, number, set)
	}
	p.engine.Authorize(signer, p.keys)

	header := &types.Header{
		ParentHash:  parent.Hash(),
		Root:        parent.Root,
		TxHash:      types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Number:      new(big.Int).SetUint64(number),
		GasLimit:    core.CalcGasLimit(parent.GasLimit, p.config.GasLimit),
		Extra:       common.CopyBytes(p.config.Extra),
	}
	prepare := timer.Child("prepare")
	if err := p.engine.Prepare(p.chain, header); err != nil {
		return nil, fmt.Errorf("prepare block %d: %w", number, err)
	}
	prepare.PutSince()

	result, err := p.seal(ctx, header)
	if err != nil {
		return nil, err
	}
	sealed := result.Header

	// Another writer may have extended the chain while we waited for the slot
	if head := p.chain.CurrentHeader(); head.Hash() != parent.Hash() {
		return nil, fmt.Errorf("%w: sealed on #%d, head is #%d", errStaleTask, parent.Number, head.Number)
	}
	if _, err := p.chain.InsertHeaders(ctx, []*types.Header{sealed}); err != nil {
		return nil, fmt.Errorf("insert block %d: %w", number, err)
	}

	blocksProduced.Inc()
	if !inturn {
		outOfTurn.Inc()
	}
	minedHead.SetUint64(number)
	p.logger.Debug("Sealed block", "number", number, "signer", signer, "inturn", inturn,
		"sealhash", p.engine.SealHash(sealed))
	return sealed, nil
}

type sealResult struct {
	consensus.ResultWithContext
	err error
}

// seal runs the engine in its own task so that the wait for the slot can be
// abandoned when ctx is done.
func (p *Producer) seal(ctx context.Context, header *types.Header) (consensus.ResultWithContext, error) {
	task := consensus.NewCancel(ctx)
	defer task.CancelFunc()

	resultCh := make(chan sealResult, resultQueueSize)
	go func() {
		defer debug.LogPanic()
		sealed, err := p.engine.Seal(task, p.chain, header)
		resultCh <- sealResult{consensus.ResultWithContext{Cancel: task, Header: sealed}, err}
	}()

	select {
	case <-ctx.Done():
		return consensus.ResultWithContext{}, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return res.ResultWithContext, fmt.Errorf("seal block %d: %w", header.Number, res.err)
		}
		return res.ResultWithContext, nil
	}
}

// pickSigner returns the in-turn signer if a local key holds it, otherwise
// the first local key in the authority set.
func (p *Producer) pickSigner(set *poa.AuthoritySet, number uint64) (common.Address, bool, bool) {
	if expected, ok := set.ExpectedSigner(number); ok && p.keys.Contains(expected) {
		return expected, true, true
	}
	for _, signer := range set.Signers() {
		if p.keys.Contains(signer) {
			return signer, false, true
		}
	}
	return common.Address{}, false, false
}
