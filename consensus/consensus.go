// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
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

// Package consensus implements different Ethereum consensus engines.
package consensus

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/params"
)

// ChainHeaderReader defines a small collection of methods needed to access the local
// blockchain during header verification.
type ChainHeaderReader interface {
	// Config retrieves the blockchain's chain configuration.
	Config() *params.ChainConfig

	// CurrentHeader retrieves the current header from the local chain.
	CurrentHeader() *types.Header

	// GetHeader retrieves a block header from the database by hash and number.
	GetHeader(hash common.Hash, number uint64) *types.Header

	// GetHeaderByNumber retrieves a canonical block header from the database by number.
	GetHeaderByNumber(number uint64) *types.Header

	// GetHeaderByHash retrieves a block header from the database by its hash.
	GetHeaderByHash(hash common.Hash) *types.Header
}

// HeaderValidator decides whether a header may extend its already accepted
// parent. Implementations are stateless with respect to the call and safe for
// concurrent use.
type HeaderValidator interface {
	ValidateHeaderAgainstParent(header, parent *types.Header) error
}

// EngineReader are read-only methods of the consensus engine
type EngineReader interface {
	// Author retrieves the Ethereum address of the account that minted the given
	// block.
	Author(header *types.Header) (common.Address, error)

	// SealHash returns the hash of a block prior to it being sealed.
	SealHash(header *types.Header) common.Hash

	// CalcDifficulty is the difficulty adjustment algorithm. It returns the difficulty
	// that a new block built on top of parent should have for the local signer.
	CalcDifficulty(chain ChainHeaderReader, parent *types.Header) *big.Int
}

// Engine is an algorithm agnostic consensus engine.
type Engine interface {
	EngineReader

	// VerifyHeader checks whether a header conforms to the consensus rules of a
	// given engine.
	VerifyHeader(chain ChainHeaderReader, header *types.Header) error

	// VerifyHeaders is similar to VerifyHeader, but verifies a batch of headers
	// concurrently. Each header is checked against its predecessor in the batch
	// (the first one against the local chain). The returned slice holds one
	// result per header, in order.
	VerifyHeaders(ctx context.Context, chain ChainHeaderReader, headers []*types.Header) []error

	// Prepare initializes the consensus fields of a block header according to the
	// rules of a particular engine. The changes are executed inline.
	Prepare(chain ChainHeaderReader, header *types.Header) error

	// Seal generates a new sealing request for the given header and blocks until
	// the header may be published or ctx is done.
	Seal(ctx context.Context, chain ChainHeaderReader, header *types.Header) (*types.Header, error)

	// Close terminates any background threads maintained by the consensus engine.
	Close() error
}
