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

// Package poa implements a proof-of-authority sealing engine: a fixed,
// ordered set of signers takes turns sealing blocks, and every block carries
// its signer's secp256k1 signature in the tail of the extra-data field.
package poa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/arc/v2"
	"github.com/ledgerwatch/log/v3"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/consensus"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/metrics"
	"github.com/erigontech/poa/params"
)

const (
	inmemorySignatures = 4096 // Number of recent block signatures to keep in memory
	inmemorySnapshots  = 128  // Number of recent authority sets to keep in memory

	wiggleTime = 500 * time.Millisecond // Random delay (per signer) to allow concurrent signers
)

var (
	errMissingConfig = errors.New("chain config has no poa section")
	errNoSigningKey  = errors.New("no signing key authorized")
	errEngineClosed  = errors.New("engine closed")
)

var (
	headersAccepted = metrics.GetOrCreateCounter(`poa_headers_verified{result="accepted"}`)
	headersRejected = metrics.GetOrCreateCounter(`poa_headers_verified{result="rejected"}`)
	blocksSealed    = metrics.GetOrCreateCounter("poa_blocks_sealed")
	verifyTime      = metrics.GetOrCreateSummary("poa_verify_seconds")
)

// Engine is the proof-of-authority consensus engine. It resolves the
// authority set of every block from the checkpoint preceding it and runs the
// header validator against it.
type Engine struct {
	chainConfig *params.ChainConfig
	config      *params.PoAConfig // Consensus engine configuration parameters
	policy      Policy
	store       SnapshotStore // Database to store and retrieve snapshot checkpoints

	signatures *lru.ARCCache[common.Hash, common.Address] // Signatures of recent blocks to speed up mining
	recents    *lru.ARCCache[common.Hash, *AuthoritySet]  // Authority sets of recent checkpoints

	signer common.Address // Address of the signing key
	sealer *Sealer        // Sealer backed by the signing key
	lock   sync.RWMutex   // Protects the signer fields

	now func() time.Time

	exitCh    chan struct{}
	closeOnce sync.Once
	logger    log.Logger
}

var _ consensus.Engine = (*Engine)(nil)

// New creates a proof-of-authority engine for chainConfig. store may be nil,
// in which case authority sets are only cached in memory.
func New(chainConfig *params.ChainConfig, store SnapshotStore, policy Policy, logger log.Logger) (*Engine, error) {
	if chainConfig == nil || chainConfig.Clique == nil {
		return nil, errMissingConfig
	}
	// Set any missing consensus parameters to their defaults
	conf := *chainConfig.Clique
	if conf.Epoch == 0 {
		conf.Epoch = params.DefaultEpoch
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	signatures, _ := lru.NewARC[common.Hash, common.Address](inmemorySignatures)
	recents, _ := lru.NewARC[common.Hash, *AuthoritySet](inmemorySnapshots)

	return &Engine{
		chainConfig: chainConfig,
		config:      &conf,
		policy:      policy,
		store:       store,
		signatures:  signatures,
		recents:     recents,
		now:         time.Now,
		exitCh:      make(chan struct{}),
		logger:      logger,
	}, nil
}

// Config returns the consensus parameters in use, with defaults applied.
func (e *Engine) Config() *params.PoAConfig { return e.config }

// Author implements consensus.Engine, returning the address recovered from
// the seal in the header's extra-data section.
func (e *Engine) Author(header *types.Header) (common.Address, error) {
	// If the signature's already cached, return that
	hash := header.Hash()
	if address, known := e.signatures.Peek(hash); known {
		return address, nil
	}
	signer, err := RecoverSigner(header)
	if err != nil {
		return common.Address{}, err
	}
	e.signatures.Add(hash, signer)
	return signer, nil
}

// AuthoritiesAt returns the authority set that governs the child of parent.
// The set is read from the checkpoint among parent and its ancestors (the
// genesis block for the first epoch), so blocks on a side chain resolve the
// checkpoint of their own branch. Sets are cached by the hash of the block
// they govern the children of.
func (e *Engine) AuthoritiesAt(chain consensus.ChainHeaderReader, parent *types.Header) (*AuthoritySet, error) {
	if parent == nil || parent.Number == nil {
		return nil, errUnknownBlock
	}
	var (
		number     = parent.Number.Uint64() + 1
		checkpoint = checkpointOf(number, e.config.Epoch)
		parentHash = parent.Hash()
		header     = parent
		hash       = parentHash
	)
	// Walk back to the checkpoint unless a block on the way has its set cached
	for {
		if set, ok := e.recents.Get(hash); ok {
			if hash != parentHash {
				e.recents.Add(parentHash, set)
			}
			return set, nil
		}
		n := header.Number.Uint64()
		if n <= checkpoint {
			break
		}
		if header = chain.GetHeader(header.ParentHash, n-1); header == nil {
			return nil, fmt.Errorf("checkpoint %d of block %d: %w", checkpoint, number, consensus.ErrUnknownAncestor)
		}
		hash = header.Hash()
	}
	if n := header.Number.Uint64(); n != checkpoint {
		return nil, fmt.Errorf("checkpoint %d of block %d: ancestor is #%d: %w", checkpoint, number, n, consensus.ErrUnknownAncestor)
	}

	set, err := e.checkpointAuthorities(header, hash)
	if err != nil {
		return nil, err
	}
	e.recents.Add(hash, set)
	if hash != parentHash {
		e.recents.Add(parentHash, set)
	}
	return set, nil
}

// checkpointAuthorities builds the set embedded in a checkpoint header,
// preferring a stored snapshot over parsing the header.
func (e *Engine) checkpointAuthorities(header *types.Header, hash common.Hash) (*AuthoritySet, error) {
	checkpoint := header.Number.Uint64()
	snap, err := loadSnapshot(e.store, checkpoint, hash)
	if err != nil {
		e.logger.Warn("Failed to load authority snapshot", "number", checkpoint, "hash", hash, "err", err)
		snap = nil
	}
	if snap == nil {
		if snap, err = snapshotFromHeader(header, e.config.Signers); err != nil {
			return nil, err
		}
		if err := storeSnapshot(e.store, snap); err != nil {
			e.logger.Warn("Failed to store authority snapshot", "number", checkpoint, "hash", hash, "err", err)
		} else {
			e.logger.Debug("Stored authority snapshot", "number", checkpoint, "hash", hash, "signers", len(snap.Signers))
		}
	}

	set, err := NewAuthoritySet(snap.Signers, e.config.Period, e.config.Epoch)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", checkpoint, err)
	}
	return set, nil
}

// VerifyHeader checks whether a header conforms to the consensus rules.
func (e *Engine) VerifyHeader(chain consensus.ChainHeaderReader, header *types.Header) error {
	if header.Number == nil {
		return errUnknownBlock
	}
	number := header.Number.Uint64()
	if number == 0 {
		return fmt.Errorf("%w: genesis is not verified", consensus.ErrInvalidNumber)
	}
	parent := chain.GetHeader(header.ParentHash, number-1)
	if parent == nil {
		return fmt.Errorf("block %d parent %x: %w", number, header.ParentHash, consensus.ErrUnknownAncestor)
	}
	return e.verifyHeader(chain, header, parent)
}

// VerifyHeaders checks a contiguous batch of headers concurrently. Each header
// is checked against its predecessor in the batch, the first one against the
// local chain. A header whose ancestor in the batch failed fails too.
func (e *Engine) VerifyHeaders(ctx context.Context, chain consensus.ChainHeaderReader, headers []*types.Header) []error {
	results := make([]error, len(headers))
	if len(headers) == 0 {
		return results
	}
	reader := newBatchReader(chain, headers)

	parents := make([]*types.Header, len(headers))
	for i, header := range headers {
		if header.Number == nil {
			results[i] = errUnknownBlock
			continue
		}
		number := header.Number.Uint64()
		if number == 0 {
			results[i] = fmt.Errorf("%w: genesis is not verified", consensus.ErrInvalidNumber)
			continue
		}
		if parents[i] = reader.GetHeader(header.ParentHash, number-1); parents[i] == nil {
			results[i] = fmt.Errorf("block %d parent %x: %w", number, header.ParentHash, consensus.ErrUnknownAncestor)
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range headers {
		if results[i] != nil {
			continue
		}
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = err
				return nil
			}
			results[i] = e.verifyHeader(reader, headers[i], parents[i])
			return nil
		})
	}
	_ = g.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] == nil && results[i-1] != nil && parents[i] == headers[i-1] {
			results[i] = fmt.Errorf("block %d: ancestor %d invalid: %w", headers[i].Number, headers[i-1].Number, consensus.ErrUnknownAncestor)
		}
	}
	return results
}

func (e *Engine) verifyHeader(chain consensus.ChainHeaderReader, header, parent *types.Header) error {
	defer verifyTime.ObserveDuration(time.Now())

	set, err := e.AuthoritiesAt(chain, parent)
	if err != nil {
		return err
	}
	if err := e.validator(set).ValidateHeaderAgainstParent(header, parent); err != nil {
		headersRejected.Inc()
		var ve *ValidationError
		if errors.As(err, &ve) {
			metrics.GetOrCreateCounter(fmt.Sprintf(`poa_headers_rejected{kind=%q}`, ve.Kind.Error())).Inc()
		}
		e.logger.Debug("Rejected header", "number", header.Number, "hash", header.Hash(), "err", err)
		return err
	}
	headersAccepted.Inc()
	return nil
}

func (e *Engine) validator(set *AuthoritySet) *Validator {
	v := NewValidator(set, e.policy)
	v.recover = e.Author
	v.now = e.now
	return v
}

// Prepare implements consensus.Engine, preparing all the consensus fields of the
// header for running the transactions on top.
func (e *Engine) Prepare(chain consensus.ChainHeaderReader, header *types.Header) error {
	if header.Number == nil || header.Number.Sign() == 0 {
		return errUnknownBlock
	}
	number := header.Number.Uint64()
	parent := chain.GetHeader(header.ParentHash, number-1)
	if parent == nil {
		return consensus.ErrUnknownAncestor
	}
	set, err := e.AuthoritiesAt(chain, parent)
	if err != nil {
		return err
	}

	e.lock.RLock()
	signer := e.signer
	e.lock.RUnlock()

	header.Coinbase = common.Address{}
	header.Nonce = types.BlockNonce{}
	header.Difficulty = calcDifficulty(set, number, signer)

	// Ensure the extra data has all its components
	if len(header.Extra) < ExtraVanity {
		header.Extra = append(header.Extra, bytes.Repeat([]byte{0x00}, ExtraVanity-len(header.Extra))...)
	}
	header.Extra = header.Extra[:ExtraVanity]
	if set.IsEpochBoundary(number) {
		for _, s := range set.Signers() {
			header.Extra = append(header.Extra, s[:]...)
		}
	}
	header.Extra = append(header.Extra, make([]byte, ExtraSeal)...)

	// Mix digest is reserved for now, set to empty
	header.MixDigest = common.Hash{}
	header.UncleHash = types.CalcUncleHash(nil)

	if header.GasLimit == 0 {
		header.GasLimit = parent.GasLimit
	}
	if header.BaseFee == nil && parent.BaseFee != nil {
		header.BaseFee = new(big.Int).Set(parent.BaseFee)
	}

	// Ensure the timestamp has the correct delay
	header.Time = parent.Time + set.Period()
	if now := e.now().Unix(); now > 0 && header.Time < uint64(now) {
		header.Time = uint64(now)
	}
	return nil
}

// Authorize injects a signing key into the consensus engine to mint new blocks
// with.
func (e *Engine) Authorize(signer common.Address, ks keystore.Signer) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.signer = signer
	e.sealer = NewSealer(ks)
}

// Signer returns the address blocks are sealed with.
func (e *Engine) Signer() common.Address {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.signer
}

// Seal implements consensus.Engine. It signs header with the authorized key and
// returns the sealed copy once the block's timestamp is reached. Out-of-turn
// signers wait an additional random delay so the in-turn block propagates first.
func (e *Engine) Seal(ctx context.Context, chain consensus.ChainHeaderReader, header *types.Header) (*types.Header, error) {
	// Sealing the genesis block is not supported
	if header.Number == nil || header.Number.Sign() == 0 {
		return nil, errUnknownBlock
	}
	number := header.Number.Uint64()

	// Don't hold the signer fields for the entire sealing procedure
	e.lock.RLock()
	signer, sealer := e.signer, e.sealer
	e.lock.RUnlock()
	if sealer == nil {
		return nil, errNoSigningKey
	}

	// Bail out if we're unauthorized to sign a block
	parent := chain.GetHeader(header.ParentHash, number-1)
	if parent == nil {
		return nil, consensus.ErrUnknownAncestor
	}
	set, err := e.AuthoritiesAt(chain, parent)
	if err != nil {
		return nil, err
	}
	if !set.IsAuthorized(signer) {
		return nil, fmt.Errorf("poa.Seal: %w", ErrUnauthorizedSigner)
	}
	inturn := set.IsInTurn(number, signer)
	if !inturn && e.policy.StrictTurn {
		return nil, fmt.Errorf("poa.Seal: %w", ErrWrongSigner)
	}

	// Sweet, the protocol permits us to sign the block, wait for our time
	delay := time.Unix(int64(header.Time), 0).Sub(e.now())
	if !inturn {
		// It's not our turn explicitly to sign, delay it a bit
		wiggle := time.Duration(set.Len()/2+1) * wiggleTime
		delay += time.Duration(rand.Int63n(int64(wiggle))) // nolint: gosec

		e.logger.Trace("Out-of-turn signing requested", "wiggle", common.PrettyDuration(wiggle))
	}

	sealed, err := sealer.Seal(header, signer)
	if err != nil {
		return nil, err
	}

	// Wait until sealing is terminated or delay timeout.
	e.logger.Trace("Waiting for slot to sign and propagate", "delay", common.PrettyDuration(delay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.exitCh:
		return nil, errEngineClosed
	case <-timer.C:
	}
	blocksSealed.Inc()
	return sealed, nil
}

// CalcDifficulty is the difficulty adjustment algorithm. It returns the difficulty
// that a block built on parent by the local signer should have:
// * DIFF_NOTURN(2) if BLOCK_NUMBER % SIGNER_COUNT != SIGNER_INDEX
// * DIFF_INTURN(1) if BLOCK_NUMBER % SIGNER_COUNT == SIGNER_INDEX
func (e *Engine) CalcDifficulty(chain consensus.ChainHeaderReader, parent *types.Header) *big.Int {
	set, err := e.AuthoritiesAt(chain, parent)
	if err != nil {
		return nil
	}
	return calcDifficulty(set, parent.Number.Uint64()+1, e.Signer())
}

func calcDifficulty(set *AuthoritySet, number uint64, signer common.Address) *big.Int {
	if set.IsInTurn(number, signer) {
		return new(big.Int).Set(DiffInTurn)
	}
	return new(big.Int).Set(DiffNoTurn)
}

// SealHash returns the hash of a block prior to it being sealed.
func (e *Engine) SealHash(header *types.Header) common.Hash {
	return SealHash(header)
}

// Close implements consensus.Engine, aborting pending Seal calls.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.exitCh) })
	return nil
}

// batchReader resolves headers of a batch under verification before falling
// back to the local chain.
type batchReader struct {
	consensus.ChainHeaderReader
	byHash map[common.Hash]*types.Header
}

func newBatchReader(chain consensus.ChainHeaderReader, headers []*types.Header) *batchReader {
	r := &batchReader{
		ChainHeaderReader: chain,
		byHash:            make(map[common.Hash]*types.Header, len(headers)),
	}
	for _, h := range headers {
		if h.Number == nil {
			continue
		}
		r.byHash[h.Hash()] = h
	}
	return r
}

func (r *batchReader) GetHeader(hash common.Hash, number uint64) *types.Header {
	if h, ok := r.byHash[hash]; ok && h.Number.Uint64() == number {
		return h
	}
	return r.ChainHeaderReader.GetHeader(hash, number)
}

func (r *batchReader) GetHeaderByHash(hash common.Hash) *types.Header {
	if h, ok := r.byHash[hash]; ok {
		return h
	}
	return r.ChainHeaderReader.GetHeaderByHash(hash)
}
