// Copyright 2018 The go-ethereum Authors
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

package rawdb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ledgerwatch/log/v3"

	"github.com/erigontech/poa/common/dbutils"
	"github.com/erigontech/poa/core/types"
)

// ReadCanonicalHash retrieves the hash assigned to a canonical block number.
func ReadCanonicalHash(db Getter, number uint64) (common.Hash, error) {
	data, err := db.GetOne(HeaderCanonical, dbutils.EncodeBlockNumber(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed ReadCanonicalHash: %w, number=%d", err, number)
	}
	if len(data) == 0 {
		return common.Hash{}, nil
	}
	return common.BytesToHash(data), nil
}

// WriteCanonicalHash stores the hash assigned to a canonical block number.
func WriteCanonicalHash(db Putter, hash common.Hash, number uint64) error {
	if err := db.Put(HeaderCanonical, dbutils.EncodeBlockNumber(number), hash.Bytes()); err != nil {
		return fmt.Errorf("failed to store number to hash mapping: %w", err)
	}
	return nil
}

// ReadHeaderNumber returns the header number assigned to a hash.
func ReadHeaderNumber(db Getter, hash common.Hash) *uint64 {
	data, err := db.GetOne(HeaderNumber, hash.Bytes())
	if err != nil {
		log.Error("ReadHeaderNumber failed", "err", err)
	}
	if len(data) == 0 {
		return nil
	}
	if len(data) != dbutils.NumberLength {
		log.Error("ReadHeaderNumber got wrong data len", "len", len(data))
		return nil
	}
	number := binary.BigEndian.Uint64(data)
	return &number
}

// ReadHeadHeaderHash retrieves the hash of the current canonical head header.
func ReadHeadHeaderHash(db Getter) common.Hash {
	data, err := db.GetOne(HeadHeaderKey, []byte(HeadHeaderKey))
	if err != nil {
		log.Error("ReadHeadHeaderHash failed", "err", err)
	}
	if len(data) == 0 {
		return common.Hash{}
	}
	return common.BytesToHash(data)
}

// WriteHeadHeaderHash stores the hash of the current canonical head header.
func WriteHeadHeaderHash(db Putter, hash common.Hash) error {
	if err := db.Put(HeadHeaderKey, []byte(HeadHeaderKey), hash.Bytes()); err != nil {
		return fmt.Errorf("failed to store last header's hash: %w", err)
	}
	return nil
}

// ReadHeaderRLP retrieves a block header in its raw RLP database encoding.
func ReadHeaderRLP(db Getter, hash common.Hash, number uint64) rlp.RawValue {
	data, err := db.GetOne(Headers, dbutils.HeaderKey(number, hash))
	if err != nil {
		log.Error("ReadHeaderRLP failed", "err", err)
	}
	return data
}

// HasHeader verifies the existence of a block header corresponding to the hash.
func HasHeader(db Getter, hash common.Hash, number uint64) bool {
	if has, err := db.Has(Headers, dbutils.HeaderKey(number, hash)); !has || err != nil {
		return false
	}
	return true
}

// ReadHeader retrieves the block header corresponding to the hash.
func ReadHeader(db Getter, hash common.Hash, number uint64) *types.Header {
	data := ReadHeaderRLP(db, hash, number)
	if len(data) == 0 {
		return nil
	}
	header := new(types.Header)
	if err := rlp.Decode(bytes.NewReader(data), header); err != nil {
		log.Error("Invalid block header RLP", "hash", hash, "err", err)
		return nil
	}
	return header
}

// ReadHeaderByHash retrieves a header by hash alone.
func ReadHeaderByHash(db Getter, hash common.Hash) *types.Header {
	number := ReadHeaderNumber(db, hash)
	if number == nil {
		return nil
	}
	return ReadHeader(db, hash, *number)
}

// ReadHeaderByNumber retrieves the canonical header of a block number.
func ReadHeaderByNumber(db Getter, number uint64) *types.Header {
	hash, err := ReadCanonicalHash(db, number)
	if err != nil {
		log.Error("ReadCanonicalHash failed", "err", err)
		return nil
	}
	if hash == (common.Hash{}) {
		return nil
	}
	return ReadHeader(db, hash, number)
}

func ReadCurrentHeader(db Getter) *types.Header {
	headHash := ReadHeadHeaderHash(db)
	headNumber := ReadHeaderNumber(db, headHash)
	if headNumber == nil {
		return nil
	}
	return ReadHeader(db, headHash, *headNumber)
}

// WriteHeader stores a block header into the database and also stores the hash-
// to-number mapping.
func WriteHeader(db Putter, header *types.Header) error {
	var (
		hash    = header.Hash()
		number  = header.Number.Uint64()
		encoded = dbutils.EncodeBlockNumber(number)
	)
	if err := db.Put(HeaderNumber, hash[:], encoded); err != nil {
		return fmt.Errorf("failed to store hash to number mapping: %w", err)
	}
	// Write the encoded header
	data, err := rlp.EncodeToBytes(header)
	if err != nil {
		return fmt.Errorf("failed to RLP encode header: %w", err)
	}
	if err := db.Put(Headers, dbutils.HeaderKey(number, hash), data); err != nil {
		return fmt.Errorf("failed to store header: %w", err)
	}
	return nil
}

// TruncateCanonicalHash removes the canonical mapping of blocks from blockFrom
// up to and including blockTo.
func TruncateCanonicalHash(db Deleter, blockFrom, blockTo uint64) error {
	for n := blockFrom; n <= blockTo; n++ {
		if err := db.Delete(HeaderCanonical, dbutils.EncodeBlockNumber(n)); err != nil {
			return fmt.Errorf("TruncateCanonicalHash: %w", err)
		}
	}
	return nil
}
