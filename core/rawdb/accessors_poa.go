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

package rawdb

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/poa/common/dbutils"
)

// ReadPoASnapshot returns the encoded authority snapshot of a checkpoint, or
// nil if none was stored.
func ReadPoASnapshot(db Getter, number uint64, hash common.Hash) ([]byte, error) {
	return db.GetOne(PoASnapshots, dbutils.SnapshotKey(number, hash))
}

func WritePoASnapshot(db Putter, number uint64, hash common.Hash, blob []byte) error {
	return db.Put(PoASnapshots, dbutils.SnapshotKey(number, hash), blob)
}

// WalkPoASnapshots visits the stored snapshots of checkpoints from number
// onwards, in checkpoint order.
func WalkPoASnapshots(db *DB, from uint64, walker func(number uint64, hash common.Hash, blob []byte) error) error {
	return db.ForEach(PoASnapshots, dbutils.EncodeBlockNumber(from), func(k, v []byte) error {
		if len(k) != dbutils.NumberLength+common.HashLength {
			return fmt.Errorf("WalkPoASnapshots: malformed key %x", k)
		}
		number, err := dbutils.DecodeBlockNumber(k[:dbutils.NumberLength])
		if err != nil {
			return err
		}
		return walker(number, common.BytesToHash(k[dbutils.NumberLength:]), v)
	})
}

// SnapshotStore persists authority snapshots in a table store.
type SnapshotStore struct {
	db RwDB
}

func NewSnapshotStore(db RwDB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) ReadSnapshot(number uint64, hash common.Hash) ([]byte, error) {
	return ReadPoASnapshot(s.db, number, hash)
}

func (s *SnapshotStore) WriteSnapshot(number uint64, hash common.Hash, blob []byte) error {
	return WritePoASnapshot(s.db, number, hash, blob)
}
