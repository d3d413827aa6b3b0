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
	"errors"
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/cockroachdb/pebble"
	"github.com/ledgerwatch/log/v3"
)

// DefaultCacheSize is the block cache of the chain database.
const DefaultCacheSize = 64 * datasize.MB

type Getter interface {
	// GetOne returns the value of key in table, or nil if it is absent.
	GetOne(table string, key []byte) ([]byte, error)
	Has(table string, key []byte) (bool, error)
}

type Putter interface {
	Put(table string, key, value []byte) error
}

type Deleter interface {
	Delete(table string, key []byte) error
}

// RwDB is a readable and writable table store.
type RwDB interface {
	Getter
	Putter
	Deleter
}

// DB is the chain database, a pebble instance split into tables by key prefix.
type DB struct {
	db     *pebble.DB
	path   string
	logger log.Logger
}

var (
	_ RwDB = (*DB)(nil)
	_ RwDB = (*Batch)(nil)
)

// Open opens or creates the chain database in path.
func Open(path string, cache datasize.ByteSize, logger log.Logger) (*DB, error) {
	if cache == 0 {
		cache = DefaultCacheSize
	}
	c := pebble.NewCache(int64(cache.Bytes()))
	defer c.Unref()

	db, err := pebble.Open(path, &pebble.Options{Cache: c})
	if err != nil {
		return nil, fmt.Errorf("failed to open chain database at %s: %w", path, err)
	}
	logger.Info("Opened chain database", "path", path, "cache", cache.HumanReadable())
	return &DB{db: db, path: path, logger: logger}, nil
}

func (db *DB) Path() string { return db.path }

func (db *DB) Close() error {
	db.logger.Info("Closing chain database", "path", db.path)
	return db.db.Close()
}

func (db *DB) GetOne(table string, key []byte) ([]byte, error) {
	return getOne(db.db, table, key)
}

func (db *DB) Has(table string, key []byte) (bool, error) {
	v, err := db.GetOne(table, key)
	return v != nil, err
}

func (db *DB) Put(table string, key, value []byte) error {
	return db.db.Set(tableKey(table, key), value, pebble.Sync)
}

func (db *DB) Delete(table string, key []byte) error {
	return db.db.Delete(tableKey(table, key), pebble.Sync)
}

// ForEach calls walker for every entry of table with a key of at least
// fromKey, in key order. Keys are passed without the table prefix and are
// only valid during the call.
func (db *DB) ForEach(table string, fromKey []byte, walker func(k, v []byte) error) error {
	lower := tableKey(table, fromKey)
	upper := []byte{lower[0] + 1}
	iter, err := db.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := walker(iter.Key()[1:], iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

// NewBatch starts a write batch that also serves reads of its own writes.
func (db *DB) NewBatch() *Batch {
	return &Batch{b: db.db.NewIndexedBatch()}
}

// Batch collects writes that are committed atomically.
type Batch struct {
	b      *pebble.Batch
	closed bool
}

func (b *Batch) GetOne(table string, key []byte) ([]byte, error) {
	return getOne(b.b, table, key)
}

func (b *Batch) Has(table string, key []byte) (bool, error) {
	v, err := b.GetOne(table, key)
	return v != nil, err
}

func (b *Batch) Put(table string, key, value []byte) error {
	return b.b.Set(tableKey(table, key), value, nil)
}

func (b *Batch) Delete(table string, key []byte) error {
	return b.b.Delete(tableKey(table, key), nil)
}

// Commit applies the batch and releases it.
func (b *Batch) Commit() error {
	defer b.Rollback()
	return b.b.Commit(pebble.Sync)
}

// Rollback drops the batch. It is a no-op after Commit.
func (b *Batch) Rollback() {
	if b.closed {
		return
	}
	b.closed = true
	_ = b.b.Close()
}

func getOne(r pebble.Reader, table string, key []byte) ([]byte, error) {
	val, closer, err := r.Get(tableKey(table, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	defer closer.Close()
	return append([]byte{}, val...), nil
}
