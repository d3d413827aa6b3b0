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

package poa

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"

	"github.com/erigontech/poa/core/types"
)

// Snapshot is the signer list adopted at a checkpoint block. It is in force
// for the blocks of the following epoch.
type Snapshot struct {
	Number  uint64           `json:"number"`  // Block number of the checkpoint
	Hash    common.Hash      `json:"hash"`    // Block hash of the checkpoint
	Signers []common.Address `json:"signers"` // Authorized signers, in turn order
}

// SnapshotStore persists encoded snapshots keyed by checkpoint.
// ReadSnapshot returns nil, nil for an unknown checkpoint.
type SnapshotStore interface {
	ReadSnapshot(number uint64, hash common.Hash) ([]byte, error)
	WriteSnapshot(number uint64, hash common.Hash, blob []byte) error
}

// checkpointOf returns the checkpoint whose signer list governs block number.
// The list embedded in checkpoint N takes effect from block N+1.
func checkpointOf(number, epoch uint64) uint64 {
	if number == 0 {
		return 0
	}
	return (number - 1) / epoch * epoch
}

// snapshotFromHeader reads the signer list of a checkpoint header. fallback is
// used for a genesis block without an embedded list.
func snapshotFromHeader(header *types.Header, fallback []common.Address) (*Snapshot, error) {
	number := header.Number.Uint64()
	signers, err := ExtractSigners(header.Extra)
	if number == 0 && (err != nil || len(signers) == 0) {
		signers, err = fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint %d: %w", number, err)
	}
	return &Snapshot{Number: number, Hash: header.Hash(), Signers: signers}, nil
}

// loadSnapshot loads an existing snapshot from the store.
func loadSnapshot(store SnapshotStore, number uint64, hash common.Hash) (*Snapshot, error) {
	if store == nil {
		return nil, nil
	}
	blob, err := store.ReadSnapshot(number, hash)
	if err != nil || blob == nil {
		return nil, err
	}
	snap := new(Snapshot)
	if err := json.Unmarshal(blob, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// storeSnapshot inserts the snapshot into the store.
func storeSnapshot(store SnapshotStore, snap *Snapshot) error {
	if store == nil {
		return nil
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return store.WriteSnapshot(snap.Number, snap.Hash, blob)
}
