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

// Tables share one pebble keyspace; every key starts with the table prefix.
const (
	// HeaderNumber maps header hash to its number
	HeaderNumber = "HeaderNumber"

	// Headers maps block number + hash to the RLP encoded header
	Headers = "Header"

	// HeaderCanonical maps a block number to its canonical hash
	HeaderCanonical = "CanonicalHeader"

	// HeadHeaderKey stores the hash of the canonical head header
	HeadHeaderKey = "LastHeader"

	// ConfigTable maps the genesis hash to the JSON chain config
	ConfigTable = "Config"

	// PoASnapshots maps checkpoint number + hash to the JSON authority snapshot
	PoASnapshots = "PoASnapshots"
)

var tablePrefixes = map[string]byte{
	HeaderNumber:    'H',
	Headers:         'h',
	HeaderCanonical: 'c',
	HeadHeaderKey:   'L',
	ConfigTable:     'C',
	PoASnapshots:    'p',
}

// ChaindataTables lists every table of the chain database.
var ChaindataTables = []string{
	HeaderNumber,
	Headers,
	HeaderCanonical,
	HeadHeaderKey,
	ConfigTable,
	PoASnapshots,
}

func tableKey(table string, key []byte) []byte {
	prefix, ok := tablePrefixes[table]
	if !ok {
		panic("unknown table " + table)
	}
	k := make([]byte, 1+len(key))
	k[0] = prefix
	copy(k[1:], key)
	return k
}
