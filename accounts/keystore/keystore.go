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

// Package keystore keeps the in-memory signing keys of the local authorities.
// Keys live for the lifetime of the process and are never written anywhere.
package keystore

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/poa/crypto"
)

var (
	// ErrNoSignerForAddress is returned when a signature is requested for an
	// address the key store holds no key for.
	ErrNoSignerForAddress = errors.New("no signer for address")

	// ErrSigningFailed is returned when the underlying signature primitive fails.
	ErrSigningFailed = errors.New("signing failed")

	// ErrInvalidCredential is returned when an encoded private key can't be parsed.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Signer signs 32 byte digests on behalf of an account.
type Signer interface {
	SignHash(addr common.Address, hash []byte) ([]byte, error)
}

// KeyStore maps signer addresses to their private keys. Lookups and signing
// share a read lock so that concurrent signatures never serialize; Add and
// Remove take the write lock.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
}

func New() *KeyStore {
	return &KeyStore{keys: make(map[common.Address]*ecdsa.PrivateKey)}
}

// Add registers key and returns the address derived from it. Adding the same
// key twice is a no-op. A nil key is ignored and yields the zero address.
func (ks *KeyStore) Add(key *ecdsa.PrivateKey) common.Address {
	if key == nil {
		return common.Address{}
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[addr] = key
	return addr
}

// AddFromHex parses a hex encoded secp256k1 private key (0x prefix optional)
// and registers it.
func (ks *KeyStore) AddFromHex(secret string) (common.Address, error) {
	secret = strings.TrimSpace(secret)
	secret = strings.TrimPrefix(strings.TrimPrefix(secret, "0x"), "0X")
	key, err := crypto.HexToECDSA(secret)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return ks.Add(key), nil
}

// AddFromFile loads a hex encoded key file and registers the key.
func (ks *KeyStore) AddFromFile(path string) (common.Address, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %w", ErrInvalidCredential, path, err)
	}
	return ks.Add(key), nil
}

// Remove drops the key of addr. It reports whether a key was present.
func (ks *KeyStore) Remove(addr common.Address) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, ok := ks.keys[addr]; !ok {
		return false
	}
	delete(ks.keys, addr)
	return true
}

func (ks *KeyStore) Contains(addr common.Address) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	_, ok := ks.keys[addr]
	return ok
}

// List returns the registered addresses in ascending byte order.
func (ks *KeyStore) List() []common.Address {
	ks.mu.RLock()
	addrs := make([]common.Address, 0, len(ks.keys))
	for addr := range ks.keys {
		addrs = append(addrs, addr)
	}
	ks.mu.RUnlock()

	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return addrs
}

func (ks *KeyStore) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

// SignHash signs hash with the key of addr. The signature has the 65 byte
// [R || S || V] layout with V being 0 or 1. Only the read lock is held while
// signing.
func (ks *KeyStore) SignHash(addr common.Address, hash []byte) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	key, ok := ks.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSignerForAddress, addr)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return sig, nil
}
