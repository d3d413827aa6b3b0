// Copyright 2014 The go-ethereum Authors
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

package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/erigontech/poa/crypto/cryptopool"
)

// SignatureLength indicates the byte length required to carry a signature with recovery id.
const SignatureLength = 64 + 1 // 64 bytes ECDSA signature + 1 byte recovery id

// RecoveryIDOffset points to the byte offset within the signature that contains the recovery id.
const RecoveryIDOffset = 64

// DigestLength sets the signature digest exact length
const DigestLength = 32

var (
	secp256k1N     = uint256.MustFromHex("0xfffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	secp256k1halfN = new(uint256.Int).Rsh(secp256k1N, 1)
)

var errInvalidPubkey = errors.New("invalid secp256k1 public key")

// KeccakState wraps sha3.state. In addition to the usual hash methods, it also supports
// Read to get a variable amount of data from the hash state.
type KeccakState = cryptopool.KeccakState

// NewKeccakState creates a new KeccakState
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// HashData hashes the provided data using the KeccakState and returns a 32 byte hash
func HashData(kh KeccakState, data []byte) (h common.Hash) {
	kh.Reset()
	kh.Write(data)
	kh.Read(h[:]) //nolint:errcheck
	return h
}

// Keccak256 calculates and returns the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	b := make([]byte, 32)
	d := cryptopool.NewLegacyKeccak256()
	defer cryptopool.ReturnToPoolKeccak256(d)
	for _, v := range data {
		d.Write(v)
	}
	d.Read(b) //nolint:errcheck
	return b
}

// Keccak256Hash calculates and returns the Keccak256 hash of the input data,
// converting it to an internal Hash data structure.
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	d := cryptopool.NewLegacyKeccak256()
	defer cryptopool.ReturnToPoolKeccak256(d)
	for _, b := range data {
		d.Write(b)
	}
	d.Read(h[:]) //nolint:errcheck
	return h
}

// S256 returns an instance of the secp256k1 curve.
func S256() *secp256k1.KoblitzCurve {
	return secp256k1.S256()
}

// ToECDSA creates a private key with the given D value.
func ToECDSA(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != 32 {
		return nil, fmt.Errorf("invalid length, need 256 bits")
	}
	var key secp256k1.ModNScalar
	if overflow := key.SetByteSlice(d); overflow || key.IsZero() {
		return nil, errors.New("invalid private key, >=N or zero")
	}
	return secp256k1.NewPrivateKey(&key).ToECDSA(), nil
}

// FromECDSA exports a private key into a binary dump.
func FromECDSA(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return priv.D.FillBytes(make([]byte, 32))
}

// HexToECDSA parses a secp256k1 private key.
func HexToECDSA(hexkey string) (*ecdsa.PrivateKey, error) {
	b, err := hex.DecodeString(hexkey)
	if byteErr, ok := err.(hex.InvalidByteError); ok {
		return nil, fmt.Errorf("invalid hex character %q in private key", byte(byteErr))
	} else if err != nil {
		return nil, errors.New("invalid hex data for private key")
	}
	return ToECDSA(b)
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return key.ToECDSA(), nil
}

// MarshalPubkey converts a public key into the 64 byte X||Y form.
func MarshalPubkey(pub *ecdsa.PublicKey) []byte {
	return toDecredPubkey(pub).SerializeUncompressed()[1:]
}

// UnmarshalPubkey converts a 64 byte X||Y buffer into a secp256k1 public key.
func UnmarshalPubkey(pub []byte) (*ecdsa.PublicKey, error) {
	if len(pub) != 64 {
		return nil, errInvalidPubkey
	}
	buf := make([]byte, 65)
	buf[0] = 4
	copy(buf[1:], pub)
	key, err := secp256k1.ParsePubKey(buf)
	if err != nil {
		return nil, errInvalidPubkey
	}
	return key.ToECDSA(), nil
}

// PubkeyToAddress derives the 20 byte account identity of a public key.
func PubkeyToAddress(p ecdsa.PublicKey) common.Address {
	return common.BytesToAddress(Keccak256(MarshalPubkey(&p))[12:])
}

// ValidateSignatureValues verifies whether the signature values are valid with
// the given chain rules. The v value is assumed to be either 0 or 1.
func ValidateSignatureValues(v byte, r, s *uint256.Int, homestead bool) bool {
	if r.IsZero() || s.IsZero() {
		return false
	}
	// reject upper range of s values (ECDSA malleability)
	// see discussion in secp256k1/libsecp256k1/include/secp256k1.h
	if homestead && s.Gt(secp256k1halfN) {
		return false
	}
	// Frontier: allow s to be in full N range
	return r.Lt(secp256k1N) && s.Lt(secp256k1N) && (v == 0 || v == 1)
}

func toDecredPubkey(pub *ecdsa.PublicKey) *secp256k1.PublicKey {
	var x, y secp256k1.FieldVal
	x.SetByteSlice(bigBytes32(pub.X))
	y.SetByteSlice(bigBytes32(pub.Y))
	return secp256k1.NewPublicKey(&x, &y)
}

func bigBytes32(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 32))
}
