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
	"bytes"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/crypto"
	"github.com/erigontech/poa/crypto/cryptopool"
)

const (
	ExtraVanity = 32                     // Fixed number of extra-data prefix bytes reserved for signer vanity
	ExtraSeal   = crypto.SignatureLength // Fixed number of extra-data suffix bytes reserved for signer seal

	// MinExtraLength is the shortest extra-data a sealed header can carry.
	MinExtraLength = ExtraVanity + ExtraSeal
)

// Signature is a decoded seal. V is the recovery id, 0 or 1.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// Bytes returns the r || s || v form.
func (s Signature) Bytes() []byte {
	enc := EncodeSeal(s)
	return enc[:]
}

// EncodeSeal lays out sig as r(32) || s(32) || v(1).
func EncodeSeal(sig Signature) [ExtraSeal]byte {
	var out [ExtraSeal]byte
	copy(out[:32], sig.R[:])
	copy(out[32:64], sig.S[:])
	out[crypto.RecoveryIDOffset] = sig.V
	return out
}

// DecodeSeal parses a 65 byte seal. Both the 0/1 and the legacy 27/28 forms of
// v are accepted; r and s must lie in [1, N).
func DecodeSeal(b []byte) (Signature, error) {
	if len(b) != ExtraSeal {
		return Signature{}, fmt.Errorf("%w: seal length %d, want %d", ErrInvalidSignature, len(b), ExtraSeal)
	}
	v := b[crypto.RecoveryIDOffset]
	if v == 27 || v == 28 {
		v -= 27
	}
	r := new(uint256.Int).SetBytes(b[:32])
	s := new(uint256.Int).SetBytes(b[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return Signature{}, fmt.Errorf("%w: signature values out of range", ErrInvalidSignature)
	}
	var sig Signature
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	sig.V = v
	return sig, nil
}

// SealHash returns the hash of a block prior to it being sealed: the keccak256
// of the header RLP with the trailing 65 byte seal cut off the extra-data.
// Headers whose extra-data is shorter than a seal are hashed unmodified.
func SealHash(header *types.Header) (hash common.Hash) {
	hasher := cryptopool.NewLegacyKeccak256()
	defer cryptopool.ReturnToPoolKeccak256(hasher)

	encodeSigHeader(hasher, header)
	hasher.Sum(hash[:0])
	return hash
}

// PoARLP returns the rlp bytes which needs to be signed for the proof-of-authority
// sealing. The RLP to sign consists of the entire header apart from the 65 byte signature
// contained at the end of the extra data.
func PoARLP(header *types.Header) []byte {
	b := new(bytes.Buffer)
	encodeSigHeader(b, header)
	return b.Bytes()
}

func encodeSigHeader(w io.Writer, header *types.Header) {
	extra := header.Extra
	if len(extra) >= ExtraSeal {
		extra = extra[:len(extra)-ExtraSeal]
	}
	enc := []interface{}{
		header.ParentHash,
		header.UncleHash,
		header.Coinbase,
		header.Root,
		header.TxHash,
		header.ReceiptHash,
		header.Bloom,
		header.Difficulty,
		header.Number,
		header.GasLimit,
		header.GasUsed,
		header.Time,
		extra,
		header.MixDigest,
		header.Nonce,
	}
	if header.BaseFee != nil {
		enc = append(enc, header.BaseFee)
	}
	if err := rlp.Encode(w, enc); err != nil {
		panic("can't encode: " + err.Error())
	}
}

// ExtractSigners slices the signer list out of a checkpoint header's
// extra-data. It fails with ErrInvalidSignerList when the extra-data is
// shorter than vanity plus seal or the list isn't a whole number of addresses.
func ExtractSigners(extra []byte) ([]common.Address, error) {
	n := len(extra) - ExtraVanity - ExtraSeal
	if n < 0 {
		return nil, fmt.Errorf("%w: extra-data length %d", ErrInvalidSignerList, len(extra))
	}
	if n%common.AddressLength != 0 {
		return nil, fmt.Errorf("%w: %d signer bytes not a multiple of %d", ErrInvalidSignerList, n, common.AddressLength)
	}
	signers := make([]common.Address, n/common.AddressLength)
	for i := range signers {
		copy(signers[i][:], extra[ExtraVanity+i*common.AddressLength:])
	}
	return signers, nil
}

// BuildExtra assembles vanity | signers | zero seal. vanity is truncated or
// zero padded to 32 bytes.
func BuildExtra(vanity []byte, signers []common.Address) []byte {
	extra := make([]byte, ExtraVanity, ExtraVanity+len(signers)*common.AddressLength+ExtraSeal)
	copy(extra, vanity)
	for _, signer := range signers {
		extra = append(extra, signer[:]...)
	}
	return append(extra, make([]byte, ExtraSeal)...)
}
