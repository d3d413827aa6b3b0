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

package poa

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/crypto"
)

func TestSealRoundTrip(t *testing.T) {
	ks, signers := newTestKeyStore(t, 3)
	set, err := NewAuthoritySet(signers, 2, 30000)
	require.NoError(t, err)
	genesis := testGenesis(signers)

	for _, signer := range signers {
		h := sealWith(t, ks, childHeader(genesis, set, signer), signer)
		got, err := RecoverSigner(h)
		require.NoError(t, err)
		assert.Equal(t, signer, got)

		sig, err := DecodeSeal(h.Extra[len(h.Extra)-ExtraSeal:])
		require.NoError(t, err)
		assert.LessOrEqual(t, sig.V, byte(1))
	}
}

func TestSealHashInvariantUnderReseal(t *testing.T) {
	ks, signers := newTestKeyStore(t, 2)
	set, err := NewAuthoritySet(signers, 2, 30000)
	require.NoError(t, err)
	unsealed := childHeader(testGenesis(signers), set, signers[1])

	once := sealWith(t, ks, unsealed, signers[1])
	twice := sealWith(t, ks, once, signers[1])

	assert.Equal(t, SealHash(unsealed), SealHash(once))
	assert.Equal(t, SealHash(once), SealHash(twice))
	assert.Len(t, twice.Extra, len(unsealed.Extra))
	assert.Equal(t, once.Extra, twice.Extra, "signing is deterministic")

	// resealing by another signer only replaces the seal
	other := sealWith(t, ks, once, signers[0])
	assert.Equal(t, SealHash(once), SealHash(other))
	got, err := RecoverSigner(other)
	require.NoError(t, err)
	assert.Equal(t, signers[0], got)
}

func TestSealDoesNotMutateInput(t *testing.T) {
	ks, signers := newTestKeyStore(t, 1)
	set, err := NewAuthoritySet(signers, 2, 30000)
	require.NoError(t, err)
	h := childHeader(testGenesis(signers), set, signers[0])
	before := bytes.Clone(h.Extra)

	_ = sealWith(t, ks, h, signers[0])
	assert.Equal(t, before, h.Extra)
}

func TestSealErrors(t *testing.T) {
	ks, signers := newTestKeyStore(t, 1)
	set, err := NewAuthoritySet(signers, 2, 30000)
	require.NoError(t, err)
	h := childHeader(testGenesis(signers), set, signers[0])

	_, err = NewSealer(ks).Seal(h, common.HexToAddress("0x01"))
	require.ErrorIs(t, err, keystore.ErrNoSignerForAddress)
}

func TestSealHashCoversHeaderFields(t *testing.T) {
	_, signers := newTestKeyStore(t, 1)
	set, err := NewAuthoritySet(signers, 2, 30000)
	require.NoError(t, err)
	base := childHeader(testGenesis(signers), set, signers[0])
	hash := SealHash(base)

	mutations := map[string]func(h *types.Header){
		"time":       func(h *types.Header) { h.Time++ },
		"gasLimit":   func(h *types.Header) { h.GasLimit++ },
		"difficulty": func(h *types.Header) { h.Difficulty = big.NewInt(7) },
		"vanity":     func(h *types.Header) { h.Extra[0] = 1 },
		"baseFee":    func(h *types.Header) { h.BaseFee = nil },
		"coinbase":   func(h *types.Header) { h.Coinbase = common.HexToAddress("0x02") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			h := types.CopyHeader(base)
			mutate(h)
			assert.NotEqual(t, hash, SealHash(h))
		})
	}

	t.Run("seal", func(t *testing.T) {
		h := types.CopyHeader(base)
		h.Extra[len(h.Extra)-1] = 0xff
		assert.Equal(t, hash, SealHash(h))
	})
}

func TestSealHashShortExtra(t *testing.T) {
	h := &types.Header{Number: big.NewInt(1), Difficulty: big.NewInt(1), Extra: []byte{1, 2, 3}}

	enc, err := rlp.EncodeToBytes([]interface{}{
		h.ParentHash, h.UncleHash, h.Coinbase, h.Root, h.TxHash, h.ReceiptHash, h.Bloom,
		h.Difficulty, h.Number, h.GasLimit, h.GasUsed, h.Time, h.Extra, h.MixDigest, h.Nonce,
	})
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(enc), SealHash(h))
	assert.Equal(t, enc, PoARLP(h))
}

func TestRecoverSignerErrors(t *testing.T) {
	ks, signers := newTestKeyStore(t, 1)
	set, err := NewAuthoritySet(signers, 2, 30000)
	require.NoError(t, err)
	sealed := sealWith(t, ks, childHeader(testGenesis(signers), set, signers[0]), signers[0])

	t.Run("too short", func(t *testing.T) {
		h := types.CopyHeader(sealed)
		h.Extra = h.Extra[:MinExtraLength-1]
		_, err := RecoverSigner(h)
		require.ErrorIs(t, err, ErrExtraDataTooShort)
	})
	t.Run("zero seal", func(t *testing.T) {
		h := types.CopyHeader(sealed)
		copy(h.Extra[len(h.Extra)-ExtraSeal:], make([]byte, ExtraSeal))
		_, err := RecoverSigner(h)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("bad recovery id", func(t *testing.T) {
		h := types.CopyHeader(sealed)
		h.Extra[len(h.Extra)-1] = 5
		_, err := RecoverSigner(h)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
	t.Run("tampered header", func(t *testing.T) {
		h := types.CopyHeader(sealed)
		h.Time++
		got, err := RecoverSigner(h)
		if err == nil {
			assert.NotEqual(t, signers[0], got)
		}
	})
}

func TestDecodeSeal(t *testing.T) {
	ks, signers := newTestKeyStore(t, 1)
	digest := crypto.Keccak256([]byte("seal"))
	raw, err := ks.SignHash(signers[0], digest)
	require.NoError(t, err)

	sig, err := DecodeSeal(raw)
	require.NoError(t, err)
	enc := EncodeSeal(sig)
	assert.Equal(t, raw, enc[:])
	assert.Equal(t, raw, sig.Bytes())

	// legacy 27/28 recovery ids normalize to 0/1
	legacy := bytes.Clone(raw)
	legacy[crypto.RecoveryIDOffset] += 27
	sig27, err := DecodeSeal(legacy)
	require.NoError(t, err)
	assert.Equal(t, sig, sig27)

	for name, mutate := range map[string]func([]byte) []byte{
		"short":    func(b []byte) []byte { return b[:64] },
		"long":     func(b []byte) []byte { return append(b, 0) },
		"v=2":      func(b []byte) []byte { b[64] = 2; return b },
		"v=29":     func(b []byte) []byte { b[64] = 29; return b },
		"r=0":      func(b []byte) []byte { copy(b[:32], make([]byte, 32)); return b },
		"s=0":      func(b []byte) []byte { copy(b[32:64], make([]byte, 32)); return b },
		"r>=N":     func(b []byte) []byte { copy(b[:32], bytes.Repeat([]byte{0xff}, 32)); return b },
		"s>=N":     func(b []byte) []byte { copy(b[32:64], bytes.Repeat([]byte{0xff}, 32)); return b },
		"all-0xff": func(b []byte) []byte { return bytes.Repeat([]byte{0xff}, 65) },
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSeal(mutate(bytes.Clone(raw)))
			require.True(t, errors.Is(err, ErrInvalidSignature), "got %v", err)
		})
	}
}

func TestExtractSigners(t *testing.T) {
	a := common.HexToAddress("0x000000000000000000000000000000000000000a")
	b := common.HexToAddress("0x000000000000000000000000000000000000000b")

	extra := BuildExtra([]byte("vanity"), []common.Address{a, b})
	require.Len(t, extra, 137)
	signers, err := ExtractSigners(extra)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{a, b}, signers)

	empty, err := ExtractSigners(BuildExtra(nil, nil))
	require.NoError(t, err)
	assert.Empty(t, empty)

	// every misaligned length fails
	for n := MinExtraLength + 1; n < MinExtraLength+3*common.AddressLength; n++ {
		if (n-MinExtraLength)%common.AddressLength == 0 {
			continue
		}
		_, err := ExtractSigners(make([]byte, n))
		require.ErrorIs(t, err, ErrInvalidSignerList, "length %d", n)
	}
	_, err = ExtractSigners(make([]byte, MinExtraLength-1))
	require.ErrorIs(t, err, ErrInvalidSignerList)
}

func TestBuildExtra(t *testing.T) {
	long := bytes.Repeat([]byte{0x11}, 40)
	extra := BuildExtra(long, nil)
	require.Len(t, extra, MinExtraLength)
	assert.Equal(t, long[:ExtraVanity], extra[:ExtraVanity])
	assert.Equal(t, make([]byte, ExtraSeal), extra[ExtraVanity:])

	extra = BuildExtra([]byte{1}, nil)
	assert.Equal(t, byte(1), extra[0])
	assert.Equal(t, make([]byte, ExtraVanity-1), extra[1:ExtraVanity])
}
