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
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/crypto"
)

// Sealer writes and reads the seal of a header.
type Sealer struct {
	signer keystore.Signer
}

func NewSealer(signer keystore.Signer) *Sealer {
	return &Sealer{signer: signer}
}

// Seal signs the seal hash of header with the key of addr and returns a copy
// of header carrying the new seal. An existing seal is replaced in place, so
// sealing twice leaves the extra-data length unchanged. Signing failures are
// returned as is (keystore.ErrNoSignerForAddress, keystore.ErrSigningFailed).
func (s *Sealer) Seal(header *types.Header, addr common.Address) (*types.Header, error) {
	sighash := SealHash(header)
	sig, err := s.signer.SignHash(addr, sighash[:])
	if err != nil {
		return nil, err
	}
	if len(sig) != ExtraSeal {
		return nil, fmt.Errorf("%w: signature length %d", keystore.ErrSigningFailed, len(sig))
	}

	sealed := types.CopyHeader(header)
	extra := sealed.Extra
	if len(extra) >= ExtraSeal {
		extra = extra[:len(extra)-ExtraSeal]
	}
	sealed.Extra = append(extra, sig...)
	return sealed, nil
}

// RecoverSigner extracts the address of the account that sealed header.
func RecoverSigner(header *types.Header) (common.Address, error) {
	if len(header.Extra) < MinExtraLength {
		return common.Address{}, fmt.Errorf("%w: %d bytes, want at least %d", ErrExtraDataTooShort, len(header.Extra), MinExtraLength)
	}
	seal := header.Extra[len(header.Extra)-ExtraSeal:]
	sig, err := DecodeSeal(seal)
	if err != nil {
		return common.Address{}, err
	}

	pubkey, err := crypto.Ecrecover(SealHash(header).Bytes(), sig.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	var signer common.Address
	copy(signer[:], crypto.Keccak256(pubkey[1:])[12:])
	return signer, nil
}

// RecoverSigner is the method form of the package level RecoverSigner.
func (s *Sealer) RecoverSigner(header *types.Header) (common.Address, error) {
	return RecoverSigner(header)
}
