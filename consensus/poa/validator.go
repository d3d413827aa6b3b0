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
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/poa/consensus"
	"github.com/erigontech/poa/core/types"
)

// GasLimitBoundDivisor bounds how much the gas limit may move between a parent
// and its child.
const GasLimitBoundDivisor = 1024

var (
	DiffInTurn = big.NewInt(1) // Block difficulty for in-turn signatures
	DiffNoTurn = big.NewInt(2) // Block difficulty for out-of-turn signatures
)

// Policy holds the validation rules deployments may tighten.
type Policy struct {
	// StrictTurn rejects blocks sealed out of turn with ErrWrongSigner instead
	// of accepting them at the lower priority.
	StrictTurn bool

	// CheckpointMustMatch requires the signer list of an epoch block to equal
	// the active authority set.
	CheckpointMustMatch bool

	// MaxFutureDrift rejects blocks whose timestamp is further ahead of the
	// local clock. Zero disables the check.
	MaxFutureDrift time.Duration
}

// Validator is the header acceptance state machine for one authority set.
type Validator struct {
	authorities *AuthoritySet
	policy      Policy

	recover func(*types.Header) (common.Address, error)
	now     func() time.Time
}

var _ consensus.HeaderValidator = (*Validator)(nil)

func NewValidator(authorities *AuthoritySet, policy Policy) *Validator {
	return &Validator{
		authorities: authorities,
		policy:      policy,
		recover:     RecoverSigner,
		now:         time.Now,
	}
}

// Authorities returns the set the validator checks against.
func (v *Validator) Authorities() *AuthoritySet { return v.authorities }

// ValidateHeaderAgainstParent checks header against its already accepted
// parent. The checks run in a fixed order and the first failure is returned
// as a *ValidationError.
func (v *Validator) ValidateHeaderAgainstParent(header, parent *types.Header) error {
	if header.Number == nil || parent.Number == nil {
		return errUnknownBlock
	}
	number := header.Number.Uint64()

	// Recover the signer from the seal
	signer, err := v.recover(header)
	if err != nil {
		return &ValidationError{Kind: kindOf(err), Number: number, Detail: err.Error()}
	}

	// Only authorities of the current epoch may seal
	if !v.authorities.IsAuthorized(signer) {
		return reject(ErrUnauthorizedSigner, number, "signer %s", signer)
	}

	// The header must extend parent directly
	if !parent.Number.IsUint64() || parent.Number.Uint64()+1 != number {
		return reject(ErrParentBlockNumberMismatch, number, "parent number %v", parent.Number)
	}
	if parentHash := parent.Hash(); header.ParentHash != parentHash {
		return reject(ErrParentHashMismatch, number, "have %s, want %s", header.ParentHash, parentHash)
	}

	// Ensure that the block's timestamp isn't too close to its parent
	if header.Time < parent.Time || header.Time-parent.Time < v.authorities.Period() {
		return reject(ErrTimestampTooEarly, number, "timestamp %d, parent %d, period %d", header.Time, parent.Time, v.authorities.Period())
	}
	if drift := v.policy.MaxFutureDrift; drift > 0 {
		limit := v.now().Add(drift).Unix()
		if limit >= 0 && header.Time > uint64(limit) {
			return reject(ErrTimestampTooFarInFuture, number, "timestamp %d, limit %d", header.Time, limit)
		}
	}

	if err := verifyGasLimit(parent.GasLimit, header.GasLimit); err != nil {
		return reject(err, number, "parent %d, header %d, max delta %d", parent.GasLimit, header.GasLimit, parent.GasLimit/GasLimitBoundDivisor)
	}

	// Difficulty encodes whether the signer was in turn
	inturn := v.authorities.IsInTurn(number, signer)
	if v.policy.StrictTurn && !inturn {
		expected, _ := v.authorities.ExpectedSigner(number)
		return reject(ErrWrongSigner, number, "signer %s, expected %s", signer, expected)
	}
	want := DiffNoTurn
	if inturn {
		want = DiffInTurn
	}
	if header.Difficulty == nil || header.Difficulty.Cmp(want) != 0 {
		return reject(ErrInvalidDifficulty, number, "have %v, want %v", header.Difficulty, want)
	}

	// Checkpoint blocks carry the signer list
	if v.authorities.IsEpochBoundary(number) {
		signers, err := ExtractSigners(header.Extra)
		if err != nil {
			return &ValidationError{Kind: ErrInvalidSignerList, Number: number, Detail: err.Error()}
		}
		if len(signers) == 0 {
			return reject(ErrInvalidSignerList, number, "empty signer list")
		}
		if _, err := v.authorities.WithSigners(signers); err != nil {
			return &ValidationError{Kind: ErrInvalidSignerList, Number: number, Detail: err.Error()}
		}
		if v.policy.CheckpointMustMatch && !v.authorities.EqualSigners(signers) {
			return reject(ErrInvalidSignerList, number, "checkpoint signers differ from the active set")
		}
	}
	return nil
}

// verifyGasLimit checks that the gas limit moved by at most parent/1024 in
// either direction.
func verifyGasLimit(parentGasLimit, headerGasLimit uint64) error {
	maxDelta := parentGasLimit / GasLimitBoundDivisor
	if headerGasLimit > parentGasLimit {
		if headerGasLimit-parentGasLimit > maxDelta {
			return ErrGasLimitInvalidIncrease
		}
		return nil
	}
	if parentGasLimit-headerGasLimit > maxDelta {
		return ErrGasLimitInvalidDecrease
	}
	return nil
}

// kindOf maps a recovery failure onto its validation error kind.
func kindOf(err error) error {
	for _, kind := range []error{ErrExtraDataTooShort, ErrInvalidSignature} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInvalidSignature
}
