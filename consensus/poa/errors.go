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
	"errors"
	"fmt"

	"github.com/erigontech/poa/consensus"
)

// Validation errors. Every header rejected by the validator carries exactly
// one of these as its kind, see ValidationError.
var (
	// ErrUnauthorizedSigner is returned if a header is signed by a non-authorized entity.
	ErrUnauthorizedSigner = errors.New("unauthorized signer")

	// ErrInvalidSignature is returned if the seal is not a structurally valid
	// secp256k1 signature or no public key can be recovered from it.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrExtraDataTooShort is returned if a block's extra-data section can't hold
	// the 32 byte vanity and the 65 byte seal.
	ErrExtraDataTooShort = errors.New("extra-data too short")

	// ErrTimestampTooEarly is returned if the timestamp of a block is lower than
	// the previous block's timestamp + the minimum block period.
	ErrTimestampTooEarly = errors.New("timestamp too early")

	// ErrTimestampTooFarInFuture is returned if the timestamp of a block is further
	// ahead of the local clock than the configured drift allows.
	ErrTimestampTooFarInFuture = fmt.Errorf("%w: timestamp beyond allowed drift", consensus.ErrFutureBlock)

	// ErrWrongSigner is returned under the strict turn policy when a block is
	// sealed by an authorized signer whose turn it is not.
	ErrWrongSigner = errors.New("wrong signer for block")

	// ErrInvalidDifficulty is returned if the difficulty of a block doesn't match
	// the turn of its signer.
	ErrInvalidDifficulty = errors.New("invalid difficulty")

	// ErrInvalidSignerList is returned if an epoch block carries a missing, empty
	// or malformed list of signers.
	ErrInvalidSignerList = errors.New("invalid signer list on checkpoint block")

	// ErrParentBlockNumberMismatch is returned if a block's number isn't its
	// parent's number plus one.
	ErrParentBlockNumberMismatch = errors.New("parent block number mismatch")

	// ErrParentHashMismatch is returned if a block's parent hash isn't the hash of
	// the given parent.
	ErrParentHashMismatch = errors.New("parent hash mismatch")

	// ErrGasLimitInvalidIncrease is returned if the gas limit grew by more than
	// 1/1024 of the parent's.
	ErrGasLimitInvalidIncrease = errors.New("gas limit increased too much")

	// ErrGasLimitInvalidDecrease is returned if the gas limit shrank by more than
	// 1/1024 of the parent's.
	ErrGasLimitInvalidDecrease = errors.New("gas limit decreased too much")
)

// errUnknownBlock is returned when sealing or resolving authorities for a block
// that has no place in the local chain (the genesis block, or a block without
// a number).
var errUnknownBlock = errors.New("unknown block")

// ValidationError reports why a header was rejected. It matches both its Kind
// and consensus.ErrRejected under errors.Is.
type ValidationError struct {
	Kind   error
	Number uint64
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("block %d: %v", e.Number, e.Kind)
	}
	return fmt.Sprintf("block %d: %v: %s", e.Number, e.Kind, e.Detail)
}

func (e *ValidationError) Unwrap() []error {
	return []error{e.Kind, consensus.ErrRejected}
}

func reject(kind error, number uint64, format string, args ...any) error {
	return &ValidationError{Kind: kind, Number: number, Detail: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a header rejection, as opposed to a
// lookup or I/O failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
