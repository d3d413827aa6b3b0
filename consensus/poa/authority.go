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
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/poa/params"
)

// AuthoritySet is the configuration in force for one epoch: the signers in
// turn order, the block period and the epoch length. A set is never modified
// after construction, so it is shared between goroutines without locking; a
// new epoch gets a new set.
type AuthoritySet struct {
	signers []common.Address
	period  uint64
	epoch   uint64
}

// NewAuthoritySet copies signers into a new set. Duplicated signers are
// rejected. A zero epoch falls back to the default epoch length.
func NewAuthoritySet(signers []common.Address, period, epoch uint64) (*AuthoritySet, error) {
	if epoch == 0 {
		epoch = params.DefaultEpoch
	}
	for i := range signers {
		for j := i + 1; j < len(signers); j++ {
			if signers[i] == signers[j] {
				return nil, fmt.Errorf("duplicate signer %s", signers[i])
			}
		}
	}
	return &AuthoritySet{signers: slices.Clone(signers), period: period, epoch: epoch}, nil
}

// AuthoritySetFromConfig builds the genesis authority set of a chain config.
func AuthoritySetFromConfig(cfg *params.PoAConfig) (*AuthoritySet, error) {
	return NewAuthoritySet(cfg.Signers, cfg.Period, cfg.Epoch)
}

// WithSigners returns a new set with the same timing and a new signer list.
func (a *AuthoritySet) WithSigners(signers []common.Address) (*AuthoritySet, error) {
	return NewAuthoritySet(signers, a.period, a.epoch)
}

// IsAuthorized reports whether addr may seal blocks during this epoch.
func (a *AuthoritySet) IsAuthorized(addr common.Address) bool {
	return slices.Contains(a.signers, addr)
}

// ExpectedSigner returns the in-turn signer of block number. The boolean is
// false iff the set is empty.
func (a *AuthoritySet) ExpectedSigner(number uint64) (common.Address, bool) {
	if len(a.signers) == 0 {
		return common.Address{}, false
	}
	return a.signers[number%uint64(len(a.signers))], true
}

// IsInTurn reports whether addr is the expected signer of block number.
func (a *AuthoritySet) IsInTurn(number uint64, addr common.Address) bool {
	expected, ok := a.ExpectedSigner(number)
	return ok && expected == addr
}

// IsEpochBoundary reports whether number is a checkpoint block. The genesis
// block always is.
func (a *AuthoritySet) IsEpochBoundary(number uint64) bool {
	return number%a.epoch == 0
}

// Signers returns a copy of the signer list in turn order.
func (a *AuthoritySet) Signers() []common.Address {
	return slices.Clone(a.signers)
}

func (a *AuthoritySet) Len() int       { return len(a.signers) }
func (a *AuthoritySet) Period() uint64 { return a.period }
func (a *AuthoritySet) Epoch() uint64  { return a.epoch }

// EqualSigners reports whether the set holds exactly signers, in the same order.
func (a *AuthoritySet) EqualSigners(signers []common.Address) bool {
	return slices.Equal(a.signers, signers)
}

func (a *AuthoritySet) String() string {
	names := make([]string, len(a.signers))
	for i, s := range a.signers {
		names[i] = s.Hex()
	}
	return fmt.Sprintf("authorities(period=%d epoch=%d signers=[%s])", a.period, a.epoch, strings.Join(names, ","))
}
