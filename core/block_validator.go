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

package core

import "github.com/erigontech/poa/consensus/poa"

// CalcGasLimit computes the gas limit of the next block after parent. It moves
// the parent's limit towards desiredLimit by at most the step the consensus
// rules allow. A zero desiredLimit keeps the parent's limit.
func CalcGasLimit(parentGasLimit, desiredLimit uint64) uint64 {
	if desiredLimit == 0 {
		return parentGasLimit
	}
	var delta uint64
	if bound := parentGasLimit / poa.GasLimitBoundDivisor; bound > 0 {
		delta = bound - 1
	}
	limit := parentGasLimit
	// If we're outside our allowed gas range, we try to hone towards them
	if limit < desiredLimit {
		limit = parentGasLimit + delta
		if limit > desiredLimit {
			limit = desiredLimit
		}
		return limit
	}
	if limit > desiredLimit {
		limit = parentGasLimit - delta
		if limit < desiredLimit {
			limit = desiredLimit
		}
	}
	return limit
}
