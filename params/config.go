// Copyright 2016 The go-ethereum Authors
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

package params

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultPeriod = uint64(12)    // Seconds between blocks on a mainnet-like chain
	DefaultEpoch  = uint64(30000) // Blocks between signer list checkpoints
	DevPeriod     = uint64(2)     // Fast blocks for local development

	DevChainID = 31337
)

var (
	errZeroEpoch       = errors.New("epoch length must be positive")
	errDuplicateSigner = errors.New("duplicate signer")
)

// PoAConfig is the consensus engine config for proof-of-authority based sealing.
type PoAConfig struct {
	Period  uint64           `json:"period" toml:"period"`                       // Number of seconds between blocks to enforce
	Epoch   uint64           `json:"epoch" toml:"epoch"`                         // Blocks between signer list checkpoints
	Signers []common.Address `json:"signers,omitempty" toml:"signers,omitempty"` // Authorized signers, in turn order
}

// DefaultPoAConfig returns the mainnet-like settings without any signers.
func DefaultPoAConfig() *PoAConfig {
	return &PoAConfig{Period: DefaultPeriod, Epoch: DefaultEpoch}
}

// DevPoAConfig returns the fast local development settings for signers.
func DevPoAConfig(signers []common.Address) *PoAConfig {
	return &PoAConfig{Period: DevPeriod, Epoch: DefaultEpoch, Signers: signers}
}

// String implements the stringer interface, returning the consensus engine details.
func (c *PoAConfig) String() string {
	return fmt.Sprintf("poa(period: %d, epoch: %d, signers: %d)", c.Period, c.Epoch, len(c.Signers))
}

// Validate checks the config for values the engine cannot work with.
func (c *PoAConfig) Validate() error {
	if c.Epoch == 0 {
		return errZeroEpoch
	}
	seen := make(map[common.Address]struct{}, len(c.Signers))
	for _, s := range c.Signers {
		if _, ok := seen[s]; ok {
			return fmt.Errorf("%w: %s", errDuplicateSigner, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// ChainConfig is the core config which determines the blockchain settings.
// Every fork is active from genesis; the fields only exist so that genesis
// files stay readable by other Ethereum tooling.
type ChainConfig struct {
	ChainID *big.Int `json:"chainId"`

	HomesteadBlock      *big.Int `json:"homesteadBlock,omitempty"`
	EIP150Block         *big.Int `json:"eip150Block,omitempty"`
	EIP155Block         *big.Int `json:"eip155Block,omitempty"`
	EIP158Block         *big.Int `json:"eip158Block,omitempty"`
	ByzantiumBlock      *big.Int `json:"byzantiumBlock,omitempty"`
	ConstantinopleBlock *big.Int `json:"constantinopleBlock,omitempty"`
	PetersburgBlock     *big.Int `json:"petersburgBlock,omitempty"`
	IstanbulBlock       *big.Int `json:"istanbulBlock,omitempty"`
	BerlinBlock         *big.Int `json:"berlinBlock,omitempty"`
	LondonBlock         *big.Int `json:"londonBlock,omitempty"`

	TerminalTotalDifficulty       *big.Int `json:"terminalTotalDifficulty,omitempty"`
	TerminalTotalDifficultyPassed bool     `json:"terminalTotalDifficultyPassed,omitempty"`

	ShanghaiTime *uint64 `json:"shanghaiTime,omitempty"`
	CancunTime   *uint64 `json:"cancunTime,omitempty"`
	PragueTime   *uint64 `json:"pragueTime,omitempty"`

	Clique *PoAConfig `json:"clique,omitempty"`
}

// NewChainConfig returns a config with every fork enabled at genesis.
func NewChainConfig(chainID uint64, poa *PoAConfig) *ChainConfig {
	zero := uint64(0)
	return &ChainConfig{
		ChainID:                       new(big.Int).SetUint64(chainID),
		HomesteadBlock:                big.NewInt(0),
		EIP150Block:                   big.NewInt(0),
		EIP155Block:                   big.NewInt(0),
		EIP158Block:                   big.NewInt(0),
		ByzantiumBlock:                big.NewInt(0),
		ConstantinopleBlock:           big.NewInt(0),
		PetersburgBlock:               big.NewInt(0),
		IstanbulBlock:                 big.NewInt(0),
		BerlinBlock:                   big.NewInt(0),
		LondonBlock:                   big.NewInt(0),
		TerminalTotalDifficulty:       big.NewInt(0),
		TerminalTotalDifficultyPassed: true,
		ShanghaiTime:                  &zero,
		CancunTime:                    &zero,
		PragueTime:                    &zero,
		Clique:                        poa,
	}
}

func (c *ChainConfig) String() string {
	engine := "unknown"
	if c.Clique != nil {
		engine = c.Clique.String()
	}
	return fmt.Sprintf("{ChainID: %v, Engine: %v}", c.ChainID, engine)
}
