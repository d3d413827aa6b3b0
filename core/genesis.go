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

package core

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/holiman/uint256"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/consensus/poa"
	"github.com/erigontech/poa/core/types"
	"github.com/erigontech/poa/params"
)

const (
	DefaultGasLimit = uint64(30_000_000)
	DefaultBaseFee  = uint64(875_000_000) // 0.875 gwei
)

// DefaultPrefundBalance is 10,000 ether in wei.
var DefaultPrefundBalance = new(uint256.Int).Mul(uint256.NewInt(10_000), uint256.NewInt(1e18))

// DevAccounts are the addresses of the "test test ... junk" mnemonic. The
// first keystore.DevSignerCount of them sign on the dev chain.
var DevAccounts = []common.Address{
	common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
	common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
	common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"),
	common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"),
	common.HexToAddress("0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc"),
	common.HexToAddress("0x976EA74026E726554dB657fA54763abd0C3a0aa9"),
	common.HexToAddress("0x14dC79964da2C08b23698B3D3cc7Ca32193d9955"),
	common.HexToAddress("0x23618e81E3f5cdF7f54C3d65f7FBc0aBf5B21E8f"),
	common.HexToAddress("0xa0Ee7A142d267C1f36714E4a8F75612F20a79720"),
	common.HexToAddress("0xBcd4042DE499D14e55001CcbB24a551F3b954096"),
	common.HexToAddress("0x71bE63f3384f5fb98995898A86B02Fb2426c5788"),
	common.HexToAddress("0xFABB0ac9d68B0B445fB7357272Ff202C5651694a"),
	common.HexToAddress("0x1CBd3b2770909D4e10f157cABC84C7264073C9Ec"),
	common.HexToAddress("0xdF3e18d64BC6A983f673Ab319CCaE4f1a57C7097"),
	common.HexToAddress("0xcd3B766CCDd6AE721141F452C550Ca635964ce71"),
	common.HexToAddress("0x2546BcD3c84621e976D8185a91A922aE77ECEc30"),
	common.HexToAddress("0xbDA5747bFD65F08deb54cb465eB87D40e51B197E"),
	common.HexToAddress("0xdD2FD4581271e230360230F9337D5c0430Bf44C0"),
	common.HexToAddress("0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199"),
}

// GenesisBuilder collects the knobs of a proof-of-authority genesis block.
// The zero value is not useful, start from NewGenesisBuilder.
type GenesisBuilder struct {
	ChainID  uint64
	GasLimit uint64
	BaseFee  uint64
	Period   uint64
	Epoch    uint64
	Vanity   [poa.ExtraVanity]byte
	Signers  []common.Address
	Alloc    map[common.Address]*uint256.Int
}

// NewGenesisBuilder returns a builder with mainnet-like timing and no accounts.
func NewGenesisBuilder() *GenesisBuilder {
	return &GenesisBuilder{
		ChainID:  params.DevChainID,
		GasLimit: DefaultGasLimit,
		BaseFee:  DefaultBaseFee,
		Period:   params.DefaultPeriod,
		Epoch:    params.DefaultEpoch,
		Alloc:    make(map[common.Address]*uint256.Int),
	}
}

// DevGenesisBuilder returns the local development setup: 2 second blocks,
// every dev account prefunded and the first three of them signing.
func DevGenesisBuilder() *GenesisBuilder {
	b := NewGenesisBuilder()
	b.Period = params.DevPeriod
	b.Signers = append([]common.Address(nil), DevAccounts[:keystore.DevSignerCount]...)
	for _, addr := range DevAccounts {
		b.Prefund(addr, DefaultPrefundBalance)
	}
	return b
}

func (b *GenesisBuilder) WithChainID(id uint64) *GenesisBuilder {
	b.ChainID = id
	return b
}

func (b *GenesisBuilder) WithPeriod(period uint64) *GenesisBuilder {
	b.Period = period
	return b
}

func (b *GenesisBuilder) WithEpoch(epoch uint64) *GenesisBuilder {
	b.Epoch = epoch
	return b
}

func (b *GenesisBuilder) WithSigners(signers []common.Address) *GenesisBuilder {
	b.Signers = append([]common.Address(nil), signers...)
	return b
}

func (b *GenesisBuilder) WithVanity(vanity [poa.ExtraVanity]byte) *GenesisBuilder {
	b.Vanity = vanity
	return b
}

// Prefund sets the genesis balance of addr, replacing an earlier one.
func (b *GenesisBuilder) Prefund(addr common.Address, balance *uint256.Int) *GenesisBuilder {
	b.Alloc[addr] = balance.Clone()
	return b
}

// Build assembles the genesis specification. The signer list lives in the
// extra-data only, the clique section of the chain config carries the timing.
func (b *GenesisBuilder) Build() (*types.Genesis, error) {
	if err := (&params.PoAConfig{Period: b.Period, Epoch: b.Epoch, Signers: b.Signers}).Validate(); err != nil {
		return nil, err
	}
	alloc := make(types.GenesisAlloc, len(b.Alloc))
	for addr, balance := range b.Alloc {
		alloc[addr] = types.GenesisAccount{Balance: balance.ToBig()}
	}
	return &types.Genesis{
		Config:     params.NewChainConfig(b.ChainID, &params.PoAConfig{Period: b.Period, Epoch: b.Epoch}),
		ExtraData:  poa.BuildExtra(b.Vanity[:], b.Signers),
		GasLimit:   b.GasLimit,
		Difficulty: big.NewInt(1),
		Alloc:      alloc,
		BaseFee:    new(big.Int).SetUint64(b.BaseFee),
	}, nil
}

// DevGenesisBlock returns the dev chain genesis.
func DevGenesisBlock() *types.Genesis {
	g, err := DevGenesisBuilder().Build()
	if err != nil {
		panic(err)
	}
	return g
}

// GenesisToHeader creates the genesis header. The state trie is not built
// here, the root is taken from the spec or defaults to the empty root.
func GenesisToHeader(g *types.Genesis) *types.Header {
	head := &types.Header{
		ParentHash:  g.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    g.Coinbase,
		Root:        g.StateRoot,
		TxHash:      types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Number:      new(big.Int).SetUint64(g.Number),
		Nonce:       types.EncodeNonce(g.Nonce),
		Time:        g.Timestamp,
		Extra:       common.CopyBytes(g.ExtraData),
		GasLimit:    g.GasLimit,
		GasUsed:     g.GasUsed,
		Difficulty:  g.Difficulty,
		MixDigest:   g.Mixhash,
	}
	if head.Root == (common.Hash{}) {
		head.Root = types.EmptyRootHash
	}
	if g.GasLimit == 0 {
		head.GasLimit = DefaultGasLimit
	}
	if g.Difficulty == nil {
		head.Difficulty = big.NewInt(1)
	}
	if g.BaseFee != nil {
		head.BaseFee = new(big.Int).Set(g.BaseFee)
	} else {
		head.BaseFee = new(big.Int).SetUint64(DefaultBaseFee)
	}
	return head
}

// GenesisSigners returns the signer list embedded in the genesis extra-data,
// falling back to the clique config when the extra-data carries none.
func GenesisSigners(g *types.Genesis) ([]common.Address, error) {
	signers, err := poa.ExtractSigners(g.ExtraData)
	if err == nil && len(signers) > 0 {
		return signers, nil
	}
	if g.Config != nil && g.Config.Clique != nil && len(g.Config.Clique.Signers) > 0 {
		return g.Config.Clique.Signers, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("genesis declares no signers")
}

// ReadGenesis loads a genesis specification from a JSON file.
func ReadGenesis(path string) (*types.Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	genesis := new(types.Genesis)
	if err := json.Unmarshal(data, genesis); err != nil {
		return nil, fmt.Errorf("invalid genesis file %s: %w", path, err)
	}
	if genesis.Config == nil {
		return nil, types.ErrGenesisNoConfig
	}
	return genesis, nil
}

// WriteGenesisFile stores the genesis specification as indented JSON.
func WriteGenesisFile(path string, g *types.Genesis) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
