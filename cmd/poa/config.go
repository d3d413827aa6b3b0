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

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"

	"github.com/erigontech/poa/accounts/keystore"
	"github.com/erigontech/poa/consensus/poa"
)

// nodeConfig is the effective configuration of the node command. The toml
// keys are the flag names, so a dumped config can be fed back with --config.
type nodeConfig struct {
	DataDir             string        `toml:"datadir"`
	Genesis             string        `toml:"genesis,omitempty"`
	DBCache             string        `toml:"db.cache"`
	Mine                bool          `toml:"mine"`
	SigFiles            []string      `toml:"miner.sigfile,omitempty"`
	DevKeys             int           `toml:"miner.devkeys"`
	Extra               string        `toml:"miner.extradata,omitempty"`
	GasLimit            uint64        `toml:"miner.gaslimit"`
	StrictTurn          bool          `toml:"poa.strict-turn"`
	CheckpointMustMatch bool          `toml:"poa.checkpoint-match"`
	MaxFutureDrift      time.Duration `toml:"-"`
	MaxFutureDriftText  string        `toml:"poa.max-drift"`
	MetricsAddr         string        `toml:"metrics.addr,omitempty"`
	MetricsPort         uint          `toml:"metrics.port"`
	Verbosity           string        `toml:"verbosity"`
}

func newNodeConfig(ctx *cli.Context) (*nodeConfig, error) {
	cfg := &nodeConfig{
		DataDir:             ctx.String(DataDirFlag.Name),
		Genesis:             ctx.String(GenesisFlag.Name),
		DBCache:             ctx.String(DBCacheFlag.Name),
		Mine:                ctx.Bool(MiningEnabledFlag.Name),
		SigFiles:            ctx.StringSlice(MinerSigningKeyFileFlag.Name),
		DevKeys:             ctx.Int(MinerDevKeysFlag.Name),
		Extra:               ctx.String(MinerExtraDataFlag.Name),
		GasLimit:            ctx.Uint64(MinerGasLimitFlag.Name),
		StrictTurn:          ctx.Bool(StrictTurnFlag.Name),
		CheckpointMustMatch: ctx.Bool(CheckpointMatchFlag.Name),
		MaxFutureDrift:      ctx.Duration(MaxFutureDriftFlag.Name),
		MetricsAddr:         ctx.String("metrics.addr"),
		MetricsPort:         ctx.Uint("metrics.port"),
		Verbosity:           ctx.String("verbosity"),
	}
	cfg.MaxFutureDriftText = cfg.MaxFutureDrift.String()
	if cfg.DataDir == "" {
		return nil, errors.New("datadir must not be empty")
	}
	if _, err := cfg.cacheSize(); err != nil {
		return nil, err
	}
	if cfg.DevKeys < 0 || cfg.DevKeys > len(keystore.DevKeys) {
		return nil, fmt.Errorf("--%s must be within [0, %d]", MinerDevKeysFlag.Name, len(keystore.DevKeys))
	}
	return cfg, nil
}

func (c *nodeConfig) chaindata() string { return filepath.Join(c.DataDir, "chaindata") }

func (c *nodeConfig) cacheSize() (datasize.ByteSize, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(c.DBCache)); err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", DBCacheFlag.Name, c.DBCache, err)
	}
	return size, nil
}

func (c *nodeConfig) policy() poa.Policy {
	return poa.Policy{
		StrictTurn:          c.StrictTurn,
		CheckpointMustMatch: c.CheckpointMustMatch,
		MaxFutureDrift:      c.MaxFutureDrift,
	}
}

// keyStore loads the signing keys: the first DevKeys development keys plus
// every key file.
func (c *nodeConfig) keyStore() (*keystore.KeyStore, error) {
	ks, err := keystore.NewDevKeyStore(c.DevKeys)
	if err != nil {
		return nil, err
	}
	for _, path := range c.SigFiles {
		if _, err := ks.AddFromFile(path); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

func (c *nodeConfig) extra() []byte {
	if c.Extra == "" {
		return []byte(defaultExtra())
	}
	return []byte(c.Extra)
}

// setFlagsFromConfigFile sets every flag the file names and the command line
// left unset. Nested tables are joined into dotted flag names.
func setFlagsFromConfigFile(ctx *cli.Context, filePath string) error {
	if filepath.Ext(filePath) != ".toml" {
		return errors.New("config files only accepted are .toml")
	}
	tomlFile, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	nested := make(map[string]interface{})
	if err := toml.Unmarshal(tomlFile, &nested); err != nil {
		return err
	}
	fileConfig := make(map[string]interface{})
	flattenConfig("", nested, fileConfig)

	keys := make([]string, 0, len(fileConfig))
	for key := range fileConfig {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if ctx.IsSet(key) {
			continue
		}
		value := fileConfig[key]
		if reflect.ValueOf(value).Kind() == reflect.Slice {
			sliceInterface := value.([]interface{})
			s := make([]string, len(sliceInterface))
			for i, v := range sliceInterface {
				s[i] = fmt.Sprintf("%v", v)
			}
			if err := ctx.Set(key, strings.Join(s, ",")); err != nil {
				return fmt.Errorf("failed setting %s flag with values=%s error=%w", key, s, err)
			}
		} else {
			if err := ctx.Set(key, fmt.Sprintf("%v", value)); err != nil {
				return fmt.Errorf("failed setting %s flag with value=%v error=%w", key, value, err)
			}
		}
	}
	return nil
}

func flattenConfig(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for key, value := range in {
		if prefix != "" {
			key = prefix + "." + key
		}
		if table, ok := value.(map[string]interface{}); ok {
			flattenConfig(key, table, out)
			continue
		}
		out[key] = value
	}
}

// parseAddresses parses hex addresses, rejecting anything that isn't one.
func parseAddresses(values []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("invalid address %q", v)
		}
		addrs = append(addrs, common.HexToAddress(v))
	}
	return addrs, nil
}
