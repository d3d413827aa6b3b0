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

package logging

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestTryGetLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    log.Lvl
		wantErr bool
	}{
		{"info", log.LvlInfo, false},
		{"debug", log.LvlDebug, false},
		{"trace", log.LvlTrace, false},
		{"5", log.LvlTrace, false},
		{"1", log.LvlError, false},
		{"", 0, true},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		lvl, err := tryGetLogLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, lvl, tt.in)
	}
}

func TestSetupLoggerCtxWritesFile(t *testing.T) {
	old := log.Root().GetHandler()
	t.Cleanup(func() { log.Root().SetHandler(old) })

	dir := t.TempDir()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		require.NoError(t, f.Apply(set))
	}
	set.String("datadir", "", "")
	require.NoError(t, set.Parse([]string{"--datadir", dir, "--log.dir.verbosity", "debug", "--log.dir.json"}))

	logger := SetupLoggerCtx("poa", cli.NewContext(cli.NewApp(), set, nil))
	logger.Debug("written to the file only", "key", "value")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "poa.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"written to the file only"`)
	assert.Contains(t, string(data), `"key":"value"`)
}
