package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFetchPrecedence(t *testing.T) {
	path := writeConfig(t, "ledger.yaml", `
rpc: http://file:8545
from: 10
batch-size: 100
address:
  - "0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"
  - " "
`)
	t.Setenv("LEDGER_BATCH_SIZE", "50")
	t.Setenv("LEDGER_RETRY_BACKOFF", "2s")

	flags := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	flags.Uint64("from", 0, "")
	flags.String("rpc", "", "")
	require.NoError(t, flags.Parse([]string{"--from", "12376729"}))

	cfg, err := LoadFetch(path, flags)
	require.NoError(t, err)

	assert.Equal(t, uint64(12376729), cfg.FromBlock, "flag beats file")
	assert.Equal(t, uint64(50), cfg.BatchSize, "env beats file")
	assert.Equal(t, "http://file:8545", cfg.RPCURL, "unset flag falls through to file")
	assert.Equal(t, []string{"0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"}, cfg.Addresses)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxBackoff)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadDecodeTopic0Map(t *testing.T) {
	flags := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	flags.String("topic0-map", "", "")
	require.NoError(t, flags.Parse([]string{"--topic0-map", "0xaa=Swap, 0xbb = mint ,broken,=x"}))

	cfg, err := LoadDecode("", flags)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0xaa": "Swap", "0xbb": "mint"}, cfg.Topic0Map)
	assert.Equal(t, "./data/typed_events.jsonl", cfg.Out)

	path := writeConfig(t, "decode.json", `{"topic0-map": {"0xcc": "Collect"}}`)
	cfg, err = LoadDecode(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Collect", cfg.Topic0Map["0xcc"])
}

func TestLoadReplayDefaults(t *testing.T) {
	t.Setenv("LEDGER_PG_DSN", "postgres://ledger@localhost/ledger")

	cfg, err := LoadReplay("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://ledger@localhost/ledger", cfg.PGDSN)
	assert.Equal(t, "default", cfg.SnapshotName)
	assert.Empty(t, cfg.SQLitePath)
	assert.False(t, cfg.Strict)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := LoadSimulate(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadSimulate(t *testing.T) {
	path := writeConfig(t, "simulate.toml", "scenario = \"wrap.yaml\"\nsqlite = \"./data/sim.db\"\n")
	t.Setenv("LEDGER_OUT", "/tmp/steps.jsonl")

	cfg, err := LoadSimulate(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "wrap.yaml", cfg.Scenario)
	assert.Equal(t, "./data/sim.db", cfg.SQLitePath)
	assert.Equal(t, "/tmp/steps.jsonl", cfg.Out)
}
