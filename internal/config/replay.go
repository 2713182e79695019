package config

import "github.com/spf13/pflag"

// ReplayConfig holds configuration for the replay command. Each non-empty sink setting
// enables that sink; the snapshot lives in Postgres when PGDSN is set, else in SQLite when
// SQLitePath is set, else in SnapshotFile.
type ReplayConfig struct {
	In           string
	OutDir       string
	PGDSN        string
	SQLitePath   string
	SnapshotFile string
	SnapshotName string
	Strict       bool
	LogLevel     string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":            "./data/typed_events.jsonl",
		"out-dir":       "./data/ledger",
		"snapshot-file": "./data/ledger_snapshot.json",
		"snapshot-name": "default",
		"strict":        false,
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	return ReplayConfig{
		In:           v.GetString("in"),
		OutDir:       v.GetString("out-dir"),
		PGDSN:        v.GetString("pg-dsn"),
		SQLitePath:   v.GetString("sqlite"),
		SnapshotFile: v.GetString("snapshot-file"),
		SnapshotName: v.GetString("snapshot-name"),
		Strict:       v.GetBool("strict"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
