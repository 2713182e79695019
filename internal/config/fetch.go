package config

import (
	"time"

	"github.com/spf13/pflag"
)

// FetchConfig holds configuration for the fetch command.
type FetchConfig struct {
	RPCURL            string
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []string
	Topic0            []string
	BatchSize         uint64
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	RetryMaxBackoff   time.Duration
	LogLevel          string
}

// LoadFetch merges config file, environment variables, and flags into FetchConfig.
func LoadFetch(cfgFile string, flags *pflag.FlagSet) (FetchConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(2000),
		"out":                "./data/logs.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"retry-max-backoff":  30 * time.Second,
	})
	if err != nil {
		return FetchConfig{}, err
	}

	return FetchConfig{
		RPCURL:            v.GetString("rpc"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Addresses:         getStringSlice(v, "address"),
		Topic0:            getStringSlice(v, "topic0"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		RetryMaxBackoff:   v.GetDuration("retry-max-backoff"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}
