package config

import "github.com/spf13/pflag"

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario   string
	Out        string
	SQLitePath string
	LogLevel   string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out": "./data/simulation.jsonl",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		Scenario:   v.GetString("scenario"),
		Out:        v.GetString("out"),
		SQLitePath: v.GetString("sqlite"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}
