package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. LEDGER_RPC or LEDGER_BATCH_SIZE.
const EnvPrefix = "LEDGER"

// newViper layers defaults, LEDGER_* environment, an optional config file and bound flags.
// Without cfgFile a config.{yaml,json,toml} in the working directory is used if present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getStringMap reads a map from a config file table or from "k=v,k=v" in a flag or env var.
func getStringMap(v *viper.Viper, key string) map[string]string {
	out := make(map[string]string)
	if !v.IsSet(key) {
		return out
	}

	switch typed := v.Get(key).(type) {
	case map[string]string:
		for k, val := range typed {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range typed {
			out[k] = fmt.Sprintf("%v", val)
		}
	case string:
		for _, pair := range strings.Split(typed, ",") {
			k, val, ok := strings.Cut(pair, "=")
			k, val = strings.TrimSpace(k), strings.TrimSpace(val)
			if ok && k != "" && val != "" {
				out[k] = val
			}
		}
	}
	return out
}
