package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecbench/config"
)

// envPrefix is prepended to environment overrides, e.g. ANNBENCH_PROVIDER.
const envPrefix = "ANNBENCH"

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("annbench", pflag.ContinueOnError)
	fs.String("config", "", "Path to the session file (YAML)")
	fs.String("provider", "", "Index provider to benchmark")
	fs.String("indexes-path", "", "Directory for persisted indexes")
	fs.String("csv", "", "Write run records as CSV to this file")
	fs.String("jsonl", "", "Write run records as JSON lines to this file")
	fs.String("sqlite", "", "Write run records to this SQLite database")
	fs.String("dynamodb-table", "", "Write run records to this DynamoDB table")
	fs.String("baseline", "", "JSON-lines report to compare against")
	fs.Float64("threshold-pct", 0, "Regression threshold in percent")
	fs.String("log-format", "", "Log format: text or json")
	fs.String("log-level", "", "Log level: debug, info, warn or error")
	fs.Bool("list-providers", false, "List the registered providers and exit")

	normalizeFunc := fs.GetNormalizeFunc()
	fs.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		result := normalizeFunc(f, name)
		return pflag.NormalizedName(strings.ReplaceAll(string(result), "-", "_"))
	})
	return fs
}

// loadConfig parses args, reads the session file and applies flag and
// environment overrides on top of it.
func loadConfig(args []string) (*config.Config, *viper.Viper, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if path := v.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Parse(strings.NewReader(""))
	}
	if err != nil {
		return nil, nil, err
	}

	override(v, "provider", &cfg.Provider)
	override(v, "indexes_path", &cfg.IndexesPath)
	override(v, "csv", &cfg.Report.CSV)
	override(v, "jsonl", &cfg.Report.JSONL)
	override(v, "sqlite", &cfg.Report.SQLite)
	override(v, "dynamodb_table", &cfg.Report.DynamoDBTable)
	override(v, "baseline", &cfg.Report.Baseline)
	override(v, "log_format", &cfg.Log.Format)
	override(v, "log_level", &cfg.Log.Level)
	if v.IsSet("threshold_pct") {
		cfg.Report.ThresholdPct = v.GetFloat64("threshold_pct")
	}
	return cfg, v, nil
}

func override(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
}
