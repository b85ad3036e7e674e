package config

import (
	"github.com/hupe1980/vecbench"
	"github.com/hupe1980/vecbench/dataset"
	"github.com/hupe1980/vecbench/report"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "hnsw"
	}

	def := dataset.DefaultSyntheticOptions
	if cfg.Dataset.Name == "" {
		cfg.Dataset.Name = def.Name
	}
	if cfg.Dataset.Metric == "" {
		cfg.Dataset.Metric = def.Metric.String()
	}
	if cfg.Dataset.Dimension == 0 {
		cfg.Dataset.Dimension = def.Dimension
	}
	if cfg.Dataset.Base == 0 {
		cfg.Dataset.Base = def.NumBase
	}
	if cfg.Dataset.Queries == 0 {
		cfg.Dataset.Queries = def.NumQueries
	}
	if cfg.Dataset.TruthK == 0 {
		cfg.Dataset.TruthK = def.TruthK
	}
	if cfg.Dataset.Spread == 0 {
		cfg.Dataset.Spread = def.Spread
	}
	if cfg.Dataset.Seed == 0 {
		cfg.Dataset.Seed = def.Seed
	}

	if cfg.Sweep.K == 0 {
		cfg.Sweep.K = 10
	}
	if len(cfg.Sweep.Builds) == 0 {
		cfg.Sweep.Builds = []BuildConfig{{}}
	}
	if len(cfg.Sweep.Concurrency) == 0 {
		cfg.Sweep.Concurrency = []int{1}
	}
	// One full warm-up pass.
	if cfg.Sweep.WarmupQueries == nil {
		all := vecbench.AllQueries
		cfg.Sweep.WarmupQueries = &all
	}
	if cfg.Sweep.WarmupPasses == 0 {
		cfg.Sweep.WarmupPasses = 1
	}
	if cfg.Sweep.FailureThreshold == nil {
		zero := 0
		cfg.Sweep.FailureThreshold = &zero
	}

	if cfg.Report.ThresholdPct == 0 {
		cfg.Report.ThresholdPct = report.DefaultThresholdPct
	}
	if cfg.Report.Codec == "" {
		cfg.Report.Codec = "go-json"
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
