// Package config loads benchmark session files.
//
// A session file names the provider and dataset, the parameter sweep and
// where reports go:
//
//	provider: hnsw
//	dataset:
//	  dimension: 64
//	  base: 20000
//	sweep:
//	  k: 10
//	  builds:
//	    - params: {m: 16, ef_construction: 200}
//	    - params: "m:32-ef_construction:400"
//	  searches: [{ef: 32}, {ef: 128}]
//	  concurrency: [1, 8]
//	report:
//	  csv: ./reports/run.csv
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecbench"
	"github.com/hupe1980/vecbench/dataset"
	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/provider"
	"github.com/hupe1980/vecbench/resource"
)

// ErrInvalidConfig is returned for a malformed session file.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds a benchmark session.
type Config struct {
	Provider    string          `yaml:"provider"`
	IndexesPath string          `yaml:"indexes_path"`
	Dataset     DatasetConfig   `yaml:"dataset"`
	Sweep       SweepConfig     `yaml:"sweep"`
	Report      ReportConfig    `yaml:"report"`
	Resources   ResourcesConfig `yaml:"resources"`
	Log         LogConfig       `yaml:"log"`
}

// DatasetConfig describes the synthetic dataset to benchmark against.
type DatasetConfig struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Dimension int     `yaml:"dimension"`
	Base      int     `yaml:"base"`
	Queries   int     `yaml:"queries"`
	TruthK    int     `yaml:"truth_k"`
	Clusters  int     `yaml:"clusters"`
	Spread    float64 `yaml:"spread"`
	Seed      int64   `yaml:"seed"`
}

// BuildConfig is one build sweep entry. Params is either a map or a
// canonical "k:v-k:v" string.
type BuildConfig struct {
	Params any    `yaml:"params"`
	Load   string `yaml:"load"`
	Save   string `yaml:"save"`
}

// SweepConfig holds the parameter sweep.
type SweepConfig struct {
	K                 int           `yaml:"k"`
	Builds            []BuildConfig `yaml:"builds"`
	Searches          []any         `yaml:"searches"`
	Concurrency       []int         `yaml:"concurrency"`
	WarmupQueries     *int          `yaml:"warmup_queries"`
	WarmupPasses      int           `yaml:"warmup_passes"`
	FailureThreshold  *int          `yaml:"failure_threshold"`
	TargetQPS         float64       `yaml:"target_qps"`
	BuildParallelism  int           `yaml:"build_parallelism"`
	BuildMemoryBudget int64         `yaml:"build_memory_budget"`
}

// BlobConfig selects the artifact store reports are uploaded to.
type BlobConfig struct {
	// Kind is one of "local", "s3" or "minio". Empty disables upload.
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Compress  bool   `yaml:"compress"`
}

// ReportConfig holds the report sinks.
type ReportConfig struct {
	CSV           string     `yaml:"csv"`
	JSONL         string     `yaml:"jsonl"`
	SQLite        string     `yaml:"sqlite"`
	DynamoDBTable string     `yaml:"dynamodb_table"`
	Codec         string     `yaml:"codec"`
	Blob          BlobConfig `yaml:"blob"`
	Baseline      string     `yaml:"baseline"`
	ThresholdPct  float64    `yaml:"threshold_pct"`
}

// ResourcesConfig holds resource sampling and limits.
type ResourcesConfig struct {
	Sample             bool  `yaml:"sample"`
	SampleInterval     any   `yaml:"sample_interval"`
	MemoryLimitBytes   int64 `yaml:"memory_limit_bytes"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Load reads and parses the config file at path, applies defaults and
// resolves relative paths against the directory of the file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	cfg.IndexesPath = expandPath(cfg.IndexesPath, dir)
	cfg.Report.CSV = expandPath(cfg.Report.CSV, dir)
	cfg.Report.JSONL = expandPath(cfg.Report.JSONL, dir)
	cfg.Report.SQLite = expandPath(cfg.Report.SQLite, dir)
	if cfg.Report.Blob.Kind == "local" {
		cfg.Report.Blob.Path = expandPath(cfg.Report.Blob.Path, dir)
	}
	for i := range cfg.Sweep.Builds {
		cfg.Sweep.Builds[i].Load = expandPath(cfg.Sweep.Builds[i].Load, dir)
		cfg.Sweep.Builds[i].Save = expandPath(cfg.Sweep.Builds[i].Save, dir)
	}
	return cfg, nil
}

// Parse decodes a config from r and applies defaults. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// expandPath resolves relative paths against configDir. Empty paths stay empty.
func expandPath(path, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// Metric returns the parsed dataset metric.
func (c *Config) Metric() (distance.Metric, error) {
	m, err := distance.ParseMetric(c.Dataset.Metric)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return m, nil
}

// SyntheticOptions returns the dataset generator options.
func (c *Config) SyntheticOptions() (func(o *dataset.SyntheticOptions), error) {
	metric, err := c.Metric()
	if err != nil {
		return nil, err
	}
	d := c.Dataset
	return func(o *dataset.SyntheticOptions) {
		o.Name = d.Name
		o.Metric = metric
		o.Dimension = d.Dimension
		o.NumBase = d.Base
		o.NumQueries = d.Queries
		o.TruthK = d.TruthK
		o.Clusters = d.Clusters
		o.Spread = d.Spread
		o.Seed = d.Seed
	}, nil
}

// SampleInterval returns the resource sample interval.
func (c *Config) SampleInterval() (time.Duration, error) {
	if c.Resources.SampleInterval == nil {
		return resource.DefaultSampleInterval, nil
	}
	d, err := cast.ToDurationE(c.Resources.SampleInterval)
	if err != nil {
		return 0, fmt.Errorf("%w: sample_interval: %w", ErrInvalidConfig, err)
	}
	return d, nil
}

// ToSweep converts the sweep section. Builds without an explicit save path
// are persisted below IndexesPath when it is set.
func (c *Config) ToSweep() (vecbench.Sweep, error) {
	s := c.Sweep
	sweep := vecbench.Sweep{
		Concurrency:       s.Concurrency,
		K:                 s.K,
		WarmupPasses:      s.WarmupPasses,
		TargetQPS:         s.TargetQPS,
		BuildParallelism:  s.BuildParallelism,
		BuildMemoryBudget: s.BuildMemoryBudget,
	}
	if s.WarmupQueries != nil {
		sweep.WarmupQueries = *s.WarmupQueries
	}
	if s.FailureThreshold != nil {
		sweep.FailureThreshold = *s.FailureThreshold
	}

	for i, b := range s.Builds {
		p, err := toParams(b.Params)
		if err != nil {
			return vecbench.Sweep{}, fmt.Errorf("%w: builds[%d]: %w", ErrInvalidConfig, i, err)
		}
		spec := vecbench.BuildSpec{Params: p, LoadPath: b.Load, SavePath: b.Save}
		if spec.SavePath == "" && spec.LoadPath == "" && c.IndexesPath != "" {
			spec.SavePath = c.IndexPath(p)
		}
		sweep.Builds = append(sweep.Builds, spec)
	}

	for i, raw := range s.Searches {
		p, err := toParams(raw)
		if err != nil {
			return vecbench.Sweep{}, fmt.Errorf("%w: searches[%d]: %w", ErrInvalidConfig, i, err)
		}
		sweep.Searches = append(sweep.Searches, p)
	}
	return sweep, nil
}

// IndexPath returns the location of a persisted index below IndexesPath.
func (c *Config) IndexPath(p provider.Params) string {
	name := c.Provider
	if p.Len() > 0 {
		name += "_" + p.String()
	}
	name = strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(name)
	return filepath.Join(c.IndexesPath, c.Dataset.Name, name+".idx")
}

// toParams accepts nil, a canonical parameter string or a map of scalars.
func toParams(raw any) (provider.Params, error) {
	switch v := raw.(type) {
	case nil:
		return provider.Params{}, nil
	case string:
		return provider.ParseParams(v)
	default:
		m, err := cast.ToStringMapStringE(v)
		if err != nil {
			return provider.Params{}, err
		}
		return provider.NewParams(m)
	}
}
