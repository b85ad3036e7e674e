package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/vecbench/resource"
	"github.com/spf13/cast"
)

// Phase is the duration of a named build phase.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Latency summarizes the per-query latency distribution of a run.
type Latency struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P90  time.Duration `json:"p90"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// RunRecord is the result of one (build params, search params, concurrency)
// combination. Records are immutable once finalized.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Dataset      string `json:"dataset"`
	Provider     string `json:"provider"`
	BuildParams  string `json:"build_params"`
	SearchParams string `json:"search_params"`
	Concurrency  int    `json:"concurrency"`
	K            int    `json:"k"`

	BuildTime      time.Duration   `json:"build_time"`
	BuildPhases    []Phase         `json:"build_phases,omitempty"`
	Loaded         bool            `json:"loaded"`
	IndexSizeBytes int64           `json:"index_size_bytes"`
	BuildUsage     *resource.Usage `json:"build_usage,omitempty"`

	Dispatched    int           `json:"dispatched"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Partial       bool          `json:"partial"`
	WarmupQueries int           `json:"warmup_queries"`
	Elapsed       time.Duration `json:"elapsed"`
	QPS           float64       `json:"qps"`
	Latency       Latency       `json:"latency"`
	Recall        float64       `json:"recall"`
}

// Key identifies the configuration a record measured, independent of the
// session it ran in.
func (r RunRecord) Key() string {
	return strings.Join([]string{
		r.Dataset, r.Provider, r.BuildParams, r.SearchParams,
		fmt.Sprintf("c%d", r.Concurrency), fmt.Sprintf("k%d", r.K),
	}, "|")
}

// Clone returns a deep copy of r.
func (r RunRecord) Clone() RunRecord {
	r.BuildPhases = slices.Clone(r.BuildPhases)
	if r.BuildUsage != nil {
		u := *r.BuildUsage
		r.BuildUsage = &u
	}
	return r
}

// Field is a named flat value of a record.
type Field struct {
	Name  string
	Value any
}

// String formats the value for tabular output. Nil values are empty.
func (f Field) String() string {
	return cast.ToString(f.Value)
}

var fieldNames = []string{
	"run_id", "session_id", "timestamp", "dataset", "provider",
	"build_params", "search_params", "concurrency", "k",
	"build_time_ms", "build_phases", "loaded", "index_size_bytes",
	"build_peak_rss_bytes", "build_cpu_ms", "build_minor_faults", "build_major_faults",
	"dispatched", "completed", "failed", "partial", "warmup_queries",
	"elapsed_ms", "qps",
	"latency_mean_ms", "latency_p50_ms", "latency_p90_ms", "latency_p99_ms", "latency_max_ms",
	"recall",
}

// FieldNames returns the names of the fields returned by RunRecord.Fields, in order.
func FieldNames() []string {
	return slices.Clone(fieldNames)
}

// Fields returns the record as an ordered list of flat fields.
// Durations are reported in milliseconds. Resource usage fields are nil
// when sampling failed.
func (r RunRecord) Fields() []Field {
	var peak, cpu, minor, major any
	if u := r.BuildUsage; u != nil {
		peak, cpu, minor, major = u.PeakRSSBytes, millis(u.CPUTime()), u.MinorFaults, u.MajorFaults
	}

	values := []any{
		r.RunID, r.SessionID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Dataset, r.Provider,
		r.BuildParams, r.SearchParams, r.Concurrency, r.K,
		millis(r.BuildTime), formatPhases(r.BuildPhases), r.Loaded, r.IndexSizeBytes,
		peak, cpu, minor, major,
		r.Dispatched, r.Completed, r.Failed, r.Partial, r.WarmupQueries,
		millis(r.Elapsed), r.QPS,
		millis(r.Latency.Mean), millis(r.Latency.P50), millis(r.Latency.P90), millis(r.Latency.P99), millis(r.Latency.Max),
		r.Recall,
	}

	fields := make([]Field, len(fieldNames))
	for i, name := range fieldNames {
		fields[i] = Field{Name: name, Value: values[i]}
	}
	return fields
}

// Strings returns the formatted field values in FieldNames order.
func (r RunRecord) Strings() []string {
	fields := r.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func formatPhases(phases []Phase) string {
	parts := make([]string, len(phases))
	for i, p := range phases {
		parts[i] = p.Name + "=" + cast.ToString(millis(p.Duration))
	}
	return strings.Join(parts, ";")
}
