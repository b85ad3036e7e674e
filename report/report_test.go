package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/vecbench/blobstore"
	"github.com/hupe1980/vecbench/codec"
	"github.com/hupe1980/vecbench/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id string) RunRecord {
	return RunRecord{
		RunID:        id,
		SessionID:    "session-1",
		Timestamp:    time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Dataset:      "synthetic",
		Provider:     "hnsw",
		BuildParams:  "ef_construction:200-m:16",
		SearchParams: "ef:64",
		Concurrency:  4,
		K:            10,
		BuildTime:    1500 * time.Millisecond,
		BuildPhases: []Phase{
			{Name: "insert", Duration: 1400 * time.Millisecond},
			{Name: "finalize", Duration: 100 * time.Millisecond},
		},
		IndexSizeBytes: 1 << 20,
		BuildUsage:     &resource.Usage{PeakRSSBytes: 4096, UserTime: time.Second, SystemTime: 500 * time.Millisecond},
		Dispatched:     100,
		Completed:      100,
		Elapsed:        time.Second,
		QPS:            100,
		Latency:        Latency{Mean: 2 * time.Millisecond, P50: time.Millisecond, P90: 3 * time.Millisecond, P99: 5 * time.Millisecond, Max: 9 * time.Millisecond},
		Recall:         0.95,
	}
}

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, RunRecord) error { return f.err }
func (f failingSink) Close() error                           { return f.err }

func TestFields(t *testing.T) {
	r := sampleRecord("run-1")
	fields := r.Fields()
	require.Len(t, fields, len(FieldNames()))

	byName := make(map[string]string, len(fields))
	for i, f := range fields {
		assert.Equal(t, FieldNames()[i], f.Name)
		byName[f.Name] = f.String()
	}

	assert.Equal(t, "run-1", byName["run_id"])
	assert.Equal(t, "2026-10-19T12:00:00Z", byName["timestamp"])
	assert.Equal(t, "1500", byName["build_time_ms"])
	assert.Equal(t, "insert=1400;finalize=100", byName["build_phases"])
	assert.Equal(t, "4096", byName["build_peak_rss_bytes"])
	assert.Equal(t, "1500", byName["build_cpu_ms"])
	assert.Equal(t, "0.95", byName["recall"])
	assert.Equal(t, "false", byName["partial"])
	assert.Equal(t, "9", byName["latency_max_ms"])

	r.BuildUsage = nil
	assert.Equal(t, "", r.Strings()[13])
}

func TestClone(t *testing.T) {
	r := sampleRecord("run-1")
	c := r.Clone()
	c.BuildPhases[0].Name = "changed"
	c.BuildUsage.PeakRSSBytes = 1

	assert.Equal(t, "insert", r.BuildPhases[0].Name)
	assert.Equal(t, int64(4096), r.BuildUsage.PeakRSSBytes)
}

func TestKey(t *testing.T) {
	a := sampleRecord("a")
	b := sampleRecord("b")
	b.SessionID = "other"
	assert.Equal(t, a.Key(), b.Key())

	b.Concurrency = 8
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	agg := NewAggregator(sink)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, agg.Finalize(ctx, sampleRecord(id)))
	}

	// Records are handed to the sink immediately.
	require.Len(t, sink.Records(), 3)
	assert.False(t, sink.Closed())

	records := agg.Records()
	require.Len(t, records, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{records[0].RunID, records[1].RunID, records[2].RunID})

	// Returned records are copies.
	records[0].BuildPhases[0].Name = "mutated"
	assert.Equal(t, "insert", agg.Records()[0].BuildPhases[0].Name)

	require.NoError(t, agg.Close())
	require.NoError(t, agg.Close())
	assert.True(t, sink.Closed())
	assert.ErrorIs(t, agg.Finalize(ctx, sampleRecord("d")), ErrClosed)
	assert.Equal(t, 3, agg.Len())
}

func TestAggregatorKeepsRecordOnSinkFailure(t *testing.T) {
	boom := errors.New("boom")
	agg := NewAggregator(failingSink{err: boom})

	err := agg.Finalize(context.Background(), sampleRecord("a"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, agg.Len())
}

func TestMultiSink(t *testing.T) {
	boom := errors.New("boom")
	mem := NewMemorySink()
	m := MultiSink{failingSink{err: boom}, mem}

	err := m.Write(context.Background(), sampleRecord("a"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, mem.Records(), 1)

	assert.ErrorIs(t, m.Close(), boom)
	assert.True(t, mem.Closed())
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSVSink(&buf)
	require.NoError(t, s.Write(context.Background(), sampleRecord("a")))
	require.NoError(t, s.Write(context.Background(), sampleRecord("b")))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write(context.Background(), sampleRecord("c")), ErrClosed)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, FieldNames(), rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "b", rows[2][0])
}

func TestCSVSinkEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.csv")
	s, err := CreateCSVFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(FieldNames(), ",")+"\n", string(data))
}

func TestJSONLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")
	s, err := CreateJSONLFile(path, nil)
	require.NoError(t, err)

	want := []RunRecord{sampleRecord("a"), sampleRecord("b")}
	want[1].BuildUsage = nil
	want[1].Partial = true
	for _, r := range want {
		require.NoError(t, s.Write(context.Background(), r))
	}
	require.NoError(t, s.Close())

	got, err := LoadJSONLFile(path, codec.JSON{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadJSONLInvalid(t *testing.T) {
	_, err := LoadJSONL(strings.NewReader("{}\n\nnot json\n"), nil)
	assert.ErrorContains(t, err, "line 3")
}

func TestBlobSink(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "zstd"}[compress], func(t *testing.T) {
			ctx := context.Background()
			store := blobstore.NewMemoryStore()
			s := NewBlobSink(store, "session-1", func(o *BlobSinkOptions) {
				o.Prefix = "runs"
				o.Compress = compress
				o.Controller = resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})
			})

			require.NoError(t, s.Write(ctx, sampleRecord("a")))
			require.NoError(t, s.Write(ctx, sampleRecord("b")))
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			assert.ErrorIs(t, s.Write(ctx, sampleRecord("c")), ErrClosed)

			csvName, jsonlName := s.Names()
			names, err := store.List(ctx, "runs/")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{csvName, jsonlName}, names)

			got, err := LoadJSONLBlob(ctx, store, jsonlName, nil)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "b", got[1].RunID)

			if !compress {
				data, err := blobstore.ReadAll(ctx, store, csvName)
				require.NoError(t, err)
				rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
				require.NoError(t, err)
				assert.Len(t, rows, 3)
			}
		})
	}
}

// rejectingStore fails every Put of a name with the given suffix.
type rejectingStore struct {
	*blobstore.MemoryStore
	suffix string
}

func (s rejectingStore) Put(ctx context.Context, name string, r io.Reader) error {
	if strings.HasSuffix(name, s.suffix) {
		return errors.New("put rejected")
	}
	return s.MemoryStore.Put(ctx, name, r)
}

func TestBlobSinkRemovesHalfUploadedSession(t *testing.T) {
	ctx := context.Background()
	store := rejectingStore{MemoryStore: blobstore.NewMemoryStore(), suffix: ".jsonl"}
	s := NewBlobSink(store, "session-1", func(o *BlobSinkOptions) { o.Prefix = "runs" })

	require.NoError(t, s.Write(ctx, sampleRecord("a")))
	require.ErrorContains(t, s.Upload(ctx), "put rejected")

	names, err := store.List(ctx, "runs/")
	require.NoError(t, err)
	assert.Empty(t, names)

	// Still buffered, a later upload may succeed.
	require.NoError(t, s.Write(ctx, sampleRecord("b")))
}

func TestLoadJSONLBlobs(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	for i, session := range []string{"s1", "s2"} {
		s := NewBlobSink(store, session, func(o *BlobSinkOptions) {
			o.Prefix = "runs"
			o.Compress = i == 1
		})
		require.NoError(t, s.Write(ctx, sampleRecord(session)))
		require.NoError(t, s.Close())
	}

	got, err := LoadJSONLBlobs(ctx, store, "runs/", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].RunID)
	assert.Equal(t, "s2", got[1].RunID)

	_, err = LoadJSONLBlobs(ctx, store, "other/", nil)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCompare(t *testing.T) {
	base := func(search string, qps, recall float64) RunRecord {
		r := sampleRecord(search)
		r.SearchParams = search
		r.QPS = qps
		r.Recall = recall
		return r
	}

	baseline := []RunRecord{
		base("ef:16", 1000, 0.80),
		base("ef:32", 1000, 0.90),
		base("ef:64", 1000, 0.95),
		base("ef:128", 1000, 0.97),
		base("ef:256", 1000, 0.99),
	}
	partial := base("ef:256", 10, 0.1)
	partial.Partial = true
	current := []RunRecord{
		base("ef:16", 1020, 0.80), // noise
		base("ef:32", 1200, 0.90), // faster
		base("ef:64", 800, 0.95),  // slower
		base("ef:128", 1000, 0.80),
		partial,
	}

	report := Compare(baseline, current, 5)
	require.Len(t, report.Comparisons, 4)

	status := make(map[string]Status)
	for _, c := range report.Comparisons {
		status[c.Key] = c.Status
	}
	assert.Equal(t, StatusUnchanged, status[baseline[0].Key()])
	assert.Equal(t, StatusImproved, status[baseline[1].Key()])
	assert.Equal(t, StatusRegressed, status[baseline[2].Key()])
	assert.Equal(t, StatusRegressed, status[baseline[3].Key()])

	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Improved)
	assert.Equal(t, 2, report.Regressed)
	assert.True(t, report.HasRegressions())
	assert.Equal(t, []string{baseline[4].Key()}, report.Missing)
}
