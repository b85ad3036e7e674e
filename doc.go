// Package vecbench benchmarks approximate nearest neighbor indexes.
//
// A benchmark session sweeps a Dataset through every combination of build
// parameters, search parameters and concurrency level of one index
// provider. For each combination it records build cost, query throughput,
// latency percentiles and recall@k in a report.RunRecord.
//
// # Quick Start
//
//	ds, _ := dataset.Synthetic(ctx)
//	runner := vecbench.New(hnsw.New(),
//	    vecbench.WithSink(report.NewCSVSink(os.Stdout)),
//	    vecbench.WithSampler(resource.NewRusageSampler()),
//	)
//	summary, err := runner.Run(ctx, ds, vecbench.Sweep{
//	    Builds:      []vecbench.BuildSpec{{Params: provider.MustParseParams("m:16")}},
//	    Searches:    []provider.Params{provider.MustParseParams("ef:64")},
//	    Concurrency: []int{1, 8},
//	    K:           10,
//	})
//
// # Execution Model
//
// Builds run sequentially in sweep order unless BuildParallelism is set,
// in which case every concurrent build reserves BuildMemoryBudget from the
// resource controller. Combinations of one index are measured one at a
// time so that runs never compete for resources.
//
// Each measured run replays a warm-up prefix first, then dispatches every
// query exactly once across the configured number of workers.
//
// # Failure Handling
//
//   - A failed build or load is recorded in Summary.FailedBuilds and skipped.
//   - Failed queries are counted per run. Exceeding FailureThreshold aborts
//     the session with an error matching ErrWorkloadAborted.
//   - Cancelling the context finalizes the run in progress as partial and
//     stops the session.
//   - Resource sampling failures leave the usage fields of a record empty.
//
// Records finalized before an abort are always handed to the sink.
package vecbench
