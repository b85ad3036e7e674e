// Package resource measures and governs the resources used by a benchmark.
//
// It provides two independent facilities:
//
//   - Sampling: a Sampler reads process resource counters (RSS, CPU time,
//     page faults). A Monitor samples periodically while an index is built
//     and condenses the samples into a Usage.
//   - Governance: a Controller bounds the memory reserved by concurrent
//     builds, the number of concurrent builds and the IO rate of report
//     uploads.
//
// # Architecture
//
//	┌──────────────────────────────┬──────────────────────────────────┐
//	│           Monitor            │            Controller            │
//	├──────────────────────────────┼──────────────────────────────────┤
//	│  Start / Stop                │  AcquireMemory / ReleaseMemory   │
//	│  periodic Sampler.Sample     │  AcquireBuild / ReleaseBuild     │
//	│  peak RSS, CPU, faults       │  AcquireIO, RateLimitedReader    │
//	└──────────────────────────────┴──────────────────────────────────┘
//
// Counters are process wide. When builds run in parallel their Usage
// values overlap and should be read as an upper bound.
//
// A failed sample never fails a build: Stop returns a *SamplingError and the
// caller records the usage as unavailable.
package resource
