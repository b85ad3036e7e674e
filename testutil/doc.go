// Package testutil provides testing utilities for vecbench.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	base := rng.UniformVectors(1000, 32)   // uniform [0, 1)
//	queries := rng.UnitVectors(100, 32)    // on the unit hypersphere
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.ExactGroundTruth(base, queries, distance.SquaredL2, 10)
//
// # Fault Injection
//
//	p := testutil.NewFaultyProvider(flat.New())
//	p.FailBuild = func(params provider.Params) bool { return params.Len() > 0 }
//	p.FailQuery = func(call int64) bool { return true }
package testutil
