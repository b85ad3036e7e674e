// Package provider defines the contract every benchmarked ANN index backend
// implements, together with the parameter and error types shared by the harness.
//
// # Contract
//
// A Provider builds (or loads) an index and answers k-NN queries against the
// returned Handle:
//
//	h, err := p.Build(ctx, vectors, distance.MetricL2, provider.MustParseParams("m:16-ef_construction:200"))
//	defer p.Close(h)
//	neighbors, err := p.Query(ctx, h, query, provider.MustParseParams("ef:64"), 10)
//
// The harness relies on these guarantees:
//
//   - Query is read-only and safe for concurrent use against one Handle.
//   - Query returns at most k neighbors ordered by increasing distance.
//   - Close is idempotent and is only called once no queries are outstanding.
//   - Build honors cancellation and deadlines carried by its context.
//
// The harness never inspects index internals; everything algorithm specific
// stays behind Provider and the opaque Params.
//
// # Parameters
//
// Params are string key/value sets. Their canonical form is the sorted
// "key:value-key:value" string used for identity and reporting. Providers
// validate and decode Params into their own tagged structs with Decode.
package provider
