// Package distance provides the vector distance functions used by index providers
// and by brute-force ground truth computation.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricCosine: Cosine distance on L2-normalized vectors
//   - MetricDot: Negative inner product
//
// Every Func returned by Provider orders candidates the same way: a smaller value
// means a closer neighbor. Similarity metrics are negated to fit that convention.
//
// # Usage
//
//	fn, err := distance.Provider(distance.MetricCosine)
//	d := fn(distance.NormalizeL2Copy(a), distance.NormalizeL2Copy(b))
package distance
