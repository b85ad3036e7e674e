// Package report defines the benchmark RunRecord and the append-only
// aggregator that hands finalized records to sinks.
//
// # Sinks
//
//   - CSVSink: one row per record, header from FieldNames
//   - JSONLSink: one JSON object per line
//   - BlobSink: buffers records and uploads CSV and JSON-lines artifacts to a blobstore.Store
//   - MemorySink, MultiSink: in-memory capture and fan-out
//   - dynamodb.Sink, sqlite.Sink: database sinks in sub-packages
//
// Records are handed to the sink as soon as they are finalized, so an
// aborted session still leaves every earlier record flushed.
package report
