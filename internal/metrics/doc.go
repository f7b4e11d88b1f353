// Package metrics holds the shared accounting of a load run.
//
// Two recorders are mutated concurrently by many goroutines:
//
//   - [ServerAccounting] on each replica: streams started per quality,
//     chunks sent, chunk errors, per-chunk production latency and the
//     live count of active sessions.
//   - [ClientRecorder] on the driver: streams initiated per quality, chunks
//     received, errors per kind, whole-stream latency and the live count of
//     active client streams.
//
// Both keep authoritative totals in atomic counters so tests can read them
// back exactly, and mirror every update into Prometheus collectors on a
// caller-supplied registry. [NopServerAccounting] and [NopClientRecorder]
// discard everything.
//
// # Labels
//
// Label sets are structured keys ([StreamKey], [QualityKey], [ErrorKey])
// rather than joined strings, so ("low", "node-1") can never collide with
// ("low,node", "1").
//
// # Endpoint
//
// [StartEndpoint] serves a registry over HTTP at /metrics. Starting the same
// address twice returns the running endpoint.
//
// # Collector
//
// [Collector] aggregates per-stream outcomes into an HDR histogram for the
// end-of-run report:
//
//	collector := metrics.NewCollector()
//	collector.RecordStream(metrics.StreamOutcome{Latency: d, Chunks: n})
//	stats := collector.Stats(elapsed)
package metrics
