// Package crawler implements the webmirror crawl engine.
//
// # Architecture
//
// The package is designed around the Engine type, which drives a
// depth-bounded breadth-first traversal over a FIFO work queue with a
// bounded pool of workers. The components, leaf first:
//
//   - Resolver: classifies and normalizes URLs into safe, collision-free
//     local file paths and decides domain membership
//   - Fetcher: performs single HTTP GETs with timeout and security limits,
//     streaming bodies to disk in fixed-size chunks
//   - Cache: per-run in-memory payload cache with expiry, keyed by a hash
//     of the absolute URL, so each distinct URL is fetched at most once
//   - Processor: parses one HTML document, downloads and rewrites its
//     embedded resources, and emits next-level link jobs
//   - Stats: statistics aggregator safe for concurrent writers
//   - Engine: the traversal scheduler tying the above together
//
// # Concurrency
//
// Workers share three pieces of mutable state, each with its own
// discipline: the visited set (single mutex, check-and-insert is atomic so
// every URL is visited at most once), the statistics counters (atomic
// increments, no cross-field atomicity), and the payload cache (single
// mutex per cache; the miss-fetch-insert sequence is deliberately not
// atomic end to end, so two workers racing on the same uncached URL may
// both fetch once).
//
// Termination uses an outstanding-job counter rather than a bare
// queue-empty check: a worker that drained the queue may still be parsing
// a page that enqueues more jobs, so the run ends only when the queue is
// empty and no job is in flight.
//
// # Usage
//
//	engine, err := crawler.NewEngine(cfg, seedURL, crawler.WithProgressSink(fn))
//	report, err := engine.Run(ctx)
//
// # Error policy
//
// Only seed URL validation failure, output directory creation failure, and
// a failed fetch of the seed page abort a run. Every other failure is
// absorbed into the error counter so a partially broken site still yields
// a usable partial mirror.
package crawler
