// Package model defines the core data structures used throughout webmirror.
//
// This package contains the following main types:
//   - CrawlJob: A unit of work for the traversal scheduler
//   - RunStatistics: The statistics snapshot produced by one mirror run
//   - PageRecord: Metadata about a single fetched page or resource
//   - MirrorReport: The complete result of one mirror run
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (crawler, pipeline, report, database) need
// to use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output,
// history logging, and database storage.
package model
