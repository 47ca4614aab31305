package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fatal failure modes of a run.
// Everything else is absorbed into the error counter.
var (
	// ErrInvalidSeedURL is returned before any work begins when the seed
	// URL is empty, has a non-http(s) scheme, is malformed, or contains
	// control or shell-special characters.
	ErrInvalidSeedURL = errors.New("invalid seed URL")

	// ErrRootPageFetch is returned when the very first job, the seed
	// page itself, cannot be fetched. Without a root page there is
	// nothing to mirror, so this aborts the whole run.
	ErrRootPageFetch = errors.New("failed to fetch seed page")

	// ErrOutputDir is returned when the destination root directory
	// cannot be created. Per-resource write failures are recovered, but
	// without a destination root every write would fail.
	ErrOutputDir = errors.New("cannot create output directory")
)

// FetchKind classifies the cause of a failed fetch.
type FetchKind string

// Fetch failure classifications.
const (
	// FetchTransport covers DNS, connection, and TLS failures.
	FetchTransport FetchKind = "transport"

	// FetchStatus covers responses with a non-2xx status code.
	FetchStatus FetchKind = "http-status"

	// FetchTimeout covers fetches that exceeded the configured timeout.
	FetchTimeout FetchKind = "timeout"
)

// FetchError describes a single failed fetch. Fetch errors are recovered
// locally: logged, counted, and skipped, never fatal to the run (except
// for the seed page, which the scheduler wraps in ErrRootPageFetch).
type FetchError struct {
	// Kind classifies the failure.
	Kind FetchKind

	// URL is the absolute URL that failed.
	URL string

	// StatusCode is the HTTP status code for FetchStatus errors, zero
	// otherwise.
	StatusCode int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timed out", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is / errors.As chains.
func (e *FetchError) Unwrap() error { return e.Err }

// SecurityError reports a resource rejected by security policy: it exceeds
// the configured maximum size or carries a blocked extension. The resource
// is counted as an error and never written to disk.
type SecurityError struct {
	// URL is the rejected resource.
	URL string

	// Reason describes the violated policy.
	Reason string
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	return fmt.Sprintf("security policy rejected %s: %s", e.URL, e.Reason)
}
