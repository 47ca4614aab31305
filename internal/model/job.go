package model

// CrawlJob is a single unit of work for the traversal scheduler: one page
// URL together with its distance from the seed.
//
// Jobs are created by the scheduler (the seed at depth 0) or by the page
// processor (discovered links at depth+1), consumed exactly once by a
// worker, and never mutated after creation.
type CrawlJob struct {
	// URL is the absolute URL of the page to process.
	URL string `json:"url"`

	// Depth is the number of link-following hops from the seed.
	// The scheduler never creates a job with Depth greater than the
	// configured maximum depth.
	Depth int `json:"depth"`
}
