package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/webmirror/internal/config"
	"golang.org/x/time/rate"
)

// Fetcher performs single HTTP GETs for the crawl engine. It applies the
// per-request timeout, the politeness rate limit shared by all workers,
// and the security policy (maximum size, blocked extensions), and streams
// response bodies to disk in fixed-size chunks to bound peak memory.
//
// A failed fetch is never retried. Correctness over completeness: the
// crawl continues past any one failed resource, and a retry layer would
// only stretch the time a broken site keeps a run busy.
type Fetcher struct {
	// client is the HTTP client used for all requests.
	client *http.Client

	// timeout bounds each individual request.
	timeout time.Duration

	// userAgent is sent as the User-Agent header on every request.
	userAgent string

	// cookie is an optional static Cookie header value from the site
	// profile. No session handling is performed.
	cookie string

	// headers are optional static extra headers from the site profile.
	headers map[string]string

	// maxFileSize is the security limit on a single resource.
	maxFileSize int64

	// chunkSize is the copy granularity for streaming bodies to disk.
	chunkSize int

	// limiter is the politeness rate limiter shared across workers.
	// Nil disables rate limiting.
	limiter *rate.Limiter

	// stats receives byte and file counts for successful downloads.
	stats *Stats
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets a custom HTTP client. Tests use this to point the
// fetcher at httptest servers with tuned transports.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithCookie sets a static Cookie header sent with every request.
func WithCookie(cookie string) FetcherOption {
	return func(f *Fetcher) {
		f.cookie = cookie
	}
}

// WithHeaders sets static extra headers sent with every request.
func WithHeaders(headers map[string]string) FetcherOption {
	return func(f *Fetcher) {
		f.headers = headers
	}
}

// WithMaxFileSize sets the maximum resource size written to disk.
func WithMaxFileSize(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxFileSize = n
		}
	}
}

// WithRateLimit applies a politeness limit of n requests per second across
// all workers. Zero or negative n disables rate limiting.
func WithRateLimit(n float64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// NewFetcher creates a Fetcher with the given per-request timeout,
// reporting successful download counters to stats.
func NewFetcher(timeout time.Duration, stats *Stats, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{Timeout: timeout},
		timeout:     timeout,
		userAgent:   config.DefaultUserAgent,
		maxFileSize: config.DefaultMaxFileSize,
		chunkSize:   config.DefaultChunkSize,
		stats:       stats,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// get issues a rate-limited GET and returns the response on any 2xx
// status. Non-2xx statuses, transport failures, and timeouts are returned
// as classified FetchErrors.
func (f *Fetcher) get(ctx context.Context, absURL string) (*http.Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: FetchTransport, URL: absURL, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absURL, nil)
	if err != nil {
		cancel()
		return nil, &FetchError{Kind: FetchTransport, URL: absURL, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req) //nolint:bodyclose // closed by callers via closeWith
	if err != nil {
		cancel()
		return nil, classifyFetchError(absURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, &FetchError{Kind: FetchStatus, URL: absURL, StatusCode: resp.StatusCode}
	}

	// Tie the cancel to body close so the request context lives as long
	// as the caller is still streaming the body.
	resp.Body = closeWith(resp.Body, cancel)
	return resp, nil
}

// FetchBytes fetches a URL fully into memory, bounded by the maximum file
// size, and returns the body together with the response's Content-Type.
// The engine uses it for HTML pages, which are read through the dedup
// cache and parsed before being written back out; the content type feeds
// the charset detection for pages that declare their encoding in the
// header rather than in a meta tag.
func (f *Fetcher) FetchBytes(ctx context.Context, absURL string) ([]byte, string, error) {
	resp, err := f.get(ctx, absURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxFileSize+1))
	if err != nil {
		return nil, "", classifyFetchError(absURL, err)
	}
	if int64(len(body)) > f.maxFileSize {
		return nil, "", &SecurityError{URL: absURL, Reason: fmt.Sprintf("body exceeds %d bytes", f.maxFileSize)}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// DownloadResult describes one successful streamed download.
type DownloadResult struct {
	// Bytes is the number of body bytes written to disk.
	Bytes int64

	// StatusCode is the HTTP response status code.
	StatusCode int

	// ContentType is the Content-Type response header value.
	ContentType string
}

// Download fetches absURL and streams the body to destPath, creating
// parent directories as needed. The body is copied in fixed-size chunks;
// on success the byte and file counters are reported to the statistics
// aggregator.
//
// The security policy is enforced before and during the transfer: blocked
// extensions are rejected without a network call, and a resource whose
// declared or actual size exceeds the limit is rejected and its partial
// file removed. Rejected resources are never written to disk.
func (f *Fetcher) Download(ctx context.Context, absURL, destPath string) (*DownloadResult, error) {
	if err := checkExtension(absURL); err != nil {
		return nil, err
	}

	resp, err := f.get(ctx, absURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > f.maxFileSize {
		return nil, &SecurityError{URL: absURL, Reason: fmt.Sprintf("declared size %d exceeds %d bytes", resp.ContentLength, f.maxFileSize)}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", destPath, err)
	}

	out, err := os.Create(destPath) //nolint:gosec // destPath is produced by the resolver's sanitizer
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", destPath, err)
	}

	written, err := f.copyChunked(out, resp.Body)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("write %s: %w", destPath, closeErr)
	}
	if err == nil && written > f.maxFileSize {
		err = &SecurityError{URL: absURL, Reason: fmt.Sprintf("body exceeds %d bytes", f.maxFileSize)}
	}
	if err != nil {
		_ = os.Remove(destPath)
		var secErr *SecurityError
		if errors.As(err, &secErr) {
			return nil, err
		}
		return nil, classifyFetchError(absURL, err)
	}

	f.stats.AddBytes(written)
	f.stats.AddFile()

	return &DownloadResult{
		Bytes:       written,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// copyChunked copies src to dst in chunkSize reads, stopping one byte past
// the size limit so the caller can detect oversized bodies without
// buffering them whole.
func (f *Fetcher) copyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, f.chunkSize)
	return io.CopyBuffer(dst, io.LimitReader(src, f.maxFileSize+1), buf)
}

// checkExtension rejects URLs whose path carries a blocked extension.
func checkExtension(absURL string) error {
	u, err := url.Parse(absURL)
	if err != nil {
		return &FetchError{Kind: FetchTransport, URL: absURL, Err: err}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if config.BlockedExtensions[ext] {
		return &SecurityError{URL: absURL, Reason: fmt.Sprintf("blocked extension %q", ext)}
	}
	return nil
}

// classifyFetchError wraps a transport-level error as a FetchError,
// distinguishing timeouts from other transport failures.
func classifyFetchError(absURL string, err error) error {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return err
	}

	kind := FetchTransport
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		kind = FetchTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: absURL, Err: err}
}

// closerFunc adapts a ReadCloser so extra cleanup runs on Close.
type closerFunc struct {
	io.ReadCloser
	extra func()
}

func (c closerFunc) Close() error {
	err := c.ReadCloser.Close()
	c.extra()
	return err
}

func closeWith(rc io.ReadCloser, extra func()) io.ReadCloser {
	return closerFunc{ReadCloser: rc, extra: extra}
}
