package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/webmirror/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
)

// resourceKind is the capability gate a resource category belongs to.
type resourceKind int

const (
	kindImage resourceKind = iota
	kindCSS
	kindJS
)

// resourceTarget maps one HTML tag to the attributes that may carry
// downloadable references, tied to the capability flag that gates them.
//
// Design decision: A static table iterated once per parse replaces the
// original's runtime tag-to-attribute dispatch. The set of interesting
// element and attribute pairs is fixed, so a table keeps the walk flat and
// the capability gating obvious.
type resourceTarget struct {
	tag   string
	attrs []string
	kind  resourceKind
}

var resourceTable = []resourceTarget{
	{tag: "img", attrs: []string{"src", "data-src"}, kind: kindImage},
	{tag: "source", attrs: []string{"src", "srcset"}, kind: kindImage},
	{tag: "video", attrs: []string{"src", "poster"}, kind: kindImage},
	{tag: "audio", attrs: []string{"src"}, kind: kindImage},
	{tag: "link", attrs: []string{"href"}, kind: kindCSS},
	{tag: "script", attrs: []string{"src"}, kind: kindJS},
}

// pathMap is the downloaded-path mapping: original URL to the sanitized
// relative path it was written to. Written once per URL, read when
// rewriting references to that URL found in later pages, which keeps
// rewriting idempotent within a run.
type pathMap struct {
	mu sync.Mutex
	m  map[string]string
}

func newPathMap() *pathMap {
	return &pathMap{m: make(map[string]string)}
}

func (p *pathMap) get(absURL string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rel, ok := p.m[absURL]
	return rel, ok
}

func (p *pathMap) put(absURL, rel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.m[absURL]; !ok {
		p.m[absURL] = rel
	}
}

// Processor handles one fetched HTML document: it extracts embeddable
// references by category, downloads the in-domain ones, rewrites their
// attributes to local relative paths, collects next-level link jobs, and
// serializes the mutated document to its resolved local path.
type Processor struct {
	resolver   *Resolver
	fetcher    *Fetcher
	cache      *Cache
	stats      *Stats
	downloaded *pathMap
	logger     *slog.Logger

	// outputDir is the destination root all relative paths are joined to.
	outputDir string

	// maxDepth bounds link extraction: anchors are collected only while
	// the current job's depth is below it.
	maxDepth int

	includeImages bool
	includeCSS    bool
	includeJS     bool
}

// PageResult is what processing one page produced: the next-level link
// jobs and a record per file written.
type PageResult struct {
	// LinkJobs are in-domain anchor targets at depth+1. The scheduler
	// decides which of them are unseen and worth enqueuing.
	LinkJobs []model.CrawlJob

	// Records holds one entry per file written while processing the
	// page: the page itself plus every downloaded resource.
	Records []model.PageRecord
}

// ProcessPage fetches the page for job through the dedup cache, rewrites
// and downloads its embedded resources, writes the mutated document to
// disk, and returns discovered link jobs.
//
// Per-resource failures increment the error counter and are skipped; they
// never abort processing of the rest of the page. Only a failure to fetch
// the page itself is returned to the caller.
func (p *Processor) ProcessPage(ctx context.Context, job model.CrawlJob) (*PageResult, error) {
	body, contentType, err := p.cache.GetOrFetch(ctx, job.URL, p.fetcher.FetchBytes)
	if err != nil {
		return nil, err
	}

	result := &PageResult{
		LinkJobs: make([]model.CrawlJob, 0),
		Records:  make([]model.PageRecord, 0),
	}

	pageURL, pageRel, ok := p.resolver.ResolveLocalPath(job.URL, job.Depth, true)
	if !ok {
		// The scheduler only enqueues in-domain URLs, so this means the
		// URL stopped parsing; nothing can be written for it.
		p.stats.AddError()
		return result, nil
	}

	doc, parseErr := html.Parse(bytes.NewReader(decodeToUTF8(body, contentType)))

	rendered := body
	if parseErr == nil {
		p.processDocument(ctx, doc, job, pageRel, result)

		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err == nil {
			rendered = buf.Bytes()
		}
	} else {
		// Malformed beyond parsing: degrade to a page with zero
		// extractable resources and links, mirroring the raw bytes.
		p.logger.Debug("degraded parse", "url", job.URL, "error", parseErr)
	}

	dest := filepath.Join(p.outputDir, filepath.FromSlash(pageRel))
	if err := p.writePage(dest, rendered); err != nil {
		p.logger.Warn("page write failed", "url", job.URL, "path", dest, "error", err)
		p.stats.AddError()
		return result, nil
	}

	p.downloaded.put(pageURL.String(), pageRel)
	p.stats.AddPage()
	p.stats.AddFile()
	p.stats.AddBytes(int64(len(body)))
	if contentType == "" {
		contentType = "text/html"
	}
	result.Records = append(result.Records, model.PageRecord{
		URL:         pageURL.String(),
		LocalPath:   pageRel,
		StatusCode:  200,
		ContentType: contentType,
		Bytes:       int64(len(rendered)),
		Depth:       job.Depth,
		FetchedAt:   time.Now(),
	})

	return result, nil
}

// processDocument walks the DOM once, dispatching resource downloads and
// collecting anchor targets.
func (p *Processor) processDocument(ctx context.Context, doc *html.Node, job model.CrawlJob, pageRel string, result *PageResult) {
	seenLinks := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(ctx, n, job, pageRel, seenLinks, result)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}

// processElement handles one element node: resource rewriting for table
// entries, link collection for anchors.
func (p *Processor) processElement(ctx context.Context, n *html.Node, job model.CrawlJob, pageRel string, seenLinks map[string]bool, result *PageResult) {
	if n.Data == "a" {
		p.collectLink(n, job, seenLinks, result)
		return
	}

	for _, target := range resourceTable {
		if target.tag != n.Data || !p.enabled(target.kind) {
			continue
		}
		// Stylesheet links only; icons, preloads and the like are left
		// as external references.
		if n.Data == "link" && !isStylesheet(n) {
			continue
		}
		for _, attr := range target.attrs {
			p.rewriteAttr(ctx, n, attr, job, pageRel, result)
		}
	}
}

// enabled reports whether the capability flag for kind is on.
func (p *Processor) enabled(kind resourceKind) bool {
	switch kind {
	case kindImage:
		return p.includeImages
	case kindCSS:
		return p.includeCSS
	default:
		return p.includeJS
	}
}

// collectLink turns an in-domain anchor into a link job at depth+1.
// Anchors are only extracted while the current depth is below the
// configured maximum, so no job with depth greater than the maximum is
// ever created.
func (p *Processor) collectLink(n *html.Node, job model.CrawlJob, seen map[string]bool, result *PageResult) {
	if job.Depth >= p.maxDepth {
		return
	}

	href := getAttr(n, "href")
	if href == "" {
		return
	}

	u, ok := p.resolver.Resolve(href)
	if !ok || !p.resolver.InDomain(u) {
		return
	}

	abs := u.String()
	if seen[abs] {
		return
	}
	seen[abs] = true

	result.LinkJobs = append(result.LinkJobs, model.CrawlJob{URL: abs, Depth: job.Depth + 1})
}

// rewriteAttr resolves one attribute value, downloads the resource when it
// is in-domain, and rewrites the attribute to the local relative path on
// success. Unresolvable and cross-domain references are left untouched.
func (p *Processor) rewriteAttr(ctx context.Context, n *html.Node, key string, job model.CrawlJob, pageRel string, result *PageResult) {
	val := getAttr(n, key)
	if val == "" {
		return
	}

	if key == "srcset" {
		if rewritten, changed := p.rewriteSrcset(ctx, val, job, pageRel, result); changed {
			setAttr(n, key, rewritten)
		}
		return
	}

	if ref, ok := p.downloadResource(ctx, val, job, pageRel, result); ok {
		setAttr(n, key, ref)
	}
}

// rewriteSrcset rewrites a srcset value candidate by candidate. Each
// candidate is "URL [descriptor]"; descriptors are preserved verbatim.
func (p *Processor) rewriteSrcset(ctx context.Context, val string, job model.CrawlJob, pageRel string, result *PageResult) (string, bool) {
	candidates := strings.Split(val, ",")
	changed := false
	for i, candidate := range candidates {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		if ref, ok := p.downloadResource(ctx, fields[0], job, pageRel, result); ok {
			fields[0] = ref
			candidates[i] = strings.Join(fields, " ")
			changed = true
		} else {
			candidates[i] = strings.Join(fields, " ")
		}
	}
	return strings.Join(candidates, ", "), changed
}

// downloadResource fetches one embedded resource and returns the
// reference to write into the page, relative to the page's own directory.
// Repeated references to an already-downloaded URL reuse the recorded
// path without a second fetch.
func (p *Processor) downloadResource(ctx context.Context, candidate string, job model.CrawlJob, pageRel string, result *PageResult) (string, bool) {
	u, rel, ok := p.resolver.ResolveLocalPath(candidate, job.Depth, false)
	if !ok {
		return "", false
	}
	abs := u.String()

	if existing, ok := p.downloaded.get(abs); ok {
		return relativeRef(pageRel, existing), true
	}

	dest := filepath.Join(p.outputDir, filepath.FromSlash(rel))
	res, err := p.fetcher.Download(ctx, abs, dest)
	if err != nil {
		p.stats.AddError()
		p.logger.Debug("resource skipped", "url", abs, "error", err)
		return "", false
	}

	p.downloaded.put(abs, rel)
	result.Records = append(result.Records, model.PageRecord{
		URL:         abs,
		LocalPath:   rel,
		StatusCode:  res.StatusCode,
		ContentType: res.ContentType,
		Bytes:       res.Bytes,
		Depth:       job.Depth,
		FetchedAt:   time.Now(),
	})

	return relativeRef(pageRel, rel), true
}

// writePage writes the serialized document UTF-8 encoded to dest,
// creating parent directories as needed.
func (p *Processor) writePage(dest string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(dest, content, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// decodeToUTF8 converts a page body to UTF-8 using the encoding declared
// in the response's Content-Type charset parameter, falling back to the
// byte order mark and meta tags. Bodies that are already UTF-8 or that
// fail to decode are returned unchanged; a bad charset never aborts page
// processing.
func decodeToUTF8(body []byte, contentType string) []byte {
	e, _, _ := charset.DetermineEncoding(body, contentType)
	if e == nil || e == unicode.UTF8 {
		return body
	}
	decoded, err := e.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

// relativeRef converts a root-relative target path into a reference
// usable from within fromPage, walking up out of the page's directory and
// down into the target's. Both inputs are clean slash-separated paths
// relative to the output root.
func relativeRef(fromPage, target string) string {
	fromDir := path.Dir(fromPage)
	if fromDir == "." {
		return target
	}

	dirSegs := strings.Split(fromDir, "/")
	targetSegs := strings.Split(target, "/")

	common := 0
	for common < len(dirSegs) && common < len(targetSegs)-1 && dirSegs[common] == targetSegs[common] {
		common++
	}

	var b strings.Builder
	for i := common; i < len(dirSegs); i++ {
		b.WriteString("../")
	}
	b.WriteString(path.Join(targetSegs[common:]...))
	return b.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// setAttr replaces an attribute value in place.
func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// isStylesheet reports whether a link element declares rel=stylesheet.
func isStylesheet(n *html.Node) bool {
	for _, rel := range strings.Fields(strings.ToLower(getAttr(n, "rel"))) {
		if rel == "stylesheet" {
			return true
		}
	}
	return false
}
