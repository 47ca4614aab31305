package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/nao1215/webmirror/internal/config"
)

// documentExtensions are the path extensions recognized as page documents.
// A page target whose path lacks one of these is treated as a directory
// and given a synthetic index.html leaf.
var documentExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".php":  true,
	".asp":  true,
	".aspx": true,
}

// shellSpecialChars are characters never accepted in a seed URL. They have
// no business in a URL a user intends to mirror and would be hazardous if
// the URL were ever echoed into a shell or filename.
const shellSpecialChars = " <>\"'`\\|;$&{}"

// maxSegmentLen is the longest path segment written to disk. 255 bytes is
// the filename limit on common filesystems.
const maxSegmentLen = 255

// ValidateSeedURL checks that a seed URL is acceptable to start a run:
// non-empty, http or https scheme, well-formed with a host, within the
// conventional length limit, and free of control and shell-special
// characters. All violations wrap ErrInvalidSeedURL.
func ValidateSeedURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSeedURL)
	}
	if len(raw) > config.MaxSeedURLLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidSeedURL, config.MaxSeedURLLength)
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(shellSpecialChars, r) {
			return fmt.Errorf("%w: contains forbidden character %q", ErrInvalidSeedURL, r)
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSeedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidSeedURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidSeedURL)
	}
	return nil
}

// Resolver classifies URLs found in pages and normalizes them into safe,
// collision-free local file paths rooted at the mirror's output directory.
//
// A Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	// base is the parsed seed URL. Its host defines domain membership.
	base *url.URL

	// preserveStructure nests pages found at depth N under a level_N
	// directory so same-named pages at different depths cannot collide.
	preserveStructure bool
}

// NewResolver creates a Resolver for the given seed URL.
// The seed URL is validated first; an invalid seed wraps ErrInvalidSeedURL.
func NewResolver(seedURL string, preserveStructure bool) (*Resolver, error) {
	if err := ValidateSeedURL(seedURL); err != nil {
		return nil, err
	}
	u, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeedURL, err)
	}
	return &Resolver{base: u, preserveStructure: preserveStructure}, nil
}

// Base returns the parsed seed URL.
func (r *Resolver) Base() *url.URL { return r.base }

// Resolve turns a candidate reference from a page into an absolute URL
// against the seed. It handles relative, protocol-relative, and absolute
// forms. It reports ok=false for references that can never become
// downloadable URLs: empty strings, bare fragments, javascript:, mailto:,
// tel: and data: pseudo-URLs, non-http(s) schemes, and anything that fails
// to parse. A parse failure is never fatal; the reference is simply
// skipped.
func (r *Resolver) Resolve(candidate string) (*url.URL, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.HasPrefix(candidate, "#") {
		return nil, false
	}

	lower := strings.ToLower(candidate)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return nil, false
		}
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return nil, false
	}

	resolved := r.base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, false
	}
	resolved.Fragment = ""
	return resolved, true
}

// InDomain reports whether u belongs to the same host as the seed.
// Cross-domain resources are never downloaded, only referenced externally
// and left unmodified in markup, keeping the mirror self-contained.
func (r *Resolver) InDomain(u *url.URL) bool {
	return strings.EqualFold(u.Host, r.base.Host)
}

// LocalPath maps an in-domain URL to the sanitized relative file path it
// will be written to. It reports ok=false for cross-domain URLs.
//
// Mapping rules:
//   - an empty path or "/" becomes index.html
//   - a path ending in "/" gets an index.html leaf appended
//   - a page target without a recognized document extension is treated as
//     a directory and given a synthetic index.html leaf
//   - every segment is sanitized (see sanitizeSegment)
//   - with depth > 0 and structure preservation enabled, the whole path is
//     nested under a level_<depth> prefix
//
// The mapping is idempotent: the same URL, depth, and page flag always
// yield the identical path. Sanitized-name collisions between different
// URLs (for example "a:b" and "a*b") are an accepted edge case; the
// engine's downloaded-path map keeps rewriting consistent regardless.
func (r *Resolver) LocalPath(u *url.URL, depth int, page bool) (string, bool) {
	if !r.InDomain(u) {
		return "", false
	}

	p := u.Path
	switch {
	case p == "" || p == "/":
		p = "index.html"
	case strings.HasSuffix(p, "/"):
		p += "index.html"
	case page && !documentExtensions[strings.ToLower(path.Ext(p))]:
		p += "/index.html"
	}

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	parts := make([]string, 0, len(segments)+1)
	for _, seg := range segments {
		if seg = sanitizeSegment(seg); seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "index.html")
	}

	if depth > 0 && r.preserveStructure {
		parts = append([]string{fmt.Sprintf("level_%d", depth)}, parts...)
	}
	return path.Join(parts...), true
}

// ResolveLocalPath combines Resolve and LocalPath: it resolves candidate
// against the seed and, when the result is in-domain, returns both the
// absolute URL and the relative local path it maps to.
func (r *Resolver) ResolveLocalPath(candidate string, depth int, page bool) (*url.URL, string, bool) {
	u, ok := r.Resolve(candidate)
	if !ok {
		return nil, "", false
	}
	rel, ok := r.LocalPath(u, depth, page)
	if !ok {
		return nil, "", false
	}
	return u, rel, true
}

// sanitizeSegment makes one path segment safe for the local filesystem.
// Each character of the set  < > : " / \ | ? *  is replaced by one
// underscore (adjacent replacements are not collapsed), leading and
// trailing dots and underscores are stripped, and segments longer than
// 255 bytes are truncated at the limit with the file extension preserved.
func sanitizeSegment(segment string) string {
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._")
	if len(out) > maxSegmentLen {
		ext := path.Ext(out)
		if len(ext) >= maxSegmentLen {
			ext = ""
		}
		out = out[:maxSegmentLen-len(ext)] + ext
	}
	return out
}
