package crawler

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

// TestValidateSeedURL covers the boundary between acceptable and rejected
// seed URLs. Every rejection must wrap ErrInvalidSeedURL so callers can
// classify the failure without string matching.
func TestValidateSeedURL(t *testing.T) {
	t.Parallel()

	t.Run("accepts http and https URLs", func(t *testing.T) {
		t.Parallel()
		for _, raw := range []string{
			"http://example.com",
			"https://example.com/path/page.html",
			"https://example.com:8443/?q=1",
		} {
			if err := ValidateSeedURL(raw); err != nil {
				t.Errorf("expected %q to validate, got %v", raw, err)
			}
		}
	})

	t.Run("rejects empty URL", func(t *testing.T) {
		t.Parallel()
		if err := ValidateSeedURL(""); !errors.Is(err, ErrInvalidSeedURL) {
			t.Errorf("expected ErrInvalidSeedURL, got %v", err)
		}
	})

	t.Run("rejects non-http schemes", func(t *testing.T) {
		t.Parallel()
		for _, raw := range []string{"ftp://example.com", "file:///etc/passwd", "example.com"} {
			if err := ValidateSeedURL(raw); !errors.Is(err, ErrInvalidSeedURL) {
				t.Errorf("expected ErrInvalidSeedURL for %q, got %v", raw, err)
			}
		}
	})

	t.Run("rejects URLs over the length limit", func(t *testing.T) {
		t.Parallel()
		raw := "https://example.com/" + strings.Repeat("a", 2048)
		if err := ValidateSeedURL(raw); !errors.Is(err, ErrInvalidSeedURL) {
			t.Errorf("expected ErrInvalidSeedURL, got %v", err)
		}
	})

	t.Run("rejects shell special and control characters", func(t *testing.T) {
		t.Parallel()
		for _, raw := range []string{
			"https://example.com/a;rm -rf",
			"https://example.com/$(id)",
			"https://example.com/a|b",
			"https://example.com/a\nb",
			"https://example.com/a`b`",
		} {
			if err := ValidateSeedURL(raw); !errors.Is(err, ErrInvalidSeedURL) {
				t.Errorf("expected ErrInvalidSeedURL for %q, got %v", raw, err)
			}
		}
	})

	t.Run("rejects missing host", func(t *testing.T) {
		t.Parallel()
		if err := ValidateSeedURL("https://"); !errors.Is(err, ErrInvalidSeedURL) {
			t.Errorf("expected ErrInvalidSeedURL, got %v", err)
		}
	})
}

// TestResolverResolve tests normalization of candidate references found in
// page markup against the seed URL.
func TestResolverResolve(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("https://example.com/dir/page.html", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("relative references resolve against the page base", func(t *testing.T) {
		t.Parallel()

		u, ok := r.Resolve("other.html")
		if !ok {
			t.Fatal("expected reference to resolve")
		}
		if got := u.String(); got != "https://example.com/dir/other.html" {
			t.Errorf("expected https://example.com/dir/other.html, got %q", got)
		}
	})

	t.Run("root-relative references resolve from the host root", func(t *testing.T) {
		t.Parallel()

		u, ok := r.Resolve("/img/logo.png")
		if !ok {
			t.Fatal("expected reference to resolve")
		}
		if got := u.String(); got != "https://example.com/img/logo.png" {
			t.Errorf("expected https://example.com/img/logo.png, got %q", got)
		}
	})

	t.Run("protocol-relative references inherit the seed scheme", func(t *testing.T) {
		t.Parallel()

		u, ok := r.Resolve("//cdn.example.net/lib.js")
		if !ok {
			t.Fatal("expected reference to resolve")
		}
		if u.Scheme != "https" || u.Host != "cdn.example.net" {
			t.Errorf("expected https://cdn.example.net, got %q", u.String())
		}
	})

	t.Run("fragments are stripped", func(t *testing.T) {
		t.Parallel()

		u, ok := r.Resolve("page.html#section")
		if !ok {
			t.Fatal("expected reference to resolve")
		}
		if u.Fragment != "" {
			t.Errorf("expected empty fragment, got %q", u.Fragment)
		}
	})

	t.Run("unresolvable references are skipped", func(t *testing.T) {
		t.Parallel()

		for _, candidate := range []string{
			"",
			"#top",
			"javascript:void(0)",
			"mailto:user@example.com",
			"tel:+1234567890",
			"data:image/png;base64,iVBOR",
			"ftp://example.com/file",
		} {
			if _, ok := r.Resolve(candidate); ok {
				t.Errorf("expected %q to be skipped", candidate)
			}
		}
	})
}

// TestResolverInDomain tests domain membership: only the seed's exact host
// counts, case-insensitively.
func TestResolverInDomain(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("https://example.com", true)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"EXAMPLE.COM", true},
		{"sub.example.com", false},
		{"example.net", false},
	}
	for _, tt := range tests {
		u := &url.URL{Scheme: "https", Host: tt.host}
		if got := r.InDomain(u); got != tt.want {
			t.Errorf("InDomain(%s) = %t, want %t", tt.host, got, tt.want)
		}
	}
}

// TestResolverLocalPath tests the URL-to-file-path mapping rules:
// index.html synthesis, segment sanitization, and depth nesting.
func TestResolverLocalPath(t *testing.T) {
	t.Parallel()

	mustURL := func(t *testing.T, raw string) *url.URL {
		t.Helper()
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}

	r, err := NewResolver("https://example.com", true)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("root URL maps to index.html", func(t *testing.T) {
		t.Parallel()
		for _, raw := range []string{"https://example.com", "https://example.com/"} {
			got, ok := r.LocalPath(mustURL(t, raw), 0, true)
			if !ok || got != "index.html" {
				t.Errorf("LocalPath(%s) = %q, %t; want index.html", raw, got, ok)
			}
		}
	})

	t.Run("directory URL gets an index.html leaf", func(t *testing.T) {
		t.Parallel()
		got, ok := r.LocalPath(mustURL(t, "https://example.com/docs/"), 0, true)
		if !ok || got != "docs/index.html" {
			t.Errorf("got %q, %t; want docs/index.html", got, ok)
		}
	})

	t.Run("extensionless page gets a synthetic index.html leaf", func(t *testing.T) {
		t.Parallel()
		got, ok := r.LocalPath(mustURL(t, "https://example.com/about"), 0, true)
		if !ok || got != "about/index.html" {
			t.Errorf("got %q, %t; want about/index.html", got, ok)
		}
	})

	t.Run("document extensions are kept as leaves", func(t *testing.T) {
		t.Parallel()
		got, ok := r.LocalPath(mustURL(t, "https://example.com/a/b.php"), 0, true)
		if !ok || got != "a/b.php" {
			t.Errorf("got %q, %t; want a/b.php", got, ok)
		}
	})

	t.Run("hazardous characters become underscores", func(t *testing.T) {
		t.Parallel()
		got, ok := r.LocalPath(mustURL(t, "https://example.com/archivo%3C%3E.php"), 0, true)
		if !ok || got != "archivo__.php" {
			t.Errorf("got %q, %t; want archivo__.php", got, ok)
		}
	})

	t.Run("dot-only segments disappear", func(t *testing.T) {
		t.Parallel()
		got, ok := r.LocalPath(mustURL(t, "https://example.com/../..%2f../a.html"), 0, true)
		if !ok {
			t.Fatal("expected an in-domain path")
		}
		if strings.Contains(got, "..") {
			t.Errorf("expected no dot-dot segments, got %q", got)
		}
	})

	t.Run("depth nesting applies above depth zero", func(t *testing.T) {
		t.Parallel()
		got, ok := r.LocalPath(mustURL(t, "https://example.com/a.html"), 2, true)
		if !ok || got != "level_2/a.html" {
			t.Errorf("got %q, %t; want level_2/a.html", got, ok)
		}
	})

	t.Run("flat resolver skips depth nesting", func(t *testing.T) {
		t.Parallel()
		flat, err := NewResolver("https://example.com", false)
		if err != nil {
			t.Fatal(err)
		}
		got, ok := flat.LocalPath(mustURL(t, "https://example.com/a.html"), 2, true)
		if !ok || got != "a.html" {
			t.Errorf("got %q, %t; want a.html", got, ok)
		}
	})

	t.Run("cross-domain URLs are refused", func(t *testing.T) {
		t.Parallel()
		if _, ok := r.LocalPath(mustURL(t, "https://other.example/a.html"), 0, true); ok {
			t.Error("expected cross-domain URL to be refused")
		}
	})

	t.Run("mapping is idempotent", func(t *testing.T) {
		t.Parallel()
		u := mustURL(t, "https://example.com/a%20b/c:d.html")
		first, ok1 := r.LocalPath(u, 1, true)
		second, ok2 := r.LocalPath(u, 1, true)
		if !ok1 || !ok2 || first != second {
			t.Errorf("expected identical paths, got %q and %q", first, second)
		}
	})

	t.Run("resources keep their extension without index synthesis", func(t *testing.T) {
		t.Parallel()
		got, ok := r.LocalPath(mustURL(t, "https://example.com/css/site.css"), 1, false)
		if !ok || got != "level_1/css/site.css" {
			t.Errorf("got %q, %t; want level_1/css/site.css", got, ok)
		}
	})
}

// TestSanitizeSegment tests filename sanitization in isolation.
func TestSanitizeSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name unchanged", "page.html", "page.html"},
		{"each hazardous character becomes one underscore", `a<b>c:d"e?f*g`, "a_b_c_d_e_f_g"},
		{"adjacent replacements are not collapsed", "a<>b", "a__b"},
		{"leading and trailing dots stripped", "..hidden.", "hidden"},
		{"leading and trailing underscores stripped", "_name_", "name"},
		{"dot-only segment vanishes", "..", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeSegment(tt.in); got != tt.want {
				t.Errorf("sanitizeSegment(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("long segments truncate preserving the extension", func(t *testing.T) {
		t.Parallel()
		got := sanitizeSegment(strings.Repeat("a", 300) + ".html")
		if len(got) != 255 {
			t.Errorf("expected 255 bytes, got %d", len(got))
		}
		if !strings.HasSuffix(got, ".html") {
			t.Errorf("expected .html suffix, got %q", got)
		}
	})
}
