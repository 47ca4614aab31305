package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/webmirror/internal/config"
)

// testConfig returns a Config suitable for mirroring an httptest site
// into a temporary directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Timeout = 5 * time.Second
	cfg.RequestsPerSecond = 0 // no politeness delay against localhost
	return cfg
}

// countingMux wraps a ServeMux and counts requests per path.
type countingMux struct {
	mux *http.ServeMux

	mu     sync.Mutex
	counts map[string]int
}

func newCountingMux() *countingMux {
	return &countingMux{mux: http.NewServeMux(), counts: make(map[string]int)}
}

func (c *countingMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.counts[r.URL.Path]++
	c.mu.Unlock()
	c.mux.ServeHTTP(w, r)
}

func (c *countingMux) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[path]
}

// TestEngineRun exercises a full breadth-first mirror against an httptest
// site: depth bounding, at-most-once processing, reference rewriting, and
// report assembly.
func TestEngineRun(t *testing.T) {
	t.Parallel()

	newSite := func() *countingMux {
		cm := newCountingMux()
		cm.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`<html><body>
<img src="/img/logo.png">
<a href="/page1.html">one</a>
<a href="/page2.html">two</a>
<a href="/page1.html">one again</a>
</body></html>`))
		})
		cm.mux.HandleFunc("/page1.html", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html><body><a href="/page3.html">three</a></body></html>`))
		})
		cm.mux.HandleFunc("/page2.html", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html><body><img src="/img/logo.png"></body></html>`))
		})
		cm.mux.HandleFunc("/page3.html", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html><body>deep</body></html>`))
		})
		cm.mux.HandleFunc("/img/logo.png", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("PNG"))
		})
		return cm
	}

	t.Run("depth 1 mirrors the seed and its direct links", func(t *testing.T) {
		t.Parallel()

		site := newSite()
		srv := httptest.NewServer(site)
		defer srv.Close()

		cfg := testConfig(t)
		engine, err := NewEngine(cfg, srv.URL,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		if err != nil {
			t.Fatal(err)
		}

		report, err := engine.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, rel := range []string{
			"index.html",
			filepath.Join("level_1", "page1.html"),
			filepath.Join("level_1", "page2.html"),
			filepath.Join("img", "logo.png"),
		} {
			if _, err := os.Stat(filepath.Join(cfg.OutputDir, rel)); err != nil {
				t.Errorf("expected %s to exist: %v", rel, err)
			}
		}

		// page3 is two hops away; it must never be fetched at depth 1.
		if n := site.count("/page3.html"); n != 0 {
			t.Errorf("expected page3 to stay unfetched, got %d fetches", n)
		}

		if report.Statistics.PagesProcessed != 3 {
			t.Errorf("expected 3 pages processed, got %d", report.Statistics.PagesProcessed)
		}
		if report.Statistics.ErrorCount != 0 {
			t.Errorf("expected no errors, got %d", report.Statistics.ErrorCount)
		}
		if len(report.Pages) == 0 {
			t.Error("expected page records in the report")
		}
	})

	t.Run("each URL is processed at most once", func(t *testing.T) {
		t.Parallel()

		site := newSite()
		srv := httptest.NewServer(site)
		defer srv.Close()

		cfg := testConfig(t)
		cfg.MaxDepth = 2
		engine, err := NewEngine(cfg, srv.URL,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := engine.Run(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, p := range []string{"/", "/page1.html", "/page2.html", "/page3.html", "/img/logo.png"} {
			if n := site.count(p); n != 1 {
				t.Errorf("expected exactly 1 fetch of %s, got %d", p, n)
			}
		}
	})

	t.Run("root page failure aborts with ErrRootPageFetch", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		cfg := testConfig(t)
		engine, err := NewEngine(cfg, srv.URL,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		if err != nil {
			t.Fatal(err)
		}

		_, err = engine.Run(context.Background())
		if !errors.Is(err, ErrRootPageFetch) {
			t.Errorf("expected ErrRootPageFetch, got %v", err)
		}
	})

	t.Run("deep page failure is absorbed", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html><body><a href="/broken.html">x</a></body></html>`))
		})
		mux.HandleFunc("/broken.html", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := testConfig(t)
		engine, err := NewEngine(cfg, srv.URL,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		if err != nil {
			t.Fatal(err)
		}

		report, err := engine.Run(context.Background())
		if err != nil {
			t.Fatalf("expected deep failure to be absorbed, got %v", err)
		}
		if report.Statistics.ErrorCount != 1 {
			t.Errorf("expected 1 counted error, got %d", report.Statistics.ErrorCount)
		}
	})

	t.Run("cancellation stops the run", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html><body><a href="/slow.html">slow</a></body></html>`))
		})
		mux.HandleFunc("/slow.html", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			_, _ = w.Write([]byte("<html></html>"))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		defer close(release)

		cfg := testConfig(t)
		engine, err := NewEngine(cfg, srv.URL,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		if err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, err := engine.Run(ctx)
			done <- err
		}()

		select {
		case err := <-done:
			if err == nil {
				t.Error("expected an error after cancellation")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("engine did not stop after cancellation")
		}
	})

	t.Run("status and progress sinks are invoked", func(t *testing.T) {
		t.Parallel()

		site := newSite()
		srv := httptest.NewServer(site)
		defer srv.Close()

		var mu sync.Mutex
		var statuses []string
		var fractions []float64

		cfg := testConfig(t)
		engine, err := NewEngine(cfg, srv.URL,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			WithStatusSink(func(message string) {
				mu.Lock()
				statuses = append(statuses, message)
				mu.Unlock()
			}),
			WithProgressSink(func(fraction float64) {
				mu.Lock()
				fractions = append(fractions, fraction)
				mu.Unlock()
			}),
		)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := engine.Run(context.Background()); err != nil {
			t.Fatal(err)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(statuses) != 3 {
			t.Errorf("expected one status line per page, got %d: %v", len(statuses), statuses)
		}
		for _, f := range fractions {
			if f < 0 || f > 1 {
				t.Errorf("expected fraction in [0,1], got %v", f)
			}
		}
	})

	t.Run("site profile overrides depth and sends its cookie", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		cookies := make(map[string]string)
		site := newSite()
		inner := site.mux
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			cookies[r.URL.Path] = r.Header.Get("Cookie")
			mu.Unlock()
			inner.ServeHTTP(w, r)
		}))
		defer srv.Close()

		cfg := testConfig(t)
		cfg.MaxDepth = 1
		srvURL, err := url.Parse(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		host := srvURL.Hostname()
		cfg.SiteProfiles = &config.File{
			Sites: map[string]config.SiteProfile{
				host: {Cookie: "session=profiled", Depth: 2},
			},
		}

		engine, err := NewEngine(cfg, srv.URL,
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := engine.Run(context.Background()); err != nil {
			t.Fatal(err)
		}

		mu.Lock()
		defer mu.Unlock()
		// Depth override pulled in the two-hop page.
		if _, ok := cookies["/page3.html"]; !ok {
			t.Error("expected profile depth override to reach page3")
		}
		if cookies["/"] != "session=profiled" {
			t.Errorf("expected profile cookie on the seed request, got %q", cookies["/"])
		}
	})

	t.Run("invalid seed URL fails before any work", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		if _, err := NewEngine(cfg, "ftp://example.com"); !errors.Is(err, ErrInvalidSeedURL) {
			t.Errorf("expected ErrInvalidSeedURL, got %v", err)
		}
	})
}
