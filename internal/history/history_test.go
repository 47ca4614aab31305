package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/webmirror/internal/model"
)

func testReport(seed string) *model.MirrorReport {
	return &model.MirrorReport{
		SeedURL:   seed,
		OutputDir: "mirror",
		Statistics: model.RunStatistics{
			FilesProcessed:  3,
			BytesDownloaded: 1024,
			PagesProcessed:  1,
		},
	}
}

// TestLogAppendRead tests the append and read round trip of the JSON-lines
// history log.
func TestLogAppendRead(t *testing.T) {
	t.Parallel()

	t.Run("entries come back oldest first", func(t *testing.T) {
		t.Parallel()

		l := New(filepath.Join(t.TempDir(), "history.jsonl"))
		for _, seed := range []string{"https://a.example", "https://b.example"} {
			if err := l.Append(testReport(seed)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		entries, err := l.Read()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].SeedURL != "https://a.example" || entries[1].SeedURL != "https://b.example" {
			t.Errorf("unexpected order: %v", entries)
		}
		if entries[0].Statistics.BytesDownloaded != 1024 {
			t.Errorf("expected statistics to round-trip, got %+v", entries[0].Statistics)
		}
		if entries[0].RecordedAt.IsZero() {
			t.Error("expected RecordedAt to be set")
		}
	})

	t.Run("missing file reads as empty", func(t *testing.T) {
		t.Parallel()

		l := New(filepath.Join(t.TempDir(), "nope.jsonl"))
		entries, err := l.Read()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected no entries, got %d", len(entries))
		}
	})

	t.Run("append creates missing parent directories", func(t *testing.T) {
		t.Parallel()

		l := New(filepath.Join(t.TempDir(), "deep", "nested", "history.jsonl"))
		if err := l.Append(testReport("https://example.com")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entries, err := l.Read()
		if err != nil || len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d (err %v)", len(entries), err)
		}
	})

	t.Run("torn final line does not hide earlier entries", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "history.jsonl")
		l := New(path)
		if err := l.Append(testReport("https://example.com")); err != nil {
			t.Fatal(err)
		}

		// Simulate an interrupted append.
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.WriteString(`{"seed_url":"https://torn`); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}

		entries, err := l.Read()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(entries) != 1 || entries[0].SeedURL != "https://example.com" {
			t.Errorf("expected the intact entry only, got %v", entries)
		}
	})
}

// TestLogRotate verifies that an oversized log is renamed aside and a
// fresh file started.
func TestLogRotate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	// Pre-grow the file past the rotation limit.
	big := strings.Repeat("x", maxLogSize)
	if err := os.WriteFile(path, []byte(big), 0600); err != nil {
		t.Fatal(err)
	}

	l := New(path)
	if err := l.Append(testReport("https://example.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The live file now holds only the fresh entry.
	entries, err := l.Read()
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 entry after rotation, got %d (err %v)", len(entries), err)
	}

	// The old content was moved aside, not deleted.
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one rotated file, got %v", matches)
	}
	info, err := os.Stat(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(len(big)) {
		t.Errorf("expected rotated file to keep the old content, got %d bytes", info.Size())
	}
}

// TestNewDefaultPath verifies the default location under the XDG data
// directory.
func TestNewDefaultPath(t *testing.T) {
	t.Parallel()

	l := New("")
	if !strings.HasSuffix(l.Path(), filepath.Join("webmirror", "history.jsonl")) {
		t.Errorf("expected default path under the webmirror data directory, got %q", l.Path())
	}
}
