package archive

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// TestZip tests packaging a directory tree into a zip archive.
func TestZip(t *testing.T) {
	t.Parallel()

	t.Run("archives all files with relative slash paths", func(t *testing.T) {
		t.Parallel()

		src := t.TempDir()
		writeFile(t, filepath.Join(src, "index.html"), "<html></html>")
		writeFile(t, filepath.Join(src, "img", "logo.png"), "PNG")
		writeFile(t, filepath.Join(src, "level_1", "page.html"), "<html>deep</html>")

		dest := filepath.Join(t.TempDir(), "mirror.zip")
		if err := Zip(src, dest); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		zr, err := zip.OpenReader(dest)
		if err != nil {
			t.Fatal(err)
		}
		defer zr.Close() //nolint:errcheck // read-only archive

		var names []string
		contents := make(map[string]string)
		for _, f := range zr.File {
			names = append(names, f.Name)
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			data, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatal(err)
			}
			contents[f.Name] = string(data)
		}
		sort.Strings(names)

		want := []string{"img/logo.png", "index.html", "level_1/page.html"}
		if len(names) != len(want) {
			t.Fatalf("expected %v, got %v", want, names)
		}
		for i, name := range want {
			if names[i] != name {
				t.Errorf("expected entry %q, got %q", name, names[i])
			}
		}
		if contents["img/logo.png"] != "PNG" {
			t.Errorf("unexpected content %q", contents["img/logo.png"])
		}
	})

	t.Run("missing directory returns ErrEmptyDir", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "mirror.zip")
		err := Zip(filepath.Join(t.TempDir(), "missing"), dest)
		if !errors.Is(err, ErrEmptyDir) {
			t.Errorf("expected ErrEmptyDir, got %v", err)
		}
	})

	t.Run("empty directory returns ErrEmptyDir and leaves no archive", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "mirror.zip")
		if err := Zip(t.TempDir(), dest); !errors.Is(err, ErrEmptyDir) {
			t.Errorf("expected ErrEmptyDir, got %v", err)
		}
		if _, err := os.Stat(dest); !os.IsNotExist(err) {
			t.Error("expected no archive file for an empty directory")
		}
	})
}

// TestDefaultPath tests archive path derivation from the output directory.
func TestDefaultPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain directory", "mirror", "mirror.zip"},
		{"trailing separator stripped", "mirror" + string(filepath.Separator), "mirror.zip"},
		{"nested directory", filepath.Join("out", "site"), filepath.Join("out", "site") + ".zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DefaultPath(tt.in); got != tt.want {
				t.Errorf("DefaultPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}
