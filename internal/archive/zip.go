package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyDir is returned when the directory to archive does not exist
// or contains no files.
var ErrEmptyDir = errors.New("archive: directory is empty or missing")

// Zip writes a zip archive of the directory tree rooted at srcDir to
// destPath. Entry names are slash-separated paths relative to srcDir, so
// the archive unpacks to the same layout the crawl produced. Empty
// directories are not recorded.
func Zip(srcDir, destPath string) error {
	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrEmptyDir, srcDir)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close() //nolint:errcheck // double close after the explicit one below is a no-op

	zw := zip.NewWriter(out)

	files := 0
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		files++
		return nil
	})
	if walkErr != nil {
		_ = zw.Close() //nolint:errcheck // walk error takes precedence
		return fmt.Errorf("archive %s: %w", srcDir, walkErr)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	if files == 0 {
		_ = os.Remove(destPath) //nolint:errcheck // best effort cleanup
		return fmt.Errorf("%w: %s", ErrEmptyDir, srcDir)
	}
	return nil
}

// DefaultPath derives the archive path for an output directory: the
// directory name with a .zip suffix, next to the directory itself.
func DefaultPath(outputDir string) string {
	return strings.TrimSuffix(filepath.Clean(outputDir), string(filepath.Separator)) + ".zip"
}

// addFile copies one file into the archive under the given entry name,
// using deflate compression.
func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from walking our own output tree
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only file

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return err
	}

	_, err = io.Copy(w, f)
	return err
}
