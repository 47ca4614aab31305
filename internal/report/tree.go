package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Tree renders a textual listing of the directory rooted at dir, in the
// style of the tree command. Files carry a human-readable size suffix.
// Entries appear in lexical order, the order os.ReadDir returns them.
func Tree(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("read tree root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("read tree root: %s is not a directory", dir)
	}

	var sb strings.Builder
	sb.WriteString(filepath.Base(filepath.Clean(dir)))
	sb.WriteString("/\n")

	if err := writeTreeLevel(&sb, dir, ""); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// writeTreeLevel renders one directory's entries and recurses into
// subdirectories, threading the accumulated line prefix.
func writeTreeLevel(sb *strings.Builder, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read tree directory: %w", err)
	}

	for i, entry := range entries {
		connector := "├── "
		childPrefix := prefix + "│   "
		if i == len(entries)-1 {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		sb.WriteString(prefix)
		sb.WriteString(connector)
		sb.WriteString(entry.Name())

		if entry.IsDir() {
			sb.WriteString("/\n")
			if err := writeTreeLevel(sb, filepath.Join(dir, entry.Name()), childPrefix); err != nil {
				return err
			}
			continue
		}

		if info, err := entry.Info(); err == nil {
			sb.WriteString(fmt.Sprintf(" (%s)", humanize.Bytes(uint64(info.Size())))) //nolint:gosec // file sizes are non-negative
		}
		sb.WriteString("\n")
	}
	return nil
}
