// Package history appends finished-run records to a persistent
// JSON-lines log, one object per line, so past mirror runs can be
// inspected with standard text tools.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/webmirror/internal/config"
	"github.com/nao1215/webmirror/internal/model"
)

// maxLogSize is the size at which the history file is rotated. The old
// file is renamed with a timestamp suffix and a fresh file is started.
const maxLogSize = 10 * 1024 * 1024 // 10MB

// Entry is one line of the history log: the run's seed, destination, and
// final statistics.
type Entry struct {
	// RecordedAt is when the entry was appended.
	RecordedAt time.Time `json:"recorded_at"`

	// SeedURL is the URL the run started from.
	SeedURL string `json:"seed_url"`

	// OutputDir is the run's destination directory.
	OutputDir string `json:"output_dir"`

	// Statistics is the run's final counter snapshot.
	Statistics model.RunStatistics `json:"statistics"`
}

// Log appends run records to a JSON-lines file.
type Log struct {
	path string
}

// New returns a Log writing to path. An empty path selects the default
// location under the XDG data directory.
func New(path string) *Log {
	if path == "" {
		path = filepath.Join(config.XDGDataDir(), "history.jsonl")
	}
	return &Log{path: path}
}

// Path returns the file the log writes to.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry for a finished run, rotating the file first if
// it has grown past the size limit.
func (l *Log) Append(report *model.MirrorReport) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	if err := l.rotate(); err != nil {
		return err
	}

	entry := Entry{
		RecordedAt: time.Now(),
		SeedURL:    report.SeedURL,
		OutputDir:  report.OutputDir,
		Statistics: report.Statistics,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close() //nolint:errcheck // double close after the explicit one below is a no-op

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return f.Close()
}

// Read returns all entries currently in the log, oldest first. A missing
// file yields an empty slice. Decoding stops at the first corrupt line,
// returning everything before it; a torn final line from an interrupted
// append never hides earlier history.
func (l *Log) Read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}

	entries := make([]Entry, 0)
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// rotate renames the log aside when it exceeds the size limit. The
// suffix carries a second-resolution timestamp; a collision within the
// same second simply overwrites the previous rotation, which only
// happens in tests.
func (l *Log) rotate() error {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < maxLogSize {
		return nil
	}

	rotated := fmt.Sprintf("%s.%s", l.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("rotate history file: %w", err)
	}
	return nil
}
