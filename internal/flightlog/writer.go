// Package flightlog implements the durable append-only flight log. One CSV
// file per session, header row written once at creation, rows appended in
// acceptance order and never rewritten. Any write error is a
// storage-medium failure and is treated as fatal by the pipeline to avoid
// silent data loss.
package flightlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

// Header is the column schema of the flight log.
var Header = []string{
	"timestamp", "roll", "pitch", "yaw",
	"latitude", "longitude", "altitude",
	"velocity", "temperature", "pressure",
}

const timestampFormat = time.DateTime

// SessionPath returns the per-session log path inside dir, named after the
// session start time.
func SessionPath(dir string, start time.Time) string {
	return filepath.Join(dir, start.UTC().Format("20060102_150405")+".csv")
}

// Writer appends accepted samples to the log file. Appends are serialized
// so concurrent producers never interleave mid-row.
type Writer struct {
	path string
	file *os.File

	mu sync.Mutex
	w  *csv.Writer

	closeOnce sync.Once
	closeErr  error
}

// NewWriter opens the log at path, creating parent directories as needed.
// The header row is written only when the file is created; reopening an
// existing log never rewrites it.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	stat, err := os.Stat(path)
	exists := err == nil && stat.Size() > 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening flight log: %w", err)
	}

	w := Writer{
		path: path,
		file: file,
		w:    csv.NewWriter(file),
	}

	if !exists {
		if err := w.w.Write(Header); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
		w.w.Flush()
		if err := w.w.Error(); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	return &w, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one accepted sample as a row. Rows are flushed to the OS
// immediately so a crash loses at most the row being written.
func (w *Writer) Append(sample *telemetry.Sample) error {
	row := []string{
		sample.ReceivedAt.Format(timestampFormat),
		formatFloat(sample.Roll),
		formatFloat(sample.Pitch),
		formatFloat(sample.Yaw),
		formatFloat(sample.Latitude),
		formatFloat(sample.Longitude),
		formatFloat(sample.Altitude),
		formatFloat(sample.Velocity),
		formatFloat(sample.Temperature),
		formatFloat(sample.Pressure),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("appending sample: %w", err)
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("appending sample: %w", err)
	}

	return nil
}

// Close flushes buffered rows and syncs the file to stable storage.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		w.w.Flush()
		flushErr := w.w.Error()
		syncErr := w.file.Sync()
		closeErr := w.file.Close()

		switch {
		case flushErr != nil:
			w.closeErr = flushErr
		case syncErr != nil:
			w.closeErr = syncErr
		case closeErr != nil:
			w.closeErr = closeErr
		}
	})

	return w.closeErr
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
