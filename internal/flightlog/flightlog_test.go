package flightlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

func testSample(i int) *telemetry.Sample {
	return &telemetry.Sample{
		ReceivedAt:  time.Date(2026, 8, 26, 10, 0, i, 0, time.Local),
		Roll:        45.2,
		Pitch:       12.5,
		Yaw:         180.0,
		Latitude:    34.052235,
		Longitude:   -118.243683,
		Altitude:    15000.0 + float64(i),
		Velocity:    5.5,
		Temperature: 25.3,
		Pressure:    1013.25,
	}
}

func TestWriter_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.csv")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Append(testSample(0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen and append again; the header must not be repeated.
	w, err = NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter reopen failed: %v", err)
	}
	if err := w.Append(testSample(1)); err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if count := strings.Count(string(data), "timestamp,roll"); count != 1 {
		t.Errorf("Expected exactly one header row, found %d", count)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Errorf("Expected header plus 2 rows, got %d lines", len(lines))
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.csv")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	const n = 25
	for i := 0; i < n; i++ {
		if err := w.Append(testSample(i)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	samples, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(samples) != n {
		t.Fatalf("Expected %d rows, got %d", n, len(samples))
	}

	for i, got := range samples {
		want := testSample(i)
		if !got.ReceivedAt.Equal(want.ReceivedAt) {
			t.Errorf("Row %d: timestamp %v, want %v", i, got.ReceivedAt, want.ReceivedAt)
		}
		if got.Altitude != want.Altitude {
			t.Errorf("Row %d: altitude %v, want %v", i, got.Altitude, want.Altitude)
		}
		if got.Longitude != want.Longitude {
			t.Errorf("Row %d: longitude %v, want %v", i, got.Longitude, want.Longitude)
		}
	}
}

func TestWriter_AppendOrderPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.csv")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	// Altitude encodes append order; timestamps are deliberately not
	// monotonic to confirm the log preserves arrival order, not source
	// timestamp order.
	times := []int{5, 1, 3, 2, 4}
	for i, secs := range times {
		s := testSample(secs)
		s.Altitude = float64(i)
		if err := w.Append(s); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	samples, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, s := range samples {
		if s.Altitude != float64(i) {
			t.Errorf("Row %d: expected append order %d, got %v", i, i, s.Altitude)
		}
	}
}

func TestWriter_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.csv")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	const writers, perWriter = 4, 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if err := w.Append(testSample(j)); err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Every row must parse cleanly with the exact field count; a torn or
	// interleaved row would fail.
	samples, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(samples) != writers*perWriter {
		t.Errorf("Expected %d rows, got %d", writers*perWriter, len(samples))
	}
}

func TestRead_RejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("a,b,c,d,e,f,g,h,i,j\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); err == nil {
		t.Error("Expected header mismatch error")
	}
}

func TestSessionPath(t *testing.T) {
	start := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	got := SessionPath("Telemetry", start)
	want := filepath.Join("Telemetry", "20260826_093000.csv")
	if got != want {
		t.Errorf("SessionPath = %q, want %q", got, want)
	}
}
