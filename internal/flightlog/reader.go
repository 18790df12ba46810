package flightlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

// Read loads every row of a flight log back into samples, verifying the
// header matches the current schema. Used by post-flight tooling and the
// round-trip tests.
func Read(path string) (samples []telemetry.Sample, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening flight log: %w", err)
	}
	defer func() {
		if cErr := file.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(Header)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, name := range Header {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected header column %d: got %q, want %q", i, header[i], name)
		}
	}

	for {
		row, rErr := r.Read()
		if rErr == io.EOF {
			break
		}
		if rErr != nil {
			return nil, fmt.Errorf("reading row: %w", rErr)
		}

		sample, pErr := parseRow(row)
		if pErr != nil {
			return nil, fmt.Errorf("row %d: %w", len(samples)+2, pErr)
		}
		samples = append(samples, *sample)
	}

	return samples, nil
}

func parseRow(row []string) (*telemetry.Sample, error) {
	ts, err := time.ParseInLocation(timestampFormat, row[0], time.Local)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}

	values := make([]float64, len(row)-1)
	for i, token := range row[1:] {
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", Header[i+1], err)
		}
		values[i] = v
	}

	return &telemetry.Sample{
		ReceivedAt:  ts,
		Roll:        values[0],
		Pitch:       values[1],
		Yaw:         values[2],
		Latitude:    values[3],
		Longitude:   values[4],
		Altitude:    values[5],
		Velocity:    values[6],
		Temperature: values[7],
		Pressure:    values[8],
	}, nil
}
