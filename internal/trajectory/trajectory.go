// Package trajectory holds the precomputed landing prediction and the
// deviation tracker that matches live samples against it.
package trajectory

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrPredictionUnavailable is returned when the prediction source is
// missing or malformed. The caller degrades to a no-op tracker instead of
// failing the pipeline.
var ErrPredictionUnavailable = errors.New("prediction unavailable")

// Waypoint is one point of the predicted flight path.
type Waypoint struct {
	Index         int     // Position in the ordered sequence
	Latitude      float64 // Degrees
	Longitude     float64 // Degrees
	Altitude      float64 // Meters MSL
	PredictedTime float64 // Seconds since launch, zero when the source omits it
}

// Store is the ordered, read-only waypoint sequence for one flight
// session. Loaded once; immutable thereafter.
type Store struct {
	waypoints []Waypoint
	source    string
}

// Load reads a prediction file into a Store. A .json file is parsed as a
// cached CUSF predictor response (ascent then descent point arrays);
// anything else is parsed as CSV rows lat,lon,alt[,time]. Missing or
// malformed sources fail with ErrPredictionUnavailable.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrPredictionUnavailable, path, err)
	}

	var waypoints []Waypoint
	if strings.EqualFold(filepath.Ext(path), ".json") {
		waypoints, err = parsePredictionJSON(data)
	} else {
		waypoints, err = parseWaypointCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrPredictionUnavailable, path, err)
	}
	if len(waypoints) == 0 {
		return nil, fmt.Errorf("%w: %s contains no waypoints", ErrPredictionUnavailable, path)
	}

	for i := range waypoints {
		waypoints[i].Index = i
	}

	return &Store{waypoints: waypoints, source: path}, nil
}

// Len returns the number of waypoints.
func (s *Store) Len() int {
	return len(s.waypoints)
}

// At returns the waypoint at index i.
func (s *Store) At(i int) Waypoint {
	return s.waypoints[i]
}

// Waypoints returns the full ordered sequence. Callers must not modify it.
func (s *Store) Waypoints() []Waypoint {
	return s.waypoints
}

// Source returns the path the store was loaded from.
func (s *Store) Source() string {
	return s.source
}

// predictionFile mirrors the cached CUSF predictor response: the flown
// path is the ascent stage followed by the descent stage.
type predictionFile struct {
	Prediction struct {
		Ascent  []predictionPoint `json:"ascent"`
		Descent []predictionPoint `json:"descent"`
	} `json:"prediction"`
}

type predictionPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Time      float64 `json:"time"`
}

func parsePredictionJSON(data []byte) ([]Waypoint, error) {
	var file predictionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	points := make([]predictionPoint, 0, len(file.Prediction.Ascent)+len(file.Prediction.Descent))
	points = append(points, file.Prediction.Ascent...)
	points = append(points, file.Prediction.Descent...)

	waypoints := make([]Waypoint, len(points))
	for i, p := range points {
		waypoints[i] = Waypoint{
			Latitude:      p.Latitude,
			Longitude:     p.Longitude,
			Altitude:      p.Altitude,
			PredictedTime: p.Time,
		}
	}
	return waypoints, nil
}

func parseWaypointCSV(data []byte) ([]Waypoint, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1

	var waypoints []Waypoint
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("waypoint row needs at least lat,lon,alt, got %d fields", len(row))
		}

		// Skip a header row if present.
		if len(waypoints) == 0 {
			if _, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64); err != nil {
				continue
			}
		}

		var wp Waypoint
		fields := []*float64{&wp.Latitude, &wp.Longitude, &wp.Altitude}
		if len(row) > 3 {
			fields = append(fields, &wp.PredictedTime)
		}
		for i, dst := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("waypoint row %d field %d: %w", len(waypoints)+1, i, err)
			}
			*dst = v
		}

		waypoints = append(waypoints, wp)
	}

	return waypoints, nil
}
