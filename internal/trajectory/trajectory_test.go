package trajectory

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestHaversineMeters(t *testing.T) {
	testCases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 34.0, -118.0, 34.0, -118.0, 0, 0.001},
		{"one degree latitude", 0, 0, 1, 0, 111_195, 200},
		{"LA to downtown offset", 34.052235, -118.243683, 34.05, -118.24, 420, 50},
		{"across equator", -1, 0, 1, 0, 222_390, 400},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := HaversineMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > tc.tolerance {
				t.Errorf("HaversineMeters = %.1f m, want %.1f ± %.1f m", got, tc.want, tc.tolerance)
			}
		})
	}
}

func TestLoad_PredictionJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight_prediction.json")
	content := `{
	  "prediction": {
	    "ascent": [
	      {"latitude": 34.0, "longitude": -118.0, "altitude": 1000, "time": 0},
	      {"latitude": 34.01, "longitude": -118.01, "altitude": 5000, "time": 800}
	    ],
	    "descent": [
	      {"latitude": 34.05, "longitude": -118.24, "altitude": 15000, "time": 3600}
	    ]
	  },
	  "landing_location": {"latitude": 34.05, "longitude": -118.24}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if store.Len() != 3 {
		t.Fatalf("Expected 3 waypoints, got %d", store.Len())
	}

	// Ascent points come before descent points and indices are sequential.
	for i := 0; i < store.Len(); i++ {
		if store.At(i).Index != i {
			t.Errorf("Waypoint %d has index %d", i, store.At(i).Index)
		}
	}
	if store.At(2).Altitude != 15000 {
		t.Errorf("Expected descent waypoint last, got altitude %v", store.At(2).Altitude)
	}
	if store.At(1).PredictedTime != 800 {
		t.Errorf("Expected predicted time 800, got %v", store.At(1).PredictedTime)
	}
}

func TestLoad_WaypointCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoints.csv")
	content := "lat,lon,alt,time\n34.0,-118.0,20000,0\n34.05,-118.24,15000,600\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("Expected 2 waypoints, got %d", store.Len())
	}
	if store.At(1).Longitude != -118.24 {
		t.Errorf("Expected longitude -118.24, got %v", store.At(1).Longitude)
	}
	if store.At(1).PredictedTime != 600 {
		t.Errorf("Expected time 600, got %v", store.At(1).PredictedTime)
	}
}

func TestLoad_Unavailable(t *testing.T) {
	testCases := []struct {
		name    string
		prepare func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "nope.json")
		}},
		{"malformed json", func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "bad.json")
			if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
				t.Fatal(err)
			}
			return path
		}},
		{"empty prediction", func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "empty.json")
			if err := os.WriteFile(path, []byte(`{"prediction":{}}`), 0o644); err != nil {
				t.Fatal(err)
			}
			return path
		}},
		{"short csv row", func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "bad.csv")
			if err := os.WriteFile(path, []byte("34.0,-118.0\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			return path
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.prepare(t))
			if !errors.Is(err, ErrPredictionUnavailable) {
				t.Errorf("Expected ErrPredictionUnavailable, got %v", err)
			}
		})
	}
}
