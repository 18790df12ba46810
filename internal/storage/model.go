package storage

import (
	"time"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

// Session describes a single recording session stored in the archive.
type Session struct {
	ID        int64
	UUID      string
	StartTime time.Time
	Transport string
	Config    *string
}

// Entry pairs a validated sample with the deviation computed for it.
// Deviation is nil when no prediction was loaded for the session.
type Entry struct {
	Sample    telemetry.Sample
	Deviation *telemetry.Deviation
}

// DeviationPoint is a single archived deviation measurement, as read
// back for reporting.
type DeviationPoint struct {
	SampleTime       time.Time
	HorizontalMeters float64
	AltitudeDelta    float64
	WaypointIndex    int
}
