package telemetry

import (
	"time"
)

// Sample is one validated payload reading. A Sample only exists downstream
// of the validator: every field has already passed its range check, and the
// value is immutable from then on.
type Sample struct {
	ReceivedAt  time.Time `json:"receivedAt"`  // Ground station receipt timestamp, stamped at validation
	Roll        float64   `json:"roll"`        // Roll angle in degrees, [-180, 180]
	Pitch       float64   `json:"pitch"`       // Pitch angle in degrees, [-90, 90]
	Yaw         float64   `json:"yaw"`         // Yaw angle in degrees, [-180, 180]
	Latitude    float64   `json:"latitude"`    // GPS latitude in degrees, [-90, 90]
	Longitude   float64   `json:"longitude"`   // GPS longitude in degrees, [-180, 180]
	Altitude    float64   `json:"altitude"`    // Altitude in meters MSL
	Velocity    float64   `json:"velocity"`    // Ground velocity in m/s, >= 0
	Temperature float64   `json:"temperature"` // Outside air temperature in °C
	Pressure    float64   `json:"pressure"`    // Barometric pressure in hPa
}

// RawFrame is one delimited unit of transport payload: a line from the
// serial link or a single UDP datagram. It is consumed by the parser and
// never persisted.
type RawFrame struct {
	Payload    string    // Frame text as delivered by the transport
	ReceivedAt time.Time // Arrival time at the transport
	Source     string    // Identity of the transport that produced the frame
}

// Deviation reports how far a live sample sits from the predicted descent
// path. WaypointIndex is the index of the matched waypoint; it is
// non-decreasing for the lifetime of a flight session.
type Deviation struct {
	HorizontalMeters    float64   `json:"horizontalMeters"`
	AltitudeDeltaMeters float64   `json:"altitudeDeltaMeters"`
	WaypointIndex       int       `json:"waypointIndex"`
	SampleTime          time.Time `json:"sampleTime"`

	// Unavailable is set when no trajectory prediction is loaded. The
	// remaining fields are zero and carry no meaning.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Health is the telemetry-health counter set surfaced to subscribers. The
// operator has no other way to tell whether data is actually arriving and
// valid, so these counters are published alongside every accepted sample
// and on every rejection.
type Health struct {
	FramesReceived   uint64    `json:"framesReceived"` // Frames delivered by the transport
	ParseErrors      uint64    `json:"parseErrors"`    // Frames dropped by the parser
	Rejected         uint64    `json:"rejected"`       // Frames rejected by the validator
	QueueDrops       uint64    `json:"queueDrops"`     // Frames dropped on ingest queue overflow
	LastFrameAt      time.Time `json:"lastFrameAt"`    // Arrival time of the most recent frame
	PredictionLoaded bool      `json:"predictionLoaded"`
}

// LastFrameAge returns the time elapsed since the most recent frame, or a
// negative duration if no frame has arrived yet.
func (h Health) LastFrameAge(now time.Time) time.Duration {
	if h.LastFrameAt.IsZero() {
		return -1
	}
	return now.Sub(h.LastFrameAt)
}
