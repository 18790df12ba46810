package trajectory

import (
	"github.com/stratosonde/groundstation/internal/telemetry"
)

// Tracker matches live samples against the predicted path. The search
// cursor is monotonic: the payload moves forward along the prediction, so
// the tracker never searches indices before the last match, and the
// matched waypoint index is non-decreasing for the whole session. A
// session restart requires a fresh Tracker.
//
// A Tracker is owned by a single pipeline goroutine and is not safe for
// concurrent use.
type Tracker struct {
	store  *Store
	cursor int
}

// NewTracker creates a tracker over the given store. A nil store puts the
// tracker into degraded mode: every Track call reports Unavailable rather
// than an error.
func NewTracker(store *Store) *Tracker {
	return &Tracker{store: store}
}

// Loaded reports whether a prediction is available.
func (t *Tracker) Loaded() bool {
	return t.store != nil && t.store.Len() > 0
}

// Cursor returns the index of the last matched waypoint.
func (t *Tracker) Cursor() int {
	return t.cursor
}

// Track computes the deviation of a sample from the nearest predicted
// waypoint at or after the cursor. Ties go to the lower index. Once the
// prediction is exhausted the tracker pins to the final waypoint and keeps
// reporting deltas against it.
func (t *Tracker) Track(sample *telemetry.Sample) telemetry.Deviation {
	if !t.Loaded() {
		return telemetry.Deviation{SampleTime: sample.ReceivedAt, Unavailable: true}
	}

	bestIndex := t.cursor
	bestDistance := t.distanceTo(t.cursor, sample)

	for i := t.cursor + 1; i < t.store.Len(); i++ {
		if d := t.distanceTo(i, sample); d < bestDistance {
			bestDistance = d
			bestIndex = i
		}
	}

	t.cursor = bestIndex
	matched := t.store.At(bestIndex)

	return telemetry.Deviation{
		HorizontalMeters:    bestDistance,
		AltitudeDeltaMeters: sample.Altitude - matched.Altitude,
		WaypointIndex:       bestIndex,
		SampleTime:          sample.ReceivedAt,
	}
}

func (t *Tracker) distanceTo(i int, sample *telemetry.Sample) float64 {
	wp := t.store.At(i)
	return HaversineMeters(sample.Latitude, sample.Longitude, wp.Latitude, wp.Longitude)
}
