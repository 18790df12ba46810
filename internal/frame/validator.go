package frame

import (
	"fmt"
	"time"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

// Limits holds the per-field range constraints applied by the validator.
// Angular and geographic bounds are fixed by the data model; the
// environmental bounds are configurable because they depend on the flight
// profile.
type Limits struct {
	AltitudeMin    float64 `yaml:"altitudeMin"`
	AltitudeMax    float64 `yaml:"altitudeMax"`
	TemperatureMin float64 `yaml:"temperatureMin"`
	TemperatureMax float64 `yaml:"temperatureMax"`
	PressureMin    float64 `yaml:"pressureMin"`
	PressureMax    float64 `yaml:"pressureMax"`
}

// DefaultLimits covers a typical high-altitude balloon flight: down to
// -500 m for below-sea-level launch sites, up to 50 km altitude, and
// plausible atmospheric temperature and pressure ranges.
func DefaultLimits() Limits {
	return Limits{
		AltitudeMin:    -500,
		AltitudeMax:    50_000,
		TemperatureMin: -100,
		TemperatureMax: 60,
		PressureMin:    0,
		PressureMax:    1100,
	}
}

// ValidationError reports the first constraint a candidate violated.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s (got %v)", e.Field, e.Reason, e.Value)
}

// Validator applies the per-field range checks in parse order. The check
// order is deterministic so the same malformed frame always yields the
// same diagnosis.
type Validator struct {
	limits Limits
	now    func() time.Time
}

// NewValidator creates a validator with the given limits.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits, now: time.Now}
}

// Validate checks every field of a parsed candidate, short-circuiting on
// the first violation. On success it returns an accepted sample stamped
// with the validation time.
func (v *Validator) Validate(c *Candidate) (*telemetry.Sample, error) {
	checks := []struct {
		field    string
		min, max float64
	}{
		{"roll", -180, 180},
		{"pitch", -90, 90},
		{"yaw", -180, 180},
		{"latitude", -90, 90},
		{"longitude", -180, 180},
		{"altitude", v.limits.AltitudeMin, v.limits.AltitudeMax},
		{"velocity", 0, 0}, // lower bound only
		{"temperature", v.limits.TemperatureMin, v.limits.TemperatureMax},
		{"pressure", v.limits.PressureMin, v.limits.PressureMax},
	}

	for i, check := range checks {
		value := c.Fields[i]

		if check.field == "velocity" {
			if value < 0 {
				return nil, &ValidationError{Field: check.field, Value: value, Reason: "must not be negative"}
			}
			continue
		}

		if value < check.min || value > check.max {
			return nil, &ValidationError{
				Field:  check.field,
				Value:  value,
				Reason: fmt.Sprintf("out of range [%v, %v]", check.min, check.max),
			}
		}
	}

	return &telemetry.Sample{
		ReceivedAt:  v.now(),
		Roll:        c.Fields[0],
		Pitch:       c.Fields[1],
		Yaw:         c.Fields[2],
		Latitude:    c.Fields[3],
		Longitude:   c.Fields[4],
		Altitude:    c.Fields[5],
		Velocity:    c.Fields[6],
		Temperature: c.Fields[7],
		Pressure:    c.Fields[8],
	}, nil
}
