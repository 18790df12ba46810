// Package frame turns raw transport frames into validated telemetry
// samples. Parsing is purely syntactic; range checks live in the validator
// so both stages report errors against the same fixed field order.
package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

// FieldNames is the fixed wire order of the nine frame fields.
var FieldNames = [...]string{
	"roll", "pitch", "yaw",
	"latitude", "longitude", "altitude",
	"velocity", "temperature", "pressure",
}

// NumFields is the exact field count a frame must carry.
const NumFields = len(FieldNames)

// Candidate is a syntactically parsed frame that has not yet been
// validated. Only the validator turns it into a telemetry.Sample.
type Candidate struct {
	Fields [NumFields]float64
	Raw    telemetry.RawFrame
}

// ParseError reports why a frame could not be parsed. Field is the name of
// the offending field, or "frame" for whole-frame problems (empty frame,
// wrong field count).
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Field, e.Reason)
}

// Parse splits a frame into nine comma-separated numeric fields. Any other
// field count, a non-numeric token, or an empty frame is a fatal parse
// rejection for that frame only.
func Parse(raw telemetry.RawFrame) (*Candidate, error) {
	payload := strings.TrimSpace(raw.Payload)
	if payload == "" {
		return nil, &ParseError{Field: "frame", Reason: "empty frame"}
	}

	tokens := strings.Split(payload, ",")
	if len(tokens) != NumFields {
		return nil, &ParseError{
			Field:  "frame",
			Reason: fmt.Sprintf("expected %d fields, got %d", NumFields, len(tokens)),
		}
	}

	c := Candidate{Raw: raw}
	for i, token := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
		if err != nil {
			return nil, &ParseError{
				Field:  FieldNames[i],
				Reason: fmt.Sprintf("non-numeric token %q", strings.TrimSpace(token)),
			}
		}
		c.Fields[i] = v
	}

	return &c, nil
}
