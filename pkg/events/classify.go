package events

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Classification thresholds on the [0,5] scale. Both cutoffs are exclusive:
// a result is flagged when severity > 3 AND confidence > 2.5. These are
// business-meaningful values, not tunables.
const (
	SeverityThreshold   = 3.0
	ConfidenceThreshold = 2.5

	LevelMin = 0.0
	LevelMax = 5.0
)

// Level is a float on the [0,5] scale that tolerates malformed input.
// A JSON number (or numeric string) inside the scale parses as a known
// value; anything else — missing, non-numeric, out of range — parses as
// unknown. Unknown levels never contribute to a flagged classification;
// they render as a display sentinel instead.
type Level struct {
	value float64
	known bool
}

// NewLevel builds a known level. Values outside [0,5] collapse to unknown.
func NewLevel(v float64) Level {
	if v < LevelMin || v > LevelMax {
		return Level{}
	}
	return Level{value: v, known: true}
}

// Value returns the numeric value and whether it is known.
func (l Level) Value() (float64, bool) {
	return l.value, l.known
}

// Known reports whether the level parsed to a usable number.
func (l Level) Known() bool { return l.known }

// String renders the level for display, using "--" as the unknown sentinel.
func (l Level) String() string {
	if !l.known {
		return "--"
	}
	return strconv.FormatFloat(l.value, 'f', -1, 64)
}

// UnmarshalJSON accepts a JSON number or a numeric string. Any other shape
// yields an unknown level rather than an error, so a single bad field never
// rejects the surrounding envelope.
func (l *Level) UnmarshalJSON(data []byte) error {
	*l = Level{}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	switch v := raw.(type) {
	case float64:
		*l = NewLevel(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		*l = NewLevel(f)
	}
	return nil
}

// MarshalJSON emits the number for known levels and null for unknown ones.
func (l Level) MarshalJSON() ([]byte, error) {
	if !l.known {
		return []byte("null"), nil
	}
	return json.Marshal(l.value)
}

// Flagged reports whether a result crosses both classification thresholds.
// If either level is unknown the result is never flagged.
func (r Result) Flagged() bool {
	sev, ok := r.Severity.Value()
	if !ok {
		return false
	}
	conf, ok := r.Confidence.Value()
	if !ok {
		return false
	}
	return sev > SeverityThreshold && conf > ConfidenceThreshold
}
