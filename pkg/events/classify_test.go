package events

import (
	"encoding/json"
	"testing"
)

func TestLevelUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKnown bool
		wantValue float64
	}{
		{name: "number in range", input: `3.8`, wantKnown: true, wantValue: 3.8},
		{name: "zero", input: `0`, wantKnown: true, wantValue: 0},
		{name: "upper bound", input: `5`, wantKnown: true, wantValue: 5},
		{name: "numeric string", input: `"2.5"`, wantKnown: true, wantValue: 2.5},
		{name: "non-numeric string", input: `"abc"`, wantKnown: false},
		{name: "null", input: `null`, wantKnown: false},
		{name: "object", input: `{"x":1}`, wantKnown: false},
		{name: "above scale", input: `7.2`, wantKnown: false},
		{name: "below scale", input: `-1`, wantKnown: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Level
			if err := json.Unmarshal([]byte(tt.input), &l); err != nil {
				t.Fatalf("unmarshal returned error: %v", err)
			}
			v, known := l.Value()
			if known != tt.wantKnown {
				t.Fatalf("known = %v, want %v", known, tt.wantKnown)
			}
			if known && v != tt.wantValue {
				t.Errorf("value = %v, want %v", v, tt.wantValue)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if got := NewLevel(3.8).String(); got != "3.8" {
		t.Errorf("known level renders %q, want 3.8", got)
	}
	var unknown Level
	if got := unknown.String(); got != "--" {
		t.Errorf("unknown level renders %q, want --", got)
	}
}

func TestLevelMarshal(t *testing.T) {
	data, err := json.Marshal(NewLevel(4.2))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "4.2" {
		t.Errorf("known level marshals %s, want 4.2", data)
	}

	data, err = json.Marshal(Level{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "null" {
		t.Errorf("unknown level marshals %s, want null", data)
	}
}

func TestFlagged(t *testing.T) {
	tests := []struct {
		name       string
		severity   string
		confidence string
		want       bool
	}{
		{name: "both on boundary", severity: `3.0`, confidence: `3.0`, want: false},
		{name: "just above thresholds", severity: `3.1`, confidence: `2.6`, want: true},
		{name: "confidence on boundary", severity: `4.0`, confidence: `2.5`, want: false},
		{name: "severity unknown", severity: `"abc"`, confidence: `3.0`, want: false},
		{name: "confidence unknown", severity: `4.5`, confidence: `"n/a"`, want: false},
		{name: "both maxed", severity: `5`, confidence: `5`, want: true},
		{name: "severity out of scale", severity: `9`, confidence: `5`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"severity":` + tt.severity + `,"confidence":` + tt.confidence + `}`
			var r Result
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := r.Flagged(); got != tt.want {
				t.Errorf("Flagged() = %v, want %v", got, tt.want)
			}
		})
	}
}
