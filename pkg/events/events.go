// Package events defines the wire contracts for the soundcheck relay.
// Every message exchanged between the hub and its viewers is an Envelope;
// analysis outcomes ride inside it as a Result. Consumers must tolerate
// unknown envelope types and absent optional fields — the contract is
// forward-compatible by construction.
package events

import "time"

// Envelope type tags. Unknown tags are accepted and ignored by consumers,
// never rejected.
const (
	TypeConnected         = "connected"
	TypeEcho              = "echo"
	TypeAnalysisTriggered = "analysis_triggered"
)

// Envelope is the universal message shape on the hub's wire.
type Envelope struct {
	// Type identifies the event. Required.
	Type string `json:"type"`

	// Message is a human-readable description. Required.
	Message string `json:"message"`

	// Timestamp is an ISO-8601 string set by the publisher. Optional.
	Timestamp string `json:"timestamp,omitempty"`

	// CorrelationID links the event to the request that produced it. Optional.
	CorrelationID string `json:"correlationId,omitempty"`

	// UserMessage carries the original analyzed text on analysis events.
	UserMessage string `json:"userMessage,omitempty"`

	// Summary is the user-facing summary derived from the analysis.
	Summary string `json:"summary,omitempty"`

	// Payload is the analysis result record when Type is
	// TypeAnalysisTriggered, absent otherwise.
	Payload *Result `json:"payload,omitempty"`
}

// New creates a timestamped envelope.
func New(eventType, message string) Envelope {
	return Envelope{
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Result is one analysis outcome. The relay treats it as opaque except for
// the two levels used for classification.
type Result struct {
	// Severity and Confidence sit on a fixed [0,5] scale. Values outside
	// the scale or non-numeric values parse as unknown, never as a false
	// classification.
	Severity   Level `json:"severity"`
	Confidence Level `json:"confidence"`

	// Explanation says why the statement was scored as it was.
	Explanation string `json:"explanation,omitempty"`

	// Correction is the suggested corrected statement.
	Correction string `json:"correction,omitempty"`
}
