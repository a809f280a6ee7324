// Package analyzer defines the statement-analysis contract the relay depends
// on, plus the provider implementations that satisfy it. The relay treats
// analysis as an opaque call: text in, zero or more scored results out.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soundcheck-live/soundcheck/pkg/events"
)

// Analyzer scores a piece of user text. An empty result slice means no
// concerns were detected. Implementations may take unbounded time; callers
// pass a context and run each analysis independently.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ([]events.Result, error)
}

// ContractError reports analyzer output that does not match the expected
// shape. It carries the offending payload for diagnosis; callers log it and
// surface a generic server error.
type ContractError struct {
	Reason  string
	Payload string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("analyzer contract violation: %s", e.Reason)
}

// New builds the configured analyzer provider.
func New(provider, apiKey, model string) (Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAIAnalyzer(apiKey, model), nil
	case "anthropic":
		return NewAnthropicAnalyzer(apiKey, model), nil
	case "static", "":
		return &StaticAnalyzer{}, nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q", provider)
	}
}

// systemPrompt instructs LLM-backed providers to emit the result contract
// verbatim. Providers share it so every backend speaks the same shape.
const systemPrompt = `You are a real-time fact checker listening to a live conversation.
Evaluate the user's latest statement for factual problems.

Respond with ONLY a JSON array, no prose and no code fences. Each element:
  {"severity": <0-5>, "confidence": <0-5>, "explanation": "<why>", "correction": "<corrected statement>"}

severity: how wrong the statement is (0 = fine, 5 = completely false).
confidence: how sure you are of the evaluation (0 = guessing, 5 = certain).
Return [] when the statement has no factual problems.`

// parseResults validates and decodes a provider's raw output. The contract
// is a JSON array of objects each carrying severity and confidence keys;
// anything else is a ContractError.
func parseResults(raw string) ([]events.Result, error) {
	cleaned := stripFences(raw)

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, &ContractError{Reason: "output is not a JSON array of objects", Payload: raw}
	}

	for i, entry := range entries {
		if _, ok := entry["severity"]; !ok {
			return nil, &ContractError{Reason: fmt.Sprintf("result %d missing severity", i), Payload: raw}
		}
		if _, ok := entry["confidence"]; !ok {
			return nil, &ContractError{Reason: fmt.Sprintf("result %d missing confidence", i), Payload: raw}
		}
	}

	var results []events.Result
	if err := json.Unmarshal([]byte(cleaned), &results); err != nil {
		return nil, &ContractError{Reason: "result decode failed", Payload: raw}
	}
	return results, nil
}

// stripFences tolerates models that wrap JSON in markdown fences despite the
// prompt saying not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// StaticAnalyzer returns a fixed result set without any network call. With
// no results configured it reports no concerns — the development default.
type StaticAnalyzer struct {
	Results []events.Result
	Err     error
}

// Analyze returns the configured results.
func (a *StaticAnalyzer) Analyze(ctx context.Context, text string) ([]events.Result, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Results, nil
}

var _ Analyzer = (*StaticAnalyzer)(nil)
