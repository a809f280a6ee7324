// Analysis trigger handler — runs one inbound request through the analyzer,
// publishes the outcome to every connected viewer via the hub, and streams a
// derived summary back to the caller as chat-completion chunks.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soundcheck-live/soundcheck/pkg/analyzer"
	"github.com/soundcheck-live/soundcheck/pkg/events"
	"github.com/soundcheck-live/soundcheck/pkg/logger"
	"github.com/soundcheck-live/soundcheck/pkg/stream"
)

// NoConcernsMessage is the fixed summary used when the analyzer returns an
// empty result set.
const NoConcernsMessage = "No concerns detected in the latest statement."

// ChatMessage is one entry in the inbound message list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the trigger endpoint's body.
type ChatCompletionRequest struct {
	Messages []ChatMessage `json:"messages"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnCF("api", "Malformed completion request", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	userText, ok := latestUserMessage(req.Messages)
	if !ok {
		logger.WarnC("api", "Completion request carries no user message")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	// The analyzer call is the dominant latency source. It runs on this
	// request's own goroutine and never blocks the hub or other requests.
	results, err := s.analyzer.Analyze(r.Context(), userText)
	if err != nil {
		var contractErr *analyzer.ContractError
		if errors.As(err, &contractErr) {
			logger.ErrorCF("api", "Analyzer contract violation", map[string]interface{}{
				"reason":  contractErr.Reason,
				"payload": contractErr.Payload,
			})
		} else {
			logger.ErrorCF("api", "Analyzer call failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	correlationID := stream.NewCompletionID()
	summary := deriveSummary(results)

	// Publish to viewers first; the hub isolates its own failures.
	envelope := events.New(events.TypeAnalysisTriggered, "Analysis triggered")
	envelope.CorrelationID = correlationID
	envelope.UserMessage = userText
	envelope.Summary = summary
	if len(results) > 0 {
		envelope.Payload = &results[0]
	}
	if h, err := s.acquireHub(); err != nil {
		logger.WarnCF("api", "Hub unavailable, analysis not broadcast", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		h.Broadcast(envelope)
	}

	// Then stream the same summary back to the original caller.
	rs, err := stream.NewResponseStream(w, correlationID)
	if err != nil {
		logger.ErrorCF("api", "Streaming unsupported by transport", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	defer rs.Terminate()

	if err := rs.WriteContent(summary); err != nil {
		logger.WarnCF("api", "Chunk write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// latestUserMessage selects the most recent entry authored by the end user.
func latestUserMessage(messages []ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}

// deriveSummary turns a result set into the user-facing sentence: the first
// record's correction, its explanation as fallback, or the fixed no-concerns
// sentence for an empty set.
func deriveSummary(results []events.Result) string {
	if len(results) == 0 {
		return NoConcernsMessage
	}
	if results[0].Correction != "" {
		return results[0].Correction
	}
	if results[0].Explanation != "" {
		return results[0].Explanation
	}
	return NoConcernsMessage
}
