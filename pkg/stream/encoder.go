// Package stream encodes incrementally-delivered analysis responses as
// Server-Sent Events carrying chat.completion.chunk objects. A caller writes
// zero or more content chunks followed by exactly one terminator; every frame
// is flushed to the transport as it is produced so the receiving side sees
// partial output immediately.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Model is the fixed model tag stamped on every chunk.
const Model = "gpt-3.5-turbo-0125"

// Terminator is the sentinel frame marking end-of-stream.
const Terminator = "data: [DONE]\n\n"

// Delta is the incremental content portion of a chunk. Content may be null
// on role-only deltas; consumers must tolerate that.
type Delta struct {
	Content      *string     `json:"content"`
	FunctionCall interface{} `json:"function_call"`
	Refusal      interface{} `json:"refusal"`
	Role         string      `json:"role"`
	ToolCalls    interface{} `json:"tool_calls"`
}

// Choice wraps a delta with its finish state.
type Choice struct {
	Delta        Delta       `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
	Index        int         `json:"index"`
	Logprobs     interface{} `json:"logprobs"`
}

// Chunk is one protocol-framed unit of a streamed response.
type Chunk struct {
	ID                string      `json:"id"`
	Choices           []Choice    `json:"choices"`
	Created           int64       `json:"created"`
	Model             string      `json:"model"`
	Object            string      `json:"object"`
	ServiceTier       string      `json:"service_tier"`
	SystemFingerprint interface{} `json:"system_fingerprint"`
	Usage             interface{} `json:"usage"`
}

// NewCompletionID returns a fresh v4 UUID identifying one response stream.
func NewCompletionID() string {
	return uuid.NewString()
}

// EncodeChunk produces one SSE frame carrying a content delta. An empty
// finishReason is encoded as null.
func EncodeChunk(id, content, finishReason string) []byte {
	var fr *string
	if finishReason != "" {
		fr = &finishReason
	}
	chunk := Chunk{
		ID: id,
		Choices: []Choice{{
			Delta: Delta{
				Content: &content,
				Role:    "assistant",
			},
			FinishReason: fr,
			Index:        0,
		}},
		Created:     time.Now().UnixMilli(),
		Model:       Model,
		Object:      "chat.completion.chunk",
		ServiceTier: "auto",
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		// Chunk contains only marshal-safe fields; this cannot fail in
		// practice, but a broken frame must not poison the stream.
		return []byte("data: {}\n\n")
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

// EncodeTerminator produces the fixed end-of-stream frame.
func EncodeTerminator() []byte {
	return []byte(Terminator)
}

// ResponseStream writes chunk frames to one HTTP caller, flushing each frame
// as it goes. Terminate is idempotent so the terminator is emitted exactly
// once even on error paths.
type ResponseStream struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	id         string
	terminated bool
}

// NewResponseStream prepares w for incremental delivery: SSE headers, a
// completion id, and a flushable transport. An empty id gets a fresh one.
// Returns an error if the underlying writer cannot flush (buffering would
// defeat incremental delivery).
func NewResponseStream(w http.ResponseWriter, id string) (*ResponseStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	if id == "" {
		id = NewCompletionID()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &ResponseStream{
		w:       w,
		flusher: flusher,
		id:      id,
	}, nil
}

// ID returns the completion id stamped on every chunk of this stream.
func (s *ResponseStream) ID() string { return s.id }

// WriteContent sends one content chunk and flushes it.
func (s *ResponseStream) WriteContent(content string) error {
	if s.terminated {
		return fmt.Errorf("stream already terminated")
	}
	if _, err := s.w.Write(EncodeChunk(s.id, content, "")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Terminate sends the end-of-stream sentinel. Safe to call more than once;
// only the first call writes.
func (s *ResponseStream) Terminate() {
	if s.terminated {
		return
	}
	s.terminated = true
	s.w.Write(EncodeTerminator())
	s.flusher.Flush()
}
