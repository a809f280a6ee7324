package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeFrame(t *testing.T, frame string) Chunk {
	t.Helper()
	if !strings.HasPrefix(frame, "data: ") {
		t.Fatalf("frame missing data prefix: %q", frame)
	}
	var chunk Chunk
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &chunk); err != nil {
		t.Fatalf("frame payload not JSON: %v", err)
	}
	return chunk
}

func TestEncodeChunk(t *testing.T) {
	frame := string(EncodeChunk("id1", "hello", ""))
	if !strings.HasSuffix(frame, "\n\n") {
		t.Errorf("frame must end with blank line: %q", frame)
	}

	chunk := decodeFrame(t, strings.TrimSuffix(frame, "\n\n"))
	if chunk.ID != "id1" {
		t.Errorf("id = %q", chunk.ID)
	}
	if chunk.Object != "chat.completion.chunk" {
		t.Errorf("object = %q", chunk.Object)
	}
	if chunk.Model != Model {
		t.Errorf("model = %q", chunk.Model)
	}
	if len(chunk.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(chunk.Choices))
	}
	choice := chunk.Choices[0]
	if choice.Index != 0 {
		t.Errorf("index = %d", choice.Index)
	}
	if choice.Delta.Content == nil || *choice.Delta.Content != "hello" {
		t.Errorf("content = %v", choice.Delta.Content)
	}
	if choice.FinishReason != nil {
		t.Errorf("finish_reason = %v, want null", *choice.FinishReason)
	}
	if chunk.Created == 0 {
		t.Error("created not set")
	}
}

func TestEncodeChunkFinishReason(t *testing.T) {
	chunk := decodeFrame(t, strings.TrimSuffix(string(EncodeChunk("id1", "", "stop")), "\n\n"))
	if chunk.Choices[0].FinishReason == nil || *chunk.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %v, want stop", chunk.Choices[0].FinishReason)
	}
}

func TestNewCompletionIDShape(t *testing.T) {
	id := NewCompletionID()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("id %q is not UUID-shaped", id)
	}
	if len(parts[2]) != 4 || parts[2][0] != '4' {
		t.Errorf("id %q is not version 4", id)
	}
	if id == NewCompletionID() {
		t.Error("two streams got the same id")
	}
}

func TestResponseStreamTerminatorLast(t *testing.T) {
	rec := httptest.NewRecorder()

	rs, err := NewResponseStream(rec, "id1")
	if err != nil {
		t.Fatal(err)
	}
	if err := rs.WriteContent("hello"); err != nil {
		t.Fatal(err)
	}
	rs.Terminate()
	rs.Terminate() // idempotent — must not write a second sentinel

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("cache-control = %q", cc)
	}

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2: %q", len(frames), body)
	}
	if frames[len(frames)-1] != "data: [DONE]" {
		t.Errorf("terminator is not the final frame: %q", frames[len(frames)-1])
	}
	if strings.Index(body, "data: [DONE]") != strings.LastIndex(body, "data: [DONE]") {
		t.Error("terminator appeared more than once")
	}

	chunk := decodeFrame(t, frames[0])
	if chunk.ID != "id1" {
		t.Errorf("chunk id = %q", chunk.ID)
	}

	if err := rs.WriteContent("late"); err == nil {
		t.Error("write after terminate must fail")
	}
}
