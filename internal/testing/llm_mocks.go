package testing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/user/toolagent/internal/llm"
)

// WriteSSE writes one server-sent event
func WriteSSE(w io.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// WriteSSEDone writes the OpenAI-style terminator
func WriteSSEDone(w io.Writer) {
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// SetSSEHeaders marks the response as an event stream
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
}

// ChunkEvents encodes chunks as an event stream ending in [DONE]
func ChunkEvents(chunks ...llm.ChatChunk) []byte {
	var buf bytes.Buffer
	for _, c := range chunks {
		c.Raw = nil
		data, _ := json.Marshal(c)
		WriteSSE(&buf, "", string(data))
	}
	WriteSSEDone(&buf)
	return buf.Bytes()
}

// ScriptedStream returns a Stream that yields chunks in order
func ScriptedStream(ctx context.Context, chunks ...llm.ChatChunk) *llm.Stream {
	body := io.NopCloser(bytes.NewReader(ChunkEvents(chunks...)))
	return llm.NewStream(ctx, body, decodeChunkEvent)
}

func decodeChunkEvent(ev llm.SSEEvent) (llm.ChatChunk, bool, bool, error) {
	if llm.IsSSEDone(ev.Data) {
		return llm.ChatChunk{}, false, true, nil
	}
	var chunk llm.ChatChunk
	if err := json.Unmarshal(ev.Data, &chunk); err != nil {
		return llm.ChatChunk{}, false, false, fmt.Errorf("malformed chunk: %w", err)
	}
	return chunk, true, false, nil
}

// TextChunks splits text into one chunk per part, the last carrying
// finish reason stop
func TextChunks(parts ...string) []llm.ChatChunk {
	chunks := make([]llm.ChatChunk, len(parts))
	for i, p := range parts {
		chunks[i] = llm.ChatChunk{Delta: p}
	}
	if len(chunks) > 0 {
		chunks[len(chunks)-1].FinishReason = "stop"
	}
	return chunks
}
