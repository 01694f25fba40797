package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/toolagent/internal/config"
)

// capturedRequest is what a mock vendor server saw
type capturedRequest struct {
	Path   string
	Query  string
	Header http.Header
	Body   map[string]any
}

type recorder struct {
	mu   sync.Mutex
	reqs []capturedRequest
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.reqs...)
}

// newVendorServer serves handler and records every request body
func newVendorServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body map[string]any)) (*httptest.Server, *recorder) {
	t.Helper()
	seen := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		seen.mu.Lock()
		seen.reqs = append(seen.reqs, capturedRequest{Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Body: body})
		seen.mu.Unlock()

		handler(w, r, body)
	}))
	t.Cleanup(server.Close)
	return server, seen
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// writeSSE writes each payload as one event. A payload of the form
// "event: x\ndata: y" is written verbatim.
func writeSSE(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, p := range payloads {
		if len(p) > 6 && p[:6] == "event:" {
			_, _ = fmt.Fprintf(w, "%s\n\n", p)
			continue
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", p)
	}
}

func testProviderConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{APIKey: "test-key", BaseURL: baseURL, Timeout: 5}
}

func collectChunks(t *testing.T, s *Stream) []ChatChunk {
	t.Helper()
	var chunks []ChatChunk
	for s.Next() {
		chunks = append(chunks, s.Current())
	}
	require.NoError(t, s.Err())
	require.NoError(t, s.Close())
	return chunks
}

func userMessages(content string) []Message {
	return []Message{
		{Role: "system", Content: "You are a test assistant"},
		{Role: "user", Content: content},
	}
}
