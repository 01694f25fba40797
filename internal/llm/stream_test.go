package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/user/toolagent/internal/llmtypes"
)

type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

func textDecoder(ev SSEEvent) (ChatChunk, bool, bool, error) {
	if IsSSEDone(ev.Data) {
		return ChatChunk{}, false, true, nil
	}
	if string(ev.Data) == "bad" {
		return ChatChunk{}, false, false, fmt.Errorf("bad chunk")
	}
	return ChatChunk{Delta: string(ev.Data)}, true, false, nil
}

func passErr(err error) error { return err }

func TestStream_CloseIsIdempotent(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: a\n\ndata: b\n\n")}
	var closed []string
	s := newStream(context.Background(), body, textDecoder, passErr, func(text string, _ error) {
		closed = append(closed, text)
	})

	require.True(t, s.Next())
	assert.Equal(t, "a", s.Current().Delta)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.Next(), "no chunks after close")
	assert.NoError(t, s.Err())
	assert.Equal(t, 1, body.closes)
	assert.Equal(t, []string{"a"}, closed)
}

func TestStream_DoneMarkerEndsStream(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: a\n\ndata: [DONE]\n\ndata: ignored\n\n")}
	s := newStream(context.Background(), body, textDecoder, passErr, nil)

	chunks := collectChunks(t, s)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a", s.Text())
	assert.Equal(t, 1, body.closes, "body released at the end of the stream")
}

func TestStream_DecoderErrorStopsStream(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: a\n\ndata: bad\n\ndata: c\n\n")}
	s := newStream(context.Background(), body, textDecoder, func(err error) error {
		return fmt.Errorf("wrapped: %w", err)
	}, nil)

	require.True(t, s.Next())
	assert.False(t, s.Next())
	require.EqualError(t, s.Err(), "wrapped: bad chunk")
	assert.False(t, s.Next())
	assert.Equal(t, "a", s.Text())
}

func TestStream_ContextCanceledBeforeNext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	body := &trackingBody{Reader: strings.NewReader("data: a\n\n")}
	s := newStream(ctx, body, textDecoder, passErr, nil)

	cancel()
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Equal(t, 1, body.closes)
}

func TestStream_CollectMergesToolCalls(t *testing.T) {
	deltas := []ChatChunk{
		{ToolCalls: []llmtypes.ToolCallDelta{{Index: 1, ID: "b", Name: "echo", Arguments: `{"text":`}}},
		{ToolCalls: []llmtypes.ToolCallDelta{{Index: 0, ID: "a", Name: "add", Arguments: `{"a":1,"b":2}`}}},
		{ToolCalls: []llmtypes.ToolCallDelta{{Index: 1, Arguments: `"hi"}`}}},
		{ToolCalls: []llmtypes.ToolCallDelta{{Index: 2, ID: "c", Name: "broken", Arguments: `{"a":`}}},
		{ToolCalls: []llmtypes.ToolCallDelta{{Index: 3, ID: "d", Name: "noargs"}}, FinishReason: llmtypes.FinishToolCalls},
	}
	i := 0
	decode := func(SSEEvent) (ChatChunk, bool, bool, error) {
		chunk := deltas[i]
		i++
		return chunk, true, i == len(deltas), nil
	}
	body := &trackingBody{Reader: strings.NewReader(strings.Repeat("data: x\n\n", len(deltas)))}
	s := newStream(context.Background(), body, decode, passErr, nil)

	resp, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, llmtypes.FinishToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 4)

	assert.Equal(t, "a", resp.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, resp.ToolCalls[0].Arguments)
	assert.Equal(t, "echo", resp.ToolCalls[1].ToolName)
	assert.Equal(t, map[string]any{"text": "hi"}, resp.ToolCalls[1].Arguments)
	assert.Error(t, resp.ToolCalls[2].Err, "unparseable arguments stay on the call")
	assert.Equal(t, map[string]any{}, resp.ToolCalls[2].Arguments)
	assert.NoError(t, resp.ToolCalls[3].Err)
	assert.Equal(t, map[string]any{}, resp.ToolCalls[3].Arguments)
	assert.Equal(t, 1, body.closes)
}

func TestStream_CloseMidStreamReleasesConnection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	server, _ := newVendorServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"Hel"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	})

	p := NewOpenAIProvider("gpt-4o", testProviderConfig(server.URL), nil)
	result, err := p.Chat(context.Background(), ChatRequest{Messages: userMessages("hi"), Stream: true})
	require.NoError(t, err)
	<-started

	s := result.Stream
	require.True(t, s.Next())
	assert.Equal(t, "Hel", s.Current().Delta)
	require.NoError(t, s.Close())
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())

	server.Close()
	p.httpClient.CloseIdleConnections()
}

func TestStream_ContextCanceledMidStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server, _ := newVendorServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"choices":[{"index":0,"delta":{"content":"Hel"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewOpenAIProvider("gpt-4o", testProviderConfig(server.URL), nil)
	result, err := p.Chat(ctx, ChatRequest{Messages: userMessages("hi"), Stream: true})
	require.NoError(t, err)

	s := result.Stream
	require.True(t, s.Next())
	cancel()
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Equal(t, "Hel", s.Text())
	require.NoError(t, s.Close())

	server.Close()
	p.httpClient.CloseIdleConnections()
}
