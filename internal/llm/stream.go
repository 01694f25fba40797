package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/llmtypes"
)

// chunkDecoder turns one SSE event into at most one chunk. done reports that
// the vendor signalled completion; a chunk may accompany it.
type chunkDecoder func(ev SSEEvent) (chunk ChatChunk, ok bool, done bool, err error)

// Stream is a finite, non-restartable sequence of chunks read from an open
// vendor connection. It is not safe for concurrent use. Close releases the
// connection and must be called if the stream is abandoned early.
//
//	for s.Next() {
//		fmt.Print(s.Current().Delta)
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	parser  *SSEParser
	decode  chunkDecoder
	wrapErr func(error) error
	onClose func(text string, err error)

	current  ChatChunk
	err      error
	finished bool
	lastSeen bool // the vendor's completion marker arrived with the last chunk

	text      strings.Builder
	closeOnce sync.Once
	closeErr  error
}

func newStream(ctx context.Context, body io.ReadCloser, decode chunkDecoder, wrapErr func(error) error, onClose func(string, error)) *Stream {
	return &Stream{
		ctx:     ctx,
		body:    body,
		parser:  NewSSEParser(body),
		decode:  decode,
		wrapErr: wrapErr,
		onClose: onClose,
	}
}

// NewStream wraps an event-stream body for adapters defined outside this
// package. decode follows the same contract as the built-in decoders.
func NewStream(ctx context.Context, body io.ReadCloser, decode func(ev SSEEvent) (ChatChunk, bool, bool, error)) *Stream {
	return newStream(ctx, body, decode, func(err error) error { return err }, nil)
}

// Next advances to the next chunk. It returns false when the stream ends,
// fails, or was closed; Err distinguishes the cases.
func (s *Stream) Next() bool {
	if s.finished {
		return false
	}
	if s.lastSeen {
		s.finish(nil)
		return false
	}

	for {
		if err := s.ctx.Err(); err != nil {
			s.finish(err)
			return false
		}

		ev, err := s.parser.NextEvent()
		if err != nil {
			switch {
			case err == io.EOF:
				s.finish(nil)
			case s.ctx.Err() != nil:
				s.finish(s.ctx.Err())
			default:
				s.finish(s.wrapErr(err))
			}
			return false
		}

		chunk, ok, done, err := s.decode(ev)
		if err != nil {
			s.finish(s.wrapErr(err))
			return false
		}
		if ok {
			s.current = chunk
			s.text.WriteString(chunk.Delta)
			s.lastSeen = done
			return true
		}
		if done {
			s.finish(nil)
			return false
		}
	}
}

// Current returns the chunk produced by the last successful Next
func (s *Stream) Current() ChatChunk {
	return s.current
}

// Err returns the error that ended the stream, if any
func (s *Stream) Err() error {
	return s.err
}

// Text returns the text deltas received so far
func (s *Stream) Text() string {
	return s.text.String()
}

// Close releases the vendor connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.finish(nil)
	return s.closeErr
}

func (s *Stream) finish(err error) {
	s.closeOnce.Do(func() {
		s.finished = true
		s.err = err
		s.closeErr = s.body.Close()
		if s.onClose != nil {
			s.onClose(s.text.String(), err)
		}
	})
}

// Collect drains the stream into a single response and closes it. Tool-call
// fragments are merged by index; arguments that do not form a JSON object
// are reported on the affected call.
func (s *Stream) Collect() (ChatResponse, error) {
	start := time.Now()
	defer func() { _ = s.Close() }()

	type partial struct {
		id, name string
		args     strings.Builder
	}
	calls := map[int]*partial{}
	var resp ChatResponse

	for s.Next() {
		chunk := s.Current()
		resp.Content += chunk.Delta
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		for _, d := range chunk.ToolCalls {
			p, ok := calls[d.Index]
			if !ok {
				p = &partial{}
				calls[d.Index] = p
			}
			if d.ID != "" {
				p.id = d.ID
			}
			if d.Name != "" {
				p.name = d.Name
			}
			p.args.WriteString(d.Arguments)
		}
	}
	resp.ResponseTime = time.Since(start)
	if err := s.Err(); err != nil {
		return resp, err
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	resp.ToolCalls = make([]NormalizedToolCall, 0, len(indexes))
	for _, i := range indexes {
		p := calls[i]
		call := NormalizedToolCall{ID: p.id, ToolName: p.name, Arguments: map[string]any{}}
		if raw := strings.TrimSpace(p.args.String()); raw != "" {
			call.Raw = json.RawMessage(raw)
			var args map[string]any
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				call.Err = errors.NewToolCallNormalizationError("stream", p.name, err)
			} else if args != nil {
				call.Arguments = args
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, call)
	}
	return resp, nil
}

// isContextErr reports whether err came from cancellation or a deadline
func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// newChunk builds a ChatChunk carrying the event payload
func newChunk(ev SSEEvent) ChatChunk {
	return llmtypes.ChatChunk{Raw: json.RawMessage(ev.Data)}
}
