package llm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// SSEEvent represents a single Server-Sent Event
type SSEEvent struct {
	Event string // Event type (optional, empty if not specified)
	Data  []byte // Concatenated data lines
	ID    string // Event ID (optional)
}

// SSEParser parses Server-Sent Events (SSE) streams
type SSEParser struct {
	reader    *bufio.Reader
	buffer    bytes.Buffer // Accumulates data for the current event
	eventType string
	eventID   string
}

// NewSSEParser creates a new SSE parser
func NewSSEParser(reader io.Reader) *SSEParser {
	return &SSEParser{
		reader: bufio.NewReaderSize(reader, 64*1024),
	}
}

// NextEvent reads the next SSE event from the stream.
// Returns io.EOF when the stream is complete and io.ErrUnexpectedEOF
// (wrapped) if the stream ends mid-event.
func (p *SSEParser) NextEvent() (SSEEvent, error) {
	for {
		line, err := p.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && p.pending() {
				return SSEEvent{}, fmt.Errorf("stream ended mid-event: %w", io.ErrUnexpectedEOF)
			}
			return SSEEvent{}, err
		}

		line = bytes.TrimSuffix(line, []byte{'\n'})
		line = bytes.TrimSuffix(line, []byte{'\r'})

		// Empty line dispatches the pending event
		if len(line) == 0 {
			if p.pending() {
				event := SSEEvent{
					Event: p.eventType,
					Data:  bytes.Clone(p.buffer.Bytes()),
					ID:    p.eventID,
				}
				p.reset()
				return event, nil
			}
			continue
		}

		// Comment
		if line[0] == ':' {
			continue
		}

		field, value, found := bytes.Cut(line, []byte{':'})
		if !found {
			continue
		}
		value = bytes.TrimPrefix(value, []byte{' '})

		switch string(field) {
		case "event":
			p.eventType = string(value)
		case "data":
			if p.buffer.Len() > 0 {
				p.buffer.WriteByte('\n')
			}
			p.buffer.Write(value)
		case "id":
			p.eventID = string(value)
		}
	}
}

func (p *SSEParser) pending() bool {
	return p.buffer.Len() > 0 || p.eventType != "" || p.eventID != ""
}

// reset clears the parser state for the next event
func (p *SSEParser) reset() {
	p.buffer.Reset()
	p.eventType = ""
	p.eventID = ""
}

// IsSSEDone checks if the SSE data is the OpenAI [DONE] marker
func IsSSEDone(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]"))
}
