// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport implements the HTTP client and stream decoder for the
// retrieval-augmented chat endpoint.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader reassembles newline-delimited protocol lines from a chunked
// byte stream and classifies each one. Chunk boundaries are arbitrary; a
// trailing partial line stays buffered until more data arrives.
type StreamReader struct {
	reader *bufio.Reader

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	stats       *StreamStats
}

// NewStreamReader creates a stream reader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader: bufio.NewReader(r),
		stats:  NewStreamStats(),
	}
}

// Process reads the stream and calls the callback for each classified event.
// Blocks until the end sentinel, EOF, a read failure, or context
// cancellation. Exactly one EventDone or EventError terminates a successful
// call; read failures are returned to the caller, which reports them as a
// single errored event (no retry).
func (s *StreamReader) Process(ctx context.Context, callback EventCallback) error {
	defer s.stats.Finish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Process a final unterminated line, then finish cleanly.
				if ev, ok := s.classify(line); ok {
					s.emit(ev, callback)
					if ev.Type == EventDone || ev.Type == EventError {
						return nil
					}
				}
				callback(Event{Type: EventDone})
				return nil
			}
			return err
		}

		ev, ok := s.classify(line)
		if !ok {
			continue
		}
		s.emit(ev, callback)
		if ev.Type == EventDone || ev.Type == EventError {
			// Anything still buffered past the sentinel is discarded.
			return nil
		}
	}
}

// emit forwards one event, keeping accumulator and stats current.
func (s *StreamReader) emit(ev Event, callback EventCallback) {
	if ev.Type == EventToken {
		s.accumulator.WriteString(ev.Token)
		s.stats.RecordToken(ev.Token)
	}
	callback(ev)
}

// classify decodes one raw protocol line into an event. Returns ok=false for
// blank lines, which carry nothing.
func (s *StreamReader) classify(line string) (Event, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return Event{}, false
	}

	if trimmed == EndSentinel {
		return Event{Type: EventDone}, true
	}

	var rec lineRecord
	if err := json.Unmarshal([]byte(trimmed), &rec); err == nil {
		switch rec.Type {
		case "token":
			return Event{Type: EventToken, Token: rec.Content}, true
		case "sources":
			return Event{Type: EventSources, Markup: rec.Markup, Elements: rec.Elements}, true
		case "error":
			return Event{Type: EventError, Message: rec.Message}, true
		}
	}

	// Unrecognized lines are literal token text.
	return Event{Type: EventToken, Token: trimmed}, true
}

// Accumulated returns all answer text seen so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// Stats returns the timing collected for this stream.
func (s *StreamReader) Stats() *StreamStats {
	return s.stats
}
