// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport implements the HTTP client and stream decoder for the
// retrieval-augmented chat endpoint.
package transport

import (
	"time"

	"github.com/jeranaias/ragchat/internal/citation"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// AskRequest is the request body for the streaming chat endpoint.
type AskRequest struct {
	Question       string  `json:"question"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	Dataset        string  `json:"dataset,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// EndSentinel is the protocol line that terminates a stream. Anything still
// buffered after it is discarded.
const EndSentinel = "[DONE]"

// lineRecord is the structured form of one protocol line. A line that fails
// to decode into a known tagged record degrades to literal token text.
type lineRecord struct {
	Type     string                   `json:"type"`
	Content  string                   `json:"content,omitempty"`  // type "token"
	Markup   string                   `json:"markup,omitempty"`   // type "sources", string channel
	Elements []citation.SourceElement `json:"elements,omitempty"` // type "sources", structured channel
	Message  string                   `json:"message,omitempty"`  // type "error"
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventType classifies one decoded stream event.
type EventType int

const (
	// EventToken carries incremental answer text.
	EventToken EventType = iota

	// EventSources carries citation markup or a structured element list.
	EventSources

	// EventError carries a server-reported or transport-level failure.
	EventError

	// EventDone marks end of stream. Exactly one is emitted per stream.
	EventDone
)

// Event is one classified protocol event pushed to the attached session.
type Event struct {
	Type EventType

	// Token text, for EventToken.
	Token string

	// Citation payload, for EventSources. Exactly one of Markup or Elements
	// is populated, depending on which channel the backend used.
	Markup   string
	Elements []citation.SourceElement

	// Err is set for EventError. Message is the server-supplied error string
	// when the error arrived as a decoded line rather than a transport
	// failure.
	Err     error
	Message string
}

// EventCallback receives each classified event, synchronously and in arrival
// order.
type EventCallback func(Event)

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats collects per-generation timing measured on the client side.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	TokenEvents int
	TextBytes   int

	// TTFT is the time to first token.
	TTFT time.Duration
}

// NewStreamStats creates stats with the start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{StartTime: time.Now()}
}

// RecordToken accounts for one token event.
func (s *StreamStats) RecordToken(text string) {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
	s.TokenEvents++
	s.TextBytes += len(text)
}

// Finish marks the end of the stream.
func (s *StreamStats) Finish() {
	s.EndTime = time.Now()
}

// TokensPerSecond returns the observed token event rate.
func (s *StreamStats) TokensPerSecond() float64 {
	if s.EndTime.IsZero() || s.FirstTokenTime.IsZero() {
		return 0
	}
	elapsed := s.EndTime.Sub(s.FirstTokenTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TokenEvents) / elapsed
}
