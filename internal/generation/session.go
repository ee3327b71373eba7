// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation runs streamed answer generations and converges their
// aggregate state.
package generation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/citation"
	"github.com/jeranaias/ragchat/internal/conversation"
	"github.com/jeranaias/ragchat/internal/sources"
	"github.com/jeranaias/ragchat/internal/transport"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// State is a generation session's lifecycle state.
type State int

const (
	// StatePending means the session exists but no event has arrived yet.
	StatePending State = iota

	// StateStreaming means at least one event has been processed.
	StateStreaming

	// StateCompleted, StateCancelled and StateErrored are terminal. A session
	// is never reused after reaching one of them.
	StateCompleted
	StateCancelled
	StateErrored
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateErrored
}

// ErrorText is the user-visible replacement for an errored generation's
// answer text.
const ErrorText = "Something went wrong while generating this answer. Please try again."

// =============================================================================
// SESSION
// =============================================================================

// Session is one in-flight generation: one user question, one streamed
// answer. It owns its assistant message and its question's source merges;
// concurrent sessions never touch each other's state.
type Session struct {
	mu sync.Mutex

	id            string
	questionIndex int
	messageID     string
	state         State

	// cancel stops the decode loop. Owned by the Registry; the session only
	// triggers it through Cancel.
	cancel context.CancelFunc

	// sourcesInline is set once any sources event arrives during streaming.
	// When the stream completes without one, the caller may fall back to a
	// post-hoc source fetch (legacy degraded mode).
	sourcesInline bool

	conv   *conversation.Conversation
	agg    *sources.Aggregator
	sink   SourceSink
	logger *zap.Logger

	// onTerminal fires exactly once, on the transition into a terminal
	// state, outside the session lock.
	onTerminal func(*Session)
}

// newSession wires a session to its conversation and aggregator.
func newSession(questionIndex int, messageID string, conv *conversation.Conversation, agg *sources.Aggregator, sink SourceSink, logger *zap.Logger, onTerminal func(*Session)) *Session {
	return &Session{
		id:            uuid.NewString(),
		questionIndex: questionIndex,
		messageID:     messageID,
		state:         StatePending,
		conv:          conv,
		agg:           agg,
		sink:          sink,
		logger:        logger,
		onTerminal:    onTerminal,
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// QuestionIndex returns the 1-based question ordinal this session answers.
func (s *Session) QuestionIndex() int { return s.questionIndex }

// MessageID returns the assistant message this session owns.
func (s *Session) MessageID() string { return s.messageID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SourcesInline reports whether any sources event arrived during streaming.
func (s *Session) SourcesInline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourcesInline
}

// =============================================================================
// EVENT PROCESSING
// =============================================================================

// HandleEvent applies one decoded stream event. Events for one session are
// processed strictly in arrival order; events arriving after a terminal
// transition are dropped.
func (s *Session) HandleEvent(ev transport.Event) {
	s.mu.Lock()

	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.state == StatePending {
		s.state = StateStreaming
	}

	switch ev.Type {
	case transport.EventToken:
		s.conv.AppendText(s.messageID, ev.Token)
		s.mu.Unlock()

	case transport.EventSources:
		s.sourcesInline = true
		records := parsePayload(ev)
		s.conv.SetSources(s.messageID, ev.Markup, records)
		s.agg.Add(s.questionIndex, records)
		sink := s.sink
		s.mu.Unlock()

		if sink != nil && len(records) > 0 {
			if err := sink.RecordSources(s.conv.ID(), s.questionIndex, records); err != nil {
				s.logger.Warn("source sink write failed", zap.Error(err))
			}
		}

	case transport.EventError:
		s.conv.ReplaceText(s.messageID, ErrorText)
		s.conv.MarkErrored(s.messageID)
		s.terminateLocked(StateErrored)
		s.logger.Warn("generation errored",
			zap.String("session", s.id),
			zap.String("server_message", ev.Message))

	case transport.EventDone:
		s.terminateLocked(StateCompleted)
	}
}

// Fail records a transport-level failure: the answer text is replaced with a
// generic visible message, never discarded. No retry follows.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.conv.ReplaceText(s.messageID, ErrorText)
	s.conv.MarkErrored(s.messageID)
	s.terminateLocked(StateErrored)
	s.logger.Warn("generation failed", zap.String("session", s.id), zap.Error(err))
}

// Cancel stops the session and discards its partial assistant message along
// with any sources it already merged, so a later finalized count does not
// include a cancelled generation's citations. Safe to call in any state and
// more than once.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.conv.Remove(s.messageID)
	s.agg.RemoveGroup(s.questionIndex)
	s.terminateLocked(StateCancelled)
}

// terminateLocked transitions into a terminal state, releases the lock, and
// fires the terminal callback outside it. Caller must hold the lock.
func (s *Session) terminateLocked(state State) {
	s.state = state
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	onTerminal := s.onTerminal
	s.onTerminal = nil
	s.mu.Unlock()

	if onTerminal != nil {
		onTerminal(s)
	}
}

// parsePayload runs the right parser for a sources event's channel.
func parsePayload(ev transport.Event) []citation.SourceRecord {
	if len(ev.Elements) > 0 {
		return citation.ParseElements(ev.Elements)
	}
	if ev.Markup != "" {
		return citation.ParseMarkup(ev.Markup)
	}
	return nil
}
