// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation runs streamed answer generations and converges their
// aggregate state.
package generation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/citation"
	"github.com/jeranaias/ragchat/internal/conversation"
	"github.com/jeranaias/ragchat/internal/sources"
	"github.com/jeranaias/ragchat/internal/transport"
)

// =============================================================================
// SOURCE SINK
// =============================================================================

// SourceSink receives every deduplicated source a session merges, for
// persistence outside the engine (the local source catalog). Implementations
// must tolerate duplicate records across calls.
type SourceSink interface {
	RecordSources(conversationID string, questionIndex int, records []citation.SourceRecord) error
}

// =============================================================================
// ASK OPTIONS
// =============================================================================

// AskOptions carries the per-question generation parameters.
type AskOptions struct {
	Model       string
	Temperature float64
	Dataset     string

	// OnEvent, when set, observes each decoded event after the session has
	// applied it. Display-only; observers must not mutate engine state.
	OnEvent func(transport.Event)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry tracks all concurrently active generation sessions for one
// conversation. It is the single owner of cancellation: sessions get their
// cancel functions from here and nowhere else. New submissions never block on
// in-flight generations.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	client *transport.Client
	conv   *conversation.Conversation
	agg    *sources.Aggregator
	guard  *Guard
	sink   SourceSink
	logger *zap.Logger
}

// NewRegistry creates a registry bound to one conversation's state. sink may
// be nil. A nil logger logs nowhere.
func NewRegistry(client *transport.Client, conv *conversation.Conversation, agg *sources.Aggregator, guard *Guard, sink SourceSink, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		client:   client,
		conv:     conv,
		agg:      agg,
		guard:    guard,
		sink:     sink,
		logger:   logger,
	}
}

// Conversation returns the conversation this registry mutates.
func (r *Registry) Conversation() *conversation.Conversation { return r.conv }

// Sources returns the aggregator this registry's sessions merge into.
func (r *Registry) Sources() *sources.Aggregator { return r.agg }

// Guard returns the finalization guard.
func (r *Registry) Guard() *Guard { return r.guard }

// =============================================================================
// SUBMISSION
// =============================================================================

// ErrEmptyQuestion is returned when a submission carries no text.
var ErrEmptyQuestion = errors.New("question is empty")

// Submit records a user question, starts a generation session for it, and
// begins streaming in a new goroutine. Submitting resets the finalization
// guard so the new generation's terminal transition schedules a fresh freeze.
// Returns the session immediately; it may already be streaming.
func (r *Registry) Submit(ctx context.Context, question string, opts AskOptions) (*Session, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	r.guard.Reset()

	_, questionIndex := r.conv.AppendQuestion(question)
	r.agg.SetLabel(questionIndex, question)
	messageID := r.conv.StartAssistant(questionIndex)

	session := newSession(questionIndex, messageID, r.conv, r.agg, r.sink, r.logger, r.onTerminal)

	streamCtx, cancel := context.WithCancel(ctx)
	session.cancel = cancel

	r.mu.Lock()
	r.sessions[session.id] = session
	r.mu.Unlock()

	req := transport.AskRequest{
		Question:       question,
		Model:          opts.Model,
		Temperature:    opts.Temperature,
		Dataset:        opts.Dataset,
		ConversationID: r.conv.ID(),
	}

	go r.run(streamCtx, session, req, opts.OnEvent)

	r.logger.Debug("session started",
		zap.String("session", session.id),
		zap.Int("question_index", questionIndex))

	return session, nil
}

// run drives one session's decode loop to completion.
func (r *Registry) run(ctx context.Context, session *Session, req transport.AskRequest, observe func(transport.Event)) {
	callback := session.HandleEvent
	if observe != nil {
		callback = func(ev transport.Event) {
			session.HandleEvent(ev)
			observe(ev)
		}
	}

	err := r.client.AskStream(ctx, req, callback)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// The caller's context went away without Registry.Cancel. Cancel is a
		// no-op when the registry already did it.
		session.Cancel()
	default:
		session.Fail(err)
	}
}

// onTerminal runs once per session on its terminal transition: the session
// leaves the active set and the guard schedules the freeze.
func (r *Registry) onTerminal(session *Session) {
	r.mu.Lock()
	delete(r.sessions, session.id)
	r.mu.Unlock()

	r.guard.OnSessionTerminal()

	r.logger.Debug("session terminal",
		zap.String("session", session.id),
		zap.String("state", session.State().String()))
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel stops one session by ID. Returns false when no such session is
// active. The session's partial assistant message and its question's merged
// sources are discarded; other sessions' state is untouched.
func (r *Registry) Cancel(sessionID string) bool {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	session.Cancel()
	return true
}

// CancelAll stops every active session and clears the registry. Terminal:
// once this returns, no write from any of those sessions reaches
// conversation or aggregate state.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	active := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	r.mu.Unlock()

	for _, s := range active {
		s.Cancel()
	}
}

// Active reports whether any session is still pending or streaming.
func (r *Registry) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions) > 0
}

// ActiveSessions returns the IDs of all in-flight sessions.
func (r *Registry) ActiveSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// NewConversation cancels everything in flight and resets conversation,
// aggregates and finalization for a fresh chat.
func (r *Registry) NewConversation() {
	r.CancelAll()
	r.conv.Clear()
	r.agg.Reset()
	r.guard.Reset()
}

// LoadConversation swaps in persisted history, re-aggregating its sources
// through the same paths a live stream uses.
func (r *Registry) LoadConversation(id string, history []conversation.Message) {
	r.CancelAll()
	r.agg.Reset()
	r.guard.Reset()

	r.conv.Replace(id, history)

	// Rebuild groups from the normalized history.
	var questionText string
	for _, msg := range r.conv.Messages() {
		if msg.Role == conversation.RoleUser {
			questionText = msg.Content
			continue
		}
		if len(msg.Sources) == 0 || msg.QuestionIndex == 0 {
			continue
		}
		r.agg.SetLabel(msg.QuestionIndex, questionText)
		r.agg.Add(msg.QuestionIndex, msg.Sources)
	}
}
