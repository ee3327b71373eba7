// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the in-memory message model for one chat.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ragchat/internal/citation"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one chat bubble. Assistant messages grow monotonically while a
// generation streams; a cancelled generation's message is removed from the
// conversation entirely rather than kept partial.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// QuestionIndex is the 1-based ordinal of the question this message
	// belongs to (the question itself for user messages, the question being
	// answered for assistant messages).
	QuestionIndex int `json:"question_index,omitempty"`

	// Errored marks an assistant message whose generation failed; its content
	// is a visible error string, not an answer.
	Errored bool `json:"errored,omitempty"`

	// Source attribution.
	HasSources        bool                     `json:"has_sources,omitempty"`
	RawCitationMarkup string                   `json:"raw_citation_markup,omitempty"`
	Sources           []citation.SourceRecord  `json:"sources,omitempty"`
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the mutable message list for one chat. All mutation goes
// through its methods; sessions append tokens under the conversation lock so
// a terminal session can never write after detaching.
type Conversation struct {
	mu sync.Mutex

	id            string
	messages      []*Message
	questionCount int
}

// New creates an empty conversation with a fresh ID.
func New() *Conversation {
	return &Conversation{id: uuid.NewString()}
}

// ID returns the conversation ID.
func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// QuestionCount returns how many user questions have been submitted.
func (c *Conversation) QuestionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.questionCount
}

// =============================================================================
// SUBMISSION
// =============================================================================

// AppendQuestion records a user question and returns its message together
// with the question's 1-based index.
func (c *Conversation) AppendQuestion(text string) (*Message, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.questionCount++
	msg := &Message{
		ID:            uuid.NewString(),
		Role:          RoleUser,
		Content:       text,
		CreatedAt:     time.Now(),
		QuestionIndex: c.questionCount,
	}
	c.messages = append(c.messages, msg)
	return snapshotOf(msg), c.questionCount
}

// StartAssistant appends an empty assistant message for a new generation and
// returns its ID.
func (c *Conversation) StartAssistant(questionIndex int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := &Message{
		ID:            uuid.NewString(),
		Role:          RoleAssistant,
		CreatedAt:     time.Now(),
		QuestionIndex: questionIndex,
	}
	c.messages = append(c.messages, msg)
	return msg.ID
}

// =============================================================================
// STREAMING MUTATION
// =============================================================================

// AppendText extends a message's content. Text only ever grows; tokens are
// applied in arrival order by the owning session.
func (c *Conversation) AppendText(messageID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(messageID)
	if msg == nil {
		return false
	}
	msg.Content += text
	return true
}

// SetSources attaches parsed sources and the raw markup they came from to a
// message.
func (c *Conversation) SetSources(messageID, rawMarkup string, records []citation.SourceRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(messageID)
	if msg == nil {
		return false
	}
	if rawMarkup != "" {
		msg.RawCitationMarkup = rawMarkup
	}
	msg.Sources = appendUniqueSources(msg.Sources, records)
	msg.HasSources = len(msg.Sources) > 0
	return true
}

// ReplaceText overwrites a message's content. Used when an errored
// generation's partial text is replaced with a user-visible error string.
func (c *Conversation) ReplaceText(messageID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(messageID)
	if msg == nil {
		return false
	}
	msg.Content = text
	return true
}

// MarkErrored flags a message as a failed generation, excluding it from the
// last completed exchange.
func (c *Conversation) MarkErrored(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(messageID)
	if msg == nil {
		return false
	}
	msg.Errored = true
	return true
}

// Remove deletes a message from the conversation. Cancellation discards the
// in-progress assistant message this way; partial, unreviewed generations are
// not persisted.
func (c *Conversation) Remove(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, msg := range c.messages {
		if msg.ID == messageID {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Messages returns a snapshot of the conversation in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, 0, len(c.messages))
	for _, msg := range c.messages {
		out = append(out, *snapshotOf(msg))
	}
	return out
}

// Message returns a snapshot of one message, or nil if absent.
func (c *Conversation) Message(messageID string) *Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.findLocked(messageID)
	if msg == nil {
		return nil
	}
	return snapshotOf(msg)
}

// LastExchange returns the most recent question/answer pair, or ok=false when
// no completed exchange exists.
func (c *Conversation) LastExchange() (question, answer Message, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role != RoleAssistant || c.messages[i].Content == "" || c.messages[i].Errored {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if c.messages[j].Role == RoleUser {
				return *snapshotOf(c.messages[j]), *snapshotOf(c.messages[i]), true
			}
		}
	}
	return Message{}, Message{}, false
}

// =============================================================================
// HISTORY LOADING
// =============================================================================

// Replace swaps in a loaded history wholesale. Messages that carry raw
// citation markup but no parsed sources are normalized through the same
// citation parser used for live streams, so loaded and live history are
// structurally identical. Returns the number of user questions found.
func (c *Conversation) Replace(id string, history []Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != "" {
		c.id = id
	}
	c.messages = make([]*Message, 0, len(history))
	c.questionCount = 0

	for _, m := range history {
		msg := m
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.Role == RoleUser {
			c.questionCount++
			msg.QuestionIndex = c.questionCount
		} else if msg.QuestionIndex == 0 {
			msg.QuestionIndex = c.questionCount
		}
		if len(msg.Sources) == 0 && msg.RawCitationMarkup != "" {
			msg.Sources = citation.ParseMarkup(msg.RawCitationMarkup)
		}
		msg.HasSources = len(msg.Sources) > 0
		c.messages = append(c.messages, &msg)
	}

	return c.questionCount
}

// Clear resets the conversation to empty with a fresh ID.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = uuid.NewString()
	c.messages = nil
	c.questionCount = 0
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// findLocked returns the live message with the given ID. Caller holds the lock.
func (c *Conversation) findLocked(messageID string) *Message {
	for _, msg := range c.messages {
		if msg.ID == messageID {
			return msg
		}
	}
	return nil
}

// snapshotOf copies a message, including its sources slice.
func snapshotOf(msg *Message) *Message {
	out := *msg
	if len(msg.Sources) > 0 {
		out.Sources = make([]citation.SourceRecord, len(msg.Sources))
		copy(out.Sources, msg.Sources)
	}
	return &out
}

// appendUniqueSources merges records into existing, skipping titles already
// present. Within one message the dedup rule is the same as everywhere else:
// first occurrence wins.
func appendUniqueSources(existing, records []citation.SourceRecord) []citation.SourceRecord {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec.Title] = struct{}{}
	}
	for _, rec := range records {
		if _, ok := seen[rec.Title]; ok {
			continue
		}
		existing = append(existing, rec)
		seen[rec.Title] = struct{}{}
	}
	return existing
}
