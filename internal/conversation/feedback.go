// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the in-memory message model for one chat.
package conversation

import (
	"github.com/jeranaias/ragchat/internal/citation"
)

// =============================================================================
// FEEDBACK PAYLOAD
// =============================================================================

// Feedback serializes the last completed exchange for the external feedback
// endpoint. Sources travel in element-list form.
type Feedback struct {
	Question       string                   `json:"question"`
	Answer         string                   `json:"answer"`
	Sources        []citation.SourceElement `json:"sources,omitempty"`
	Model          string                   `json:"model"`
	Temperature    float64                  `json:"temperature"`
	Dataset        string                   `json:"dataset,omitempty"`
	ConversationID string                   `json:"conversation_id"`
}

// BuildFeedback assembles a feedback payload from the conversation's last
// completed exchange. Returns ok=false when no exchange has completed yet.
func (c *Conversation) BuildFeedback(model string, temperature float64, dataset string) (Feedback, bool) {
	question, answer, ok := c.LastExchange()
	if !ok {
		return Feedback{}, false
	}

	return Feedback{
		Question:       question.Content,
		Answer:         answer.Content,
		Sources:        recordsToElements(answer.Sources),
		Model:          model,
		Temperature:    temperature,
		Dataset:        dataset,
		ConversationID: c.ID(),
	}, true
}

// recordsToElements converts parsed records back to the wire element form.
func recordsToElements(records []citation.SourceRecord) []citation.SourceElement {
	if len(records) == 0 {
		return nil
	}
	elements := make([]citation.SourceElement, 0, len(records))
	for _, rec := range records {
		elements = append(elements, citation.SourceElement{
			Title:       rec.Title,
			Content:     rec.Content,
			DocumentURL: rec.DocumentURL,
		})
	}
	return elements
}
