// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the in-memory message model for one chat.
package conversation

import (
	"testing"

	"github.com/jeranaias/ragchat/internal/citation"
)

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestAppendQuestion_AssignsIncreasingIndexes(t *testing.T) {
	c := New()

	_, first := c.AppendQuestion("question one")
	_, second := c.AppendQuestion("question two")

	if first != 1 || second != 2 {
		t.Errorf("indexes = %d, %d, want 1, 2", first, second)
	}
	if c.QuestionCount() != 2 {
		t.Errorf("QuestionCount = %d, want 2", c.QuestionCount())
	}
}

func TestStartAssistant_CreatesEmptyMessage(t *testing.T) {
	c := New()
	_, idx := c.AppendQuestion("q")

	id := c.StartAssistant(idx)

	msg := c.Message(id)
	if msg == nil {
		t.Fatal("assistant message not found")
	}
	if msg.Role != RoleAssistant || msg.Content != "" {
		t.Errorf("message = %+v", msg)
	}
	if msg.QuestionIndex != idx {
		t.Errorf("QuestionIndex = %d, want %d", msg.QuestionIndex, idx)
	}
}

// =============================================================================
// STREAMING MUTATION TESTS
// =============================================================================

func TestAppendText_GrowsMonotonically(t *testing.T) {
	c := New()
	_, idx := c.AppendQuestion("q")
	id := c.StartAssistant(idx)

	c.AppendText(id, "Hello")
	c.AppendText(id, ", ")
	c.AppendText(id, "world")

	if got := c.Message(id).Content; got != "Hello, world" {
		t.Errorf("Content = %q, want 'Hello, world'", got)
	}
}

func TestAppendText_UnknownMessage(t *testing.T) {
	c := New()
	if c.AppendText("missing", "x") {
		t.Error("AppendText on missing message should return false")
	}
}

func TestSetSources_AccumulatesUniqueTitles(t *testing.T) {
	c := New()
	_, idx := c.AppendQuestion("q")
	id := c.StartAssistant(idx)

	recA := citation.SourceRecord{Title: "A", Content: "content a long enough"}
	recB := citation.SourceRecord{Title: "B", Content: "content b long enough"}

	c.SetSources(id, "raw markup one", []citation.SourceRecord{recA})
	c.SetSources(id, "", []citation.SourceRecord{recA, recB})

	msg := c.Message(id)
	if len(msg.Sources) != 2 {
		t.Fatalf("Sources = %d, want 2", len(msg.Sources))
	}
	if !msg.HasSources {
		t.Error("HasSources should be true")
	}
	// Empty markup on the second call must not erase the first call's raw text.
	if msg.RawCitationMarkup != "raw markup one" {
		t.Errorf("RawCitationMarkup = %q", msg.RawCitationMarkup)
	}
}

func TestReplaceText_Overwrites(t *testing.T) {
	c := New()
	_, idx := c.AppendQuestion("q")
	id := c.StartAssistant(idx)
	c.AppendText(id, "partial answer tex")

	c.ReplaceText(id, "visible error message")

	if got := c.Message(id).Content; got != "visible error message" {
		t.Errorf("Content = %q", got)
	}
}

func TestRemove_DiscardsMessage(t *testing.T) {
	c := New()
	_, idx := c.AppendQuestion("q")
	id := c.StartAssistant(idx)
	c.AppendText(id, "partial")

	if !c.Remove(id) {
		t.Fatal("Remove returned false")
	}
	if c.Message(id) != nil {
		t.Error("removed message still present")
	}
	// The question itself stays.
	if got := len(c.Messages()); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
}

// =============================================================================
// READ TESTS
// =============================================================================

func TestMessages_ReturnsSnapshots(t *testing.T) {
	c := New()
	_, idx := c.AppendQuestion("q")
	id := c.StartAssistant(idx)
	c.AppendText(id, "answer")

	snap := c.Messages()
	snap[1].Content = "mutated"

	if got := c.Message(id).Content; got != "answer" {
		t.Errorf("snapshot mutation leaked into conversation: %q", got)
	}
}

func TestLastExchange(t *testing.T) {
	c := New()

	if _, _, ok := c.LastExchange(); ok {
		t.Error("empty conversation should have no exchange")
	}

	_, idx := c.AppendQuestion("first question")
	id := c.StartAssistant(idx)

	// An empty assistant message is not a completed exchange.
	if _, _, ok := c.LastExchange(); ok {
		t.Error("streaming-not-started exchange should not count")
	}

	c.AppendText(id, "first answer")
	_, idx2 := c.AppendQuestion("second question")
	id2 := c.StartAssistant(idx2)
	c.AppendText(id2, "second answer")

	q, a, ok := c.LastExchange()
	if !ok {
		t.Fatal("expected an exchange")
	}
	if q.Content != "second question" || a.Content != "second answer" {
		t.Errorf("exchange = %q / %q", q.Content, a.Content)
	}
}

func TestLastExchange_SkipsErroredAnswers(t *testing.T) {
	c := New()

	_, idx := c.AppendQuestion("first question")
	id := c.StartAssistant(idx)
	c.AppendText(id, "first answer")

	_, idx2 := c.AppendQuestion("second question")
	id2 := c.StartAssistant(idx2)
	c.ReplaceText(id2, "Something went wrong while generating this answer. Please try again.")
	c.MarkErrored(id2)

	// The errored answer carries visible text but is not a completed exchange.
	q, a, ok := c.LastExchange()
	if !ok {
		t.Fatal("expected the earlier exchange")
	}
	if q.Content != "first question" || a.Content != "first answer" {
		t.Errorf("exchange = %q / %q, want the first pair", q.Content, a.Content)
	}

	if _, ok := c.BuildFeedback("m", 0.2, "d"); !ok {
		t.Error("feedback should still build from the surviving exchange")
	}
}

func TestLastExchange_AllErrored(t *testing.T) {
	c := New()

	_, idx := c.AppendQuestion("only question")
	id := c.StartAssistant(idx)
	c.ReplaceText(id, "Something went wrong while generating this answer. Please try again.")
	c.MarkErrored(id)

	if _, _, ok := c.LastExchange(); ok {
		t.Error("a conversation with only errored answers has no exchange")
	}
	if _, ok := c.BuildFeedback("m", 0.2, "d"); ok {
		t.Error("BuildFeedback should report no exchange")
	}
}

// =============================================================================
// HISTORY LOADING TESTS
// =============================================================================

func TestReplace_NormalizesRawMarkup(t *testing.T) {
	c := New()
	markup := "**Source:** **Handbook**\nExtracted Paragraph: Relevant policy text here.\n"

	count := c.Replace("conv-1", []Message{
		{Role: RoleUser, Content: "what is the policy"},
		{Role: RoleAssistant, Content: "the policy is...", RawCitationMarkup: markup},
	})

	if count != 1 {
		t.Errorf("question count = %d, want 1", count)
	}
	if c.ID() != "conv-1" {
		t.Errorf("ID = %q, want 'conv-1'", c.ID())
	}

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}

	answer := msgs[1]
	if !answer.HasSources || len(answer.Sources) != 1 {
		t.Fatalf("Sources = %+v", answer.Sources)
	}
	if answer.Sources[0].Title != "Handbook" {
		t.Errorf("Title = %q, want 'Handbook'", answer.Sources[0].Title)
	}
	// Loaded history parses through the same path as a live stream.
	live := citation.ParseMarkup(markup)
	if answer.Sources[0] != live[0] {
		t.Errorf("loaded source %+v differs from live parse %+v", answer.Sources[0], live[0])
	}
	if answer.QuestionIndex != 1 {
		t.Errorf("QuestionIndex = %d, want 1", answer.QuestionIndex)
	}
}

func TestReplace_KeepsParsedSources(t *testing.T) {
	c := New()
	rec := citation.SourceRecord{Title: "Kept", Content: "already parsed content"}

	c.Replace("", []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a", Sources: []citation.SourceRecord{rec}},
	})

	msgs := c.Messages()
	if len(msgs[1].Sources) != 1 || msgs[1].Sources[0].Title != "Kept" {
		t.Errorf("Sources = %+v", msgs[1].Sources)
	}
}

func TestClear_FreshIdentity(t *testing.T) {
	c := New()
	oldID := c.ID()
	c.AppendQuestion("q")

	c.Clear()

	if c.ID() == oldID {
		t.Error("Clear should assign a fresh ID")
	}
	if len(c.Messages()) != 0 || c.QuestionCount() != 0 {
		t.Error("Clear should empty the conversation")
	}
}

// =============================================================================
// FEEDBACK TESTS
// =============================================================================

func TestBuildFeedback(t *testing.T) {
	c := New()

	if _, ok := c.BuildFeedback("m", 0.2, "d"); ok {
		t.Error("empty conversation should produce no feedback")
	}

	_, idx := c.AppendQuestion("what changed")
	id := c.StartAssistant(idx)
	c.AppendText(id, "several things changed")
	c.SetSources(id, "", []citation.SourceRecord{
		{Title: "Changelog", Content: "list of changes here", DocumentURL: "https://x.example/changelog.md"},
	})

	fb, ok := c.BuildFeedback("gpt-4o-mini", 0.2, "docs")
	if !ok {
		t.Fatal("expected feedback payload")
	}
	if fb.Question != "what changed" || fb.Answer != "several things changed" {
		t.Errorf("payload = %+v", fb)
	}
	if fb.Model != "gpt-4o-mini" || fb.Dataset != "docs" {
		t.Errorf("payload params = %+v", fb)
	}
	if fb.ConversationID != c.ID() {
		t.Errorf("ConversationID = %q, want %q", fb.ConversationID, c.ID())
	}
	if len(fb.Sources) != 1 || fb.Sources[0].Title != "Changelog" {
		t.Errorf("Sources = %+v", fb.Sources)
	}
	if fb.Sources[0].DocumentURL != "https://x.example/changelog.md" {
		t.Errorf("DocumentURL = %q", fb.Sources[0].DocumentURL)
	}
}
