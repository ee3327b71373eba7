// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sources aggregates parsed citations per question and per conversation.
package sources

import (
	"strings"
	"sync"

	"github.com/jeranaias/ragchat/internal/citation"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// QUESTION GROUP
// =============================================================================

// Group holds the deduplicated sources attributed to one user question.
// Insertion order is preserved; the group is append-only apart from
// deduplication.
type Group struct {
	// QuestionIndex is the 1-based ordinal of the question in the conversation.
	QuestionIndex int

	// Label is a short human-readable label derived from the question text.
	Label string

	// Records are the unique sources cited for this question, in arrival order.
	Records []citation.SourceRecord

	// titles tracks which titles are already present in Records.
	titles map[string]struct{}
}

// Has reports whether a source with the given title is already in the group.
func (g *Group) Has(title string) bool {
	_, ok := g.titles[title]
	return ok
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator is the single owner of source group and collection mutation.
// Sessions hand it parsed records; nothing else writes these structures.
//
// Thread-safe: sessions stream concurrently and merge from their own
// goroutines.
type Aggregator struct {
	mu sync.Mutex

	groups map[int]*Group
	order  []int // group insertion order, for stable iteration

	// Whole-conversation union, deduplicated by title.
	global       []citation.SourceRecord
	globalTitles map[string]struct{}
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		groups:       make(map[int]*Group),
		globalTitles: make(map[string]struct{}),
	}
}

// Add merges records into the group for questionIndex and into the global
// collection. A record whose title already exists in the respective target is
// skipped silently; duplicates are expected, not an error. Returns the number
// of records newly added to the group.
func (a *Aggregator) Add(questionIndex int, records []citation.SourceRecord) int {
	if len(records) == 0 {
		return 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	group := a.groupLocked(questionIndex)
	added := 0

	for _, rec := range records {
		if !rec.Valid() {
			continue
		}

		if !group.Has(rec.Title) {
			group.Records = append(group.Records, rec)
			group.titles[rec.Title] = struct{}{}
			added++
		}

		if _, ok := a.globalTitles[rec.Title]; !ok {
			a.global = append(a.global, rec)
			a.globalTitles[rec.Title] = struct{}{}
		}
	}

	return added
}

// SetLabel records a display label for a question group, derived from the
// first few words of the question text.
func (a *Aggregator) SetLabel(questionIndex int, questionText string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.groupLocked(questionIndex).Label = LabelFor(questionIndex, questionText)
}

// groupLocked returns the group for index, creating it on first use.
// Caller must hold the lock.
func (a *Aggregator) groupLocked(index int) *Group {
	if g, ok := a.groups[index]; ok {
		return g
	}
	g := &Group{
		QuestionIndex: index,
		titles:        make(map[string]struct{}),
	}
	a.groups[index] = g
	a.order = append(a.order, index)
	return g
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Group returns a copy of the records for one question group, or nil when the
// question cited nothing.
func (a *Aggregator) Group(questionIndex int) []citation.SourceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[questionIndex]
	if !ok || len(g.Records) == 0 {
		return nil
	}
	out := make([]citation.SourceRecord, len(g.Records))
	copy(out, g.Records)
	return out
}

// Groups returns every non-empty group in insertion order. The returned
// groups are snapshots; mutating them does not affect the aggregator.
func (a *Aggregator) Groups() []Group {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Group, 0, len(a.order))
	for _, idx := range a.order {
		g := a.groups[idx]
		if len(g.Records) == 0 {
			continue
		}
		records := make([]citation.SourceRecord, len(g.Records))
		copy(records, g.Records)
		out = append(out, Group{
			QuestionIndex: g.QuestionIndex,
			Label:         g.Label,
			Records:       records,
		})
	}
	return out
}

// Global returns the whole-conversation deduplicated collection in first-seen
// order.
func (a *Aggregator) Global() []citation.SourceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]citation.SourceRecord, len(a.global))
	copy(out, a.global)
	return out
}

// TotalCount returns the sum of per-question group sizes. A source cited in
// two different questions counts once per question; a source cited twice
// within one question counts once. This is deliberately not the size of the
// global collection.
func (a *Aggregator) TotalCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for _, g := range a.groups {
		total += len(g.Records)
	}
	return total
}

// RemoveGroup drops one question group and rebuilds the global collection
// from the remaining groups. Cancelling a generation withdraws its question's
// sources this way; a title stays in the collection only while some surviving
// group still cites it. Returns false when the group does not exist.
func (a *Aggregator) RemoveGroup(questionIndex int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.groups[questionIndex]; !ok {
		return false
	}
	delete(a.groups, questionIndex)
	for i, idx := range a.order {
		if idx == questionIndex {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}

	a.global = nil
	a.globalTitles = make(map[string]struct{})
	for _, idx := range a.order {
		for _, rec := range a.groups[idx].Records {
			if _, ok := a.globalTitles[rec.Title]; ok {
				continue
			}
			a.global = append(a.global, rec)
			a.globalTitles[rec.Title] = struct{}{}
		}
	}
	return true
}

// =============================================================================
// RESET
// =============================================================================

// Reset clears all groups and the global collection. Called only on
// new-conversation load or new-question submission, never implicitly.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.groups = make(map[int]*Group)
	a.order = nil
	a.global = nil
	a.globalTitles = make(map[string]struct{})
}

// =============================================================================
// LABELS
// =============================================================================

// labelWordCount is how many leading words of the question make the label.
const labelWordCount = 6

// LabelFor derives a short group label from a question's text.
func LabelFor(questionIndex int, questionText string) string {
	words := strings.Fields(questionText)
	if len(words) == 0 {
		return "Question " + util.IntToString(questionIndex)
	}
	if len(words) > labelWordCount {
		words = words[:labelWordCount]
		return strings.Join(words, " ") + "..."
	}
	return strings.Join(words, " ")
}
