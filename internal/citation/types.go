// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package citation parses citation markup into structured source records.
package citation

import "strings"

// MinContentLength is the minimum content length for a source record.
// Anything shorter is treated as noise and discarded.
const MinContentLength = 5

// =============================================================================
// SOURCE RECORD
// =============================================================================

// SourceRecord is one parsed citation. Identity is the Title, compared
// case-sensitively; two records with the same title are the same source
// even when their content differs.
type SourceRecord struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	DocumentURL string `json:"document_url,omitempty"`
}

// Valid reports whether the record carries enough content to keep.
func (r SourceRecord) Valid() bool {
	return len(strings.TrimSpace(r.Content)) >= MinContentLength
}

// =============================================================================
// SOURCE ELEMENT (STRUCTURED WIRE FORM)
// =============================================================================

// SourceElement is the structured form a sources event may arrive in.
// Either Name or Title may carry the document title; both may be empty.
type SourceElement struct {
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}
