// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package citation parses citation markup into structured source records.
package citation

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// PATTERNS
// =============================================================================

var (
	// Leading banner some backends prepend to the markup channel.
	bannerPattern = regexp.MustCompile(`(?i)^\s*(?:\*\*)?(?:retrieved\s+)?sources?(?:\s+found)?\s*:?(?:\*\*)?\s*\n`)

	// Strict block header: **Source:** **<title>**
	strictHeaderPattern = regexp.MustCompile(`\*\*Source:\*\*\s*\*\*([^*\n]+)\*\*`)

	// Looser numbered header: "Source 3:" optionally bolded.
	numberedHeaderPattern = regexp.MustCompile(`(?m)^[ \t]*(?:\*\*)?Source\s+\d+\s*[:.](?:\*\*)?[ \t]*`)

	// Generic bold header on its own line.
	boldHeaderPattern = regexp.MustCompile(`(?m)^\*\*([^*\n]+)\*\*[ \t]*`)

	// Known title prefixes stripped from captured headers.
	titlePrefixPattern = regexp.MustCompile(`(?i)^(?:source|document|reference|file)\s*[:\-–]?\s*`)

	// Marker introducing the extracted passage inside a block.
	extractedParagraphPattern = regexp.MustCompile(`(?i)Extracted\s+Paragraph\s*:?\s*`)

	// Trailing "View full PDF" link text, plain or markdown.
	viewPDFPattern = regexp.MustCompile(`(?i)\[?view\s+full\s+pdf\]?(?:\([^)]*\))?\.?\s*$`)

	// A document-style filename mentioned inside content text.
	documentNamePattern = regexp.MustCompile(`(?i)[\w][\w \-]*\.(?:pdf|docx?|pptx?|xlsx?|txt|md|html?)`)

	// Synthetic placeholder titles such as "Document 3".
	genericTitlePattern = regexp.MustCompile(`^Document \d+$`)
)

// =============================================================================
// PARSING — STRUCTURED ELEMENTS
// =============================================================================

// ParseElements maps a structured element list to source records, deriving a
// title for each element via the fallback chain: explicit title or name,
// filename from the document URL, a document name found in the content, then
// a synthetic "Document N" placeholder. Elements whose content falls below
// MinContentLength are dropped.
func ParseElements(elements []SourceElement) []SourceRecord {
	records := make([]SourceRecord, 0, len(elements))

	for i, el := range elements {
		rec := SourceRecord{
			Title:       deriveTitle(el, i+1),
			Content:     strings.TrimSpace(el.Content),
			DocumentURL: el.DocumentURL,
		}
		if !rec.Valid() {
			continue
		}
		records = append(records, rec)
	}

	return records
}

// deriveTitle resolves the title for one element. A present, non-generic
// title is never renamed.
func deriveTitle(el SourceElement, position int) string {
	title := strings.TrimSpace(el.Title)
	if title == "" {
		title = strings.TrimSpace(el.Name)
	}
	if title != "" && !genericTitlePattern.MatchString(title) {
		return title
	}

	if name := filenameFromURL(el.DocumentURL); name != "" {
		return name
	}

	if m := documentNamePattern.FindString(el.Content); m != "" {
		return strings.TrimSpace(m)
	}

	if title != "" {
		return title
	}
	return "Document " + strconv.Itoa(position)
}

// filenameFromURL extracts a decoded, extension-stripped filename from a
// document URL. Returns "" when nothing usable is present.
func filenameFromURL(raw string) string {
	if raw == "" {
		return ""
	}

	candidate := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		candidate = u.Path
	}

	base := path.Base(candidate)
	if base == "." || base == "/" || base == "" {
		return ""
	}

	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}

	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.TrimSpace(base)
}

// =============================================================================
// PARSING — MARKUP STRING
// =============================================================================

// block is one candidate citation found by a split strategy.
type block struct {
	title string
	body  string
}

// splitStrategy extracts citation blocks from markup. A strategy returns an
// empty slice for "no match"; it never fails.
type splitStrategy func(markup string) []block

// splitStrategies are tried in order. The next strategy runs only when the
// previous one produced zero blocks.
var splitStrategies = []splitStrategy{
	splitStrictHeaders,
	splitNumberedHeaders,
	splitBoldHeaders,
}

// ParseMarkup parses a citation markup string into source records. Parsing is
// pure and idempotent: the same markup always yields identical records in
// identical order. Zero blocks after every fallback is not an error; the
// result is simply empty.
func ParseMarkup(markup string) []SourceRecord {
	markup = bannerPattern.ReplaceAllString(markup, "")
	if strings.TrimSpace(markup) == "" {
		return nil
	}

	var blocks []block
	for _, strategy := range splitStrategies {
		blocks = strategy(markup)
		if len(blocks) > 0 {
			break
		}
	}

	records := make([]SourceRecord, 0, len(blocks))
	for _, b := range blocks {
		rec := recordFromBlock(b)
		if !rec.Valid() {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}
	return records
}

// splitStrictHeaders splits on the strict `**Source:** **<title>**` delimiter,
// capturing only the block's own bold title.
func splitStrictHeaders(markup string) []block {
	return splitByPattern(markup, strictHeaderPattern, func(m []string) string {
		return m[1]
	})
}

// splitNumberedHeaders splits on numbered "Source N:" headers. The title is
// the first line following the header.
func splitNumberedHeaders(markup string) []block {
	return splitByPattern(markup, numberedHeaderPattern, func([]string) string {
		return ""
	})
}

// splitBoldHeaders splits on any bold header line.
func splitBoldHeaders(markup string) []block {
	return splitByPattern(markup, boldHeaderPattern, func(m []string) string {
		return m[1]
	})
}

// splitByPattern slices markup into blocks at each match of pattern. The
// captured header text (via title) becomes the block title; the text up to
// the next match becomes the body.
func splitByPattern(markup string, pattern *regexp.Regexp, title func([]string) string) []block {
	locs := pattern.FindAllStringSubmatchIndex(markup, -1)
	if len(locs) == 0 {
		return nil
	}

	blocks := make([]block, 0, len(locs))
	for i, loc := range locs {
		end := len(markup)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}

		groups := make([]string, 0, len(loc)/2)
		for g := 0; g < len(loc); g += 2 {
			if loc[g] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, markup[loc[g]:loc[g+1]])
		}

		body := markup[loc[1]:end]
		t := title(groups)
		if t == "" {
			// Headerless strategies take the first body line as the title.
			t, body = firstLine(body)
		}

		blocks = append(blocks, block{title: t, body: body})
	}

	return blocks
}

// firstLine splits s into its first non-empty line and the remainder.
func firstLine(s string) (string, string) {
	s = strings.TrimLeft(s, " \t\n")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// recordFromBlock turns one split block into a source record.
func recordFromBlock(b block) SourceRecord {
	title := strings.Trim(b.title, "* \t")
	title = titlePrefixPattern.ReplaceAllString(title, "")
	title = strings.Trim(title, "* \t")

	content := b.body
	if loc := extractedParagraphPattern.FindStringIndex(content); loc != nil {
		content = content[loc[1]:]
	}
	content = strings.TrimSpace(content)
	content = viewPDFPattern.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	return SourceRecord{Title: title, Content: content}
}
