// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package citation parses the citation markup channel that accompanies
// assistant answers into ordered, structured source records.
//
// Input arrives in one of two shapes: a structured element list (the modern
// wire form) or a single markup string using a bolded "label: value"
// convention with repeated blocks. String parsing runs an ordered list of
// split strategies, each returning "no match" rather than failing, with the
// next strategy tried only on an empty result:
//
//  1. Strict `**Source:** **<title>**` block delimiters
//  2. Numbered "Source N:" headers
//  3. Generic bold headers
//
// Records whose content is shorter than MinContentLength are discarded as
// noise. Parsing is pure and idempotent: no global state, no errors, and the
// same input always yields identical output.
//
// # Usage
//
//	records := citation.ParseMarkup(markup)
//	records := citation.ParseElements(elements)
package citation
