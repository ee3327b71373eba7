// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sources maintains the per-question and whole-conversation source
// collections for a chat conversation.
//
// The Aggregator is the single owner of this state: generation sessions feed
// it parsed citation records keyed by their question index, and every
// downstream consumer (counter, source listing, feedback payload) reads from
// it. Deduplication is by exact title. TotalCount sums group sizes rather
// than the global collection size: a source cited for two different questions
// legitimately counts once per question.
package sources
