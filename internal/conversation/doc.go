// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the in-memory message model for one chat.
//
// A Conversation owns its message list; generation sessions mutate it only
// through the methods here, under the conversation lock. Assistant text grows
// monotonically during streaming. Cancellation removes the partial assistant
// message entirely; an errored generation keeps its message with the content
// replaced by a visible error string.
//
// Loaded history passes through the same citation parser as live streams
// (Replace), so persisted and live messages are structurally identical.
package conversation
