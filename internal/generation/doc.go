// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation runs streamed answer generations and converges their
// aggregate state.
//
// Each user question gets a Session: a state machine
// (pending → streaming → completed | cancelled | errored) that owns one
// assistant message and feeds parsed citations into the source aggregator
// under its question index. The Registry tracks all concurrently active
// sessions and is the single owner of their cancellation tokens; multiple
// generations may stream at once and never interfere with each other's
// state.
//
// Cancellation is cooperative and terminal: a cancelled session's partial
// assistant message is discarded entirely, and no write from it lands
// afterwards. An errored session keeps its message with the text replaced by
// a visible error string.
//
// The Guard absorbs the ordering hazard between independent update paths:
// after a session goes terminal and a short settle delay passes, the
// aggregate source count is frozen until an explicit reset (new question or
// conversation switch). Recomputation requests after the freeze are no-ops.
package generation
