// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive ragchat shell.
//
// The shell is a thin front end over the generation engine: it reads
// questions, echoes streamed tokens as they arrive, and exposes slash
// commands for cancellation, source inspection, feedback, and conversation
// persistence. All chat semantics live in the engine packages; this package
// only does terminal I/O.
package cli
