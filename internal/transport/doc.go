// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport implements the HTTP client and stream decoder for the
// retrieval-augmented chat endpoint.
//
// The protocol is newline-delimited: each line is a tagged JSON record
// ("token", "sources" or "error"), the end sentinel "[DONE]", or — from a
// non-conforming legacy upstream — bare text, which degrades gracefully to
// literal token content. The StreamReader reassembles lines across arbitrary
// chunk boundaries and emits exactly one classified event per line.
//
// Failure policy: a transport failure surfaces once as a single error; there
// is no retry or backoff. Malformed lines are never fatal.
//
// # Usage
//
//	client := transport.NewClient(nil, transport.StaticCredential(token), logger)
//	err := client.AskStream(ctx, transport.AskRequest{Question: q}, func(ev transport.Event) {
//	    ...
//	})
package transport
