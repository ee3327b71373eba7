// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for ragchat.
//
// Conversations are stored as one JSON file each under
// ~/.ragchat/conversations/, written atomically with fsync. Messages persist
// both the raw citation markup and the parsed source records; loaded history
// is re-normalized through the citation parser so it matches live streams
// exactly.
package storage
