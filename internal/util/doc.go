// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across ragchat: crash-safe file
// writing, UTF-8 safe truncation, and numeric formatting.
package util
