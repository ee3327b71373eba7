// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// ragchat.
//
// Configuration is read from ~/.ragchat/config.toml (or config.json as a
// fallback), with environment variable overrides applied on top and
// validation before use. A Watcher can reload the file on change, debounced.
//
// # Key Functions
//
//   - Load: standard precedence load (TOML, JSON, defaults)
//   - LoadFromPath: load an explicit file
//   - Save: write the current configuration back to disk
//   - NewWatcher: hot reload on file change
package config
