// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog records every source cited in any conversation in a local
// SQLite database, with conversation and question provenance. The catalog is
// strictly additive bookkeeping: the live engine never reads it, so a catalog
// failure never affects a generation.
package catalog
