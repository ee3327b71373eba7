// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation runs streamed answer generations and converges their
// aggregate state.
package generation

import (
	"sync"
	"time"

	"github.com/jeranaias/ragchat/internal/sources"
)

// DefaultSettleDelay is how long after a terminal transition the guard waits
// before freezing counts. Empirically chosen: long enough for every
// asynchronous merge to land, short enough to go unnoticed.
const DefaultSettleDelay = 300 * time.Millisecond

// =============================================================================
// FINALIZATION GUARD
// =============================================================================

// Guard is the convergence barrier for derived aggregate state. Token,
// source and refresh updates arrive through independently-scheduled paths
// with no ordering guarantee between them; without a barrier the displayed
// source count can transiently under- or over-report and then jump. The guard
// trades a small fixed latency for a monotonic, glitch-free final value:
// once a generation reaches a terminal state and the settle delay elapses,
// the count is pinned and later recomputation requests are no-ops until an
// explicit Reset.
type Guard struct {
	mu sync.Mutex

	agg    *sources.Aggregator
	settle time.Duration

	finalized   bool
	frozenCount int
	timer       *time.Timer

	// onFreeze, when set, is notified once per freeze with the pinned count.
	onFreeze func(count int)
}

// NewGuard creates a guard over the aggregator. A non-positive settle delay
// falls back to DefaultSettleDelay.
func NewGuard(agg *sources.Aggregator, settle time.Duration) *Guard {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Guard{agg: agg, settle: settle}
}

// SetFreezeCallback registers a function invoked once per freeze, outside the
// guard lock.
func (g *Guard) SetFreezeCallback(fn func(count int)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onFreeze = fn
}

// =============================================================================
// FREEZE SCHEDULING
// =============================================================================

// OnSessionTerminal is called once per session reaching a terminal state. It
// schedules the freeze after the settle delay. A session terminating while a
// freeze is already pending pushes the deadline out, giving that session's
// merges the same settle window; after the freeze has fired, the call is a
// no-op until Reset.
func (g *Guard) OnSessionTerminal() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.finalized {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.settle, g.freeze)
}

// freeze pins the aggregator's current total. Runs at most once per cycle.
func (g *Guard) freeze() {
	g.mu.Lock()
	if g.finalized {
		g.mu.Unlock()
		return
	}
	g.finalized = true
	g.frozenCount = g.agg.TotalCount()
	g.timer = nil
	count := g.frozenCount
	onFreeze := g.onFreeze
	g.mu.Unlock()

	if onFreeze != nil {
		onFreeze(count)
	}
}

// Reset clears the frozen state. Called on new-question submission and
// conversation switch only; the next terminal transition schedules a fresh
// freeze.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.finalized = false
	g.frozenCount = 0
}

// =============================================================================
// READS
// =============================================================================

// Finalized reports whether the count is currently pinned.
func (g *Guard) Finalized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.finalized
}

// Count returns the source count consumers should display: the pinned value
// once finalized, the live aggregate before that.
func (g *Guard) Count() int {
	g.mu.Lock()
	if g.finalized {
		defer g.mu.Unlock()
		return g.frozenCount
	}
	g.mu.Unlock()
	return g.agg.TotalCount()
}

// Recompute is the explicit recomputation path. Before the freeze it returns
// the live total; after it, the request is a no-op and the pinned value comes
// back unchanged.
func (g *Guard) Recompute() int {
	return g.Count()
}
