// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation runs streamed answer generations and converges their
// aggregate state.
package generation

import (
	"testing"
	"time"

	"github.com/jeranaias/ragchat/internal/citation"
	"github.com/jeranaias/ragchat/internal/sources"
)

const testSettle = 20 * time.Millisecond

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func sourceRec(title string) citation.SourceRecord {
	return citation.SourceRecord{Title: title, Content: "content for " + title}
}

// =============================================================================
// GUARD TESTS
// =============================================================================

func TestGuard_FreezesAfterSettle(t *testing.T) {
	agg := sources.NewAggregator()
	guard := NewGuard(agg, testSettle)

	agg.Add(1, []citation.SourceRecord{sourceRec("A"), sourceRec("B")})
	guard.OnSessionTerminal()

	if guard.Finalized() {
		t.Error("guard frozen before the settle delay elapsed")
	}

	waitFor(t, time.Second, guard.Finalized)

	if got := guard.Count(); got != 2 {
		t.Errorf("frozen Count = %d, want 2", got)
	}
}

func TestGuard_FrozenCountIgnoresLateMerges(t *testing.T) {
	agg := sources.NewAggregator()
	guard := NewGuard(agg, testSettle)

	agg.Add(1, []citation.SourceRecord{sourceRec("A")})
	guard.OnSessionTerminal()
	waitFor(t, time.Second, guard.Finalized)

	// A merge that arrives after the freeze changes the aggregator but not
	// the pinned count.
	agg.Add(1, []citation.SourceRecord{sourceRec("Late")})

	if got := guard.Count(); got != 1 {
		t.Errorf("Count = %d, want pinned 1", got)
	}
	if got := guard.Recompute(); got != 1 {
		t.Errorf("Recompute = %d, want pinned 1", got)
	}
	if agg.TotalCount() != 2 {
		t.Errorf("aggregator TotalCount = %d, want 2", agg.TotalCount())
	}
}

func TestGuard_CountIsLiveBeforeFreeze(t *testing.T) {
	agg := sources.NewAggregator()
	guard := NewGuard(agg, time.Hour)

	agg.Add(1, []citation.SourceRecord{sourceRec("A")})
	if got := guard.Count(); got != 1 {
		t.Errorf("Count = %d, want live 1", got)
	}

	agg.Add(2, []citation.SourceRecord{sourceRec("B")})
	if got := guard.Count(); got != 2 {
		t.Errorf("Count = %d, want live 2", got)
	}
}

func TestGuard_TerminalWhilePendingExtendsWindow(t *testing.T) {
	agg := sources.NewAggregator()
	guard := NewGuard(agg, 200*time.Millisecond)

	guard.OnSessionTerminal()
	time.Sleep(100 * time.Millisecond)

	// A second terminal transition inside the window restarts the timer, so
	// nothing freezes at the original deadline.
	agg.Add(1, []citation.SourceRecord{sourceRec("A")})
	guard.OnSessionTerminal()
	time.Sleep(100 * time.Millisecond)

	if guard.Finalized() {
		t.Error("guard froze at the superseded deadline")
	}

	waitFor(t, time.Second, guard.Finalized)
	if got := guard.Count(); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestGuard_ResetUnfreezes(t *testing.T) {
	agg := sources.NewAggregator()
	guard := NewGuard(agg, testSettle)

	agg.Add(1, []citation.SourceRecord{sourceRec("A")})
	guard.OnSessionTerminal()
	waitFor(t, time.Second, guard.Finalized)

	guard.Reset()

	if guard.Finalized() {
		t.Error("guard still frozen after Reset")
	}
	agg.Add(2, []citation.SourceRecord{sourceRec("B")})
	if got := guard.Count(); got != 2 {
		t.Errorf("Count after Reset = %d, want live 2", got)
	}

	// The next terminal transition schedules a fresh freeze.
	guard.OnSessionTerminal()
	waitFor(t, time.Second, guard.Finalized)
	if got := guard.Count(); got != 2 {
		t.Errorf("second frozen Count = %d, want 2", got)
	}
}

func TestGuard_ResetCancelsPendingFreeze(t *testing.T) {
	agg := sources.NewAggregator()
	guard := NewGuard(agg, testSettle)

	guard.OnSessionTerminal()
	guard.Reset()
	time.Sleep(4 * testSettle)

	if guard.Finalized() {
		t.Error("freeze fired despite Reset")
	}
}

func TestGuard_FreezeCallbackRunsOncePerCycle(t *testing.T) {
	agg := sources.NewAggregator()
	guard := NewGuard(agg, testSettle)

	counts := make(chan int, 4)
	guard.SetFreezeCallback(func(count int) { counts <- count })

	agg.Add(1, []citation.SourceRecord{sourceRec("A")})
	guard.OnSessionTerminal()

	select {
	case count := <-counts:
		if count != 1 {
			t.Errorf("frozen count = %d, want 1", count)
		}
	case <-time.After(time.Second):
		t.Fatal("freeze callback never fired")
	}

	// Post-freeze terminal transitions must not re-fire the callback.
	guard.OnSessionTerminal()
	select {
	case count := <-counts:
		t.Errorf("callback fired again with %d", count)
	case <-time.After(4 * testSettle):
	}
}

func TestNewGuard_NonPositiveSettleUsesDefault(t *testing.T) {
	guard := NewGuard(sources.NewAggregator(), 0)
	if guard.settle != DefaultSettleDelay {
		t.Errorf("settle = %v, want %v", guard.settle, DefaultSettleDelay)
	}
}
