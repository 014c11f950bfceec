// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func start() time.Time {
	return time.Date(2025, 7, 3, 12, 0, 0, 0, time.UTC)
}

func TestNowAdvance(t *testing.T) {
	c := Fake(start())
	if got := c.Now(); !got.Equal(start()) {
		t.Errorf("Now = %v, want %v", got, start())
	}
	c.Advance(90 * time.Minute)
	want := start().Add(90 * time.Minute)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now after Advance = %v, want %v", got, want)
	}
}

func TestAfterFiresOnAdvance(t *testing.T) {
	c := Fake(start())
	ch := c.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(time.Minute)
	select {
	case fired := <-ch:
		if !fired.Equal(start().Add(time.Minute)) {
			t.Errorf("fire time = %v, want %v", fired, start().Add(time.Minute))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(start())
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", c.PendingCount())
	}
}

func TestTickerFiresPerInterval(t *testing.T) {
	c := Fake(start())
	ticker := c.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(3 * time.Minute)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
}

func TestTickerDropsOverflowTicks(t *testing.T) {
	c := Fake(start())
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	// Spans three intervals with nobody draining; only one tick fits
	// in the channel buffer.
	c.Advance(3 * time.Minute)

	got := 0
	for {
		select {
		case <-ticker.C:
			got++
			continue
		default:
		}
		break
	}
	if got != 1 {
		t.Errorf("buffered ticks = %d, want 1", got)
	}
}

func TestTickerStop(t *testing.T) {
	c := Fake(start())
	ticker := c.NewTicker(time.Minute)
	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(start())
	done := make(chan struct{})
	go func() {
		c.Sleep(10 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	c.Advance(10 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(start())
	go c.After(time.Minute)
	go c.After(time.Minute)
	c.WaitForTimers(2)
	if c.PendingCount() != 2 {
		t.Errorf("PendingCount = %d, want 2", c.PendingCount())
	}
}
