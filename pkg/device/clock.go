// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"
	"sync"
	"time"
)

// DateTimeLayout is the display format for wall-clock times
const DateTimeLayout = "02.01.2006 15:04:05"

// Clock is wall time corrected by the offset learned from the peer
type Clock struct {
	mu       sync.RWMutex
	offset   time.Duration
	synced   bool
	lastSync time.Time
	start    time.Time
	now      func() time.Time
}

// NewClock creates an unsynchronised clock
func NewClock() *Clock {
	return &Clock{now: time.Now, start: time.Now()}
}

// Sync adopts the peer's time
func (c *Clock) Sync(peer time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	local := c.now()
	c.offset = peer.Sub(local)
	c.synced = true
	c.lastSync = local
}

// Synced reports whether the peer time has been received
func (c *Clock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// LastSync returns the local time of the last sync
func (c *Clock) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// Now returns the corrected time
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset)
}

// DateTime returns the corrected time for display. Before the first sync the
// host time is shown and marked as such.
func (c *Clock) DateTime() string {
	if !c.Synced() {
		return c.now().Format(DateTimeLayout) + " (System)"
	}
	return c.Now().Format(DateTimeLayout)
}

// Stamp returns a log timestamp: the corrected date/time once synced,
// otherwise "[NO_SYNC hh:mm:ss]" from the time since start.
func (c *Clock) Stamp() string {
	if c.Synced() {
		return c.Now().Format(DateTimeLayout)
	}
	seconds := int64(c.now().Sub(c.start) / time.Second)
	return fmt.Sprintf("[NO_SYNC %02d:%02d:%02d]", (seconds/3600)%24, (seconds/60)%60, seconds%60)
}
