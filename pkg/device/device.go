// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device holds the daemon's identity, uptime and clock.
package device

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Info is the static identity reported to push clients
type Info struct {
	Name          string
	Station       string
	IP            string
	Version       string
	ChipModel     string
	CPUFreqMHz    int
	BaudRate      int
	EthernetUp    bool
	EthernetSpeed int // Mbps
}

// Device tracks identity, start time and the peer-synchronised clock
type Device struct {
	mu    sync.RWMutex
	info  Info
	start time.Time
	clock *Clock
}

// New creates a device that started now
func New(info Info) *Device {
	if info.ChipModel == "" {
		info.ChipModel = runtime.GOOS + "/" + runtime.GOARCH
	}
	return &Device{
		info:  info,
		start: time.Now(),
		clock: NewClock(),
	}
}

// Info returns a copy of the identity
func (d *Device) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// SetInfo replaces the identity, keeping the detected chip model when unset
func (d *Device) SetInfo(info Info) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.ChipModel == "" {
		info.ChipModel = d.info.ChipModel
	}
	d.info = info
}

// Clock returns the device clock
func (d *Device) Clock() *Clock {
	return d.clock
}

// Uptime returns the time since start
func (d *Device) Uptime() time.Duration {
	return time.Since(d.start)
}

// DateTime returns the clock's display time
func (d *Device) DateTime() string {
	return d.clock.DateTime()
}

// Stamp returns the log timestamp for now
func (d *Device) Stamp() string {
	return d.clock.Stamp()
}

// TimeSynced reports whether the clock has been set from the peer
func (d *Device) TimeSynced() bool {
	return d.clock.Synced()
}

// Millis returns milliseconds since start
func (d *Device) Millis() int64 {
	return d.Uptime().Milliseconds()
}

// UptimeString returns the uptime in words
func (d *Device) UptimeString() string {
	return FormatUptime(d.Uptime())
}

// FreeMemory returns heap bytes held by the runtime but not in use
func (d *Device) FreeMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle - ms.HeapReleased
}

// FormatUptime renders a duration as "2 days, 3 hours and 4 minutes"
func FormatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	result := ""
	for i, p := range parts {
		switch {
		case i == 0:
			result = p
		case i == len(parts)-1:
			result += " and " + p
		default:
			result += ", " + p
		}
	}
	return result
}
