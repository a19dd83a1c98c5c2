// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logring keeps the most recent audit log lines in a fixed ring and
// feeds them from logrus.
package logring

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept
const DefaultCapacity = 50

// Level is the audit level shown to push clients
type Level string

const (
	LevelError   Level = "ERROR"
	LevelWarn    Level = "WARN"
	LevelInfo    Level = "INFO"
	LevelDebug   Level = "DEBUG"
	LevelSuccess Level = "SUCCESS"
)

// Entry is one audit log line
type Entry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     Level  `json:"level"`
	Source    string `json:"source"`
	Millis    int64  `json:"millis"`
}

// Stamper formats the timestamp of new entries
type Stamper interface {
	Stamp() string
}

// Ring is a fixed-capacity log overwritten oldest first
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	count   int
	total   uint64

	stamp Stamper
	start time.Time
}

// New creates a ring. A nil stamper uses RFC3339 host time.
func New(capacity int, stamp Stamper) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		entries: make([]Entry, capacity),
		stamp:   stamp,
		start:   time.Now(),
	}
}

// Add appends an entry and returns it
func (r *Ring) Add(message string, level Level, source string) Entry {
	e := Entry{
		Message: message,
		Level:   level,
		Source:  source,
		Millis:  time.Since(r.start).Milliseconds(),
	}
	if r.stamp != nil {
		e.Timestamp = r.stamp.Stamp()
	} else {
		e.Timestamp = time.Now().Format(time.RFC3339)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
	r.total++
	return e
}

// Recent returns up to k entries, newest first
func (r *Ring) Recent(k int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if k > r.count || k < 0 {
		k = r.count
	}
	out := make([]Entry, 0, k)
	idx := r.next
	for i := 0; i < k; i++ {
		idx = (idx - 1 + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

// Len returns the number of entries held
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Total returns the number of entries ever added
func (r *Ring) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Clear drops every entry. The running total is kept.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		r.entries[i] = Entry{}
	}
	r.next = 0
	r.count = 0
}
