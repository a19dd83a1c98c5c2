// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks link counters. Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex

	startTime time.Time
	lastFrame time.Time

	sent           uint64
	received       uint64
	checksumErrors uint64
	timeoutErrors  uint64
	frameErrors    uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StartTime      time.Time `json:"-"`
	LastFrame      time.Time `json:"-"`
	Sent           uint64    `json:"packetsSent"`
	Received       uint64    `json:"packetsReceived"`
	ChecksumErrors uint64    `json:"checksumErrors"`
	TimeoutErrors  uint64    `json:"timeoutErrors"`
	FrameErrors    uint64    `json:"frameErrors"`
	SuccessRate    float64   `json:"successRate"`
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// AddSent counts one transmitted frame
func (s *Statistics) AddSent() {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
}

// AddReceived counts one valid received frame
func (s *Statistics) AddReceived() {
	s.mu.Lock()
	s.received++
	s.lastFrame = time.Now()
	s.mu.Unlock()
}

// AddTimeout counts one receive scan that assembled no frame
func (s *Statistics) AddTimeout() {
	s.mu.Lock()
	s.timeoutErrors++
	s.mu.Unlock()
}

// AddError classifies a receive error. Checksum failures are counted
// separately; everything else is a frame error.
func (s *Statistics) AddError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, ErrChecksum) {
		s.checksumErrors++
		return
	}
	s.frameErrors++
}

// SuccessRate returns (sent - errors) / sent * 100 clamped to [0, 100].
// With nothing sent yet the rate is 100.
func (s *Statistics) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successRate()
}

func (s *Statistics) successRate() float64 {
	if s.sent == 0 {
		return 100
	}
	errs := s.checksumErrors + s.timeoutErrors + s.frameErrors
	if errs >= s.sent {
		return 0
	}
	rate := float64(s.sent-errs) * 100.0 / float64(s.sent)
	if rate > 100 {
		rate = 100
	}
	return rate
}

// Snapshot returns a copy of the counters
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		StartTime:      s.startTime,
		LastFrame:      s.lastFrame,
		Sent:           s.sent,
		Received:       s.received,
		ChecksumErrors: s.checksumErrors,
		TimeoutErrors:  s.timeoutErrors,
		FrameErrors:    s.frameErrors,
		SuccessRate:    s.successRate(),
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()
	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d\n", snap.Sent)
	result += fmt.Sprintf("Frames Received: %8d\n", snap.Received)
	if snap.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", snap.ChecksumErrors)
	}
	if snap.TimeoutErrors > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", snap.TimeoutErrors)
	}
	if snap.FrameErrors > 0 {
		result += fmt.Sprintf("Frame Errors:    %8d\n", snap.FrameErrors)
	}
	if elapsed.Seconds() > 0 {
		result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", float64(snap.Received)/elapsed.Seconds())
	}
	result += fmt.Sprintf("Success Rate:    %7.1f%%\n", snap.SuccessRate)
	result += "====================================\n"

	return result
}

// Reset zeroes all counters. Only operator action calls this.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = time.Now()
	s.lastFrame = time.Time{}
	s.sent = 0
	s.received = 0
	s.checksumErrors = 0
	s.timeoutErrors = 0
	s.frameErrors = 0
}
