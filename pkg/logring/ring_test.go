// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

type fixedStamp string

func (s fixedStamp) Stamp() string {
	return string(s)
}

// ============================================================
// Ring Tests
// ============================================================

func TestRing_RecentNewestFirst(t *testing.T) {
	r := New(5, fixedStamp("[NO_SYNC 00:00:01]"))
	for i := 0; i < 3; i++ {
		r.Add(fmt.Sprintf("line %d", i), LevelInfo, "TEST")
	}

	got := r.Recent(10)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Message != "line 2" || got[2].Message != "line 0" {
		t.Errorf("unexpected order: %v", got)
	}
	if got[0].Timestamp != "[NO_SYNC 00:00:01]" {
		t.Errorf("stamp not applied: %q", got[0].Timestamp)
	}
}

func TestRing_Overwrite(t *testing.T) {
	r := New(3, nil)
	for i := 0; i < 7; i++ {
		r.Add(fmt.Sprintf("line %d", i), LevelWarn, "TEST")
	}

	if r.Len() != 3 || r.Total() != 7 {
		t.Errorf("expected len 3 total 7, got %d/%d", r.Len(), r.Total())
	}
	got := r.Recent(3)
	want := []string{"line 6", "line 5", "line 4"}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("entry %d: expected %q, got %q", i, w, got[i].Message)
		}
	}
}

func TestRing_Clear(t *testing.T) {
	r := New(DefaultCapacity, nil)
	r.Add("a", LevelInfo, "TEST")
	r.Clear()
	if r.Len() != 0 || len(r.Recent(5)) != 0 {
		t.Error("ring not empty after Clear")
	}
	if r.Total() != 1 {
		t.Errorf("total should survive Clear, got %d", r.Total())
	}
}

// ============================================================
// Hook Tests
// ============================================================

func newTestLogger(h *Hook) *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.DebugLevel)
	logger.AddHook(h)
	return logger
}

func TestHook_RecordsInfoAndAbove(t *testing.T) {
	r := New(10, nil)
	h := NewHook(r, 10)
	logger := newTestLogger(h)

	logger.WithField(FieldSource, "UART").Warn("ping failed")
	logger.WithError(errors.New("boom")).Error("write failed")
	logger.WithField(FieldSuccess, true).Info("time synced")
	logger.Info("plain")
	logger.Debug("not recorded")

	got := r.Recent(10)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}

	tests := []struct {
		idx     int
		message string
		level   Level
		source  string
	}{
		{3, "ping failed", LevelWarn, "UART"},
		{2, "write failed: boom", LevelError, DefaultSource},
		{1, "time synced", LevelSuccess, DefaultSource},
		{0, "plain", LevelInfo, DefaultSource},
	}
	for _, tt := range tests {
		e := got[tt.idx]
		if e.Message != tt.message || e.Level != tt.level || e.Source != tt.source {
			t.Errorf("entry %d: expected %q/%s/%s, got %q/%s/%s",
				tt.idx, tt.message, tt.level, tt.source, e.Message, e.Level, e.Source)
		}
	}
}

func TestHook_ForwardsWithoutBlocking(t *testing.T) {
	r := New(10, nil)
	h := NewHook(r, 1)
	logger := newTestLogger(h)

	// Queue holds one entry; the rest are dropped instead of blocking
	for i := 0; i < 5; i++ {
		logger.Info("burst")
	}
	if r.Len() != 5 {
		t.Errorf("ring should record every entry, got %d", r.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Entry, 5)
	go h.Run(ctx, func(e Entry) { got <- e })

	select {
	case e := <-got:
		if e.Message != "burst" {
			t.Errorf("unexpected forwarded message %q", e.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("nothing forwarded")
	}
	select {
	case e := <-got:
		t.Errorf("expected overflow to be dropped, got %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
