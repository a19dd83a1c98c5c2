// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logring

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Field names the hook reads from log entries
const (
	FieldSource  = "source"
	FieldSuccess = "success"
)

// DefaultSource is used when an entry carries no source field
const DefaultSource = "SYSTEM"

// Forwarder receives entries queued by the hook
type Forwarder func(e Entry)

// Hook is a logrus hook that records Info and above into a Ring and queues
// each recorded entry for forwarding.
type Hook struct {
	ring  *Ring
	queue chan Entry
}

// NewHook creates a hook with a bounded forwarding queue
func NewHook(ring *Ring, queueSize int) *Hook {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Hook{
		ring:  ring,
		queue: make(chan Entry, queueSize),
	}
}

// Levels implements log.Hook
func (h *Hook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

// Fire implements log.Hook. It never blocks; a full queue drops the forward.
func (h *Hook) Fire(entry *log.Entry) error {
	source := DefaultSource
	if s, ok := entry.Data[FieldSource].(string); ok && s != "" {
		source = s
	}

	message := entry.Message
	if err, ok := entry.Data[log.ErrorKey].(error); ok {
		message = fmt.Sprintf("%s: %v", message, err)
	}

	e := h.ring.Add(message, levelOf(entry), source)
	select {
	case h.queue <- e:
	default:
	}
	return nil
}

// Run forwards queued entries until ctx is cancelled
func (h *Hook) Run(ctx context.Context, forward Forwarder) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-h.queue:
			forward(e)
		}
	}
}

func levelOf(entry *log.Entry) Level {
	switch entry.Level {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		return LevelError
	case log.WarnLevel:
		return LevelWarn
	case log.InfoLevel:
		if ok, _ := entry.Data[FieldSuccess].(bool); ok {
			return LevelSuccess
		}
		return LevelInfo
	default:
		return LevelDebug
	}
}
