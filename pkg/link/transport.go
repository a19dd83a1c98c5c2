// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link runs the framed serial protocol: the transport that moves
// frames over a port, the half-duplex transaction client on top of it and
// the health monitor that keeps the link alive.
package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/frame"
)

// readSlice bounds a single blocking port read inside a receive scan.
const readSlice = 50 * time.Millisecond

// Transport sends and receives frames over a Port.
type Transport struct {
	mu   sync.Mutex
	open Opener
	port Port

	rx      *frame.Receiver
	buf     []byte
	pending []byte
	stats   *frame.Statistics
}

// NewTransport creates a transport. The port is not opened until Open is called.
func NewTransport(open Opener, stats *frame.Statistics) *Transport {
	if stats == nil {
		stats = frame.NewStatistics()
	}
	return &Transport{
		open:  open,
		rx:    frame.NewReceiver(),
		buf:   make([]byte, 256),
		stats: stats,
	}
}

func (t *Transport) log() *log.Entry {
	return log.WithField("source", "UART")
}

// Stats returns the transport's counters
func (t *Transport) Stats() *frame.Statistics {
	return t.stats
}

// Open opens the port through the opener
func (t *Transport) Open() error {
	port, err := t.open()
	if err != nil {
		return err
	}

	t.mu.Lock()
	old := t.port
	t.port = port
	t.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	t.rx.Reset()
	t.pending = nil
	return nil
}

// Close closes the port
func (t *Transport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

// Reinit closes and reopens the port. Statistics are kept.
func (t *Transport) Reinit() error {
	t.log().Warn("Reinitializing serial transport")
	if err := t.Close(); err != nil {
		t.log().WithError(err).Debug("Close before reinit failed")
	}
	if err := t.Open(); err != nil {
		t.log().WithError(err).Error("Serial transport reinit failed")
		return err
	}
	t.log().Info("Serial transport reinitialized")
	return nil
}

func (t *Transport) current() Port {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// SendFrame discards unread input and writes one frame.
func (t *Transport) SendFrame(f *frame.Frame) error {
	port := t.current()
	if port == nil {
		return ErrTransportUnavailable
	}

	if err := port.ResetInputBuffer(); err != nil {
		t.log().WithError(err).Debug("Input buffer reset failed")
	}
	t.pending = nil
	t.rx.Reset()

	wire := f.Marshal()
	if _, err := port.Write(wire); err != nil {
		return fmt.Errorf("write %s: %w", frame.FormatCommand(f.Command()), err)
	}
	t.stats.AddSent()

	t.log().WithFields(log.Fields{
		"command": frame.FormatCommand(f.Command()),
		"length":  f.Length(),
	}).Debug("Frame sent")
	return nil
}

// Send builds and sends a frame
func (t *Transport) Send(command byte, payload []byte) error {
	f, err := frame.New(command, payload)
	if err != nil {
		return err
	}
	return t.SendFrame(f)
}

// ReceiveFrame waits up to timeout for one complete frame. A scan that
// assembles nothing counts as a timeout error and drops any partial frame.
func (t *Transport) ReceiveFrame(timeout time.Duration) (*frame.Frame, error) {
	f, err := t.scan(timeout)
	if errors.Is(err, ErrTimeout) {
		t.rx.Reset()
		t.stats.AddTimeout()
	}
	return f, err
}

// Poll waits up to timeout for a frame without counting a quiet line as an
// error. A partial frame is kept for the next call.
func (t *Transport) Poll(timeout time.Duration) (*frame.Frame, error) {
	f, err := t.scan(timeout)
	if errors.Is(err, ErrTimeout) {
		return nil, nil
	}
	return f, err
}

func (t *Transport) scan(timeout time.Duration) (*frame.Frame, error) {
	port := t.current()
	if port == nil {
		t.stats.AddError(ErrTransportUnavailable)
		return nil, ErrTransportUnavailable
	}

	deadline := time.Now().Add(timeout)
	for {
		for len(t.pending) > 0 {
			b := t.pending[0]
			t.pending = t.pending[1:]

			f, err := t.rx.Feed(b)
			if err != nil {
				t.stats.AddError(err)
				t.log().WithError(err).Debug("Frame rejected")
				return nil, err
			}
			if f != nil {
				t.stats.AddReceived()
				return f, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if remaining > readSlice {
			remaining = readSlice
		}
		if err := port.SetReadTimeout(remaining); err != nil {
			t.stats.AddError(err)
			return nil, fmt.Errorf("set read timeout: %w", err)
		}

		n, err := port.Read(t.buf)
		if err != nil {
			t.stats.AddError(err)
			return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
		if n > 0 {
			t.pending = append([]byte(nil), t.buf[:n]...)
		}
	}
}
