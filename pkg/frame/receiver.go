// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"time"
)

// Phase is the position of the receiver within a frame.
type Phase uint8

const (
	WaitStart Phase = iota
	ReadCommand
	ReadLengthHigh
	ReadLengthLow
	ReadData
	ReadChecksum
	WaitEnd
)

func (p Phase) String() string {
	switch p {
	case WaitStart:
		return "WAIT_START"
	case ReadCommand:
		return "READ_COMMAND"
	case ReadLengthHigh:
		return "READ_LENGTH_HIGH"
	case ReadLengthLow:
		return "READ_LENGTH_LOW"
	case ReadData:
		return "READ_DATA"
	case ReadChecksum:
		return "READ_CHECKSUM"
	case WaitEnd:
		return "WAIT_END"
	default:
		return fmt.Sprintf("PHASE_%d", uint8(p))
	}
}

// State is the complete receiver state between two bytes.
type State struct {
	Phase    Phase
	Escaped  bool
	Length   uint16
	Received uint16
}

// Action tells the caller what to do with the byte just stepped.
type Action uint8

const (
	ActNone       Action = iota // byte consumed, nothing to store
	ActBegin                    // discard any partial frame
	ActCommand                  // byte is the command
	ActLengthHigh               // byte is the length high byte
	ActLengthLow                // byte is the length low byte
	ActData                     // byte is payload
	ActChecksum                 // byte is the received checksum
	ActComplete                 // frame finished, verify checksum
	ActOverflow                 // length exceeds MaxFrameSize
)

// Step is the receiver transition function. It performs no I/O.
func Step(s State, b byte) (State, Action) {
	if s.Escaped {
		s.Escaped = false
		return accumulate(s, b)
	}
	if b == EscByte {
		s.Escaped = true
		return s, ActNone
	}
	if b == StartByte {
		return State{Phase: ReadCommand}, ActBegin
	}
	if b == EndByte && s.Phase == WaitEnd {
		return State{Phase: WaitStart}, ActComplete
	}
	return accumulate(s, b)
}

func accumulate(s State, b byte) (State, Action) {
	switch s.Phase {
	case ReadCommand:
		s.Phase = ReadLengthHigh
		return s, ActCommand

	case ReadLengthHigh:
		s.Length = uint16(b) << 8
		s.Phase = ReadLengthLow
		return s, ActLengthHigh

	case ReadLengthLow:
		s.Length |= uint16(b)
		if s.Length > MaxFrameSize {
			return State{Phase: WaitStart}, ActOverflow
		}
		s.Received = 0
		if s.Length == 0 {
			s.Phase = ReadChecksum
		} else {
			s.Phase = ReadData
		}
		return s, ActLengthLow

	case ReadData:
		s.Received++
		if s.Received >= s.Length {
			s.Phase = ReadChecksum
		}
		return s, ActData

	case ReadChecksum:
		s.Phase = WaitEnd
		return s, ActChecksum

	case WaitEnd:
		// Only END or a new START leave WaitEnd
		return s, ActNone
	}

	// WaitStart: noise between frames
	return s, ActNone
}

// Receiver assembles frames from a byte stream using Step.
type Receiver struct {
	state    State
	command  byte
	length   uint16
	payload  []byte
	checksum byte
}

// NewReceiver creates a receiver waiting for a start byte
func NewReceiver() *Receiver {
	return &Receiver{
		payload: make([]byte, 0, MaxFrameSize),
	}
}

// Reset returns the receiver to WaitStart and drops any partial frame
func (r *Receiver) Reset() {
	r.state = State{}
	r.clear()
}

func (r *Receiver) clear() {
	r.command = 0
	r.length = 0
	r.payload = r.payload[:0]
	r.checksum = 0
}

// State returns the current receiver state
func (r *Receiver) State() State {
	return r.state
}

// Feed processes one byte. It returns a frame when one completes, an error
// when the current attempt fails, or (nil, nil) when more bytes are needed.
func (r *Receiver) Feed(b byte) (*Frame, error) {
	next, act := Step(r.state, b)
	r.state = next

	switch act {
	case ActBegin:
		r.clear()
	case ActCommand:
		r.command = b
	case ActLengthHigh:
		r.length = uint16(b) << 8
	case ActLengthLow:
		r.length |= uint16(b)
	case ActData:
		r.payload = append(r.payload, b)
	case ActChecksum:
		r.checksum = b
	case ActOverflow:
		length := r.length | uint16(b)
		r.Reset()
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, MaxFrameSize)
	case ActComplete:
		return r.finish()
	}
	return nil, nil
}

func (r *Receiver) finish() (*Frame, error) {
	expected := Checksum(r.command, r.length, r.payload)
	if expected != r.checksum {
		err := fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksum, expected, r.checksum)
		r.Reset()
		return nil, err
	}

	payload := make([]byte, len(r.payload))
	copy(payload, r.payload)
	f := &Frame{
		command:   r.command,
		payload:   payload,
		checksum:  r.checksum,
		timestamp: time.Now(),
	}
	r.Reset()
	return f, nil
}
