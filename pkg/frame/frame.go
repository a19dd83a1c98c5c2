// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"time"
)

// Frame is one command/response unit on the serial link.
type Frame struct {
	command   byte
	payload   []byte
	checksum  byte
	timestamp time.Time
}

// New creates a frame and computes its checksum.
func New(command byte, payload []byte) (*Frame, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxFrameSize)
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Frame{
		command:   command,
		payload:   p,
		checksum:  Checksum(command, uint16(len(p)), p),
		timestamp: time.Now(),
	}, nil
}

// Command returns the frame's command code
func (f *Frame) Command() byte {
	return f.command
}

// Length returns the payload length
func (f *Frame) Length() uint16 {
	return uint16(len(f.payload))
}

// Payload returns the frame payload
func (f *Frame) Payload() []byte {
	return f.payload
}

// Text returns the payload as a string
func (f *Frame) Text() string {
	return string(f.payload)
}

// Checksum returns the frame's checksum byte
func (f *Frame) Checksum() byte {
	return f.checksum
}

// Timestamp returns when the frame was built or received
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Checksum computes the XOR of command, both length bytes and every payload byte.
func Checksum(command byte, length uint16, payload []byte) byte {
	sum := command ^ byte(length>>8) ^ byte(length)
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// body returns the unstuffed bytes between the delimiters.
func (f *Frame) body() []byte {
	n := len(f.payload)
	data := make([]byte, 0, headerSize+n+1)
	data = append(data, f.command, byte(n>>8), byte(n))
	data = append(data, f.payload...)
	return append(data, f.checksum)
}

// Marshal returns the frame in wire format, stuffed and delimited.
func (f *Frame) Marshal() []byte {
	stuffed := Stuff(f.body())
	out := make([]byte, 0, len(stuffed)+2)
	out = append(out, StartByte)
	out = append(out, stuffed...)
	return append(out, EndByte)
}

// Encode builds a frame and returns its wire bytes.
func Encode(command byte, payload []byte) ([]byte, error) {
	f, err := New(command, payload)
	if err != nil {
		return nil, err
	}
	return f.Marshal(), nil
}

// Stuff inserts EscByte before every reserved byte in data.
// The delimiters around a frame body are never passed through Stuff.
func Stuff(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		if IsReserved(b) {
			out = append(out, EscByte)
		}
		out = append(out, b)
	}
	return out
}
