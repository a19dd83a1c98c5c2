// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frame implements the framed serial protocol spoken between the
// fault recorder's communications controller and its peripheral controller.
//
// A frame on the wire is START | command | lengthHi | lengthLo | payload |
// checksum | END. Every byte between the delimiters is byte-stuffed and the
// checksum is a running XOR of command, length and payload.
package frame

import "time"

// Protocol framing bytes
const (
	StartByte = 0xAA
	EndByte   = 0x55
	EscByte   = 0x7E
)

// Frame size limits
const (
	MaxFrameSize = 512 // payload bytes
	headerSize   = 3   // command + 2 length bytes
)

// DefaultFrameTimeout bounds a single receive scan.
const DefaultFrameTimeout = time.Second

// Requests (communications controller → peripheral)
const (
	CmdPing          = 0x01
	CmdGetTime       = 0x10
	CmdSetNTP        = 0x11
	CmdSetBaudRate   = 0x12
	CmdGetFirstFault = 0x20
	CmdGetNextFault  = 0x21
	CmdClearFaults   = 0x22
	CmdGetStatus     = 0x30
	CmdReset         = 0x3F
)

// Responses
const (
	CmdAck  = 0x06
	CmdNack = 0x15
)

// Unsolicited events (peripheral → communications controller)
const (
	CmdEventFault = 0x40
	CmdEventLog   = 0x41
)

// IsReserved reports whether b must be escaped inside a frame body.
func IsReserved(b byte) bool {
	return b == StartByte || b == EndByte || b == EscByte
}

// IsEvent reports whether the command code is an unsolicited event.
func IsEvent(cmd byte) bool {
	return cmd == CmdEventFault || cmd == CmdEventLog
}
