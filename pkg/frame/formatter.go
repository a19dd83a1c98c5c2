// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"strings"
	"unicode"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d sum=0x%02X\n",
		timestamp, FormatCommand(f.command), f.command, len(f.payload), f.checksum)
	if len(f.payload) > 0 {
		result += "  " + FormatPayload(f.payload) + "\n"
	}
	return result
}

// FormatCommand returns the human-readable name for a command code
func FormatCommand(cmd byte) string {
	switch cmd {
	case CmdPing:
		return "PING"
	case CmdGetTime:
		return "GET_TIME"
	case CmdSetNTP:
		return "SET_NTP"
	case CmdSetBaudRate:
		return "SET_BAUDRATE"
	case CmdGetFirstFault:
		return "GET_FIRST_FAULT"
	case CmdGetNextFault:
		return "GET_NEXT_FAULT"
	case CmdClearFaults:
		return "CLEAR_FAULTS"
	case CmdGetStatus:
		return "GET_STATUS"
	case CmdReset:
		return "RESET"
	case CmdAck:
		return "ACK"
	case CmdNack:
		return "NACK"
	case CmdEventFault:
		return "EVENT_FAULT"
	case CmdEventLog:
		return "EVENT_LOG"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", cmd)
	}
}

// FormatPayload renders printable payloads as quoted text and everything else as hex
func FormatPayload(payload []byte) string {
	if isPrintable(payload) {
		return fmt.Sprintf("%q", string(payload))
	}
	return FormatHex(payload)
}

// FormatHex renders bytes as space-separated hex
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func isPrintable(data []byte) bool {
	for _, b := range data {
		if b > unicode.MaxASCII || (!unicode.IsPrint(rune(b)) && b != '\r' && b != '\n' && b != '\t') {
			return false
		}
	}
	return true
}
