// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"errors"
	"testing"
)

// decodeAll feeds data to a fresh receiver and returns every frame and error seen
func decodeAll(data []byte) ([]*Frame, []error) {
	r := NewReceiver()
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := r.Feed(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		command  byte
		payload  []byte
		expected byte
	}{
		{"empty ping", CmdPing, nil, 0x01},
		{"time query with escape", CmdGetTime, []byte{0x02, 0x05, 0x7E}, 0x6A},
		{"ping text", CmdPing, []byte("PING"), 0x01 ^ 0x04 ^ 'P' ^ 'I' ^ 'N' ^ 'G'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := Checksum(tt.command, uint16(len(tt.payload)), tt.payload)
			if sum != tt.expected {
				t.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X", tt.expected, sum)
			}
		})
	}
}

func TestChecksum_LengthHighByte(t *testing.T) {
	payload := make([]byte, 300)
	sum := Checksum(CmdGetStatus, 300, payload)
	expected := byte(CmdGetStatus) ^ 0x01 ^ 0x2C
	if sum != expected {
		t.Errorf("expected 0x%02X, got 0x%02X", expected, sum)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_EscapeScenario(t *testing.T) {
	wire, err := Encode(CmdGetTime, []byte{0x02, 0x05, 0x7E})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := []byte{StartByte, 0x10, 0x00, 0x03, 0x02, 0x05, EscByte, 0x7E, 0x6A, EndByte}
	if !bytes.Equal(wire, expected) {
		t.Fatalf("wire mismatch:\n  expected %s\n  got      %s", FormatHex(expected), FormatHex(wire))
	}

	frames, errs := decodeAll(wire)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Command() != CmdGetTime {
		t.Errorf("command mismatch: got 0x%02X", frames[0].Command())
	}
	if !bytes.Equal(frames[0].Payload(), []byte{0x02, 0x05, 0x7E}) {
		t.Errorf("payload mismatch: got %s", FormatHex(frames[0].Payload()))
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(CmdSetNTP, make([]byte, MaxFrameSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncode_MaxPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{StartByte}, MaxFrameSize)
	wire, err := Encode(CmdSetNTP, payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	frames, errs := decodeAll(wire)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("expected one clean frame, got %d frames, errors %v", len(frames), errs)
	}
	if !bytes.Equal(frames[0].Payload(), payload) {
		t.Error("payload mismatch at maximum size")
	}
}

func TestStuff(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{"no reserved", []byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{"start", []byte{StartByte}, []byte{EscByte, StartByte}},
		{"end", []byte{EndByte}, []byte{EscByte, EndByte}},
		{"escape", []byte{EscByte}, []byte{EscByte, EscByte}},
		{"consecutive", []byte{StartByte, EndByte, EscByte}, []byte{EscByte, StartByte, EscByte, EndByte, EscByte, EscByte}},
		{"empty", []byte{}, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stuff(tt.input)
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("expected %s, got %s", FormatHex(tt.expected), FormatHex(got))
			}
		})
	}
}

func TestMarshal_DelimitersNotStuffed(t *testing.T) {
	f, err := New(CmdPing, []byte("PING"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	wire := f.Marshal()
	if wire[0] != StartByte || wire[len(wire)-1] != EndByte {
		t.Errorf("frame not delimited: %s", FormatHex(wire))
	}
	for i, b := range wire[1 : len(wire)-1] {
		if (b == StartByte || b == EndByte) && (i == 0 || wire[i] != EscByte) {
			t.Errorf("unescaped delimiter at body offset %d", i)
		}
	}
}

// ============================================================
// Receiver Tests
// ============================================================

func TestReceiver_ChecksumMismatch(t *testing.T) {
	wire := []byte{StartByte, CmdPing, 0x00, 0x01, 'X', 0x00, EndByte}
	frames, errs := decodeAll(wire)
	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrChecksum) {
		t.Errorf("expected one ErrChecksum, got %v", errs)
	}
}

func TestReceiver_FrameTooLarge(t *testing.T) {
	r := NewReceiver()
	wire := []byte{StartByte, CmdSetNTP, 0x02, 0x01}
	var err error
	for _, b := range wire {
		_, err = r.Feed(b)
	}
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge on the length byte, got %v", err)
	}
	if r.State().Phase != WaitStart {
		t.Errorf("expected WaitStart after overflow, got %s", r.State().Phase)
	}
}

func TestReceiver_WaitsForEnd(t *testing.T) {
	wire, _ := Encode(CmdPing, nil)
	// Line noise between the checksum and END
	noisy := append([]byte{}, wire[:len(wire)-1]...)
	noisy = append(noisy, 0x01, 0x42, EscByte, EndByte, EndByte)

	frames, errs := decodeAll(noisy)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 || frames[0].Command() != CmdPing {
		t.Errorf("expected the ping frame, got %d frames", len(frames))
	}
}

func TestReceiver_ZeroLength(t *testing.T) {
	wire, _ := Encode(CmdAck, nil)
	frames, errs := decodeAll(wire)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("expected one frame, got %d frames, errors %v", len(frames), errs)
	}
	if frames[0].Length() != 0 || frames[0].Command() != CmdAck {
		t.Errorf("unexpected frame: %s", FormatFrame(frames[0]))
	}
}

func TestReceiver_NoiseBetweenFrames(t *testing.T) {
	a, _ := Encode(CmdPing, []byte("PING"))
	b, _ := Encode(CmdAck, []byte("OK"))
	stream := append([]byte{0x00, 0x13, 0x37}, a...)
	stream = append(stream, 0xFF, 0x01)
	stream = append(stream, b...)

	frames, errs := decodeAll(stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[1].Text() != "OK" {
		t.Errorf("second frame payload: %q", frames[1].Text())
	}
}

func TestReceiver_ResyncOnStart(t *testing.T) {
	good, _ := Encode(CmdGetStatus, []byte("RUN"))
	partial := []byte{StartByte, CmdGetTime, 0x00, 0x08, 'a', 'b'}
	frames, errs := decodeAll(append(partial, good...))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 || frames[0].Command() != CmdGetStatus {
		t.Fatalf("expected the second frame only, got %d frames", len(frames))
	}
}

// ============================================================
// Step Tests
// ============================================================

func TestStep_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		input     byte
		wantPhase Phase
		wantAct   Action
	}{
		{"noise ignored", State{Phase: WaitStart}, 0x42, WaitStart, ActNone},
		{"start begins", State{Phase: WaitStart}, StartByte, ReadCommand, ActBegin},
		{"start resyncs mid data", State{Phase: ReadData, Length: 4, Received: 2}, StartByte, ReadCommand, ActBegin},
		{"command", State{Phase: ReadCommand}, 0x10, ReadLengthHigh, ActCommand},
		{"length high", State{Phase: ReadLengthHigh}, 0x00, ReadLengthLow, ActLengthHigh},
		{"length low to data", State{Phase: ReadLengthLow}, 0x03, ReadData, ActLengthLow},
		{"length low zero", State{Phase: ReadLengthLow}, 0x00, ReadChecksum, ActLengthLow},
		{"length overflow", State{Phase: ReadLengthLow, Length: 0x0200}, 0x01, WaitStart, ActOverflow},
		{"last data byte", State{Phase: ReadData, Length: 2, Received: 1}, 0x01, ReadChecksum, ActData},
		{"end inside data is payload", State{Phase: ReadData, Length: 2}, EndByte, ReadData, ActData},
		{"checksum", State{Phase: ReadChecksum}, 0x6A, WaitEnd, ActChecksum},
		{"end completes", State{Phase: WaitEnd}, EndByte, WaitStart, ActComplete},
		{"noise before end ignored", State{Phase: WaitEnd}, 0x01, WaitEnd, ActNone},
		{"escaped start is literal", State{Phase: ReadData, Length: 2, Escaped: true}, StartByte, ReadData, ActData},
		{"escaped end does not finish", State{Phase: WaitEnd, Escaped: true}, EndByte, WaitEnd, ActNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, act := Step(tt.state, tt.input)
			if next.Phase != tt.wantPhase {
				t.Errorf("phase: expected %s, got %s", tt.wantPhase, next.Phase)
			}
			if act != tt.wantAct {
				t.Errorf("action: expected %d, got %d", tt.wantAct, act)
			}
			if next.Escaped {
				t.Error("escape flag should be clear")
			}
		})
	}
}

func TestStep_EscapeHoldsPhase(t *testing.T) {
	s := State{Phase: ReadData, Length: 3, Received: 1}
	next, act := Step(s, EscByte)
	if act != ActNone || !next.Escaped || next.Phase != ReadData || next.Received != 1 {
		t.Errorf("escape should only set the flag, got %+v action %d", next, act)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_SuccessRate(t *testing.T) {
	tests := []struct {
		name     string
		sent     int
		errs     []error
		timeouts int
		expected float64
	}{
		{"nothing sent", 0, nil, 0, 100},
		{"errors before any send", 0, []error{ErrChecksum}, 3, 100},
		{"all good", 10, nil, 0, 100},
		{"half timeouts", 10, nil, 5, 50},
		{"mixed", 4, []error{ErrChecksum, ErrFrameTooLarge}, 1, 25},
		{"more errors than sends", 2, []error{ErrChecksum, ErrChecksum}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStatistics()
			for i := 0; i < tt.sent; i++ {
				s.AddSent()
			}
			for _, err := range tt.errs {
				s.AddError(err)
			}
			for i := 0; i < tt.timeouts; i++ {
				s.AddTimeout()
			}
			if got := s.SuccessRate(); got != tt.expected {
				t.Errorf("expected %.1f, got %.1f", tt.expected, got)
			}
		})
	}
}

func TestStatistics_Classification(t *testing.T) {
	s := NewStatistics()
	s.AddError(ErrChecksum)
	s.AddError(ErrFrameTooLarge)
	s.AddError(errors.New("read failed"))
	s.AddTimeout()

	snap := s.Snapshot()
	if snap.ChecksumErrors != 1 || snap.FrameErrors != 2 || snap.TimeoutErrors != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}

	s.Reset()
	snap = s.Snapshot()
	if snap.ChecksumErrors != 0 || snap.FrameErrors != 0 || snap.TimeoutErrors != 0 || snap.SuccessRate != 100 {
		t.Errorf("Reset did not clear counters: %+v", snap)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	f, _ := New(CmdEventFault, []byte("F12 OVERCURRENT"))
	out := FormatFrame(f)
	if !bytes.Contains([]byte(out), []byte("EVENT_FAULT (0x40)")) {
		t.Errorf("missing command name: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte(`"F12 OVERCURRENT"`)) {
		t.Errorf("missing payload text: %s", out)
	}
}

func TestFormatPayload_Binary(t *testing.T) {
	if got := FormatPayload([]byte{0x00, 0xFF}); got != "00 FF" {
		t.Errorf("expected hex, got %q", got)
	}
}
