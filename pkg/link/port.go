// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream under the transport. go.bug.st/serial ports satisfy it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Opener opens (or reopens) the port.
type Opener func() (Port, error)

// OpenSerial opens a serial port at 8N1
func OpenSerial(portName string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, nil
}

// SerialOpener returns an Opener for the named serial port
func SerialOpener(portName string, baudRate int) Opener {
	return func() (Port, error) {
		return OpenSerial(portName, baudRate)
	}
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// BaudRates are the rates the recorder accepts
var BaudRates = []int{9600, 19200, 38400, 57600, 115200}

// ValidBaudRate reports whether the recorder accepts baud
func ValidBaudRate(baud int) bool {
	for _, b := range BaudRates {
		if b == baud {
			return true
		}
	}
	return false
}
