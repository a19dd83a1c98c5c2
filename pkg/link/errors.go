// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "errors"

var (
	// ErrTimeout is returned when no complete frame arrives before the deadline.
	ErrTimeout = errors.New("timeout waiting for frame")
	// ErrNacked is returned when the peer answers with a negative acknowledgement.
	ErrNacked = errors.New("peer sent NACK")
	// ErrTransportUnavailable is returned when the port is not open.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrBusy is returned when another transaction holds the link for the whole timeout.
	ErrBusy = errors.New("transaction already in progress")
	// ErrRejected is returned when a command that requires ACK/OK gets anything else.
	ErrRejected = errors.New("peer rejected command")
	// ErrMalformedReply is returned when a reply does not have the expected shape.
	ErrMalformedReply = errors.New("malformed reply")
	// ErrNoRecord is returned when the peer returns an empty fault record.
	ErrNoRecord = errors.New("no fault record")
	// ErrUnsupportedBaud is returned for a baud rate the recorder does not accept.
	ErrUnsupportedBaud = errors.New("unsupported baud rate")
)
