// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "errors"

var (
	ErrMessageTooLarge  = errors.New("message too large")
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidSlot      = errors.New("invalid slot")
	ErrTableFull        = errors.New("session table full")
)
