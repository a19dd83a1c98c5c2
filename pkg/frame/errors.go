// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import "errors"

var (
	// ErrPayloadTooLarge is returned when encoding a payload over MaxFrameSize.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrFrameTooLarge is returned when a received length field exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrChecksum is returned when a received frame fails checksum validation.
	ErrChecksum = errors.New("checksum mismatch")
)
