// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "time"

// Config holds the push channel limits
type Config struct {
	MaxClients       int
	MaxMessageSize   int
	MaxCommandLength int
	MaxLabelLength   int

	IdleTimeout        time.Duration
	IdleSweepInterval  time.Duration
	StaleTimeout       time.Duration
	StaleSweepInterval time.Duration
	AuthFailDelay      time.Duration

	ReplayCount    int
	StatusInterval time.Duration
	LogWindow      time.Duration
	LogsPerWindow  int
	FaultMaxLength int

	Version string
}

// DefaultConfig returns the limits used by the recorder firmware
func DefaultConfig() Config {
	return Config{
		MaxClients:         5,
		MaxMessageSize:     1024,
		MaxCommandLength:   50,
		MaxLabelLength:     100,
		IdleTimeout:        120 * time.Second,
		IdleSweepInterval:  60 * time.Second,
		StaleTimeout:       300 * time.Second,
		StaleSweepInterval: 600 * time.Second,
		AuthFailDelay:      2 * time.Second,
		ReplayCount:        15,
		StatusInterval:     5 * time.Second,
		LogWindow:          time.Second,
		LogsPerWindow:      5,
		FaultMaxLength:     200,
		Version:            "3.0",
	}
}
