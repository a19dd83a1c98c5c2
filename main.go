// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Faultlink - Fault Recorder Communications
//
// Serial link daemon and tooling for substation fault recorders: keeps the
// recorder link healthy, stores fault records and pushes them to operators.

package main

import (
	"os"

	"github.com/eklim/faultlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
