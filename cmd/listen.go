// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eklim/faultlink/pkg/frame"
	"github.com/eklim/faultlink/pkg/link"
)

var listenTimeout int

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Test the serial line by waiting for a valid frame",
	Long: `Wait for a valid frame on the serial line until timeout.

Invalid bytes are skipped until a complete frame with a correct checksum
arrives. Nothing is transmitted.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().IntVar(&listenTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runListen(cmd *cobra.Command, args []string) error {
	transport, connInfo, err := openTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer transport.Close()

	fmt.Printf("Faultlink - Listen\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", listenTimeout)
	fmt.Printf("Waiting for a valid frame...\n\n")

	deadline := time.Now().Add(time.Duration(listenTimeout) * time.Second)
	var f *frame.Frame
	skipped := 0
	for f == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", listenTimeout)
			os.Exit(1)
		}

		f, err = transport.Poll(remaining)
		if errors.Is(err, link.ErrTransportUnavailable) {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		} else if err != nil {
			// Ignore framing errors until a valid frame arrives
			skipped++
		}
	}
	if skipped > 0 {
		fmt.Printf("(skipped %d invalid frames before sync)\n", skipped)
	}

	fmt.Printf("SUCCESS: Received valid frame\n")
	fmt.Printf("  Command: %s (0x%02X)\n", frame.FormatCommand(f.Command()), f.Command())
	fmt.Printf("  Length: %d bytes\n", f.Length())
	fmt.Printf("  Checksum: 0x%02X\n", f.Checksum())
	if f.Length() > 0 {
		fmt.Printf("  Payload: %s\n", frame.FormatPayload(f.Payload()))
	}
	os.Exit(0)
	return nil
}
