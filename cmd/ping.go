// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eklim/faultlink/pkg/link"
)

var (
	pingCount int
	pingDelay int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the fault recorder over the serial link",
	Long: `Send PING frames to the recorder and wait for an ACK or "PONG" reply.

This is useful for verifying:
  - The serial port and baud rate are correct
  - Framing and checksums agree in both directions
  - The recorder firmware is responsive

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().IntVar(&pingDelay, "interval", 500, "Delay between pings in milliseconds")
}

func runPing(cmd *cobra.Command, args []string) error {
	transport, connInfo, err := openTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer transport.Close()

	fmt.Printf("Faultlink - Link Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per ping\n", link.PingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	client := link.NewClient(transport)
	successCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		if err := client.Ping(); err != nil {
			fmt.Printf("FAILED: %v\n", err)
		} else {
			fmt.Printf("PONG, rtt=%v\n", time.Since(start).Round(time.Millisecond))
			successCount++
		}

		if i < pingCount {
			time.Sleep(time.Duration(pingDelay) * time.Millisecond)
		}
	}

	failCount := pingCount - successCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	fmt.Print(transport.Stats().String())

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
