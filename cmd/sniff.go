// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/eklim/faultlink/pkg/frame"
	"github.com/eklim/faultlink/pkg/link"
)

var (
	sniffErrorsOnly   bool
	sniffStatsSeconds int
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Decode and display every frame on the serial line",
	Long: `Continuously decode frames as they arrive and display them with timestamp,
command name and payload.

Checksum failures and framing errors are highlighted as they happen, and a
statistics summary is printed at a configurable interval. Use --errors-only
to hide valid frames.

Nothing is transmitted; the recorder is not disturbed.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&sniffErrorsOnly, "errors-only", false, "Show only checksum and framing errors")
	sniffCmd.Flags().IntVar(&sniffStatsSeconds, "stats-interval", 10, "Statistics update interval (seconds, 0 disables)")
}

// printFrameError prints a decode error in highlighted format
func printFrameError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	label := "FRAME ERROR"
	if errors.Is(err, frame.ErrChecksum) {
		label = "CHECKSUM ERROR"
	}
	fmt.Printf("[%s] \033[1;31m%s:\033[0m %v\n\n", timestamp, label, err)
}

func runSniff(cmd *cobra.Command, args []string) error {
	if portName == "" {
		return fmt.Errorf("--port must be specified")
	}
	port, err := link.OpenSerial(portName, baudRate)
	if err != nil {
		return err
	}
	defer port.Close()
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		return err
	}

	fmt.Printf("Faultlink - Frame Sniffer\n")
	fmt.Printf("Connection: Serial: %s @ %d baud\n", portName, baudRate)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	rx := frame.NewReceiver()
	stats := frame.NewStatistics()
	buf := make([]byte, 128)
	lastStats := time.Now()

	for {
		n, err := port.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		for i := 0; i < n; i++ {
			f, err := rx.Feed(buf[i])
			if err != nil {
				stats.AddError(err)
				printFrameError(err)
				continue
			}
			if f != nil {
				stats.AddReceived()
				if !sniffErrorsOnly {
					fmt.Print(frame.FormatFrame(f))
				}
			}
		}

		if sniffStatsSeconds > 0 && time.Since(lastStats) >= time.Duration(sniffStatsSeconds)*time.Second {
			fmt.Print(stats.String())
			fmt.Println()
			lastStats = time.Now()
		}
	}
}
