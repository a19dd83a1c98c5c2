// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Configuration
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int

	// Push channel flags
	wsURL         string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "faultlink",
	Short: "Fault recorder communications daemon and tools",
	Long: `Faultlink - serial link and push channel for substation fault recorders.

The serve command runs the daemon: it keeps the serial link to the recorder
healthy, pulls fault records and pushes status, audit log lines and faults to
WebSocket clients. The remaining commands are operator tools for the serial
line and the push channel.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host:81/ws

For push-channel authentication, the session token is read from the
FAULTLINK_TOKEN environment variable, or prompted interactively if not set.
A --token flag is intentionally not provided to avoid leaking credentials in
shell history.`,
	Version: "3.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if lvl, err := log.ParseLevel(logLevel); err == nil {
			log.SetLevel(lvl)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "faultlink.toml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "ws://localhost:81/ws", "Push channel URL (ws:// or wss://)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
