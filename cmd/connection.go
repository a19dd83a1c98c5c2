// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/eklim/faultlink/pkg/frame"
	"github.com/eklim/faultlink/pkg/link"
)

// openTransport opens the serial port named by the flags
func openTransport() (*link.Transport, string, error) {
	if portName == "" {
		ports, _ := link.ListPorts()
		if len(ports) > 0 {
			return nil, "", fmt.Errorf("--port must be specified (available: %s)", strings.Join(ports, ", "))
		}
		return nil, "", fmt.Errorf("--port must be specified")
	}

	transport := link.NewTransport(link.SerialOpener(portName, baudRate), frame.NewStatistics())
	if err := transport.Open(); err != nil {
		return nil, "", err
	}
	return transport, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
}

// dialPush opens a push channel connection
func dialPush(wsURL string, skipSSLVerify bool) (*websocket.Conn, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return conn, nil
}

// readSecret prompts on stderr and reads a line without echo
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	secret, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read input: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(line), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(secret), nil
}

// GetToken retrieves the session token from environment or prompts the user
func GetToken() (string, error) {
	if tok := os.Getenv("FAULTLINK_TOKEN"); tok != "" {
		return tok, nil
	}
	return readSecret("Session token: ")
}
