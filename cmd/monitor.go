// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/eklim/faultlink/pkg/session"
)

var (
	monitorTUI          bool
	monitorFetchLogs    bool
	monitorPingInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow a running daemon over its push channel",
	Long: `Connect to the push channel, authenticate with a session token and print
every status update, audit log line and fault record as it arrives.

The token comes from FAULTLINK_TOKEN or is prompted for. Obtain one with
POST /api/login.

With --tui the stream is shown in a full-screen view. Keys:
  p  ping          s  status
  l  replay logs   i  system info
  q  quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Full-screen view")
	monitorCmd.Flags().BoolVar(&monitorFetchLogs, "logs", false, "Replay the audit log after authenticating")
	monitorCmd.Flags().IntVar(&monitorPingInterval, "ping-interval", 30, "Seconds between latency pings (0 to disable)")
}

// pushClient serialises writes to a push channel connection
type pushClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *pushClient) send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := session.Inbound{Cmd: cmd, Timestamp: time.Now().UnixMilli()}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *pushClient) auth(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := session.Inbound{Cmd: session.CmdAuth, Token: token, UserAgent: "faultlink-monitor/" + rootCmd.Version}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *pushClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	token, err := GetToken()
	if err != nil {
		return err
	}

	conn, err := dialPush(wsURL, wsNoSSLVerify)
	if err != nil {
		return err
	}
	client := &pushClient{conn: conn}
	defer client.close()

	if monitorTUI {
		return runMonitorTUI(client, token)
	}
	return runMonitorText(client, token)
}

func runMonitorText(client *pushClient, token string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Faultlink - Push Monitor\n")
	fmt.Printf("Connection: %s\n", wsURL)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	errc := make(chan error, 1)
	go func() {
		errc <- readPush(client.conn, func(m pushMessage) {
			if m.Type == session.TypeAuthRequired {
				if err := client.auth(token); err != nil {
					fmt.Fprintf(os.Stderr, "auth: %v\n", err)
					client.conn.Close()
					return
				}
			}
			if m.Type == session.TypeAuthSuccess && monitorFetchLogs {
				client.send(session.CmdGetLogs)
			}
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), m.Text)
		})
	}()

	var pingC <-chan time.Time
	if monitorPingInterval > 0 {
		ticker := time.NewTicker(time.Duration(monitorPingInterval) * time.Second)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\nDisconnecting...")
			return nil
		case err := <-errc:
			return err
		case <-pingC:
			if err := client.send(session.CmdPing); err != nil {
				return err
			}
		}
	}
}

// pushMessage is one decoded server message
type pushMessage struct {
	Type string
	Text string
	Raw  json.RawMessage
}

// readPush delivers messages until the connection ends. A normal close returns nil.
func readPush(conn *websocket.Conn, fn func(pushMessage)) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("push channel closed: %w", err)
		}
		m, err := decodePush(data)
		if err != nil {
			fn(pushMessage{Type: "invalid", Text: fmt.Sprintf("undecodable message: %v", err), Raw: data})
			continue
		}
		fn(m)
	}
}

// decodePush renders a server message as a single line
func decodePush(data []byte) (pushMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return pushMessage{}, err
	}

	m := pushMessage{Type: envelope.Type, Raw: data}
	var err error
	switch envelope.Type {
	case session.TypeAuthRequired:
		var v session.AuthRequired
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("AUTH REQUIRED  client %d, server time %s", v.ClientID, v.ServerTime)
		}
	case session.TypeAuthSuccess:
		var v session.AuthSuccess
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("AUTHENTICATED  client %d, session timeout %ds", v.ClientID, v.SessionTimeout)
		}
	case session.TypeAuthFailed:
		var v session.AuthFailed
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("AUTH FAILED    %s (%s)", v.Message, v.Reason)
		}
	case session.TypePong:
		var v session.Pong
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("PONG           latency %d ms", v.Latency)
		}
	case session.TypeStatus:
		var v session.Status
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("STATUS         %s (%s) %s up %s, uart %s %.1f%%, %d clients, %d logs",
				v.DeviceName, v.TMName, v.DeviceIP, v.Uptime, healthWord(v.UARTHealthy),
				v.UARTSuccessRate, v.WSClients, v.TotalLogs)
		}
	case session.TypeStatusUpdate:
		var v session.StatusUpdate
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("STATUS UPDATE  %s up %s, uart %s, time %s, %d clients",
				v.DateTime, v.Uptime, healthWord(v.UARTHealthy), syncWord(v.TimeSynced), v.WSClients)
		}
	case session.TypeLog:
		var v session.Log
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("LOG %-10s %s [%s] %s", v.Level, v.Timestamp, v.Source, v.Message)
		}
	case session.TypeLogsComplete:
		var v session.LogsComplete
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("LOGS COMPLETE  %d replayed", v.TotalSent)
		}
	case session.TypeSystemInfo:
		var v session.SystemInfo
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("SYSTEM INFO    %s (%s) v%s, %s @ %d MHz, up %s",
				v.DeviceName, v.TMName, v.Version, v.ChipModel, v.CPUFreq, v.Uptime)
		}
	case session.TypeFault:
		var v session.Fault
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = fmt.Sprintf("FAULT          %s (%d bytes) %s", v.Timestamp, v.FullLength, v.Data)
		}
	case session.TypeError:
		var v session.Error
		if err = json.Unmarshal(data, &v); err == nil {
			m.Text = "ERROR          " + v.Message
			if v.Error != "" {
				m.Text += ": " + v.Error
			}
		}
	default:
		m.Text = fmt.Sprintf("%-14s %s", envelope.Type, string(data))
	}
	return m, err
}

func healthWord(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

func syncWord(ok bool) string {
	if ok {
		return "synced"
	}
	return "not synced"
}

// pushMsg forwards a push message into the TUI
type pushMsg pushMessage

// pushClosedMsg reports the end of the read loop
type pushClosedMsg struct{ err error }

func runMonitorTUI(client *pushClient, token string) error {
	m := newMonitorModel(client, wsURL)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		err := readPush(client.conn, func(msg pushMessage) {
			if msg.Type == session.TypeAuthRequired {
				client.auth(token)
			}
			if msg.Type == session.TypeAuthSuccess && monitorFetchLogs {
				client.send(session.CmdGetLogs)
			}
			p.Send(pushMsg(msg))
		})
		p.Send(pushClosedMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(monitorModel); ok && fm.closeErr != nil {
		return fm.closeErr
	}
	return nil
}
