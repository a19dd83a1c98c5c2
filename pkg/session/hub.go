// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session implements the push-channel side of the daemon: the slot
// table, the per-client protocol and the rate-limited broadcasts.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/device"
	"github.com/eklim/faultlink/pkg/logring"
)

// LoginState is the operator login session
type LoginState interface {
	LoggedIn() bool
	SessionTimeout() time.Duration
}

// DeviceSource supplies identity and clock for status replies
type DeviceSource interface {
	Info() device.Info
	UptimeString() string
	FreeMemory() uint64
	DateTime() string
	Stamp() string
	TimeSynced() bool
}

// LinkStatus reports serial link health
type LinkStatus interface {
	Healthy() bool
	SuccessRate() float64
}

// LogSource is the audit log read for replays
type LogSource interface {
	Recent(k int) []logring.Entry
	Total() uint64
}

// Deps are the collaborators the hub reads from
type Deps struct {
	Login  LoginState
	Device DeviceSource
	Link   LinkStatus
	Logs   LogSource
}

// Hub owns the session table and speaks the push-channel protocol
type Hub struct {
	cfg   Config
	table *Table
	deps  Deps

	now   func() time.Time
	start time.Time

	bmu        sync.Mutex
	lastStatus time.Time
	logWindow  time.Time
	logSent    int
}

// NewHub creates a hub. Every field of deps must be set.
func NewHub(cfg Config, deps Deps) *Hub {
	return &Hub{
		cfg:   cfg,
		table: NewTable(cfg.MaxClients),
		deps:  deps,
		now:   time.Now,
		start: time.Now(),
	}
}

func (h *Hub) log() *log.Entry {
	return log.WithField("source", "WS")
}

// Table returns the hub's slot table
func (h *Hub) Table() *Table {
	return h.table
}

// Config returns the hub limits
func (h *Hub) Config() Config {
	return h.cfg
}

func (h *Hub) millis() int64 {
	return h.now().Sub(h.start).Milliseconds()
}

func (h *Hub) send(id int, conn Conn, v interface{}) {
	if err := conn.Send(v); err != nil {
		h.log().WithError(err).WithField("slot", id).Debug("Send failed")
	}
}

// Connect claims a slot for conn and sends the authentication notice
func (h *Hub) Connect(conn Conn) (int, error) {
	id, err := h.table.Claim(conn, h.now())
	if err != nil {
		h.log().WithField("peer", conn.RemoteAddr()).Warn("Push client rejected, no free slot")
		return -1, err
	}

	h.log().WithFields(log.Fields{"slot": id, "peer": conn.RemoteAddr()}).Info("Push client connected")
	h.send(id, conn, AuthRequired{
		Type:       TypeAuthRequired,
		Message:    "Authentication required for WebSocket access",
		Timestamp:  h.millis(),
		ServerTime: h.deps.Device.DateTime(),
		ClientID:   id,
	})
	return id, nil
}

// Disconnected releases the slot after its connection has gone away
func (h *Hub) Disconnected(id int, conn Conn) {
	if h.table.Release(id, conn) {
		h.log().WithField("slot", id).Info("Push client disconnected")
	}
}

// Touch refreshes a slot's activity, used for transport-level pongs
func (h *Hub) Touch(id int, conn Conn) {
	h.table.Touch(id, conn, h.now())
}

// Disconnect forcibly closes the slot's connection
func (h *Hub) Disconnect(id int) error {
	conn, err := h.table.Evict(id)
	if err != nil {
		return err
	}
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// disconnectIfHeld closes conn only if it still occupies the slot
func (h *Hub) disconnectIfHeld(id int, conn Conn) {
	if h.table.Release(id, conn) {
		_ = conn.Close()
	}
}

// DisconnectAll closes every connection
func (h *Hub) DisconnectAll() int {
	h.log().Warn("Disconnecting all push clients")
	targets, _ := h.table.evictIf(func(*slot) bool { return true })
	for _, t := range targets {
		_ = t.conn.Close()
	}
	h.log().WithField("count", len(targets)).Info("All push clients disconnected")
	return len(targets)
}

// HandleMessage processes one inbound text message from a slot
func (h *Hub) HandleMessage(id int, data []byte) error {
	conn, authenticated, err := h.table.Conn(id)
	if err != nil {
		return err
	}

	if len(data) > h.cfg.MaxMessageSize {
		h.log().WithFields(log.Fields{"slot": id, "bytes": len(data)}).Error("Push message too large")
		h.send(id, conn, h.errorMsg("Message too large"))
		return ErrMessageTooLarge
	}

	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log().WithError(err).WithField("slot", id).Error("Push message JSON parse error")
		e := h.errorMsg("Invalid JSON format")
		e.Error = err.Error()
		h.send(id, conn, e)
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if len(msg.Cmd) > h.cfg.MaxCommandLength {
		h.log().WithFields(log.Fields{"slot": id, "length": len(msg.Cmd)}).Error("Push command too long")
		return fmt.Errorf("%w: command length %d", ErrMalformedMessage, len(msg.Cmd))
	}

	if msg.Cmd == CmdAuth {
		h.authenticate(id, conn, msg)
		return nil
	}

	if !authenticated {
		h.send(id, conn, h.errorMsg("Authentication required"))
		return ErrUnauthenticated
	}

	h.table.Touch(id, conn, h.now())

	switch msg.Cmd {
	case CmdPing:
		h.send(id, conn, Pong{
			Type:      TypePong,
			Timestamp: h.millis(),
			ClientID:  id,
			Latency:   h.latency(msg.Timestamp),
		})
	case CmdGetStatus:
		h.send(id, conn, h.status())
	case CmdGetLogs:
		h.replayLogs(id, conn)
	case CmdGetInfo:
		h.send(id, conn, h.systemInfo())
	default:
		e := h.errorMsg("Unknown command: " + msg.Cmd)
		e.AvailableCommands = AvailableCommands
		h.send(id, conn, e)
		return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Cmd)
	}
	return nil
}

// TokenAccepted is the push-channel token check: any session-prefixed or
// longer-than-ten-character token while an operator is logged in.
func TokenAccepted(loggedIn bool, token string) bool {
	return loggedIn && (strings.HasPrefix(token, "session_") || len(token) > 10)
}

func (h *Hub) authenticate(id int, conn Conn, msg Inbound) {
	loggedIn := h.deps.Login.LoggedIn()

	if !TokenAccepted(loggedIn, msg.Token) {
		reason := ReasonNoActiveSession
		if loggedIn {
			reason = ReasonInvalidToken
		}
		h.send(id, conn, AuthFailed{
			Type:      TypeAuthFailed,
			Message:   "Authentication failed - invalid session",
			Reason:    reason,
			Timestamp: h.millis(),
		})
		h.log().WithFields(log.Fields{"slot": id, "reason": reason}).Warn("Push client authentication failed")

		if h.cfg.AuthFailDelay > 0 {
			time.AfterFunc(h.cfg.AuthFailDelay, func() { h.disconnectIfHeld(id, conn) })
		} else {
			h.disconnectIfHeld(id, conn)
		}
		return
	}

	label := msg.UserAgent
	if label == "" {
		label = "Unknown"
	}
	if len(label) > h.cfg.MaxLabelLength {
		label = label[:h.cfg.MaxLabelLength]
	}
	if err := h.table.Authenticate(id, msg.Token, label, h.now()); err != nil {
		h.log().WithError(err).WithField("slot", id).Debug("Authenticate failed")
		return
	}

	h.send(id, conn, AuthSuccess{
		Type:           TypeAuthSuccess,
		Message:        "WebSocket authentication successful",
		ClientID:       id,
		ServerTime:     h.deps.Device.DateTime(),
		SessionTimeout: int64(h.deps.Login.SessionTimeout() / time.Second),
		Timestamp:      h.millis(),
	})
	h.log().WithFields(log.Fields{"slot": id, "success": true}).Info("Push client authenticated")

	h.send(id, conn, h.status())
	h.replayLogs(id, conn)
}

// latency estimates round trip from a client timestamp. Epoch milliseconds
// are compared with wall time, anything else with daemon uptime.
func (h *Hub) latency(ts int64) int64 {
	if ts <= 0 {
		return 0
	}
	var l int64
	if ts > 1_000_000_000_000 {
		l = h.now().UnixMilli() - ts
	} else {
		l = h.millis() - ts
	}
	if l < 0 {
		return 0
	}
	return l
}

func (h *Hub) errorMsg(message string) Error {
	return Error{Type: TypeError, Message: message, Timestamp: h.millis()}
}

func (h *Hub) status() Status {
	info := h.deps.Device.Info()
	_, authenticated := h.table.Counts()
	return Status{
		Type:            TypeStatus,
		DateTime:        h.deps.Device.DateTime(),
		Uptime:          h.deps.Device.UptimeString(),
		DeviceName:      info.Name,
		TMName:          info.Station,
		DeviceIP:        info.IP,
		BaudRate:        info.BaudRate,
		EthernetStatus:  info.EthernetUp,
		EthernetSpeed:   info.EthernetSpeed,
		TimeSynced:      h.deps.Device.TimeSynced(),
		FreeHeap:        h.deps.Device.FreeMemory(),
		WSClients:       authenticated,
		TotalLogs:       h.deps.Logs.Total(),
		SessionActive:   h.deps.Login.LoggedIn(),
		UARTHealthy:     h.deps.Link.Healthy(),
		UARTSuccessRate: h.deps.Link.SuccessRate(),
		Timestamp:       h.millis(),
	}
}

func (h *Hub) systemInfo() SystemInfo {
	info := h.deps.Device.Info()
	return SystemInfo{
		Type:       TypeSystemInfo,
		DeviceName: info.Name,
		TMName:     info.Station,
		Version:    h.cfg.Version,
		Uptime:     h.deps.Device.UptimeString(),
		FreeHeap:   h.deps.Device.FreeMemory(),
		ChipModel:  info.ChipModel,
		CPUFreq:    info.CPUFreqMHz,
		Timestamp:  h.millis(),
	}
}

// replayLogs sends the most recent entries newest first, then logs_complete
func (h *Hub) replayLogs(id int, conn Conn) {
	entries := h.deps.Logs.Recent(h.cfg.ReplayCount)
	for i, e := range entries {
		h.send(id, conn, Log{
			Type:      TypeLog,
			Timestamp: e.Timestamp,
			Message:   e.Message,
			Level:     string(e.Level),
			Source:    e.Source,
			Millis:    e.Millis,
			Sequence:  len(entries) - i,
		})
	}
	h.send(id, conn, LogsComplete{
		Type:      TypeLogsComplete,
		TotalSent: len(entries),
		Timestamp: h.millis(),
	})
}

// Clients returns the table summary for the admin API
func (h *Hub) Clients() ClientsStatus {
	now := h.now()
	slots := h.table.Snapshot()
	clients := make([]ClientInfo, 0, len(slots))
	authenticated := 0
	for _, s := range slots {
		if s.Authenticated {
			authenticated++
		}
		sessionID := s.SessionToken
		if len(sessionID) > 10 {
			sessionID = sessionID[:10]
		}
		label := s.ClientLabel
		if len(label) > 50 {
			label = label[:50]
		}
		clients = append(clients, ClientInfo{
			ID:            s.ID,
			IP:            s.PeerAddress,
			Authenticated: s.Authenticated,
			SessionID:     sessionID + "...",
			UserAgent:     label,
			LastPingAgo:   int64(now.Sub(s.LastActivity) / time.Second),
			ConnectedFor:  int64(now.Sub(s.ConnectedAt) / time.Second),
		})
	}
	return ClientsStatus{
		ServerRunning:        true,
		MaxClients:           h.table.Capacity(),
		AuthenticatedClients: authenticated,
		Clients:              clients,
		Timestamp:            h.millis(),
		Uptime:               h.millis() / 1000,
	}
}
