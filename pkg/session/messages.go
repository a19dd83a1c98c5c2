// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

// Inbound is a client request on the push channel
type Inbound struct {
	Cmd       string `json:"cmd"`
	Token     string `json:"token,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Outbound message types
const (
	TypeAuthRequired = "auth_required"
	TypeAuthSuccess  = "auth_success"
	TypeAuthFailed   = "auth_failed"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypeStatusUpdate = "status_update"
	TypeLog          = "log"
	TypeLogsComplete = "logs_complete"
	TypeSystemInfo   = "system_info"
	TypeFault        = "fault"
	TypeError        = "error"
)

// Inbound commands
const (
	CmdAuth      = "auth"
	CmdPing      = "ping"
	CmdGetStatus = "get_status"
	CmdGetLogs   = "get_logs"
	CmdGetInfo   = "get_info"
)

// AvailableCommands is listed in unknown-command errors
const AvailableCommands = "ping, get_status, get_logs, get_info"

// auth_failed reasons
const (
	ReasonInvalidToken    = "invalid_token"
	ReasonNoActiveSession = "no_active_session"
)

type AuthRequired struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
	ServerTime string `json:"serverTime"`
	ClientID   int    `json:"clientId"`
}

type AuthSuccess struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	ClientID       int    `json:"clientId"`
	ServerTime     string `json:"serverTime"`
	SessionTimeout int64  `json:"sessionTimeout"`
	Timestamp      int64  `json:"timestamp"`
}

type AuthFailed struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ClientID  int    `json:"clientId"`
	Latency   int64  `json:"latency"`
}

// Status is the full snapshot sent on request and after auth
type Status struct {
	Type            string  `json:"type"`
	DateTime        string  `json:"datetime"`
	Uptime          string  `json:"uptime"`
	DeviceName      string  `json:"deviceName"`
	TMName          string  `json:"tmName"`
	DeviceIP        string  `json:"deviceIP"`
	BaudRate        int     `json:"baudRate"`
	EthernetStatus  bool    `json:"ethernetStatus"`
	EthernetSpeed   int     `json:"ethernetSpeed"`
	TimeSynced      bool    `json:"timeSynced"`
	FreeHeap        uint64  `json:"freeHeap"`
	WSClients       int     `json:"wsClients"`
	TotalLogs       uint64  `json:"totalLogs"`
	SessionActive   bool    `json:"sessionActive"`
	UARTHealthy     bool    `json:"uartHealthy"`
	UARTSuccessRate float64 `json:"uartSuccessRate"`
	Timestamp       int64   `json:"timestamp"`
}

// StatusUpdate is the reduced snapshot pushed periodically
type StatusUpdate struct {
	Type           string `json:"type"`
	DateTime       string `json:"datetime"`
	Uptime         string `json:"uptime"`
	EthernetStatus bool   `json:"ethernetStatus"`
	TimeSynced     bool   `json:"timeSynced"`
	FreeHeap       uint64 `json:"freeHeap"`
	WSClients      int    `json:"wsClients"`
	SessionActive  bool   `json:"sessionActive"`
	UARTHealthy    bool   `json:"uartHealthy"`
	Timestamp      int64  `json:"timestamp"`
}

// Log carries one audit line. Replayed lines have Sequence, live ones Broadcast.
type Log struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Millis    int64  `json:"millis"`
	Sequence  int    `json:"sequence,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
}

type LogsComplete struct {
	Type      string `json:"type"`
	TotalSent int    `json:"totalSent"`
	Timestamp int64  `json:"timestamp"`
}

type SystemInfo struct {
	Type       string `json:"type"`
	DeviceName string `json:"deviceName"`
	TMName     string `json:"tmName"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	FreeHeap   uint64 `json:"freeHeap"`
	ChipModel  string `json:"chipModel"`
	CPUFreq    int    `json:"cpuFreq"`
	Timestamp  int64  `json:"timestamp"`
}

type Fault struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	Data       string `json:"data"`
	FullLength int    `json:"fullLength"`
	Millis     int64  `json:"millis"`
}

type Error struct {
	Type              string `json:"type"`
	Message           string `json:"message"`
	Timestamp         int64  `json:"timestamp"`
	Error             string `json:"error,omitempty"`
	AvailableCommands string `json:"availableCommands,omitempty"`
}

// ClientInfo describes one occupied slot for the admin API
type ClientInfo struct {
	ID            int    `json:"id"`
	IP            string `json:"ip"`
	Authenticated bool   `json:"authenticated"`
	SessionID     string `json:"sessionId"`
	UserAgent     string `json:"userAgent"`
	LastPingAgo   int64  `json:"lastPingAgo"`
	ConnectedFor  int64  `json:"connectedFor"`
}

// ClientsStatus summarises the table for the admin API
type ClientsStatus struct {
	ServerRunning        bool         `json:"serverRunning"`
	MaxClients           int          `json:"maxClients"`
	AuthenticatedClients int          `json:"authenticatedClients"`
	Clients              []ClientInfo `json:"clients"`
	Timestamp            int64        `json:"timestamp"`
	Uptime               int64        `json:"uptime"`
}
