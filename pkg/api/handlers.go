// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/auth"
	"github.com/eklim/faultlink/pkg/faultstore"
	"github.com/eklim/faultlink/pkg/frame"
	"github.com/eklim/faultlink/pkg/link"
	"github.com/eklim/faultlink/pkg/logring"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the new session token
type LoginResponse struct {
	Token          string `json:"token"`
	SessionTimeout int64  `json:"sessionTimeout"`
}

// LinkResponse is the serial link state
type LinkResponse struct {
	Healthy      bool           `json:"healthy"`
	SuccessRate  float64        `json:"successRate"`
	Failures     int            `json:"consecutiveFailures"`
	Reinits      uint64         `json:"reinits"`
	Stats        frame.Snapshot `json:"stats"`
	LastResponse string         `json:"lastResponse"`
}

// NTPRequest is the body of POST /api/peer/ntp
type NTPRequest struct {
	Server1 string `json:"server1"`
	Server2 string `json:"server2"`
}

// BaudRateRequest is the body of POST /api/peer/baudrate
type BaudRateRequest struct {
	Baud int `json:"baud"`
}

// LogsResponse is the audit log tail
type LogsResponse struct {
	Total   uint64          `json:"total"`
	Entries []logring.Entry `json:"entries"`
}

type okResponse struct {
	OK           bool   `json:"ok"`
	Disconnected *int   `json:"disconnected,omitempty"`
	Message      string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write API response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// peerStatus maps link errors to HTTP status codes
func peerStatus(err error) int {
	switch {
	case errors.Is(err, link.ErrUnsupportedBaud):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrBusy), errors.Is(err, link.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, link.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, link.ErrRejected), errors.Is(err, link.ErrNacked), errors.Is(err, link.ErrMalformedReply):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) peerResult(w http.ResponseWriter, op string, err error) {
	if err != nil {
		s.log().WithError(err).WithField("op", op).Warn("Peer command failed")
		writeError(w, peerStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Message: s.deps.Peer.LastResponse()})
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	return dec.Decode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, err := s.deps.Auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrBadCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:          token,
		SessionTimeout: int64(s.deps.Auth.SessionTimeout() / time.Second),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.deps.Auth.Logout()
	n := s.deps.Sessions.DisconnectAll()
	writeJSON(w, http.StatusOK, okResponse{OK: true, Disconnected: &n})
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LinkResponse{
		Healthy:      s.deps.Link.Healthy(),
		SuccessRate:  s.deps.Link.SuccessRate(),
		Failures:     s.deps.Link.Failures(),
		Reinits:      s.deps.Link.Reinits(),
		Stats:        s.deps.Stats.Snapshot(),
		LastResponse: s.deps.Peer.LastResponse(),
	})
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.Reset()
	s.log().Info("Link statistics reset")
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Sessions.Clients())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Sessions.DisconnectAll()
	writeJSON(w, http.StatusOK, okResponse{OK: true, Disconnected: &n})
}

func (s *Server) handleNTP(w http.ResponseWriter, r *http.Request) {
	var req NTPRequest
	if err := decode(w, r, &req); err != nil || req.Server1 == "" {
		writeError(w, http.StatusBadRequest, "server1 is required")
		return
	}
	s.peerResult(w, "ntp", s.deps.Peer.PushNTPServers(req.Server1, req.Server2))
}

func (s *Server) handleBaudRate(w http.ResponseWriter, r *http.Request) {
	var req BaudRateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.peerResult(w, "baudrate", s.deps.Peer.SetBaudRate(req.Baud))
}

func (s *Server) handleClearFaults(w http.ResponseWriter, r *http.Request) {
	s.peerResult(w, "clear-faults", s.deps.Peer.ClearFaults())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.peerResult(w, "reset", s.deps.Peer.ResetPeer())
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Faults.Recent(limitParam(r))
	if err != nil {
		s.log().WithError(err).Error("Reading fault store failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []faultstore.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LogsResponse{
		Total:   s.deps.Logs.Total(),
		Entries: s.deps.Logs.Recent(limitParam(r)),
	})
}
