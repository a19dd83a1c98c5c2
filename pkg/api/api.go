// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api is the operator HTTP interface of the daemon. It also mounts
// the push channel at /ws.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/faultstore"
	"github.com/eklim/faultlink/pkg/frame"
	"github.com/eklim/faultlink/pkg/logring"
	"github.com/eklim/faultlink/pkg/session"
)

// Authenticator is the operator login
type Authenticator interface {
	Login(username, password string) (string, error)
	Logout()
	ValidToken(token string) bool
	SessionTimeout() time.Duration
}

// Peer issues commands to the recorder over the serial link
type Peer interface {
	PushNTPServers(server1, server2 string) error
	SetBaudRate(baud int) error
	ClearFaults() error
	ResetPeer() error
	LastResponse() string
}

// LinkHealth reports the health monitor state
type LinkHealth interface {
	Healthy() bool
	SuccessRate() float64
	Failures() int
	Reinits() uint64
}

// Stats are the transport counters
type Stats interface {
	Snapshot() frame.Snapshot
	Reset()
}

// Sessions is the push-channel session table
type Sessions interface {
	Clients() session.ClientsStatus
	DisconnectAll() int
}

// Faults is the fault record history
type Faults interface {
	Recent(limit int) ([]faultstore.Record, error)
}

// Logs is the audit log
type Logs interface {
	Recent(k int) []logring.Entry
	Total() uint64
}

// Deps are the daemon parts the API reads and drives
type Deps struct {
	Auth     Authenticator
	Peer     Peer
	Link     LinkHealth
	Stats    Stats
	Sessions Sessions
	Faults   Faults
	Logs     Logs
}

// Server routes operator requests
type Server struct {
	deps   Deps
	router *mux.Router
}

// New creates the router. ws, when set, is mounted at /ws.
func New(deps Deps, ws http.Handler) *Server {
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}

	if ws != nil {
		s.router.Handle("/ws", ws)
	}

	r := s.router.PathPrefix("/api").Subrouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/link", s.handleLink).Methods(http.MethodGet)

	r.Handle("/logout", s.private(s.handleLogout)).Methods(http.MethodPost)
	r.Handle("/link/reset-stats", s.private(s.handleResetStats)).Methods(http.MethodPost)
	r.Handle("/clients", s.private(s.handleClients)).Methods(http.MethodGet)
	r.Handle("/clients/disconnect", s.private(s.handleDisconnect)).Methods(http.MethodPost)
	r.Handle("/peer/ntp", s.private(s.handleNTP)).Methods(http.MethodPost)
	r.Handle("/peer/baudrate", s.private(s.handleBaudRate)).Methods(http.MethodPost)
	r.Handle("/peer/clear-faults", s.private(s.handleClearFaults)).Methods(http.MethodPost)
	r.Handle("/peer/reset", s.private(s.handleReset)).Methods(http.MethodPost)
	r.Handle("/faults", s.private(s.handleFaults)).Methods(http.MethodGet)
	r.Handle("/logs", s.private(s.handleLogs)).Methods(http.MethodGet)

	return s
}

// ServeHTTP is the http.Handler for the whole daemon
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) log() *log.Entry {
	return log.WithField("source", "API")
}

// private requires the operator's bearer token
func (s *Server) private(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || !s.deps.Auth.ValidToken(token) {
			s.log().WithFields(log.Fields{"path": r.URL.Path, "remote": r.RemoteAddr}).Debug("Unauthorized request")
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h(w, r)
	})
}
