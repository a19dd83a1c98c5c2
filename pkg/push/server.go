// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package push serves the session hub over WebSocket.
package push

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/session"
)

// Config holds per-connection transport limits
type Config struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMissedPongs int32
	ReadLimit      int64
}

// MinReadLimit is the smallest hard cap on an inbound message. Messages
// between the session size limit and this cap get a typed error reply; only
// larger ones close the socket.
const MinReadLimit = 64 * 1024

// DefaultConfig pings every 30s and gives up after three missed pongs
func DefaultConfig(maxMessageSize int) Config {
	limit := int64(maxMessageSize) * 16
	if limit < MinReadLimit {
		limit = MinReadLimit
	}
	return Config{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMissedPongs: 3,
		ReadLimit:      limit,
	}
}

// Server upgrades requests and maps each connection onto a hub slot
type Server struct {
	hub      *session.Hub
	cfg      Config
	upgrader websocket.Upgrader
}

// NewServer creates a WebSocket handler for hub
func NewServer(hub *session.Hub, cfg Config) *Server {
	return &Server{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) log() *log.Entry {
	return log.WithField("source", "WS")
}

// ServeHTTP handles one WebSocket client until it disconnects
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	c := newConn(ws, s.cfg.WriteTimeout)
	id, err := s.hub.Connect(c)
	if err != nil {
		c.closeWith(websocket.ClosePolicyViolation, "server full")
		return
	}

	ws.SetPongHandler(func(string) error {
		atomic.StoreInt32(&c.missed, 0)
		s.hub.Touch(id, c)
		return nil
	})

	done := make(chan struct{})
	go s.heartbeat(id, c, done)

	s.readLoop(id, c)
	close(done)
	s.hub.Disconnected(id, c)
	_ = c.Close()
}

func (s *Server) readLoop(id int, c *conn) {
	logger := s.log().WithFields(log.Fields{"slot": id, "peer": c.RemoteAddr()})
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Debug("WebSocket read ended")
			}
			return
		}

		if messageType != websocket.TextMessage {
			logger.WithField("bytes", len(data)).Debug("Binary frame ignored")
			continue
		}

		if err := s.hub.HandleMessage(id, data); err != nil {
			logger.WithError(err).Debug("Push message rejected")
		}
	}
}

// heartbeat pings the client and closes it once too many pings went
// unanswered
func (s *Server) heartbeat(id int, c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.missed) >= s.cfg.MaxMissedPongs {
				s.log().WithFields(log.Fields{"slot": id, "peer": c.RemoteAddr()}).Warn("Push client missed heartbeats")
				s.hub.Disconnected(id, c)
				_ = c.Close()
				return
			}
			atomic.AddInt32(&c.missed, 1)
			if err := c.ping(); err != nil {
				s.log().WithError(err).WithField("slot", id).Debug("Ping failed")
			}
		}
	}
}
