// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/logring"
)

// fanOut sends v to every authenticated slot and returns how many were tried
func (h *Hub) fanOut(v interface{}) int {
	targets := h.table.authenticated()
	for _, t := range targets {
		h.send(t.id, t.conn, v)
	}
	return len(targets)
}

// BroadcastStatus pushes a status_update to every authenticated slot, at
// most once per status interval. It reports whether a broadcast went out.
func (h *Hub) BroadcastStatus() bool {
	now := h.now()

	h.bmu.Lock()
	if !h.lastStatus.IsZero() && now.Sub(h.lastStatus) < h.cfg.StatusInterval {
		h.bmu.Unlock()
		return false
	}
	h.lastStatus = now
	h.bmu.Unlock()

	_, authenticated := h.table.Counts()
	h.fanOut(StatusUpdate{
		Type:           TypeStatusUpdate,
		DateTime:       h.deps.Device.DateTime(),
		Uptime:         h.deps.Device.UptimeString(),
		EthernetStatus: h.deps.Device.Info().EthernetUp,
		TimeSynced:     h.deps.Device.TimeSynced(),
		FreeHeap:       h.deps.Device.FreeMemory(),
		WSClients:      authenticated,
		SessionActive:  h.deps.Login.LoggedIn(),
		UARTHealthy:    h.deps.Link.Healthy(),
		Timestamp:      h.millis(),
	})
	return true
}

// BroadcastLog pushes one audit line to every authenticated slot. Within
// one log window only LogsPerWindow broadcasts go out; the rest are dropped.
// A broadcast that reaches no slot does not use up the window.
func (h *Hub) BroadcastLog(e logring.Entry) bool {
	targets := h.table.authenticated()
	if len(targets) == 0 {
		return false
	}

	now := h.now()
	h.bmu.Lock()
	if h.logWindow.IsZero() || now.Sub(h.logWindow) > h.cfg.LogWindow {
		h.logWindow = now
		h.logSent = 0
	}
	if h.logSent >= h.cfg.LogsPerWindow {
		h.bmu.Unlock()
		return false
	}
	h.logSent++
	h.bmu.Unlock()

	msg := Log{
		Type:      TypeLog,
		Timestamp: e.Timestamp,
		Message:   e.Message,
		Level:     string(e.Level),
		Source:    e.Source,
		Millis:    h.millis(),
		Broadcast: true,
	}
	for _, t := range targets {
		h.send(t.id, t.conn, msg)
	}
	return true
}

// BroadcastFault pushes a fault record to every authenticated slot without
// rate limiting. Long records are cut and marked with "...".
func (h *Hub) BroadcastFault(data string) int {
	if data == "" {
		return 0
	}

	shown := data
	if max := h.cfg.FaultMaxLength; max > 3 && len(data) > max {
		shown = data[:max-3] + "..."
	}

	sent := h.fanOut(Fault{
		Type:       TypeFault,
		Timestamp:  h.deps.Device.Stamp(),
		Data:       shown,
		FullLength: len(data),
		Millis:     h.millis(),
	})
	if sent > 0 {
		h.log().WithFields(log.Fields{"clients": sent, "bytes": len(data)}).Debug("Fault broadcast")
	}
	return sent
}
