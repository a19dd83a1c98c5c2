// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// IdleSweep disconnects authenticated slots idle longer than IdleTimeout
func (h *Hub) IdleSweep(now time.Time) int {
	targets, infos := h.table.evictIf(func(s *slot) bool {
		return s.authenticated && now.Sub(s.lastActivity) > h.cfg.IdleTimeout
	})
	for i, t := range targets {
		h.log().WithFields(log.Fields{
			"slot": t.id,
			"peer": infos[i].PeerAddress,
			"idle": now.Sub(infos[i].LastActivity).Round(time.Second).String(),
		}).Warn("Push client timed out")
		_ = t.conn.Close()
	}
	if len(targets) > 0 {
		h.log().WithField("count", len(targets)).Info("Idle push clients removed")
	}
	return len(targets)
}

// StaleSweep disconnects any occupied slot idle longer than StaleTimeout,
// including connections that never authenticated
func (h *Hub) StaleSweep(now time.Time) int {
	targets, _ := h.table.evictIf(func(s *slot) bool {
		return now.Sub(s.lastActivity) > h.cfg.StaleTimeout
	})
	for _, t := range targets {
		_ = t.conn.Close()
	}
	if len(targets) > 0 {
		h.log().WithField("count", len(targets)).Info("Stale push clients removed")
	}
	return len(targets)
}

// Run performs the periodic sweeps until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	idle := time.NewTicker(h.cfg.IdleSweepInterval)
	defer idle.Stop()
	stale := time.NewTicker(h.cfg.StaleSweepInterval)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			h.IdleSweep(h.now())
		case <-stale.C:
			h.StaleSweep(h.now())
		}
	}
}
