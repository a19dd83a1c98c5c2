// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Default health thresholds
const (
	DefaultUnhealthyAfter = 3
	DefaultReinitAfter    = 5

	lowSuccessRate  = 50.0
	highSuccessRate = 80.0
)

// Pinger checks peer liveness
type Pinger interface {
	Ping() error
}

// Reinitializer restarts the transport
type Reinitializer interface {
	Reinit() error
}

// RateSource reports the transport success rate in percent
type RateSource interface {
	SuccessRate() float64
}

// Monitor classifies the link as healthy or unhealthy from periodic pings
// and restarts the transport after repeated failures.
type Monitor struct {
	mu sync.Mutex

	pinger    Pinger
	transport Reinitializer
	rates     RateSource

	unhealthyAfter int
	reinitAfter    int

	healthy  bool
	failures int
	reinits  uint64
}

// NewMonitor creates a monitor. The link starts out healthy.
func NewMonitor(p Pinger, t Reinitializer, rates RateSource) *Monitor {
	return &Monitor{
		pinger:         p,
		transport:      t,
		rates:          rates,
		unhealthyAfter: DefaultUnhealthyAfter,
		reinitAfter:    DefaultReinitAfter,
		healthy:        true,
	}
}

// SetThresholds overrides the failure counts for unhealthy and reinit.
// Non-positive values keep the current setting.
func (m *Monitor) SetThresholds(unhealthyAfter, reinitAfter int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if unhealthyAfter > 0 {
		m.unhealthyAfter = unhealthyAfter
	}
	if reinitAfter > 0 {
		m.reinitAfter = reinitAfter
	}
}

func (m *Monitor) log() *log.Entry {
	return log.WithField("source", "UART")
}

// Healthy reports the current classification
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// SuccessRate returns the transport success rate, 100 without a source
func (m *Monitor) SuccessRate() float64 {
	if m.rates == nil {
		return 100
	}
	return m.rates.SuccessRate()
}

// Failures returns the consecutive ping failure count
func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Reinits returns how many times the monitor restarted the transport
func (m *Monitor) Reinits() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reinits
}

// Tick runs one health check. The success rate band is applied first and
// the ping outcome overrides it. A low rate cannot demote the link before
// unhealthyAfter consecutive failures.
func (m *Monitor) Tick() bool {
	rate := -1.0
	if m.rates != nil {
		rate = m.rates.SuccessRate()
	}
	err := m.pinger.Ping()

	m.mu.Lock()
	wasHealthy := m.healthy
	failures := m.failures
	if err != nil {
		failures++
	}
	if rate >= 0 {
		if rate < lowSuccessRate && failures >= m.unhealthyAfter {
			m.healthy = false
		} else if rate > highSuccessRate {
			m.healthy = true
		}
	}

	if err == nil {
		m.failures = 0
		m.healthy = true
		m.mu.Unlock()
		if !wasHealthy {
			m.log().Info("UART link recovered")
		}
		return true
	}

	m.failures = failures
	if m.failures >= m.unhealthyAfter {
		m.healthy = false
	}
	healthy := m.healthy
	reinit := m.failures >= m.reinitAfter
	if reinit {
		m.reinits++
		m.failures = 0
	}
	m.mu.Unlock()

	m.log().WithError(err).WithField("failures", failures).Warn("UART ping failed")
	if wasHealthy && !healthy {
		m.log().Error("UART link lost")
	}

	// Reinit waits for any running transaction; m.mu is not held here.
	if reinit {
		if err := m.transport.Reinit(); err != nil {
			m.log().WithError(err).Error("UART reinit failed")
		}
	}
	return healthy
}
