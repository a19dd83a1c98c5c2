// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/frame"
)

// Fault record origins
const (
	OriginFirst = "first"
	OriginNext  = "next"
	OriginEvent = "event"
)

// RunnerConfig holds the background schedule for the link
type RunnerConfig struct {
	HealthInterval    time.Duration
	TimeSyncInterval  time.Duration
	FaultPollInterval time.Duration
	ListenWindow      time.Duration
	MaxFaultsPerPoll  int
}

// DefaultRunnerConfig returns the schedule used by the peer firmware
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		HealthInterval:    30 * time.Second,
		TimeSyncInterval:  5 * time.Minute,
		FaultPollInterval: time.Minute,
		ListenWindow:      200 * time.Millisecond,
		MaxFaultsPerPoll:  16,
	}
}

// Hooks connect the runner to the rest of the daemon. Nil hooks are skipped.
type Hooks struct {
	OnFault  func(record, origin string)
	OnLog    func(message string)
	OnTime   func(t time.Time)
	OnHealth func(healthy bool)
}

// Runner owns the link in the background: health checks, time sync, fault
// polling and unsolicited event delivery.
type Runner struct {
	client  *Client
	monitor *Monitor
	cfg     RunnerConfig
	hooks   Hooks

	primed bool
}

// NewRunner creates a runner and registers it as the client's event handler
func NewRunner(client *Client, monitor *Monitor, cfg RunnerConfig, hooks Hooks) *Runner {
	if cfg.ListenWindow <= 0 {
		cfg.ListenWindow = DefaultRunnerConfig().ListenWindow
	}
	r := &Runner{
		client:  client,
		monitor: monitor,
		cfg:     cfg,
		hooks:   hooks,
	}
	client.OnEvent(r.handleEvent)
	return r
}

func (r *Runner) log() *log.Entry {
	return log.WithField("source", "UART")
}

func (r *Runner) handleEvent(f *frame.Frame) {
	switch f.Command() {
	case frame.CmdEventFault:
		r.log().WithField("bytes", f.Length()).Info("Fault event received")
		if r.hooks.OnFault != nil {
			r.hooks.OnFault(f.Text(), OriginEvent)
		}
	case frame.CmdEventLog:
		if r.hooks.OnLog != nil {
			r.hooks.OnLog(f.Text())
		}
	}
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Run blocks until ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	healthC, stopHealth := newTicker(r.cfg.HealthInterval)
	defer stopHealth()
	syncC, stopSync := newTicker(r.cfg.TimeSyncInterval)
	defer stopSync()
	faultC, stopFault := newTicker(r.cfg.FaultPollInterval)
	defer stopFault()

	if r.cfg.TimeSyncInterval > 0 {
		r.SyncTime()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-healthC:
			r.CheckHealth()
		case <-syncC:
			r.SyncTime()
		case <-faultC:
			r.PollFaults()
		default:
			if err := r.client.Listen(r.cfg.ListenWindow); err != nil {
				r.log().WithError(err).Debug("Listen failed")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(r.cfg.ListenWindow):
				}
			}
		}
	}
}

// CheckHealth runs one health tick and reports the result
func (r *Runner) CheckHealth() {
	healthy := r.monitor.Tick()
	if r.hooks.OnHealth != nil {
		r.hooks.OnHealth(healthy)
	}
}

// SyncTime queries the peer clock and hands it to OnTime
func (r *Runner) SyncTime() {
	t, err := r.client.QueryTime()
	if err != nil {
		r.log().WithError(err).Warn("Time sync failed")
		return
	}
	if r.hooks.OnTime != nil {
		r.hooks.OnTime(t)
	}
}

// PollFaults drains new fault records. The first poll rewinds the peer's list.
func (r *Runner) PollFaults() {
	count := 0
	if !r.primed {
		record, err := r.client.FirstFault()
		if err != nil {
			if !errors.Is(err, ErrNoRecord) {
				r.log().WithError(err).Warn("First fault request failed")
				return
			}
		} else {
			r.deliver(record, OriginFirst)
			count++
		}
		r.primed = true
	}

	for count < r.cfg.MaxFaultsPerPoll {
		record, more, err := r.client.NextFault()
		if err != nil {
			r.log().WithError(err).Warn("Next fault request failed")
			return
		}
		if !more {
			return
		}
		r.deliver(record, OriginNext)
		count++
	}
}

func (r *Runner) deliver(record, origin string) {
	if r.hooks.OnFault != nil {
		r.hooks.OnFault(record, origin)
	}
}
