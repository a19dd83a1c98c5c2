// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the daemon's TOML configuration.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/link"
)

// Duration is a time.Duration written as a string such as "30s"
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration in Go syntax
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config describes the TOML configuration
type Config struct {
	Serial   SerialConf
	Push     PushConf
	Health   HealthConf
	TimeSync TimeSyncConf `toml:"timesync"`
	Faults   FaultsConf
	NTP      NTPConf `toml:"ntp"`
	Device   DeviceConf
	Auth     AuthConf
	Logging  LogConf
}

// SerialConf describes the serial link
type SerialConf struct {
	Port string
	Baud int
}

// PushConf describes the push channel
type PushConf struct {
	Listen        string
	MaxClients    int      `toml:"max-clients"`
	MaxMessage    int      `toml:"max-message"`
	IdleTimeout   Duration `toml:"idle-timeout"`
	IdleSweep     Duration `toml:"idle-sweep"`
	StaleTimeout  Duration `toml:"stale-timeout"`
	StaleSweep    Duration `toml:"stale-sweep"`
	AuthFailDelay Duration `toml:"auth-fail-delay"`
	Replay        int
}

// HealthConf describes the link health schedule
type HealthConf struct {
	Interval       Duration
	UnhealthyAfter int `toml:"unhealthy-after"`
	ReinitAfter    int `toml:"reinit-after"`
}

// TimeSyncConf describes the peer time sync schedule
type TimeSyncConf struct {
	Interval Duration
}

// FaultsConf describes fault polling and storage
type FaultsConf struct {
	Store        string
	PollInterval Duration `toml:"poll-interval"`
}

// NTPConf holds the servers pushed to the peer
type NTPConf struct {
	Server1 string
	Server2 string
}

// DeviceConf is the identity shown to push clients
type DeviceConf struct {
	Name      string
	Station   string
	IP        string
	Version   string
	ChipModel string `toml:"chip-model"`
	CPUFreq   int    `toml:"cpu-freq"`
}

// AuthConf is the operator account
type AuthConf struct {
	Username       string
	PasswordHash   string   `toml:"password-hash"`
	SessionTimeout Duration `toml:"session-timeout"`
}

// LogConf describes the logging setup
type LogConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// Default returns the configuration used for unset keys
func Default() Config {
	return Config{
		Serial: SerialConf{Port: "/dev/ttyUSB0", Baud: 115200},
		Push: PushConf{
			Listen:        ":81",
			MaxClients:    5,
			MaxMessage:    1024,
			IdleTimeout:   Duration{120 * time.Second},
			IdleSweep:     Duration{60 * time.Second},
			StaleTimeout:  Duration{300 * time.Second},
			StaleSweep:    Duration{600 * time.Second},
			AuthFailDelay: Duration{2 * time.Second},
			Replay:        15,
		},
		Health:   HealthConf{Interval: Duration{30 * time.Second}, UnhealthyAfter: 3, ReinitAfter: 5},
		TimeSync: TimeSyncConf{Interval: Duration{5 * time.Minute}},
		Faults:   FaultsConf{Store: "faults.db", PollInterval: Duration{time.Minute}},
		NTP:      NTPConf{Server1: "pool.ntp.org", Server2: "time.google.com"},
		Device: DeviceConf{
			Name:    "FaultRecorder",
			Station: "TM",
			Version: "3.0",
		},
		Auth:    AuthConf{Username: "admin", SessionTimeout: Duration{30 * time.Minute}},
		Logging: LogConf{Level: "info", Format: "text"},
	}
}

// Load reads filename over the defaults and validates the result
func Load(filename string) (Config, error) {
	conf := Default()
	if _, err := toml.DecodeFile(filename, &conf); err != nil {
		return conf, fmt.Errorf("config %s: %w", filename, err)
	}
	if err := conf.Validate(); err != nil {
		return conf, err
	}
	return conf, nil
}

// Validate reports every invalid value at once
func (c Config) Validate() error {
	var errs error

	if c.Serial.Port == "" {
		errs = multierror.Append(errs, fmt.Errorf("serial.port is empty"))
	}
	if !link.ValidBaudRate(c.Serial.Baud) {
		errs = multierror.Append(errs, fmt.Errorf("serial.baud %d is not one of %v", c.Serial.Baud, link.BaudRates))
	}
	if _, _, err := net.SplitHostPort(c.Push.Listen); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("push.listen: %w", err))
	}
	if c.Push.MaxClients < 1 {
		errs = multierror.Append(errs, fmt.Errorf("push.max-clients must be at least 1"))
	}
	if c.Push.MaxMessage < 64 {
		errs = multierror.Append(errs, fmt.Errorf("push.max-message must be at least 64"))
	}
	if c.Push.Replay < 0 {
		errs = multierror.Append(errs, fmt.Errorf("push.replay is negative"))
	}

	positive := map[string]Duration{
		"push.idle-timeout":    c.Push.IdleTimeout,
		"push.idle-sweep":      c.Push.IdleSweep,
		"push.stale-timeout":   c.Push.StaleTimeout,
		"push.stale-sweep":     c.Push.StaleSweep,
		"health.interval":      c.Health.Interval,
		"timesync.interval":    c.TimeSync.Interval,
		"faults.poll-interval": c.Faults.PollInterval,
		"auth.session-timeout": c.Auth.SessionTimeout,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key].Duration <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	if c.Health.UnhealthyAfter < 1 || c.Health.ReinitAfter < c.Health.UnhealthyAfter {
		errs = multierror.Append(errs, fmt.Errorf("health thresholds need 1 <= unhealthy-after <= reinit-after"))
	}
	if len(c.Device.Name) > 50 || len(c.Device.Station) > 50 {
		errs = multierror.Append(errs, fmt.Errorf("device.name and device.station are limited to 50 characters"))
	}
	if c.Auth.Username == "" || len(c.Auth.Username) > 30 {
		errs = multierror.Append(errs, fmt.Errorf("auth.username must be 1 to 30 characters"))
	}
	if c.Faults.Store == "" {
		errs = multierror.Append(errs, fmt.Errorf("faults.store is empty"))
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = multierror.Append(errs, fmt.Errorf("logging.format %q is unknown", c.Logging.Format))
	}

	return errs
}
