// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eklim/faultlink/pkg/api"
	"github.com/eklim/faultlink/pkg/auth"
	"github.com/eklim/faultlink/pkg/config"
	"github.com/eklim/faultlink/pkg/device"
	"github.com/eklim/faultlink/pkg/faultstore"
	"github.com/eklim/faultlink/pkg/frame"
	"github.com/eklim/faultlink/pkg/link"
	"github.com/eklim/faultlink/pkg/logring"
	"github.com/eklim/faultlink/pkg/push"
	"github.com/eklim/faultlink/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fault recorder daemon",
	Long: `Run the daemon: serial link to the recorder, fault polling, time sync,
the push channel at /ws and the operator API under /api.

Settings come from the configuration file (--config). --port and --baud
override the [serial] section when given. The file is watched; logging and
device identity changes apply without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the configuration file, falling back to defaults when the
// default file is absent
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		if !cmd.Flags().Changed("config") && errors.Is(err, os.ErrNotExist) {
			log.WithField("config", configPath).Warn("Configuration file not found, using defaults")
			conf = config.Default()
		} else {
			return conf, err
		}
	}

	if cmd.Flags().Changed("port") {
		conf.Serial.Port = portName
	}
	if cmd.Flags().Changed("baud") {
		conf.Serial.Baud = baudRate
	}
	return conf, conf.Validate()
}

func deviceInfo(conf config.Config) device.Info {
	return device.Info{
		Name:       conf.Device.Name,
		Station:    conf.Device.Station,
		IP:         conf.Device.IP,
		Version:    conf.Device.Version,
		ChipModel:  conf.Device.ChipModel,
		CPUFreqMHz: conf.Device.CPUFreq,
		BaudRate:   conf.Serial.Baud,
		EthernetUp: true,
	}
}

func sessionConfig(conf config.Config) session.Config {
	cfg := session.DefaultConfig()
	cfg.MaxClients = conf.Push.MaxClients
	cfg.MaxMessageSize = conf.Push.MaxMessage
	cfg.IdleTimeout = conf.Push.IdleTimeout.Duration
	cfg.IdleSweepInterval = conf.Push.IdleSweep.Duration
	cfg.StaleTimeout = conf.Push.StaleTimeout.Duration
	cfg.StaleSweepInterval = conf.Push.StaleSweep.Duration
	cfg.AuthFailDelay = conf.Push.AuthFailDelay.Duration
	cfg.ReplayCount = conf.Push.Replay
	cfg.Version = conf.Device.Version
	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conf.Logging.ApplyLogging()

	dev := device.New(deviceInfo(conf))
	ring := logring.New(logring.DefaultCapacity, dev)
	hook := logring.NewHook(ring, 64)
	log.AddHook(hook)

	store, err := faultstore.Open(conf.Faults.Store)
	if err != nil {
		return err
	}

	stats := frame.NewStatistics()
	transport := link.NewTransport(link.SerialOpener(conf.Serial.Port, conf.Serial.Baud), stats)
	if err := transport.Open(); err != nil {
		// The health monitor reopens the port
		log.WithError(err).WithField("source", "UART").Error("Serial port not available")
	}
	client := link.NewClient(transport)
	monitor := link.NewMonitor(client, client, stats)
	monitor.SetThresholds(conf.Health.UnhealthyAfter, conf.Health.ReinitAfter)

	authMgr := auth.NewManager(conf.Auth.Username, conf.Auth.PasswordHash, conf.Auth.SessionTimeout.Duration)
	hub := session.NewHub(sessionConfig(conf), session.Deps{
		Login:  authMgr,
		Device: dev,
		Link:   monitor,
		Logs:   ring,
	})

	runnerCfg := link.DefaultRunnerConfig()
	runnerCfg.HealthInterval = conf.Health.Interval.Duration
	runnerCfg.TimeSyncInterval = conf.TimeSync.Interval.Duration
	runnerCfg.FaultPollInterval = conf.Faults.PollInterval.Duration

	runner := link.NewRunner(client, monitor, runnerCfg, link.Hooks{
		OnFault: func(record, origin string) {
			if _, err := store.Add(faultstore.Record{Data: record, Origin: origin, Stamp: dev.Stamp()}); err != nil {
				log.WithError(err).Error("Fault record not stored")
			}
			hub.BroadcastFault(record)
		},
		OnLog: func(message string) {
			log.WithField("source", "UART").Info(message)
		},
		OnTime: func(t time.Time) {
			dev.Clock().Sync(t)
			log.WithFields(log.Fields{"source": "TIME", "success": true}).Info("Clock synchronised with recorder")
		},
		OnHealth: func(healthy bool) {
			hub.BroadcastStatus()
		},
	})

	router := api.New(api.Deps{
		Auth:     authMgr,
		Peer:     client,
		Link:     monitor,
		Stats:    stats,
		Sessions: hub,
		Faults:   store,
		Logs:     ring,
	}, push.NewServer(hub, push.DefaultConfig(conf.Push.MaxMessage)))

	httpServer := &http.Server{
		Addr:    conf.Push.Listen,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hook.Run(ctx, func(e logring.Entry) { hub.BroadcastLog(e) })
	go hub.Run(ctx)
	go runner.Run(ctx)
	go housekeeping(ctx, hub, authMgr)
	go func() {
		if err := config.Watch(ctx, configPath, func(c config.Config) {
			c.Logging.ApplyLogging()
			dev.SetInfo(deviceInfo(c))
			authMgr.SetCredentials(c.Auth.Username, c.Auth.PasswordHash, c.Auth.SessionTimeout.Duration)
		}); err != nil {
			log.WithError(err).Warn("Configuration watch not running")
		}
	}()
	go func() {
		if err := client.PushNTPServers(conf.NTP.Server1, conf.NTP.Server2); err != nil {
			log.WithError(err).WithField("source", "UART").Warn("NTP servers not pushed to recorder")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"listen": conf.Push.Listen, "port": conf.Serial.Port}).Info("Faultlink started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
		stop()
	}

	return shutdown(httpServer, hub, transport, store)
}

// housekeeping pushes periodic status and ends expired operator sessions
func housekeeping(ctx context.Context, hub *session.Hub, authMgr *auth.Manager) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if authMgr.Expire(now) {
				log.WithField("source", "AUTH").Warn("Session terminated due to timeout")
			}
			hub.BroadcastStatus()
		}
	}
}

func shutdown(httpServer *http.Server, hub *session.Hub, transport *link.Transport, store *faultstore.Store) error {
	var errs error

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.DisconnectAll()
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := transport.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := store.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}
