package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
	"github.com/mil-ad/audioswitch/internal/bluez"
	"github.com/mil-ad/audioswitch/internal/clock"
	"github.com/mil-ad/audioswitch/internal/metrics"
)

// controller is the part of bluetooth.Controller the IPC handlers use.
type controller interface {
	Activate() error
	Deactivate() error
	Status() bluetooth.Status
}

type daemon struct {
	ctl controller
	log *slog.Logger
}

func (d *daemon) handleRequest(req IPCRequest) IPCResponse {
	switch req.Command {
	case "status", "devices":
		return statusResponse(d.ctl.Status())

	case "activate":
		if err := d.ctl.Activate(); err != nil {
			return IPCResponse{Error: err.Error()}
		}
		return statusResponse(d.ctl.Status())

	case "deactivate":
		if err := d.ctl.Deactivate(); err != nil {
			return IPCResponse{Error: err.Error()}
		}
		return statusResponse(d.ctl.Status())

	default:
		return IPCResponse{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

func (d *daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	if !peerAllowed(conn) {
		d.log.Warn("rejected connection from another user")
		json.NewEncoder(conn).Encode(IPCResponse{Error: "permission denied"})
		return
	}

	var req IPCRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp := IPCResponse{Error: "invalid request: " + err.Error()}
		json.NewEncoder(conn).Encode(resp)
		return
	}

	resp := d.handleRequest(req)
	json.NewEncoder(conn).Encode(resp)
}

// logListener reports controller events to the log.
type logListener struct {
	log *slog.Logger
}

func (l logListener) OnDeviceConnected(dev bluetooth.Device) {
	l.log.Info("headset available", "device", dev.String())
}

func (l logListener) OnDeviceDisconnected(dev bluetooth.Device) {
	l.log.Info("headset gone", "device", dev.ID)
}

func (l logListener) OnRoutingActivated() {
	l.log.Info("bluetooth audio routing active")
}

func (l logListener) OnRoutingFailed(err error) {
	l.log.Warn("bluetooth audio routing failed", "error", err)
}

func newLogger(cfg *Config) *slog.Logger {
	lvl, _ := cfg.level()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runDaemon(cfg *Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	profiles := bluez.NewProfiles(bluez.Options{Adapter: cfg.Adapter, Allow: cfg.Devices, Logger: logger})
	routing := bluez.NewRouting(profiles, cfg.FocusName)
	recorder := metrics.New()
	router := bluetooth.NewRouter(clock.Real{}, routing, bluetooth.RouterConfig{
		Jobs:       bluetooth.JobConfig{PollInterval: cfg.PollInterval, Timeout: cfg.RoutingTimeout},
		Preference: cfg.preference(),
		Recorder:   recorder,
		Logger:     logger,
	})
	ctl := bluetooth.NewController(profiles, routing, router, bluetooth.NewProbe(profiles, logger), logger)

	if err := ctl.Start(logListener{log: logger}); err != nil {
		return err
	}
	defer ctl.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	sock := cfg.Socket
	os.Remove(sock) // remove stale socket
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}
	os.Chmod(sock, 0700)
	defer os.Remove(sock)
	defer ln.Close()

	d := &daemon{ctl: ctl, log: logger}

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		ln.Close()
	}()

	logger.Info("listening", "socket", sock)
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by shutdown goroutine.
			return nil
		}
		go d.handleConn(conn)
	}
}
