// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/aes67d"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/api"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/audio"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/config"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/connection"
	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/monitor"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/registry"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/store"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "aes67-nmos-node",
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Msg("failed to load configuration")
	}

	// Re-configure logger with the loaded level
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "aes67-nmos-node",
		Version: version,
	})
	logger = xglog.WithComponent("daemon")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str(xglog.FieldBaseURL, cfg.Daemon.BaseURL).
		Int(xglog.FieldSinkID, cfg.Daemon.SinkID).
		Float64("poll_interval", cfg.Daemon.StatusPollInterval).
		Str("interface", cfg.InterfaceName).
		Int("http_port", cfg.HTTPPort).
		Msg("configuration loaded")

	st, err := store.New(cfg.StateFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open state store")
	}
	identity, err := store.EnsureIdentity(st)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure node identity")
	}
	logger.Info().
		Str(xglog.FieldNodeID, identity.NodeID).
		Str(xglog.FieldDeviceID, identity.DeviceID).
		Str(xglog.FieldReceiverID, identity.ReceiverID).
		Msg("node identity ready")

	daemonClient := aes67d.New(cfg.Daemon.BaseURL, cfg.Daemon.SinkID, aes67d.Options{})
	loop := audio.NewLoop(audio.LoopOptions{
		CaptureDevice:  cfg.Audio.CaptureDevice,
		PlaybackDevice: cfg.Audio.PlaybackDevice,
		BufferMS:       cfg.Audio.LoopBufferMS,
	})
	mixer := audio.NewMixer(cfg.Audio.MixerCard, cfg.Audio.MixerControls)

	ctrl, err := connection.NewController(st, cfg.Audio.DefaultVolume)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load receiver state")
	}
	activator := connection.NewActivator(ctrl, daemonClient, loop, mixer, cfg.ReceiverFriendlyName)

	worker := registry.NewWorker(cfg, identity, ctrl, daemonClient)
	mon := monitor.New(daemonClient, cfg.Daemon.SinkID, cfg.Daemon.PollPeriod())

	server := api.New(cfg, identity, ctrl, activator, daemonClient)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().
			Str(xglog.FieldEvent, "http.listen").
			Str("addr", httpServer.Addr).
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := worker.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		err := mon.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// An in-flight activation completes; only the listener drains here.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
		return loop.Stop(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("node terminated with error")
	}
	logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("node stopped")
}
