package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/calfeed/internal/changelog"
	"github.com/alfredjeanlab/calfeed/internal/events"
	"github.com/alfredjeanlab/calfeed/internal/export"
	"github.com/alfredjeanlab/calfeed/internal/idgen"
	"github.com/alfredjeanlab/calfeed/internal/presence"
	"github.com/alfredjeanlab/calfeed/internal/server"
	"github.com/alfredjeanlab/calfeed/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the calfeed HTTP server",
	GroupID: "system",
	// No client connection for the server itself.
	PersistentPreRunE: localCommand,
	RunE: func(cmd *cobra.Command, args []string) error {
		useMemory, _ := cmd.Flags().GetBool("memory")
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := loadConfig(useMemory)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.HTTPAddr = addr
		}
		logger := newLogger(cfg.LogFormat)

		// Base context for background work and every request; cancelling it
		// ends open stream sessions so shutdown does not wait on them.
		baseCtx, cancelBase := context.WithCancel(context.Background())
		defer cancelBase()

		st, err := openStore(baseCtx, cfg, useMemory)
		if err != nil {
			return err
		}
		if useMemory {
			logger.Warn("serving from the in-memory store; data is lost on exit")
		}

		// Event bus: mirror appended records, and wake local sessions on
		// records appended by other processes sharing the database.
		var publisher events.Publisher = &events.NoopPublisher{}
		notifier := changelog.NewNotifier()
		if cfg.NATSURL != "" {
			origin, err := idgen.Origin()
			if err != nil {
				st.Close()
				return err
			}
			bus, err := events.Dial(cfg.NATSURL, origin,
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					logger.Warn("event bus disconnected", "err", err)
				}),
				nats.ReconnectHandler(func(_ *nats.Conn) {
					logger.Info("event bus reconnected")
				}),
			)
			if err != nil {
				st.Close()
				return err
			}
			publisher = bus
			go func() {
				if err := notifier.Follow(baseCtx, bus); err != nil {
					logger.Error("following change announcements", "err", err)
				}
			}()
			logger.Info("events enabled", "nats_url", cfg.NATSURL, "origin", origin)
		} else {
			logger.Info("events disabled (CALFEED_NATS_URL not set)")
		}

		srv := server.New(st, server.Options{
			Stream: stream.Options{
				PollInterval:      cfg.Stream.PollInterval,
				HeartbeatInterval: cfg.Stream.HeartbeatInterval,
				MaxDuration:       cfg.Stream.MaxSession,
				BatchLimit:        cfg.Stream.BatchLimit,
			},
			Retention:       cfg.Retention,
			TrimProbability: cfg.Stream.TrimProbability,
			Publisher:       publisher,
			Notifier:        notifier,
			Logger:          logger,
		})

		srv.Presence.StartReaper(&presence.ReaperConfig{
			DeadThreshold: max(2*time.Minute, 3*cfg.Stream.HeartbeatInterval),
			OnDead: func(id string) {
				logger.Warn("stream session went silent", "session", id)
			},
		})

		var scheduler *export.Scheduler
		if cfg.Export.Interval > 0 {
			if dests := exportDestinations(baseCtx, cfg.Export, logger); len(dests) > 0 {
				scheduler = export.NewScheduler(st, dests, cfg.Export.Interval, logger)
				scheduler.Start()
				logger.Info("export scheduler started", "interval", cfg.Export.Interval)
			}
		}

		// No WriteTimeout: stream responses stay open for a whole session.
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		logger.Info("calfeed server started",
			"http_addr", cfg.HTTPAddr,
			"auth", cfg.AuthToken != "",
			"poll_interval", cfg.Stream.PollInterval,
			"max_session", cfg.Stream.MaxSession,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		var runErr error
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
		case runErr = <-errCh:
			logger.Error("HTTP server error", "err", runErr)
		}

		// Graceful shutdown.
		cancelBase()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}
		srv.Presence.Stop()

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return runErr
	},
}

func init() {
	serveCmd.Flags().Bool("memory", false, "use the in-memory store instead of Postgres")
	serveCmd.Flags().String("addr", "", "listen address (overrides CALFEED_HTTP_ADDR)")
}
