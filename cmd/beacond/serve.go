package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/beacon/internal/alert"
	"github.com/alfredjeanlab/beacon/internal/archive"
	"github.com/alfredjeanlab/beacon/internal/client"
	"github.com/alfredjeanlab/beacon/internal/config"
	"github.com/alfredjeanlab/beacon/internal/control"
	"github.com/alfredjeanlab/beacon/internal/engine"
	"github.com/alfredjeanlab/beacon/internal/events"
	"github.com/alfredjeanlab/beacon/internal/lifecycle"
	"github.com/alfredjeanlab/beacon/internal/model"
	"github.com/alfredjeanlab/beacon/internal/sampler"
	"github.com/alfredjeanlab/beacon/internal/store/postgres"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the beacon daemon",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a control client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		sosClient := client.NewHTTPClient(cfg.BackendURL, cfg.AuthToken)

		var channel events.Channel
		if cfg.NATSURL != "" {
			ch, err := events.NewNATSChannel(cfg.NATSURL)
			if err != nil {
				return err
			}
			channel = ch
			logger.Info("push channel enabled", "nats_url", cfg.NATSURL)
		} else {
			channel = events.NoopChannel{}
			logger.Info("push channel disabled (BEACON_NATS_URL not set), poll only")
		}
		defer channel.Close()

		var alerter alert.Alerter = alert.Noop{}
		if cfg.AlertStartCmd != "" || cfg.AlertStopCmd != "" {
			alerter = &alert.Command{
				StartCmd: cfg.AlertStartCmd,
				StopCmd:  cfg.AlertStopCmd,
				Logger:   logger,
			}
		}

		observer := lifecycle.NewObserver()

		// Without a fix file, the host reports fixes through POST /v1/fix
		// into a shared latest-fix source.
		var latest *sampler.LatestSource
		if cfg.FixFile == "" {
			latest = &sampler.LatestSource{}
		}

		samplers := func(identity string, initial *model.PositionFix, onFix func(model.PositionFix, string), onError func(error)) engine.FixStreamer {
			var source sampler.Source
			if cfg.FixFile != "" {
				source = &sampler.FileSource{Path: cfg.FixFile}
			} else {
				if initial != nil {
					latest.Set(*initial)
				}
				source = latest
			}
			smp := sampler.New(identity, source, sosClient, cfg.HeartbeatInterval, logger)
			smp.OnFix = onFix
			smp.OnError = onError
			return smp
		}

		eng := engine.New(engine.Options{
			Client:       sosClient,
			Channel:      channel,
			Store:        st,
			Samplers:     samplers,
			Alerter:      alerter,
			Lifecycle:    observer,
			Logger:       logger,
			PollInterval: cfg.PollInterval,
			FixWindow:    cfg.FixWindow,
		})
		defer eng.Close()

		ctrl := control.NewServer(eng, st, observer, logger)
		if latest != nil {
			ctrl.SetFixSink(latest)
		}

		if err := eng.LoadIdentity(cmd.Context()); err != nil {
			return err
		}

		// Resume path: re-attach to a session the backend still considers
		// active. An ambiguous answer preserves local state and the poll
		// retries once the session machinery is running.
		resumed, err := eng.ResumeIfActive(cmd.Context())
		if err != nil {
			logger.Warn("resume check inconclusive", "error", err)
		} else if resumed {
			logger.Info("resumed active emergency session", "identity", eng.Identity())
		}

		httpServer := &http.Server{
			Addr:    cfg.ControlAddr,
			Handler: ctrl.NewHTTPHandler(cfg.AuthToken),
		}
		go func() {
			logger.Info("control API listening", "addr", cfg.ControlAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("control API error", "err", err)
			}
		}()

		var scheduler *archive.Scheduler
		if cfg.ArchiveInterval > 0 && cfg.ArchiveS3Bucket != "" {
			s3Dest, err := archive.NewS3Destination(
				context.Background(),
				cfg.ArchiveS3Bucket,
				cfg.ArchiveS3Key,
				cfg.ArchiveS3Region,
				cfg.ArchiveS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				scheduler = archive.NewScheduler(st, eng.Identity,
					[]archive.Destination{s3Dest}, cfg.ArchiveInterval, logger)
				scheduler.Start()
				logger.Info("history archive enabled", "bucket", cfg.ArchiveS3Bucket, "key", cfg.ArchiveS3Key)
			}
		}

		// Shutdown on SIGINT/SIGTERM. The session itself is not terminated:
		// process death is not a termination trigger, and the next start
		// resumes it.
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")

		if scheduler != nil {
			scheduler.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	},
}
