package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/eyeguard/internal/camera"
	"github.com/GriffinCanCode/eyeguard/internal/detector"
	"github.com/GriffinCanCode/eyeguard/internal/notify"
	"github.com/GriffinCanCode/eyeguard/internal/orchestrator"
	"github.com/GriffinCanCode/eyeguard/internal/resilience"
	"github.com/GriffinCanCode/eyeguard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring service with its control API and display hub",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP listen address")
	f.BoolVar(&cfg.AutoStart, "auto-start", cfg.AutoStart, "start monitoring at boot")
	f.IntVar(&cfg.FreezeCheckEvery, "freeze-check-every", cfg.FreezeCheckEvery, "frames between frozen-camera checks (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cc, err := clientConfig()
	if err != nil {
		return err
	}
	dev := newDevice()
	if err := dev.LookupFFmpeg(); err != nil {
		slog.Warn("ffmpeg not found, monitoring will fail to acquire the camera", "error", err)
	}

	hub := server.NewHub()
	notices := notify.Fanout{notify.LogSink{}, hub}
	mgr := orchestrator.New(orchestrator.Deps{
		Opener: camera.FFmpegOpener(dev),
		NewDetector: func() (detector.Detector, error) {
			c, err := detector.Dial(cfg.DetectorAddr, cc)
			if err != nil {
				return nil, err
			}
			c.Breaker().OnTransition(func(tr resilience.Transition) {
				if tr.To == resilience.Open {
					notices.Notify(notify.New(notify.DetectorUnavailable, "Face detection keeps failing, pausing calls", nil))
				}
			})
			return c, nil
		},
		Surface:   hub,
		Notices:   notices,
		Threshold: cfg.ProximityThreshold,
		Session: camera.SessionOptions{
			Rotation:         cfg.CameraRotation,
			FreezeCheckEvery: cfg.FreezeCheckEvery,
		},
	})
	mgr.OnCreate()
	defer mgr.OnDestroy()

	srv := server.New(mgr, hub)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("eyeguard starting", "http", cfg.HTTPAddr, "detector", cfg.DetectorAddr, "device", dev.String())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.AutoStart {
		if err := mgr.OnConnect(ctx); err != nil {
			slog.Error("auto-start failed", "error", err)
		}
	}

	hooks, stopHooks := hookSignals()
	defer stopHooks()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errCh:
			slog.Error("http server error", "error", err)
			runErr = err
			break loop
		case h := <-hooks:
			switch h {
			case hookInterrupt:
				mgr.OnInterrupt()
			case hookConnect:
				if err := mgr.OnConnect(ctx); err != nil {
					slog.Error("start failed", "error", err)
				}
			}
		}
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	return runErr
}

// hook is a host lifecycle event delivered by signal.
type hook int

const (
	hookInterrupt hook = iota
	hookConnect
)
