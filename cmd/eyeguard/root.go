package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/eyeguard/internal/camera"
	"github.com/GriffinCanCode/eyeguard/internal/config"
	"github.com/GriffinCanCode/eyeguard/internal/detector"
	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
)

// Version is the application version.
const Version = "0.1.0"

// cfg starts from the environment; flags override it.
var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:           "eyeguard",
	Short:         "Camera face-proximity guard",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(cfg.LogLevel); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ConfigInvalid, "invalid configuration")
		}
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.DetectorAddr, "detector", cfg.DetectorAddr, "face detection service address")
	f.StringVar(&cfg.PerformanceMode, "mode", cfg.PerformanceMode, "detector performance mode (fast, accurate)")
	f.Float64Var(&cfg.ProximityThreshold, "threshold", cfg.ProximityThreshold, "face/frame area ratio above which the viewer is too close")
	f.Float64Var(&cfg.MinFaceSize, "min-face-size", cfg.MinFaceSize, "smallest face reported, as a fraction of frame area")
	f.IntVar(&cfg.DetectMaxWidth, "detect-max-width", cfg.DetectMaxWidth, "downscale frames wider than this before detection (0 disables)")
	f.DurationVar(&cfg.DetectTimeout, "detect-timeout", cfg.DetectTimeout, "per-frame detection timeout")
	f.StringVar(&cfg.CameraDevice, "device", cfg.CameraDevice, "camera device (empty picks the platform default)")
	f.StringVar(&cfg.CameraFormat, "format", cfg.CameraFormat, "ffmpeg input format (empty picks the platform default)")
	f.IntVar(&cfg.CameraFPS, "fps", cfg.CameraFPS, "camera frame rate")
	f.IntVar(&cfg.CameraWidth, "width", cfg.CameraWidth, "camera frame width")
	f.IntVar(&cfg.CameraHeight, "height", cfg.CameraHeight, "camera frame height")
	f.IntVar(&cfg.CameraRotation, "rotation", cfg.CameraRotation, "camera rotation in degrees")
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return apperrors.Wrapf(err, apperrors.ConfigInvalid, "log level %q", level)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

// newDevice builds the front camera from configuration.
func newDevice() *camera.FFmpegDevice {
	return &camera.FFmpegDevice{
		Path:   cfg.CameraDevice,
		Format: cfg.CameraFormat,
		FPS:    cfg.CameraFPS,
		Width:  cfg.CameraWidth,
		Height: cfg.CameraHeight,
		Facing: camera.LensFront,
	}
}

func clientConfig() (detector.ClientConfig, error) {
	mode, err := detector.ParseMode(cfg.PerformanceMode)
	if err != nil {
		return detector.ClientConfig{}, apperrors.Wrap(err, apperrors.ConfigInvalid, "performance mode")
	}
	cc := detector.DefaultClientConfig()
	cc.Options.Mode = mode
	cc.Options.MinFaceSize = cfg.MinFaceSize
	cc.MaxWidth = cfg.DetectMaxWidth
	cc.Timeout = cfg.DetectTimeout
	return cc, nil
}
