package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	stillcapture "github.com/e7canasta/orion-care-sensor/modules/still-capture"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/gps"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/gstreamer"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/naming"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/still-capture/internal/pipeline/sim"
)

// loadConfig reads the file and environment, lets apply change the result
// and validates it.
func loadConfig(g *globalFlags, cmd *cobra.Command, apply func(cfg *config.Config, cmd *cobra.Command)) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if apply != nil {
		apply(cfg, cmd)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newBackend returns the configured backend and its release function.
func newBackend(cfg *config.Config, logger *slog.Logger) (pipeline.Backend, func(), error) {
	switch cfg.Backend.Name {
	case "gstreamer":
		b, err := gstreamer.New(gstreamer.Options{
			Source:     cfg.Backend.Source,
			Device:     cfg.Backend.Device,
			SensorName: cfg.Camera.Name,
			MaxWidth:   cfg.Camera.Width,
			MaxHeight:  cfg.Camera.Height,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				logger.Warn("still-capture: backend close failed", "error", err)
			}
			errs := b.Errors()
			logger.Debug("still-capture: backend errors",
				"device", errs.Device,
				"negotiation", errs.Negotiation,
				"encode", errs.Encode,
				"unknown", errs.Unknown,
			)
		}, nil
	default:
		return sim.New(sim.Options{Logger: logger}), func() {}, nil
	}
}

var encodings = map[string]pipeline.Encoding{
	"jpeg": pipeline.EncodingJPEG,
	"png":  pipeline.EncodingPNG,
	"bmp":  pipeline.EncodingBMP,
}

// sessionConfig maps the file configuration onto a session.
func sessionConfig(cfg *config.Config, provider gps.Provider, logger *slog.Logger) (stillcapture.Config, error) {
	mode, err := naming.ParseMode(cfg.Output.Naming)
	if err != nil {
		return stillcapture.Config{}, err
	}
	encoding, ok := encodings[cfg.Encoder.Encoding]
	if !ok {
		return stillcapture.Config{}, fmt.Errorf("unsupported encoding %q", cfg.Encoder.Encoding)
	}

	var caps stillcapture.Capability
	if !cfg.EXIF.Disabled {
		caps |= stillcapture.CapEXIF
		if cfg.EXIF.GPS && provider != nil {
			caps |= stillcapture.CapGPS
		}
	}
	if !cfg.Encoder.Thumbnail.Disabled {
		caps |= stillcapture.CapThumbnail
	}

	return stillcapture.Config{
		CameraNum:       cfg.Camera.Num,
		CameraName:      cfg.Camera.Name,
		SensorMode:      cfg.Camera.SensorMode,
		Width:           cfg.Camera.Width,
		Height:          cfg.Camera.Height,
		ShutterSpeed:    cfg.Camera.ShutterSpeed,
		Encoding:        encoding,
		Quality:         cfg.Encoder.Quality,
		RestartInterval: cfg.Encoder.RestartInterval,
		Thumbnail: pipeline.Thumbnail{
			Width:   cfg.Encoder.Thumbnail.Width,
			Height:  cfg.Encoder.Thumbnail.Height,
			Quality: cfg.Encoder.Thumbnail.Quality,
		},
		Naming: naming.Policy{
			Dir:        cfg.Output.Dir,
			Template:   cfg.Output.Template,
			Mode:       mode,
			FrameStart: int64(cfg.Output.FrameStart),
			LatestLink: cfg.Output.LatestLink,
		},
		MinFreeBytes: cfg.Output.MinFreeMB << 20,
		Count:        cfg.Capture.Count,
		Interval:     cfg.Capture.Interval,
		SettleDelay:  cfg.Capture.SettleDelay,
		Timeout:      cfg.Capture.Timeout,
		Capabilities: caps,
		Make:         cfg.EXIF.Make,
		UserTags:     cfg.EXIF.Tags,
		MaxTags:      cfg.EXIF.MaxTags,
		MaxUserTags:  cfg.EXIF.MaxUserTags,
		GPS:          provider,
		Logger:       logger,
	}, nil
}
