package config

import (
	"fmt"
	"strings"
)

var (
	encodings   = map[string]bool{"jpeg": true, "png": true, "bmp": true}
	namingModes = map[string]bool{"counter": true, "timestamp": true, "datetime": true}
	backends    = map[string]bool{"sim": true, "gstreamer": true}
	logLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats  = map[string]bool{"json": true, "text": true}
)

// Validate checks cfg and fills defaults for zero values that have no
// meaning of their own.
func Validate(cfg *Config) error {
	if cfg.Camera.Num < 0 {
		return fmt.Errorf("camera.num must be >= 0")
	}
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 {
		return fmt.Errorf("camera.width and camera.height must be >= 0")
	}

	cfg.Encoder.Encoding = strings.ToLower(cfg.Encoder.Encoding)
	if cfg.Encoder.Encoding == "" {
		cfg.Encoder.Encoding = "jpeg"
	}
	if !encodings[cfg.Encoder.Encoding] {
		return fmt.Errorf("encoder.encoding %q must be one of jpeg, png, bmp", cfg.Encoder.Encoding)
	}
	if cfg.Encoder.Quality == 0 {
		cfg.Encoder.Quality = 85
	}
	if cfg.Encoder.Quality < 1 || cfg.Encoder.Quality > 100 {
		return fmt.Errorf("encoder.quality must be in 1..100, got %d", cfg.Encoder.Quality)
	}
	if cfg.Encoder.RestartInterval < 0 {
		return fmt.Errorf("encoder.restart_interval must be >= 0")
	}
	if thumb := &cfg.Encoder.Thumbnail; !thumb.Disabled {
		if thumb.Width == 0 && thumb.Height == 0 {
			thumb.Width, thumb.Height = 64, 48
		}
		if thumb.Quality == 0 {
			thumb.Quality = 35
		}
		if thumb.Width <= 0 || thumb.Height <= 0 {
			return fmt.Errorf("encoder.thumbnail width and height must be > 0 when enabled")
		}
		if thumb.Quality < 1 || thumb.Quality > 100 {
			return fmt.Errorf("encoder.thumbnail.quality must be in 1..100, got %d", thumb.Quality)
		}
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.Output.Template == "" {
		return fmt.Errorf("output.template is required")
	}
	cfg.Output.Naming = strings.ToLower(cfg.Output.Naming)
	if cfg.Output.Naming == "" {
		cfg.Output.Naming = "counter"
	}
	if !namingModes[cfg.Output.Naming] {
		return fmt.Errorf("output.naming %q must be one of counter, timestamp, datetime", cfg.Output.Naming)
	}
	if cfg.Output.FrameStart < 0 {
		return fmt.Errorf("output.frame_start must be >= 0")
	}

	if cfg.Capture.Count < 0 {
		return fmt.Errorf("capture.count must be >= 0")
	}
	if cfg.Capture.Interval < 0 || cfg.Capture.SettleDelay < 0 || cfg.Capture.Timeout < 0 {
		return fmt.Errorf("capture durations must be >= 0")
	}

	if cfg.EXIF.Make == "" {
		cfg.EXIF.Make = "RaspberryPi"
	}
	if cfg.EXIF.MaxTags <= 0 {
		cfg.EXIF.MaxTags = 64
	}
	if cfg.EXIF.MaxUserTags <= 0 {
		cfg.EXIF.MaxUserTags = 32
	}
	for _, tag := range cfg.EXIF.Tags {
		if !strings.Contains(tag, "=") {
			return fmt.Errorf("exif tag %q must have the form Group.Tag=value", tag)
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = "still-capture"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "still-capture"
		}
	}

	cfg.Backend.Name = strings.ToLower(cfg.Backend.Name)
	if cfg.Backend.Name == "" {
		cfg.Backend.Name = "sim"
	}
	if !backends[cfg.Backend.Name] {
		return fmt.Errorf("backend.name %q must be sim or gstreamer", cfg.Backend.Name)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if !logLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level %q must be debug, info, warn or error", cfg.Log.Level)
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if !logFormats[cfg.Log.Format] {
		return fmt.Errorf("log.format %q must be json or text", cfg.Log.Format)
	}

	return nil
}
