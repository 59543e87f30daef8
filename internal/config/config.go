// Package config loads the still-capture YAML configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// STILLCAPTURE_* environment variables. Command-line flags are applied by
// the caller on top of the result before Validate runs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete still-capture configuration.
type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Encoder EncoderConfig `yaml:"encoder"`
	Output  OutputConfig  `yaml:"output"`
	Capture CaptureConfig `yaml:"capture"`
	EXIF    EXIFConfig    `yaml:"exif"`
	GPS     GPSConfig     `yaml:"gps"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Backend BackendConfig `yaml:"backend"`
	Log     LogConfig     `yaml:"log"`
}

// CameraConfig selects and tunes the sensor.
type CameraConfig struct {
	Num          int    `yaml:"num"`
	Name         string `yaml:"name"` // defaults to the sensor name
	SensorMode   int    `yaml:"sensor_mode"`
	Width        int    `yaml:"width"`  // 0 = sensor maximum
	Height       int    `yaml:"height"` // 0 = sensor maximum
	ShutterSpeed uint32 `yaml:"shutter_speed_us"`
}

// EncoderConfig configures the still encoder.
type EncoderConfig struct {
	Encoding        string          `yaml:"encoding"` // jpeg, png, bmp
	Quality         int             `yaml:"quality"`  // 1-100
	RestartInterval int             `yaml:"restart_interval"`
	Thumbnail       ThumbnailConfig `yaml:"thumbnail"`
}

// ThumbnailConfig configures the embedded EXIF thumbnail.
type ThumbnailConfig struct {
	Disabled bool `yaml:"disabled"`
	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
	Quality  int  `yaml:"quality"`
}

// OutputConfig controls file naming and storage.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Template   string `yaml:"template"` // printf-style, e.g. image%04d.jpg
	Naming     string `yaml:"naming"`   // counter, timestamp, datetime
	FrameStart int    `yaml:"frame_start"`
	LatestLink string `yaml:"latest_link"`
	MinFreeMB  uint64 `yaml:"min_free_mb"`
}

// CaptureConfig controls the capture loop.
type CaptureConfig struct {
	Count       int           `yaml:"count"`        // 0 = until cancelled
	Interval    time.Duration `yaml:"interval"`     // between captures
	SettleDelay time.Duration `yaml:"settle_delay"` // before the first capture
	Timeout     time.Duration `yaml:"timeout"`      // per frame, 0 = wait indefinitely
}

// EXIFConfig controls metadata tagging.
type EXIFConfig struct {
	Disabled    bool     `yaml:"disabled"`
	Make        string   `yaml:"make"`
	GPS         bool     `yaml:"gps"`
	Tags        []string `yaml:"tags"`
	MaxTags     int      `yaml:"max_tags"`
	MaxUserTags int      `yaml:"max_user_tags"`
}

// GPSConfig points at the gpsd daemon feeding GPS tags.
type GPSConfig struct {
	Addr string `yaml:"gpsd_addr"`
}

// MQTTConfig contains the capture event broker settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// BackendConfig selects the pipeline implementation.
type BackendConfig struct {
	Name   string `yaml:"name"`   // sim, gstreamer
	Source string `yaml:"source"` // gstreamer source element
	Device string `yaml:"device"` // v4l2 device path
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Encoder: EncoderConfig{
			Encoding: "jpeg",
			Quality:  85,
			Thumbnail: ThumbnailConfig{
				Width:   64,
				Height:  48,
				Quality: 35,
			},
		},
		Output: OutputConfig{
			Dir:      ".",
			Template: "image%04d.jpg",
			Naming:   "counter",
		},
		Capture: CaptureConfig{
			Count:       1,
			SettleDelay: 5 * time.Second,
		},
		EXIF: EXIFConfig{
			Make:        "RaspberryPi",
			MaxTags:     64,
			MaxUserTags: 32,
		},
		GPS: GPSConfig{Addr: "127.0.0.1:2947"},
		MQTT: MQTTConfig{
			TopicPrefix: "still-capture",
			ClientID:    "still-capture",
		},
		Backend: BackendConfig{
			Name:   "sim",
			Source: "videotestsrc",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields defaults plus environment. The result is not yet
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
