package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STILLCAPTURE_"

// ApplyEnv overrides cfg from STILLCAPTURE_* variables. Unset or empty
// variables leave the current value alone; malformed numbers are errors.
func ApplyEnv(cfg *Config) error {
	envStr("CAMERA_NAME", &cfg.Camera.Name)
	envStr("OUTPUT_DIR", &cfg.Output.Dir)
	envStr("OUTPUT_TEMPLATE", &cfg.Output.Template)
	envStr("OUTPUT_NAMING", &cfg.Output.Naming)
	envStr("BACKEND", &cfg.Backend.Name)
	envStr("BACKEND_SOURCE", &cfg.Backend.Source)
	envStr("BACKEND_DEVICE", &cfg.Backend.Device)
	envStr("GPSD_ADDR", &cfg.GPS.Addr)
	envStr("MQTT_BROKER", &cfg.MQTT.Broker)
	envStr("LOG_LEVEL", &cfg.Log.Level)
	envStr("LOG_FORMAT", &cfg.Log.Format)

	if err := envInt("CAMERA_NUM", &cfg.Camera.Num); err != nil {
		return err
	}
	if err := envInt("QUALITY", &cfg.Encoder.Quality); err != nil {
		return err
	}
	if err := envInt("CAPTURE_COUNT", &cfg.Capture.Count); err != nil {
		return err
	}
	if err := envDuration("CAPTURE_INTERVAL", &cfg.Capture.Interval); err != nil {
		return err
	}
	if err := envBool("EXIF_DISABLED", &cfg.EXIF.Disabled); err != nil {
		return err
	}
	if err := envBool("MQTT_ENABLED", &cfg.MQTT.Enabled); err != nil {
		return err
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, v, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, v, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, v, err)
	}
	*dst = d
	return nil
}
