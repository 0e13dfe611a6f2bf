package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultPath = "/data/local/tmp/adaptivehz/config.yaml"

type Config struct {
	// Package is this app's own package; its windows never trigger a boost.
	Package       string         `mapstructure:"package"`
	ListenAddr    string         `mapstructure:"listen_addr"`
	PrefsPath     string         `mapstructure:"prefs_path"`
	BacklightPath string         `mapstructure:"backlight_path"`
	Debounce      DebounceConfig `mapstructure:"debounce"`
	Input         InputConfig    `mapstructure:"input"`
	Device        DeviceConfig   `mapstructure:"device"`
	API           APIConfig      `mapstructure:"api"`
	Log           LogConfig      `mapstructure:"log"`
}

type DebounceConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type InputConfig struct {
	// Device limits getevent to one node, e.g. /dev/input/event3.
	Device       string        `mapstructure:"device"`
	ActivityPoll time.Duration `mapstructure:"activity_poll"`
}

// DeviceConfig pins the build identity instead of reading getprop.
type DeviceConfig struct {
	Manufacturer string `mapstructure:"manufacturer"`
	Brand        string `mapstructure:"brand"`
}

type APIConfig struct {
	SignalRPS   float64 `mapstructure:"signal_rps"`
	SignalBurst int     `mapstructure:"signal_burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("package", "com.nzlov.adaptivehz")
	v.SetDefault("listen_addr", "127.0.0.1:8787")
	v.SetDefault("prefs_path", "/data/local/tmp/adaptivehz/prefs.yaml")
	v.SetDefault("backlight_path", "/sys/class/leds/lcd-backlight/brightness")
	v.SetDefault("debounce.idle_timeout", "3500ms")
	v.SetDefault("input.device", "")
	v.SetDefault("input.activity_poll", "1s")
	v.SetDefault("device.manufacturer", "")
	v.SetDefault("device.brand", "")
	v.SetDefault("api.signal_rps", 200)
	v.SetDefault("api.signal_burst", 400)
	v.SetDefault("log.level", "info")
}

// Load reads the YAML file at path if it exists and applies ADAPTIVEHZ_*
// environment overrides, e.g. ADAPTIVEHZ_DEBOUNCE_IDLE_TIMEOUT=300ms.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("adaptivehz")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// the config file is optional
func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

func (c *Config) validate() error {
	if c.Debounce.IdleTimeout <= 0 {
		return fmt.Errorf("debounce.idle_timeout must be positive, got %s", c.Debounce.IdleTimeout)
	}
	if c.Input.ActivityPoll <= 0 {
		return fmt.Errorf("input.activity_poll must be positive, got %s", c.Input.ActivityPoll)
	}
	if c.PrefsPath == "" {
		return errors.New("prefs_path is required")
	}
	if c.API.SignalRPS <= 0 || c.API.SignalBurst <= 0 {
		return errors.New("api.signal_rps and api.signal_burst must be positive")
	}
	return nil
}
