package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ACQCTL_LOG_LEVEL.
const EnvPrefix = "ACQCTL"

// Settings is the application configuration, independent of any scenario.
type Settings struct {
	StateDir    string         `mapstructure:"state_dir"`
	ProfilesDir string         `mapstructure:"profiles_dir"`
	Log         LogSettings    `mapstructure:"log"`
	Device      DeviceSettings `mapstructure:"device"`
}

type LogSettings struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DeviceSettings tunes the simulated camera and its save workers.
type DeviceSettings struct {
	Workers      int           `mapstructure:"workers"`
	SaveLatency  time.Duration `mapstructure:"save_latency"`
	LineTime     time.Duration `mapstructure:"line_time"`
	SensorWidth  int           `mapstructure:"sensor_width"`
	SensorHeight int           `mapstructure:"sensor_height"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	return &Settings{
		StateDir:    ".acqctl",
		ProfilesDir: "profiles",
		Log: LogSettings{
			Level: "info",
		},
		Device: DeviceSettings{
			Workers:      4,
			SaveLatency:  2 * time.Millisecond,
			LineTime:     time.Microsecond,
			SensorWidth:  2048,
			SensorHeight: 2048,
		},
	}
}

// defaultConfigPath returns the per-user config directory.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "acqctl")
}

// LoadSettings reads acqctl.yaml from configFile, or from the working
// directory and the user config directory when configFile is empty.
// Environment variables override file values.
func LoadSettings(configFile string) (*Settings, error) {
	def := DefaultSettings()

	v := viper.New()
	v.SetDefault("state_dir", def.StateDir)
	v.SetDefault("profiles_dir", def.ProfilesDir)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("device.workers", def.Device.Workers)
	v.SetDefault("device.save_latency", def.Device.SaveLatency)
	v.SetDefault("device.line_time", def.Device.LineTime)
	v.SetDefault("device.sensor_width", def.Device.SensorWidth)
	v.SetDefault("device.sensor_height", def.Device.SensorHeight)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("acqctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := defaultConfigPath(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading settings file: %w", err)
		}
		// No settings file is fine, defaults and env apply.
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("error parsing settings: %w", err)
	}
	if s.Device.Workers < 1 {
		return nil, fmt.Errorf("device.workers must be at least 1, got %d", s.Device.Workers)
	}
	return s, nil
}
