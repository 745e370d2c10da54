// Package conf provides configuration management for the recorder.
package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFileName is the settings file looked up in the recorder home directory.
const ConfigFileName = "Vesper Recorder Settings.yaml"

// StationSettings describes where the recorder is deployed.
type StationSettings struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	Latitude  *float64 `mapstructure:"latitude" yaml:"latitude"`
	Longitude *float64 `mapstructure:"longitude" yaml:"longitude"`
	TimeZone  string   `mapstructure:"time_zone" yaml:"time_zone"` // IANA name
}

// InputSettings selects the capture device and stream format.
type InputSettings struct {
	Driver          string  `mapstructure:"driver" yaml:"driver"` // soundcard or synthetic
	DeviceIndex     int     `mapstructure:"device_index" yaml:"device_index"`
	ChannelCount    int     `mapstructure:"channel_count" yaml:"channel_count"`
	SampleRate      int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferSize      float64 `mapstructure:"buffer_size" yaml:"buffer_size"`             // seconds per driver buffer
	TotalBufferSize float64 `mapstructure:"total_buffer_size" yaml:"total_buffer_size"` // seconds of buffering in the pool
}

// LevelMeterSettings configures the audio level meter listener.
type LevelMeterSettings struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	UpdatePeriod float64 `mapstructure:"update_period" yaml:"update_period"` // seconds
}

// LocalRecordingSettings configures the WAV file writer listener.
type LocalRecordingSettings struct {
	Enabled              bool    `mapstructure:"enabled" yaml:"enabled"`
	RecordingDirPath     string  `mapstructure:"recording_dir_path" yaml:"recording_dir_path"`
	MaxAudioFileDuration float64 `mapstructure:"max_audio_file_duration" yaml:"max_audio_file_duration"` // seconds
}

// ServerSettings configures the HTTP status server.
type ServerSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// MetricsSettings toggles the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MQTTSettings configures the periodic status publisher.
type MQTTSettings struct {
	Enabled  bool    `mapstructure:"enabled" yaml:"enabled"`
	Broker   string  `mapstructure:"broker" yaml:"broker"`
	Topic    string  `mapstructure:"topic" yaml:"topic"`
	ClientID string  `mapstructure:"client_id" yaml:"client_id"`
	Username string  `mapstructure:"username" yaml:"username"`
	Password string  `mapstructure:"password" yaml:"password"`
	Interval float64 `mapstructure:"interval" yaml:"interval"` // seconds between publishes
	Retain   bool    `mapstructure:"retain" yaml:"retain"`
}

// TelemetrySettings configures optional error reporting.
type TelemetrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// LogFileSettings configures the rotating JSON log file.
type LogFileSettings struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingSettings configures console, file and in-memory log output.
type LoggingSettings struct {
	Level        string            `mapstructure:"level" yaml:"level"`
	Console      bool              `mapstructure:"console" yaml:"console"`
	File         LogFileSettings   `mapstructure:"file" yaml:"file"`
	TailSize     int               `mapstructure:"tail_size" yaml:"tail_size"`
	ModuleLevels map[string]string `mapstructure:"module_levels" yaml:"module_levels"`
}

// Settings is the complete recorder configuration.
type Settings struct {
	Home             string                 `mapstructure:"-" yaml:"-"` // directory relative paths resolve against
	ConfigFile       string                 `mapstructure:"-" yaml:"-"` // file the settings were read from, empty for defaults
	Station          StationSettings        `mapstructure:"station" yaml:"station"`
	Input            InputSettings          `mapstructure:"input" yaml:"input"`
	Schedule         map[string]any         `mapstructure:"schedule" yaml:"schedule"`
	ScheduleCoalesce string                 `mapstructure:"schedule_coalesce" yaml:"schedule_coalesce"`
	LevelMeter       LevelMeterSettings     `mapstructure:"level_meter" yaml:"level_meter"`
	LocalRecording   LocalRecordingSettings `mapstructure:"local_recording" yaml:"local_recording"`
	Server           ServerSettings         `mapstructure:"server" yaml:"server"`
	Metrics          MetricsSettings        `mapstructure:"metrics" yaml:"metrics"`
	MQTT             MQTTSettings           `mapstructure:"mqtt" yaml:"mqtt"`
	Telemetry        TelemetrySettings      `mapstructure:"telemetry" yaml:"telemetry"`
	Logging          LoggingSettings        `mapstructure:"logging" yaml:"logging"`
}

// Load reads settings into a fresh Settings using v. When configPath is empty
// the settings file is looked up in the recorder home directory; a missing
// file there yields the defaults. An explicitly named file must exist.
func Load(v *viper.Viper, configPath string) (*Settings, error) {
	home, err := HomeDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving recorder home: %w", err)
	}

	if err := initViper(v, home, configPath); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{Home: home, ConfigFile: v.ConfigFileUsed()}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if settings.Schedule == nil {
		settings.Schedule = map[string]any{}
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// initViper registers defaults and environment overrides and reads the config file.
func initViper(v *viper.Viper, home, configPath string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configPath == "" {
		configPath = filepath.Join(home, ConfigFileName)
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("fatal error reading config file %s: %w", configPath, err)
	}
	return nil
}

// ResolvePath returns p unchanged when absolute, otherwise joined to the home directory.
func (s *Settings) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Home, p)
}

// HasLocation reports whether both station coordinates are set.
func (s *Settings) HasLocation() bool {
	return s.Station.Latitude != nil && s.Station.Longitude != nil
}
