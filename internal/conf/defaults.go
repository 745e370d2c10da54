// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Default setting values.
const (
	DefaultStationName          = "Vesper"
	DefaultTimeZone             = "UTC"
	DefaultChannelCount         = 1
	DefaultSampleRate           = 22050
	DefaultBufferSize           = 0.05
	DefaultTotalBufferSize      = 60.0
	DefaultLevelMeterPeriod     = 1.0
	DefaultRecordingDirPath     = "Recordings"
	DefaultMaxAudioFileDuration = 3600.0
	DefaultServerPort           = 8001
	DefaultScheduleCoalesce     = "touching"
	DefaultInputDriver          = "soundcard"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("station.name", DefaultStationName)
	v.SetDefault("station.time_zone", DefaultTimeZone)

	v.SetDefault("input.driver", DefaultInputDriver)
	v.SetDefault("input.device_index", 0)
	v.SetDefault("input.channel_count", DefaultChannelCount)
	v.SetDefault("input.sample_rate", DefaultSampleRate)
	v.SetDefault("input.buffer_size", DefaultBufferSize)
	v.SetDefault("input.total_buffer_size", DefaultTotalBufferSize)

	v.SetDefault("schedule_coalesce", DefaultScheduleCoalesce)

	v.SetDefault("level_meter.enabled", true)
	v.SetDefault("level_meter.update_period", DefaultLevelMeterPeriod)

	v.SetDefault("local_recording.enabled", true)
	v.SetDefault("local_recording.recording_dir_path", DefaultRecordingDirPath)
	v.SetDefault("local_recording.max_audio_file_duration", DefaultMaxAudioFileDuration)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", DefaultServerPort)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "vesper/status")
	v.SetDefault("mqtt.interval", 30.0)
	v.SetDefault("mqtt.retain", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file.enabled", true)
	v.SetDefault("logging.file.path", "Vesper Recorder Log.txt")
	v.SetDefault("logging.file.max_size", 10)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age", 30)
	v.SetDefault("logging.file.compress", false)
	v.SetDefault("logging.tail_size", 64*1024)
}
