package conf

import "github.com/vesperrec/vesper-recorder/internal/logger"

// LoggingConfig converts the logging settings into a logger configuration,
// resolving the log file path against the home directory.
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	l := &s.Logging
	cfg := &logger.LoggingConfig{
		DefaultLevel: l.Level,
		Timezone:     s.Station.TimeZone,
		Console:      &logger.ConsoleOutput{Enabled: l.Console, Level: l.Level},
		TailSize:     l.TailSize,
		ModuleLevels: l.ModuleLevels,
	}
	if l.File.Enabled {
		cfg.FileOutput = &logger.FileOutput{
			Enabled:    true,
			Path:       s.ResolvePath(l.File.Path),
			Level:      l.Level,
			MaxSize:    l.File.MaxSize,
			MaxBackups: l.File.MaxBackups,
			MaxAge:     l.File.MaxAge,
			Compress:   l.File.Compress,
		}
	}
	return cfg
}
