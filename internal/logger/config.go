package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            // default log level for all modules
	Timezone     string            // "Local", "UTC", or IANA timezone name
	Console      *ConsoleOutput    // console output configuration
	FileOutput   *FileOutput       // file output configuration
	TailSize     int               // bytes of recent log output kept in memory (0 = disabled)
	ModuleLevels map[string]string // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output is human-readable text without timestamps; the service
// manager adds them.
type ConsoleOutput struct {
	Enabled bool
	Level   string
}

// FileOutput represents file logging configuration. File output is JSON.
type FileOutput struct {
	Enabled    bool
	Path       string
	Level      string
	MaxSize    int // megabytes before rotation
	MaxBackups int // rotated files to keep (0 = no limit)
	MaxAge     int // days to keep rotated files (0 = no limit)
	Compress   bool
}

// Default values for logging configuration, mirrored in conf defaults.
const (
	DefaultLogLevel    = "info"
	DefaultLogPath     = "Vesper Recorder Log.txt"
	DefaultMaxSize     = 10
	DefaultMaxBackups  = 5
	DefaultMaxAge      = 30
	DefaultTailSize    = 64 * 1024
	defaultTimezoneStr = "Local"
)

// applyConfigDefaults fills in unset values so that partial configs still log.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Timezone == "" {
		cfg.Timezone = defaultTimezoneStr
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}
	if cfg.Console.Level == "" {
		cfg.Console.Level = cfg.DefaultLevel
	}
	if cfg.FileOutput != nil {
		if cfg.FileOutput.Path == "" {
			cfg.FileOutput.Path = DefaultLogPath
		}
		if cfg.FileOutput.Level == "" {
			cfg.FileOutput.Level = cfg.DefaultLevel
		}
		if cfg.FileOutput.MaxSize <= 0 {
			cfg.FileOutput.MaxSize = DefaultMaxSize
		}
	}
}
