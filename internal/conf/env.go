package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. VESPER_STATION_NAME.
	EnvPrefix = "VESPER"

	// HomeEnvVar names the recorder home directory.
	HomeEnvVar = "VESPER_RECORDER_HOME"
)

// HomeDir returns the recorder home directory: $VESPER_RECORDER_HOME if set,
// otherwise the working directory.
func HomeDir() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		abs, err := filepath.Abs(home)
		if err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", HomeEnvVar, home, err)
		}
		return abs, nil
	}
	return os.Getwd()
}

// keys without defaults are invisible to AutomaticEnv during Unmarshal
var explicitEnvKeys = []string{
	"station.latitude",
	"station.longitude",
	"mqtt.client_id",
	"mqtt.username",
	"mqtt.password",
}

func bindEnvVars(v *viper.Viper) error {
	for _, key := range explicitEnvKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	return nil
}
