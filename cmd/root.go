package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vesperrec/vesper-recorder/cmd/devices"
	"github.com/vesperrec/vesper-recorder/cmd/record"
	"github.com/vesperrec/vesper-recorder/cmd/schedule"
	"github.com/vesperrec/vesper-recorder/cmd/version"
	"github.com/vesperrec/vesper-recorder/internal/buildinfo"
	"github.com/vesperrec/vesper-recorder/internal/conf"
)

// RootCommand creates and returns the root command. Settings are loaded
// before any subcommand other than version runs.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	v := viper.New()
	settings := &conf.Settings{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "vesper-recorder",
		Short:         "Scheduled audio recorder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, v, &configPath); err != nil {
		panic(err)
	}

	versionCmd := version.Command(build)
	rootCmd.AddCommand(
		record.Command(settings, v, build),
		devices.Command(settings),
		schedule.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		loaded, err := conf.Load(v, configPath)
		if err != nil {
			return err
		}
		*settings = *loaded
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, v *viper.Viper, configPath *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configPath, "config", "c", "", "Settings file (default: \""+conf.ConfigFileName+"\" in the recorder home)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn or error")
	flags.String("time-zone", "", "Station time zone (IANA name)")
	flags.String("driver", "", "Audio driver: soundcard or synthetic")

	for key, name := range map[string]string{
		"logging.level":     "log-level",
		"station.time_zone": "time-zone",
		"input.driver":      "driver",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
