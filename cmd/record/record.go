// Package record implements the command that runs the recorder.
package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vesperrec/vesper-recorder/internal/buildinfo"
	"github.com/vesperrec/vesper-recorder/internal/conf"
	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/logger"
	"github.com/vesperrec/vesper-recorder/internal/station"
)

// sentryFlushTimeout bounds delivery of buffered error reports at exit.
const sentryFlushTimeout = 2 * time.Second

// Command creates a new command that records on schedule until interrupted.
func Command(settings *conf.Settings, v *viper.Viper, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record audio on schedule",
		Long:  "Capture audio from the configured input device, recording during scheduled intervals until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if off, _ := cmd.Flags().GetBool("no-server"); off {
				settings.Server.Enabled = false
			}
			return run(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd, v); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the record command.
func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	flags.Int("device", 0, "Input device index")
	flags.Int("port", 0, "HTTP status server port")
	flags.Bool("no-server", false, "Disable the HTTP status server")

	bindings := map[string]string{
		"input.device_index": "device",
		"server.port":        "port",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logs, err := logger.NewCentralLogger(settings.LoggingConfig())
	if err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}
	defer func() {
		if err := logs.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
		}
	}()
	log := logs.Module("main")
	logger.SetGlobal(log)

	if settings.Telemetry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.DSN, build.GetVersion()); err != nil {
			log.Warn("error reporting disabled", logger.Error(err))
		} else {
			defer errors.FlushSentry(sentryFlushTimeout)
		}
	}

	log.Info("starting recorder",
		logger.String("version", build.GetVersion()),
		logger.String("build_date", build.GetBuildDate()),
		logger.String("config_file", settings.ConfigFile),
		logger.String("home", settings.Home))

	st, err := station.New(settings, build, logs.Module(""), station.Options{LogTail: logs.Tail})
	if err != nil {
		log.Error("error setting up recorder", logger.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go rotateOnHangup(ctx, logs, log)

	if err := st.Run(ctx); err != nil {
		log.Error("recorder failed", logger.Error(err))
		return err
	}
	log.Info("recorder stopped")
	return nil
}

// rotateOnHangup starts a new log file on each SIGHUP until ctx is done.
func rotateOnHangup(ctx context.Context, logs *logger.CentralLogger, log logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := logs.Rotate(); err != nil {
				log.Warn("log rotation failed", logger.Error(err))
			} else {
				log.Info("log file rotated")
			}
		}
	}
}
