// Package station assembles a recorder, its listeners and the status
// surfaces from settings and runs them until shutdown.
package station

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sync/errgroup"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/audiocore/sources"
	"github.com/vesperrec/vesper-recorder/internal/buildinfo"
	"github.com/vesperrec/vesper-recorder/internal/conf"
	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/httpcontroller"
	"github.com/vesperrec/vesper-recorder/internal/listeners"
	"github.com/vesperrec/vesper-recorder/internal/logger"
	"github.com/vesperrec/vesper-recorder/internal/mqtt"
	"github.com/vesperrec/vesper-recorder/internal/observability"
	"github.com/vesperrec/vesper-recorder/internal/observability/metrics"
	"github.com/vesperrec/vesper-recorder/internal/schedule"
	"github.com/vesperrec/vesper-recorder/internal/status"
	"github.com/vesperrec/vesper-recorder/internal/suncalc"
)

const (
	componentStation = "station"

	// stopTimeout bounds how long shutdown waits for queued audio to drain.
	stopTimeout = 10 * time.Second
)

// Options overrides parts of the assembly. The zero value builds everything
// from settings.
type Options struct {
	// Driver replaces the driver named by input.driver.
	Driver audiocore.Driver
	// LogTail supplies the recent log lines shown on the status page.
	LogTail func() []string
	// Now is the clock used by the recorder and the status snapshot.
	Now func() time.Time
	// Listeners are registered after the built-in listeners.
	Listeners []audiocore.Listener
}

// Station is a fully wired recorder.
type Station struct {
	settings    *conf.Settings
	log         logger.Logger
	stopTimeout time.Duration

	recorder  *audiocore.AudioRecorder
	meter     *listeners.LevelMeter
	writer    *listeners.LocalAudioFileWriter
	metrics   *observability.Metrics
	status    *status.Source
	server    *httpcontroller.Server
	publisher *mqtt.Publisher
}

// New builds the station described by settings. Nothing runs until Run.
func New(settings *conf.Settings, build *buildinfo.Context, log logger.Logger, opts Options) (*Station, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component(componentStation).
			Category(errors.CategoryValidation).
			Build()
	}
	if log == nil {
		log = logger.Global()
	}
	s := &Station{settings: settings, log: log.Module(componentStation), stopTimeout: stopTimeout}

	loc, err := loadLocation(settings.Station.TimeZone)
	if err != nil {
		return nil, err
	}

	driver := opts.Driver
	if driver == nil {
		driver, err = sources.NewDriver(settings.Input.Driver, log.Module("audio"))
		if err != nil {
			return nil, err
		}
	}

	sched, err := compileSchedule(settings)
	if err != nil {
		return nil, err
	}

	if settings.Metrics.Enabled {
		if s.metrics, err = observability.NewMetrics(); err != nil {
			return nil, errors.New(err).
				Component(componentStation).
				Category(errors.CategoryConfiguration).
				Context("operation", "init_metrics").
				Build()
		}
	}

	recOpts := []audiocore.RecorderOption{audiocore.WithSchedule(sched)}
	if s.metrics != nil {
		recOpts = append(recOpts, audiocore.WithMetrics(s.metrics.Recorder))
	}
	if opts.Now != nil {
		recOpts = append(recOpts, audiocore.WithClock(opts.Now))
	}
	s.recorder, err = audiocore.NewAudioRecorder(driver, audiocore.RecorderConfig{
		DeviceIndex:     settings.Input.DeviceIndex,
		ChannelCount:    settings.Input.ChannelCount,
		SampleRate:      settings.Input.SampleRate,
		BufferSize:      settings.Input.BufferSize,
		TotalBufferSize: settings.Input.TotalBufferSize,
	}, log.Module("recorder"), recOpts...)
	if err != nil {
		return nil, err
	}

	if err := s.addListeners(log.Module("listeners")); err != nil {
		return nil, err
	}
	for _, l := range opts.Listeners {
		if err := s.recorder.AddListener(l); err != nil {
			return nil, err
		}
	}

	s.status = &status.Source{
		Version: build.GetVersion(),
		Station: status.Station{
			Name:      settings.Station.Name,
			Latitude:  settings.Station.Latitude,
			Longitude: settings.Station.Longitude,
			Location:  loc,
		},
		Recorder: s.recorder,
		LogTail:  opts.LogTail,
		Now:      opts.Now,
	}
	if lat, lon := settings.Station.Latitude, settings.Station.Longitude; lat != nil && lon != nil {
		s.status.Sun = suncalc.NewSunCalc(*lat, *lon, loc)
	}
	// interfaces stay nil for disabled listeners
	if s.meter != nil {
		s.status.LevelMeter = s.meter
	}
	if s.writer != nil {
		s.status.FileWriter = s.writer
	}

	if settings.Server.Enabled {
		s.server, err = httpcontroller.New(httpcontroller.Config{
			Port:    settings.Server.Port,
			Metrics: s.metrics,
		}, s.status, log.Module("http"))
		if err != nil {
			return nil, err
		}
	}

	if settings.MQTT.Enabled {
		if err := s.initPublisher(log.Module("mqtt")); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New(err).
			Component(componentStation).
			Category(errors.CategoryConfiguration).
			Context("time_zone", name).
			Build()
	}
	return loc, nil
}

func compileSchedule(settings *conf.Settings) (*schedule.Schedule, error) {
	mode, err := schedule.ParseCoalesceMode(settings.ScheduleCoalesce)
	if err != nil {
		return nil, err
	}
	return schedule.Compile(settings.Schedule, schedule.Options{
		Latitude:  settings.Station.Latitude,
		Longitude: settings.Station.Longitude,
		TimeZone:  settings.Station.TimeZone,
		Coalesce:  mode,
	})
}

// addListeners registers the logger, then the level meter and file writer
// when enabled.
func (s *Station) addListeners(log logger.Logger) error {
	settings := s.settings
	if err := s.recorder.AddListener(listeners.NewLogger(log.Module("events"))); err != nil {
		return err
	}

	if settings.LevelMeter.Enabled {
		s.meter = listeners.NewLevelMeter(settings.LevelMeter.UpdatePeriod, log.Module("levels"))
		if err := s.recorder.AddListener(s.meter); err != nil {
			return err
		}
		if s.metrics != nil {
			if err := s.metrics.RegisterLevels(s.meter.Levels); err != nil {
				return err
			}
		}
	}

	if settings.LocalRecording.Enabled {
		writer, err := listeners.NewLocalAudioFileWriter(listeners.FileWriterConfig{
			StationName:     settings.Station.Name,
			Dir:             settings.ResolvePath(settings.LocalRecording.RecordingDirPath),
			MaxFileDuration: settings.LocalRecording.MaxAudioFileDuration,
		}, log.Module("files"))
		if err != nil {
			return err
		}
		s.writer = writer
		if err := s.recorder.AddListener(writer); err != nil {
			return err
		}
	}
	return nil
}

func (s *Station) initPublisher(log logger.Logger) error {
	cfg := s.settings.MQTT
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "vesper-" + uuid.NewString()[:8]
	}

	mqttCfg := mqtt.DefaultConfig()
	mqttCfg.Broker = cfg.Broker
	mqttCfg.ClientID = clientID
	mqttCfg.Username = cfg.Username
	mqttCfg.Password = cfg.Password
	mqttCfg.Topic = cfg.Topic
	mqttCfg.Retain = cfg.Retain

	var m *metrics.MQTTMetrics
	if s.metrics != nil {
		m = s.metrics.MQTT
	}
	client, err := mqtt.NewClient(mqttCfg, m, log)
	if err != nil {
		return err
	}
	interval := time.Duration(cfg.Interval * float64(time.Second))
	s.publisher, err = mqtt.NewPublisher(client, s.status, cfg.Topic, interval, log)
	return err
}

// Run starts the recorder and the enabled status surfaces and blocks until
// ctx is done. The recorder is then stopped and its queued audio drained.
//
// A recorder that fails to start ends Run with the error. A stream that
// fails later leaves the recorder stopped; the failure is reported through
// the status surfaces until shutdown.
func (s *Station) Run(ctx context.Context) error {
	s.logSystemDetails()

	g, gctx := errgroup.WithContext(ctx)
	if s.server != nil {
		g.Go(func() error { return s.server.Run(gctx) })
	}
	if s.publisher != nil {
		g.Go(func() error { return s.publisher.Run(gctx) })
	}
	g.Go(func() error { return s.record(gctx) })
	return g.Wait()
}

func (s *Station) record(ctx context.Context) error {
	if err := s.recorder.Start(); err != nil {
		s.closeWriter()
		return err
	}
	s.log.Info("station running",
		logger.String("station", s.settings.Station.Name),
		logger.Int("scheduled_intervals", s.recorder.Schedule().Len()))

	select {
	case <-ctx.Done():
	case <-s.recorder.Done():
		if err := s.recorder.Err(); err != nil {
			s.log.Error("recorder stopped, waiting for shutdown", logger.Error(err))
		}
		<-ctx.Done()
	}

	s.log.Info("stopping recorder")
	stopErr := s.recorder.Stop()
	if !s.recorder.WaitTimeout(s.stopTimeout) {
		// the consumer still owns the writer; it closes the file when it
		// delivers the final recording_stopped
		s.log.Warn("recorder did not drain before timeout, leaving audio file open",
			logger.Duration("timeout", s.stopTimeout))
		return stopErr
	}
	s.closeWriter()
	return stopErr
}

func (s *Station) closeWriter() {
	if s.writer == nil {
		return
	}
	if err := s.writer.Close(); err != nil {
		s.log.Warn("closing audio file failed", logger.Error(err))
	}
}

func (s *Station) logSystemDetails() {
	info, err := host.Info()
	if err != nil {
		s.log.Debug("host details unavailable", logger.Error(err))
		return
	}
	s.log.Info("system details",
		logger.String("os", info.OS),
		logger.String("platform", info.Platform),
		logger.String("platform_version", info.PlatformVersion),
		logger.String("arch", info.KernelArch),
		logger.String("hostname", info.Hostname))
}

// Recorder returns the station's recorder.
func (s *Station) Recorder() *audiocore.AudioRecorder { return s.recorder }

// Status returns the source of status snapshots.
func (s *Station) Status() *status.Source { return s.status }

// Server returns the HTTP server, or nil when it is disabled.
func (s *Station) Server() *httpcontroller.Server { return s.server }

// Metrics returns the metrics registry, or nil when metrics are disabled.
func (s *Station) Metrics() *observability.Metrics { return s.metrics }
