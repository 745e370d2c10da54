// Package malgo implements audiocore.Driver on top of miniaudio through malgo.
//
// Each stream owns its own malgo context so device listing and capture never
// share native state. Samples are always requested as signed 16-bit PCM and
// miniaudio converts from the device's native format.
package malgo

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/logger"
)

const componentMalgo = "audiocore.malgo"

// errUnexpectedStop is passed to the stop callback when the device stops
// without being asked to.
var errUnexpectedStop = errors.NewStd("audio device stopped unexpectedly")

// Driver is a soundcard driver backed by the platform audio API.
type Driver struct {
	log     logger.Logger
	backend malgo.Backend
}

var _ audiocore.Driver = (*Driver)(nil)

// NewDriver returns a driver for the current platform.
func NewDriver(log logger.Logger) (*Driver, error) {
	backend, err := backendForPlatform(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Global().Module("malgo")
	}
	return &Driver{log: log, backend: backend}, nil
}

func (d *Driver) initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{d.backend}, malgo.ContextConfig{}, func(msg string) {
		d.log.Debug("malgo", logger.String("message", msg))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

func freeContext(ctx *malgo.AllocatedContext, log logger.Logger) {
	if err := ctx.Uninit(); err != nil {
		log.Warn("releasing audio context failed", logger.Error(err))
	}
	ctx.Free()
}

func captureDevices(ctx *malgo.AllocatedContext) ([]malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}
	return infos, nil
}

// InputDevices lists capture devices.
func (d *Driver) InputDevices() ([]audiocore.InputDevice, error) {
	ctx, err := d.initContext()
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx, d.log)

	infos, err := captureDevices(ctx)
	if err != nil {
		return nil, err
	}
	return describeDevices(infos, func(info *malgo.DeviceInfo) (malgo.DeviceInfo, error) {
		return ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
	}), nil
}

// OpenStream opens the capture device at cfg.DeviceIndex. The stream does not
// deliver data until Start.
func (d *Driver) OpenStream(cfg audiocore.StreamConfig, cb audiocore.StreamCallbacks) (audiocore.Stream, error) {
	ctx, err := d.initContext()
	if err != nil {
		return nil, err
	}
	infos, err := captureDevices(ctx)
	if err != nil {
		freeContext(ctx, d.log)
		return nil, err
	}
	if cfg.DeviceIndex < 0 || cfg.DeviceIndex >= len(infos) || isDiscardDevice(infos[cfg.DeviceIndex].Name()) {
		freeContext(ctx, d.log)
		return nil, errors.Newf("no capture device at index %d", cfg.DeviceIndex).
			Component(componentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("device_index", cfg.DeviceIndex).
			Context("device_count", len(infos)).
			Build()
	}
	info := &infos[cfg.DeviceIndex]

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.ChannelCount)
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	deviceConfig.Alsa.NoMMap = 1

	s := &stream{
		ctx:        ctx,
		cb:         cb,
		sampleRate: cfg.SampleRate,
		log:        d.log,
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		freeContext(ctx, d.log)
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("device_name", info.Name()).
			Build()
	}
	s.device = device

	id, err := hexToASCII(info.ID.String())
	if err != nil {
		id = info.ID.String()
	}
	d.log.Debug("capture device opened",
		logger.String("device_name", info.Name()),
		logger.String("device_id", id),
		logger.Int("channels", cfg.ChannelCount),
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Int("period_frames", cfg.FramesPerBuffer))
	return s, nil
}

// stream is an open capture device.
type stream struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	cb         audiocore.StreamCallbacks
	sampleRate int
	log        logger.Logger

	stopping  atomic.Bool
	closeOnce sync.Once
}

func (s *stream) Start() error {
	s.stopping.Store(false)
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

func (s *stream) Stop() error {
	s.stopping.Store(true)
	if err := s.device.Stop(); err != nil {
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioStream).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		s.device.Uninit()
		freeContext(s.ctx, s.log)
	})
	return nil
}

// onData runs on the audio thread. in is only valid for the duration of the
// call.
func (s *stream) onData(_, in []byte, frameCount uint32) {
	frames := int(frameCount)
	captureTime := captureStart(time.Now(), frames, s.sampleRate)
	s.cb.Data(in, frames, captureTime, false)
}

// onStop is called by miniaudio for requested and unrequested stops alike.
func (s *stream) onStop() {
	if s.stopping.Load() || s.cb.Stop == nil {
		return
	}
	s.cb.Stop(errUnexpectedStop)
}

// captureStart estimates when the first frame of a period was captured from
// the time the period was handed to us.
func captureStart(now time.Time, frames, sampleRate int) time.Time {
	if sampleRate <= 0 {
		return now
	}
	return now.Add(-time.Duration(frames) * time.Second / time.Duration(sampleRate))
}
