package malgo

import (
	"encoding/hex"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/errors"
)

// backendForPlatform returns the capture backend for goos.
func backendForPlatform(goos string) (malgo.Backend, error) {
	switch goos {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system: %s", goos).
			Component(componentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("os", goos).
			Build()
	}
}

// isDiscardDevice reports whether name is the ALSA null sink, which shows up
// as a capture device but never delivers audio.
func isDiscardDevice(name string) bool {
	return strings.Contains(name, "Discard all samples")
}

// maxChannels returns the largest channel count among the native formats.
func maxChannels(formats []malgo.DataFormat) int {
	n := 0
	for _, f := range formats {
		n = max(n, int(f.Channels))
	}
	return n
}

// describeDevices converts malgo device infos to InputDevices. The index of a
// device is its position in infos so it can be looked up again on open.
// details fetches full info for a device; it may be nil.
func describeDevices(infos []malgo.DeviceInfo, details func(*malgo.DeviceInfo) (malgo.DeviceInfo, error)) []audiocore.InputDevice {
	devices := make([]audiocore.InputDevice, 0, len(infos))
	for i := range infos {
		info := &infos[i]
		name := info.Name()
		if isDiscardDevice(name) {
			continue
		}
		formats := info.Formats
		if details != nil {
			if full, err := details(info); err == nil && len(full.Formats) > 0 {
				formats = full.Formats
			}
		}
		devices = append(devices, audiocore.InputDevice{
			Index:             i,
			Name:              name,
			InputChannelCount: maxChannels(formats),
			Default:           info.IsDefault == 1,
		})
	}
	return devices
}

// hexToASCII decodes a hex encoded device ID. ALSA IDs decode to strings
// such as ":1,0".
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
