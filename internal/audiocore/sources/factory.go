// Package sources creates audio drivers and resolves device selectors.
package sources

import (
	"strconv"
	"strings"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/audiocore/sources/malgo"
	"github.com/vesperrec/vesper-recorder/internal/audiocore/sources/synthetic"
	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/logger"
)

// Driver kinds accepted by NewDriver.
const (
	DriverSoundcard = "soundcard"
	DriverSynthetic = "synthetic"
)

// NewDriver creates the driver named by kind. An empty kind selects the
// soundcard.
func NewDriver(kind string, log logger.Logger) (audiocore.Driver, error) {
	switch kind {
	case "", DriverSoundcard, "malgo":
		return malgo.NewDriver(log)
	case DriverSynthetic:
		return synthetic.NewDriver(), nil
	default:
		return nil, errors.Newf("unknown audio driver: %s", kind).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("driver", kind).
			Build()
	}
}

// ResolveDevice finds a device by selector: "default" (or empty) for the
// system default, a decimal device index, an exact name, or a name
// substring, tried in that order.
func ResolveDevice(devices []audiocore.InputDevice, selector string) (audiocore.InputDevice, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" || selector == "default" || selector == "sysdefault" {
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		for _, d := range devices {
			if d.Index == idx {
				return d, nil
			}
		}
	}
	for _, d := range devices {
		if d.Name == selector {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), strings.ToLower(selector)) {
			return d, nil
		}
	}

	return audiocore.InputDevice{}, errors.Newf("no matching audio device found: %q", selector).
		Component("audiocore").
		Category(errors.CategoryAudioDevice).
		Context("device", selector).
		Context("available_devices", len(devices)).
		Build()
}
