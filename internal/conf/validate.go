// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateStationSettings,
		validateInputSettings,
		validateScheduleSettings,
		validateListenerSettings,
		validateServerSettings,
		validateMQTTSettings,
		validateLoggingSettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateStationSettings(s *Settings) []string {
	var errs []string
	st := &s.Station
	if strings.TrimSpace(st.Name) == "" {
		errs = append(errs, "station name must not be empty")
	}
	if (st.Latitude == nil) != (st.Longitude == nil) {
		errs = append(errs, "station latitude and longitude must be set together")
	}
	if st.Latitude != nil && (*st.Latitude < -90 || *st.Latitude > 90) {
		errs = append(errs, fmt.Sprintf("station latitude %v must be between -90 and 90", *st.Latitude))
	}
	if st.Longitude != nil && (*st.Longitude < -180 || *st.Longitude > 180) {
		errs = append(errs, fmt.Sprintf("station longitude %v must be between -180 and 180", *st.Longitude))
	}
	if st.TimeZone != "" {
		if _, err := time.LoadLocation(st.TimeZone); err != nil {
			errs = append(errs, fmt.Sprintf("unrecognized station time zone %q", st.TimeZone))
		}
	}
	return errs
}

func validateInputSettings(s *Settings) []string {
	var errs []string
	in := &s.Input
	switch in.Driver {
	case "", "soundcard", "synthetic":
	default:
		errs = append(errs, fmt.Sprintf("input driver must be \"soundcard\" or \"synthetic\", got %q", in.Driver))
	}
	if in.DeviceIndex < 0 {
		errs = append(errs, "input device index must not be negative")
	}
	if in.ChannelCount < 1 {
		errs = append(errs, "input channel count must be at least 1")
	}
	if in.SampleRate <= 0 {
		errs = append(errs, "input sample rate must be positive")
	}
	if in.BufferSize <= 0 {
		errs = append(errs, "input buffer size must be positive")
	}
	if in.TotalBufferSize < in.BufferSize {
		errs = append(errs, "input total buffer size must be at least the buffer size")
	}
	return errs
}

func validateScheduleSettings(s *Settings) []string {
	switch s.ScheduleCoalesce {
	case "", "touching", "overlapping":
		return nil
	default:
		return []string{fmt.Sprintf("schedule_coalesce must be \"touching\" or \"overlapping\", got %q", s.ScheduleCoalesce)}
	}
}

func validateListenerSettings(s *Settings) []string {
	var errs []string
	if s.LevelMeter.Enabled && s.LevelMeter.UpdatePeriod <= 0 {
		errs = append(errs, "level meter update period must be positive")
	}
	if s.LocalRecording.Enabled {
		if s.LocalRecording.RecordingDirPath == "" {
			errs = append(errs, "local recording directory must not be empty")
		}
		if s.LocalRecording.MaxAudioFileDuration <= 0 {
			errs = append(errs, "local recording max audio file duration must be positive")
		}
	}
	return errs
}

func validateServerSettings(s *Settings) []string {
	if s.Server.Enabled && (s.Server.Port < 1 || s.Server.Port > 65535) {
		return []string{fmt.Sprintf("server port %d out of range", s.Server.Port)}
	}
	return nil
}

func validateMQTTSettings(s *Settings) []string {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.Broker == "" {
		errs = append(errs, "mqtt broker must be set when mqtt is enabled")
	} else if u, err := url.Parse(m.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid mqtt broker URL %q", m.Broker))
	}
	if m.Topic == "" {
		errs = append(errs, "mqtt topic must be set when mqtt is enabled")
	}
	if m.Interval <= 0 {
		errs = append(errs, "mqtt publish interval must be positive")
	}
	return errs
}

func validateLoggingSettings(s *Settings) []string {
	var errs []string
	levels := map[string]string{"logging.level": s.Logging.Level}
	for module, level := range s.Logging.ModuleLevels {
		levels["logging.module_levels."+module] = level
	}
	for key, level := range levels {
		switch strings.ToLower(level) {
		case "", "trace", "debug", "info", "warn", "warning", "error":
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown log level %q", key, level))
		}
	}
	if s.Logging.File.Enabled && s.Logging.File.Path == "" {
		errs = append(errs, "log file path must be set when file logging is enabled")
	}
	return errs
}
