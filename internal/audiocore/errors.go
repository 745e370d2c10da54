package audiocore

import (
	"fmt"

	"github.com/vesperrec/vesper-recorder/internal/errors"
)

// ComponentAudioCore identifies audiocore errors.
const ComponentAudioCore = "audiocore"

// Sentinel errors, matched with errors.Is.
var (
	// ErrDevice is returned by Start for an invalid device index or
	// unsupported stream parameters, and wraps driver failures.
	ErrDevice = errors.NewStd("audio device error")

	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.NewStd("recorder already started")

	// ErrListenersFrozen is returned by AddListener after Start.
	ErrListenersFrozen = errors.NewStd("listeners cannot be added after start")

	// ErrStreamStopped is recorded when the driver stops the stream on its own.
	ErrStreamStopped = errors.NewStd("audio stream stopped unexpectedly")
)

// deviceError wraps cause with ErrDevice and attaches key/value context.
func deviceError(cause error, msg string, kv ...any) error {
	err := fmt.Errorf("%w: %s", ErrDevice, msg)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", ErrDevice, msg, cause)
	}
	b := errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryAudioDevice)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			b = b.Context(key, kv[i+1])
		}
	}
	return b.Build()
}

func stateError(sentinel error, state State) error {
	return errors.New(sentinel).
		Component(ComponentAudioCore).
		Category(errors.CategoryState).
		Context("state", state.String()).
		Build()
}
