package listeners

import (
	"fmt"

	"github.com/vesperrec/vesper-recorder/internal/errors"
)

const componentListeners = "listeners"

// ErrPersistence marks failures to open, write or close an audio file.
var ErrPersistence = errors.NewStd("audio persistence failed")

func persistenceError(cause error, op, path string) error {
	return errors.New(fmt.Errorf("%w: %s %s: %w", ErrPersistence, op, path, cause)).
		Component(componentListeners).
		Category(errors.CategoryPersistence).
		Context("operation", op).
		Context("path", path).
		Build()
}
