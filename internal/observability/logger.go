package observability

import (
	"fmt"

	"github.com/vesperrec/vesper-recorder/internal/logger"
)

// promLogger routes promhttp errors to the global logger. The logger is
// looked up on each call so that it follows SetGlobal.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	logger.Global().Module("metrics").Warn("metrics handler error",
		logger.String("detail", fmt.Sprint(v...)))
}
