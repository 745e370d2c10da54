package logger

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

type loggerHolder struct{ Logger }

var global atomic.Pointer[loggerHolder]

// Global returns the process-wide logger. Until SetGlobal is called it is a
// text logger on stderr at info level.
func Global() Logger {
	if h := global.Load(); h != nil {
		return h.Logger
	}
	def := &loggerHolder{Logger: &moduleLogger{
		logger: slog.New(newTextHandler(os.Stderr, parseSlogLevel(LogLevelInfo), time.UTC, true)),
		level:  parseSlogLevel(LogLevelInfo),
	}}
	if global.CompareAndSwap(nil, def) {
		return def.Logger
	}
	return global.Load().Logger
}

// SetGlobal replaces the process-wide logger. Loggers already derived from
// the previous one keep writing to it.
func SetGlobal(l Logger) {
	if l == nil {
		return
	}
	global.Store(&loggerHolder{Logger: l})
}
