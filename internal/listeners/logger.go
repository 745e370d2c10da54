package listeners

import (
	"time"

	"github.com/google/uuid"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/logger"
)

// Logger logs recording spans and overflow. Consecutive overflowed buffers
// are reported as a run: one message when the run starts and one summarizing
// it when the run ends.
type Logger struct {
	audiocore.BaseListener

	log        logger.Logger
	sampleRate int
	session    string

	inputOverflowBuffers   int
	recorderOverflowFrames int
}

// NewLogger returns a Logger listener writing to log.
func NewLogger(log logger.Logger) *Logger {
	if log == nil {
		log = logger.Global().Module("listeners")
	}
	return &Logger{log: log}
}

func (l *Logger) Name() string { return "logger" }

// Session returns the ID of the current or last recording span. It is not
// safe to call while the recorder is running.
func (l *Logger) Session() string { return l.session }

func (l *Logger) RecordingStarted(r audiocore.RecorderInfo, t time.Time) error {
	l.sampleRate = r.SampleRate()
	l.session = uuid.NewString()
	l.log.Info("recording started",
		logger.String("session", l.session),
		logger.Time("start", t))
	return nil
}

func (l *Logger) InputArrived(_ audiocore.RecorderInfo, _ time.Time, _ []byte, _ int, inputOverflow bool) error {
	l.logInputOverflow(inputOverflow)
	l.logRecorderOverflow(false, 0)
	return nil
}

func (l *Logger) InputOverflowed(_ audiocore.RecorderInfo, _ time.Time, frames int, inputOverflow bool) error {
	l.logInputOverflow(inputOverflow)
	l.logRecorderOverflow(true, frames)
	return nil
}

func (l *Logger) RecordingStopped(r audiocore.RecorderInfo, t time.Time) error {
	l.logInputOverflow(false)
	l.logRecorderOverflow(false, 0)
	if err := r.Err(); err != nil {
		l.log.Error("recording stopped by failure, restart the recorder to resume",
			logger.String("session", l.session),
			logger.Error(err))
	}
	l.log.Info("recording stopped",
		logger.String("session", l.session),
		logger.Time("stop", t))
	return nil
}

// logInputOverflow reports overflow flagged by the audio driver, which does
// not say how many samples were lost.
func (l *Logger) logInputOverflow(overflow bool) {
	if overflow {
		if l.inputOverflowBuffers == 0 {
			l.log.Error("driver input overflow: samples were dropped before or during the current buffer, " +
				"a second message will report the number of consecutive buffers affected")
		}
		l.inputOverflowBuffers++
		return
	}
	if l.inputOverflowBuffers > 0 {
		l.log.Error("driver input overflow ended",
			logger.Int("consecutive_buffers", l.inputOverflowBuffers))
		l.inputOverflowBuffers = 0
	}
}

// logRecorderOverflow reports deliveries that found the buffer pool empty.
func (l *Logger) logRecorderOverflow(overflow bool, frames int) {
	if overflow {
		if l.recorderOverflowFrames == 0 {
			l.log.Error("recorder input overflow: out of buffers, substituting zero samples until buffers " +
				"become available")
		}
		l.recorderOverflowFrames += frames
		return
	}
	if l.recorderOverflowFrames > 0 {
		seconds := 0.0
		if l.sampleRate > 0 {
			seconds = float64(l.recorderOverflowFrames) / float64(l.sampleRate)
		}
		l.log.Error("recorder input overflow ended, zero samples were substituted for lost input",
			logger.Int("frames", l.recorderOverflowFrames),
			logger.Float64("seconds", seconds))
		l.recorderOverflowFrames = 0
	}
}
