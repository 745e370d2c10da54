package listeners

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/vesperrec/vesper-recorder/internal/audiocore"
	"github.com/vesperrec/vesper-recorder/internal/errors"
	"github.com/vesperrec/vesper-recorder/internal/logger"
)

const (
	// AudioFileExtension is the extension of written audio files.
	AudioFileExtension = ".wav"

	fileTimeLayout = "2006-01-02_15.04.05"
	wavFormatPCM   = 1
	dirPermission  = 0o755
)

// FileNamer names audio files after the station and the UTC time of their
// first frame.
type FileNamer struct {
	StationName string
	Extension   string
}

// Name returns the file name for a file starting at t.
func (n FileNamer) Name(t time.Time) string {
	return fmt.Sprintf("%s_%s_Z%s", n.StationName, t.UTC().Format(fileTimeLayout), n.Extension)
}

// FileWriterConfig configures a LocalAudioFileWriter.
type FileWriterConfig struct {
	StationName     string
	Dir             string
	MaxFileDuration float64 // seconds
}

// LocalAudioFileWriter writes recorded audio to 16-bit PCM WAV files,
// starting a new file once the current one holds MaxFileDuration seconds.
// Lost frames are written as zeros so files keep their nominal duration.
//
// A failure to open, write or close a file marks the writer unavailable; it
// ignores audio until the next recording span, when it tries again.
type LocalAudioFileWriter struct {
	audiocore.BaseListener

	cfg   FileWriterConfig
	namer FileNamer
	log   logger.Logger
	free  func(path string) (uint64, error)

	channels      int
	sampleRate    int
	frameBytes    int
	maxFileFrames int
	failed        bool

	file       *os.File
	path       string
	enc        *wav.Encoder
	fileFrames int
	ints       *audio.IntBuffer

	mu           sync.RWMutex
	current      string
	filesWritten int
	available    bool
	lastErr      error
}

// FileWriterView is a snapshot of the writer for status reporting.
type FileWriterView struct {
	Dir             string  `json:"dir"`
	MaxFileDuration float64 `json:"maxFileDuration"` // seconds
	CurrentFile     string  `json:"currentFile,omitempty"`
	FilesWritten    int     `json:"filesWritten"`
	Available       bool    `json:"available"`
	LastError       string  `json:"lastError,omitempty"`
	FreeBytes       uint64  `json:"freeBytes,omitempty"`
}

// NewLocalAudioFileWriter returns a writer for cfg. The output directory is
// made absolute and created if missing; failing to create it leaves the
// writer unavailable until a recording span starts.
func NewLocalAudioFileWriter(cfg FileWriterConfig, log logger.Logger) (*LocalAudioFileWriter, error) {
	if cfg.MaxFileDuration <= 0 || math.IsNaN(cfg.MaxFileDuration) {
		return nil, errors.Newf("max file duration must be positive, got %v", cfg.MaxFileDuration).
			Component(componentListeners).
			Category(errors.CategoryValidation).
			Build()
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, errors.New(err).
			Component(componentListeners).
			Category(errors.CategoryValidation).
			Context("dir", cfg.Dir).
			Build()
	}
	cfg.Dir = dir
	if log == nil {
		log = logger.Global().Module("listeners")
	}

	w := &LocalAudioFileWriter{
		cfg:   cfg,
		namer: FileNamer{StationName: cfg.StationName, Extension: AudioFileExtension},
		log:   log,
		free:  freeDiskSpace,
		ints:  &audio.IntBuffer{Format: &audio.Format{}, SourceBitDepth: audiocore.SampleBits},
	}
	w.setAvailable(w.ensureDir() == nil)
	return w, nil
}

func (w *LocalAudioFileWriter) Name() string { return "local_audio_file_writer" }

// Dir returns the absolute output directory.
func (w *LocalAudioFileWriter) Dir() string { return w.cfg.Dir }

func (w *LocalAudioFileWriter) ensureDir() error {
	if err := os.MkdirAll(w.cfg.Dir, dirPermission); err != nil {
		err = persistenceError(err, "create directory", w.cfg.Dir)
		w.setFailure(err)
		return err
	}
	return nil
}

func (w *LocalAudioFileWriter) RecordingStarting(r audiocore.RecorderInfo, _ time.Time) error {
	w.channels = r.ChannelCount()
	w.sampleRate = r.SampleRate()
	w.frameBytes = w.channels * r.SampleSize()
	w.maxFileFrames = max(1, int(math.Round(w.cfg.MaxFileDuration*float64(w.sampleRate))))
	w.ints.Format.NumChannels = w.channels
	w.ints.Format.SampleRate = w.sampleRate

	w.failed = false
	if err := w.ensureDir(); err != nil {
		w.failed = true
		return err
	}
	w.setAvailable(true)
	return nil
}

func (w *LocalAudioFileWriter) InputArrived(_ audiocore.RecorderInfo, t time.Time, samples []byte, frames int, _ bool) error {
	return w.write(t, samples, frames)
}

func (w *LocalAudioFileWriter) InputOverflowed(_ audiocore.RecorderInfo, t time.Time, frames int, _ bool) error {
	return w.write(t, nil, frames)
}

func (w *LocalAudioFileWriter) RecordingStopped(audiocore.RecorderInfo, time.Time) error {
	if err := w.closeFile(); err != nil {
		return w.fail(err)
	}
	return nil
}

// Close closes any open file. It must not be called while the recorder
// is running.
func (w *LocalAudioFileWriter) Close() error {
	return w.closeFile()
}

// write appends frames starting at capture time t, rotating files as they
// fill. A nil samples slice writes zeros.
func (w *LocalAudioFileWriter) write(t time.Time, samples []byte, frames int) error {
	if w.failed || w.frameBytes == 0 {
		return nil
	}
	for done := 0; done < frames; {
		if w.enc == nil {
			start := t.Add(time.Duration(done) * time.Second / time.Duration(w.sampleRate))
			if err := w.openFile(start); err != nil {
				return w.fail(err)
			}
		}
		n := min(frames-done, w.maxFileFrames-w.fileFrames)
		var chunk []byte
		if samples != nil {
			chunk = samples[done*w.frameBytes : (done+n)*w.frameBytes]
		}
		if err := w.encode(chunk, n); err != nil {
			return w.fail(err)
		}
		w.fileFrames += n
		done += n
		if w.fileFrames == w.maxFileFrames {
			if err := w.closeFile(); err != nil {
				return w.fail(err)
			}
		}
	}
	return nil
}

func (w *LocalAudioFileWriter) encode(chunk []byte, frames int) error {
	count := frames * w.channels
	data := w.ints.Data[:0]
	if chunk == nil {
		for range count {
			data = append(data, 0)
		}
	} else {
		for i := range count {
			data = append(data, int(int16(binary.LittleEndian.Uint16(chunk[i*audiocore.SampleSize:]))))
		}
	}
	w.ints.Data = data
	if err := w.enc.Write(w.ints); err != nil {
		return persistenceError(err, "write", w.path)
	}
	return nil
}

func (w *LocalAudioFileWriter) openFile(start time.Time) error {
	path := uniquePath(filepath.Join(w.cfg.Dir, w.namer.Name(start)))
	f, err := os.Create(path)
	if err != nil {
		return persistenceError(err, "create", path)
	}
	w.file = f
	w.path = path
	w.enc = wav.NewEncoder(f, w.sampleRate, audiocore.SampleBits, w.channels, wavFormatPCM)
	w.fileFrames = 0

	w.mu.Lock()
	w.current = path
	w.mu.Unlock()

	w.log.Info("audio file opened", logger.String("path", path))
	return nil
}

// closeFile finalizes the WAV header and closes the file.
func (w *LocalAudioFileWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	encErr := w.enc.Close()
	closeErr := w.file.Close()
	path, frames := w.path, w.fileFrames
	w.file, w.enc, w.path, w.fileFrames = nil, nil, "", 0

	w.mu.Lock()
	w.current = ""
	if encErr == nil && closeErr == nil {
		w.filesWritten++
	}
	w.mu.Unlock()

	switch {
	case encErr != nil:
		return persistenceError(encErr, "finalize", path)
	case closeErr != nil:
		return persistenceError(closeErr, "close", path)
	}
	w.log.Info("audio file closed",
		logger.String("path", path),
		logger.Int("frames", frames))
	return nil
}

// fail marks the writer unavailable for the rest of the recording span.
func (w *LocalAudioFileWriter) fail(err error) error {
	w.failed = true
	if w.file != nil {
		_ = w.enc.Close()
		_ = w.file.Close()
		w.file, w.enc, w.path, w.fileFrames = nil, nil, "", 0
	}
	w.mu.Lock()
	w.current = ""
	w.mu.Unlock()
	w.setFailure(err)
	return err
}

func (w *LocalAudioFileWriter) setFailure(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.available = false
	w.lastErr = err
}

func (w *LocalAudioFileWriter) setAvailable(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.available = ok
}

// View returns a snapshot for status reporting.
func (w *LocalAudioFileWriter) View() FileWriterView {
	w.mu.RLock()
	v := FileWriterView{
		Dir:             w.cfg.Dir,
		MaxFileDuration: w.cfg.MaxFileDuration,
		CurrentFile:     filepath.Base(w.current),
		FilesWritten:    w.filesWritten,
		Available:       w.available,
	}
	if w.current == "" {
		v.CurrentFile = ""
	}
	if w.lastErr != nil {
		v.LastError = w.lastErr.Error()
	}
	w.mu.RUnlock()

	if free, err := w.free(w.cfg.Dir); err == nil {
		v.FreeBytes = free
	}
	return v
}

func freeDiskSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// uniquePath appends a counter to path when a file of that name exists, so
// two files starting in the same second do not overwrite each other.
func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for i := 2; ; i++ {
		p := fmt.Sprintf("%s-%d%s", base, i, ext)
		if _, err := os.Stat(p); err != nil {
			return p
		}
	}
}
