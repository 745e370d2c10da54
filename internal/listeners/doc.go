// Package listeners contains the recorder's reference listeners.
//
// Logger writes recording and overflow diagnostics to the log, LevelMeter
// computes RMS and peak levels per channel, and LocalAudioFileWriter writes
// recorded audio to rotating WAV files.
//
// Listener callbacks run on the recorder's consumer goroutine, one at a
// time, so listener state needs no locking. Each listener's View may be read
// from any goroutine.
package listeners
