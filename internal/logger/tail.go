package logger

import (
	"strings"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// tailBuffer keeps the most recent log output in a fixed-size ring. Oldest
// bytes are discarded to make room for new writes.
type tailBuffer struct {
	mu      sync.Mutex
	rb      *ringbuffer.RingBuffer
	trimmed bool
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{rb: ringbuffer.New(size)}
}

// Write implements io.Writer.
func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.mu.Lock()
	defer t.mu.Unlock()

	if capacity := t.rb.Capacity(); len(p) > capacity {
		p = p[len(p)-capacity:]
		t.trimmed = true
	}
	if free := t.rb.Free(); len(p) > free {
		discard := make([]byte, len(p)-free)
		if _, err := t.rb.Read(discard); err != nil {
			return 0, err
		}
		t.trimmed = true
	}
	if _, err := t.rb.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}

// snapshot copies the buffered bytes without consuming them.
func (t *tailBuffer) snapshot() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	length := t.rb.Length()
	if length == 0 {
		return nil
	}
	buf := make([]byte, length)
	n, err := t.rb.Read(buf)
	if err != nil {
		return nil
	}
	buf = buf[:n]
	_, _ = t.rb.Write(buf)
	return buf
}

// Lines returns complete buffered lines, oldest first.
func (t *tailBuffer) Lines() []string {
	buf := t.snapshot()
	if len(buf) == 0 {
		return nil
	}
	text := strings.TrimRight(string(buf), "\n")
	lines := strings.Split(text, "\n")

	t.mu.Lock()
	trimmed := t.trimmed
	t.mu.Unlock()
	// after a discard the first line may be a fragment
	if trimmed && len(lines) > 0 {
		lines = lines[1:]
	}
	return lines
}
