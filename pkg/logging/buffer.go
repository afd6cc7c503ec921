package logging

import (
	"strings"
	"sync"
)

const captureLines = 200

// LogCaptureWriter is a thread-safe writer that keeps the most recent lines.
type LogCaptureWriter struct {
	mu    sync.RWMutex
	lines []string
	next  int
	full  bool
}

// GlobalLogCapture is the singleton instance for capturing logs.
var GlobalLogCapture = NewLogCaptureWriter(captureLines)

// NewLogCaptureWriter creates a ring of the given size.
func NewLogCaptureWriter(size int) *LogCaptureWriter {
	if size < 1 {
		size = 1
	}
	return &LogCaptureWriter{lines: make([]string, size)}
}

// Write implements io.Writer. Each call is stored as one line.
func (w *LogCaptureWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimRight(string(p), "\n")

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines[w.next] = line
	w.next = (w.next + 1) % len(w.lines)
	if w.next == 0 {
		w.full = true
	}
	return len(p), nil
}

// GetLastLine returns the most recent log line.
func (w *LogCaptureWriter) GetLastLine() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.full && w.next == 0 {
		return ""
	}
	return w.lines[(w.next-1+len(w.lines))%len(w.lines)]
}

// Tail returns up to n lines, oldest first.
func (w *LogCaptureWriter) Tail(n int) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	count := w.next
	if w.full {
		count = len(w.lines)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]string, 0, n)
	for i := count - n; i < count; i++ {
		idx := i
		if w.full {
			idx = (w.next + i) % len(w.lines)
		}
		out = append(out, w.lines[idx])
	}
	return out
}
