package supervisor

import (
	"strings"
	"sync"
	"time"
)

// LogBuffer is a bounded, thread-safe ring of captured output lines
type LogBuffer struct {
	mu    sync.RWMutex
	lines []LogLine
	max   int
}

// LogLine is one captured line of worker output
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Content   string    `json:"content"`
}

// NewLogBuffer creates a buffer keeping at most max lines
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 500
	}
	return &LogBuffer{max: max}
}

// Append adds a log line, evicting the oldest once full
func (lb *LogBuffer) Append(stream, content string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, LogLine{
		Timestamp: time.Now(),
		Stream:    stream,
		Content:   content,
	})
	if over := len(lb.lines) - lb.max; over > 0 {
		lb.lines = append(lb.lines[:0], lb.lines[over:]...)
	}
}

// Tail returns the last n lines (all lines when n <= 0)
func (lb *LogBuffer) Tail(n int) []LogLine {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	start := 0
	if n > 0 && n < len(lb.lines) {
		start = len(lb.lines) - n
	}
	out := make([]LogLine, len(lb.lines)-start)
	copy(out, lb.lines[start:])
	return out
}

// Since returns lines captured after the given time
func (lb *LogBuffer) Since(since time.Time) []LogLine {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	var out []LogLine
	for _, l := range lb.lines {
		if l.Timestamp.After(since) {
			out = append(out, l)
		}
	}
	return out
}

// Contains checks if any line contains pattern
func (lb *LogBuffer) Contains(pattern string) bool {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	for _, l := range lb.lines {
		if strings.Contains(l.Content, pattern) {
			return true
		}
	}
	return false
}

// Len returns the number of buffered lines
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.lines)
}
