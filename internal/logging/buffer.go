package logging

import (
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// DefaultBufferedLines is the number of lines a LineBuffer keeps.
	DefaultBufferedLines = 100
)

// LineBuffer is an io.Writer keeping the most recent complete lines in a
// circular buffer. The dashboard shows its tail instead of letting log
// output scroll the terminal.
type LineBuffer struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial strings.Builder
}

// NewLineBuffer creates a buffer holding up to size lines.
func NewLineBuffer(size int) *LineBuffer {
	if size < 1 {
		size = DefaultBufferedLines
	}
	return &LineBuffer{lines: make([]string, size)}
}

// Write implements io.Writer. Text after the last newline is held until the
// line completes.
func (b *LineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			b.partial.WriteString(s)
			break
		}
		b.partial.WriteString(s[:i])
		b.push(b.partial.String())
		b.partial.Reset()
		s = s[i+1:]
	}
	return len(p), nil
}

// push requires mu held.
func (b *LineBuffer) push(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

// RecentLines returns up to n most recent lines, oldest first.
func (b *LineBuffer) RecentLines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := b.next
	if b.full {
		stored = len(b.lines)
	}
	if n > stored {
		n = stored
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (b.next - n + i + len(b.lines)) % len(b.lines)
		out = append(out, b.lines[idx])
	}
	return out
}
