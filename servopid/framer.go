package servopid

import (
	"strings"
	"sync"
)

// MaxPendingLine bounds the bytes buffered without any line separator.
// Anything longer is garbage and is discarded.
const MaxPendingLine = 4096

const lineSeparators = "\r\n"

// LineFramer turns a fragmented byte stream into complete lines. Feed may
// be called from the transport's delivery goroutine while other goroutines
// call Reset or Pending.
type LineFramer struct {
	mu      sync.Mutex
	buf     strings.Builder
	dropped int
}

// Feed appends chunk and returns every line completed by it, trimmed of
// surrounding whitespace. A trailing partial line stays buffered.
func (f *LineFramer) Feed(chunk []byte) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.Write(chunk)

	// Separators left over from CR/LF pairs split across chunks.
	str := strings.TrimLeft(f.buf.String(), lineSeparators)

	var lines []string
	for strings.IndexAny(str, lineSeparators) > 0 {
		parts := strings.FieldsFunc(str, isLineSeparator)

		if line := strings.TrimSpace(parts[0]); line != "" {
			lines = append(lines, line)
		}

		// Keep the terminator of the last line so it is emitted on the
		// next pass instead of waiting for more input.
		rest := strings.Join(parts[1:], "\n")
		if strings.ContainsAny(str[len(str)-1:], lineSeparators) {
			rest += "\n"
		}
		str = strings.TrimLeft(rest, lineSeparators)
	}

	if len(str) > MaxPendingLine {
		f.dropped += len(str)
		str = ""
	}

	f.buf.Reset()
	f.buf.WriteString(str)
	return lines
}

// Reset discards any buffered partial line.
func (f *LineFramer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf.Reset()
}

// Pending returns the number of buffered bytes not yet emitted.
func (f *LineFramer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Len()
}

// Dropped returns the number of bytes discarded by the MaxPendingLine guard.
func (f *LineFramer) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func isLineSeparator(r rune) bool {
	return r == '\r' || r == '\n'
}
