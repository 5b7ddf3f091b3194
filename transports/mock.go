package transports

import (
	"errors"
	"sync"

	"github.com/hipsterbrown/servopid/servopid"
)

// ErrNotOpen is returned when writing to a transport that is not open.
var ErrNotOpen = errors.New("transport not open")

// MockTransport implements servopid.Transport for testing. Bytes passed to
// Inject are delivered as if received from a controller; everything the
// engine writes is recorded.
type MockTransport struct {
	// OpenErr is returned by Open when set.
	OpenErr error
	// WriteErr is returned by Write and WriteLine when set.
	WriteErr error

	mu      sync.Mutex
	open    bool
	closed  bool
	pending []byte
	frames  [][]byte
	lines   []string
	notify  func()
}

// NewMock returns a closed mock transport.
func NewMock() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.open = true
	m.closed = false
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		m.closed = true
	}
	m.open = false
	m.pending = nil
	return nil
}

func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, ErrNotOpen
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.frames = append(m.frames, append([]byte(nil), p...))
	return len(p), nil
}

func (m *MockTransport) WriteLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.lines = append(m.lines, line)
	return nil
}

func (m *MockTransport) ReadExisting() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.pending
	m.pending = nil
	return data
}

func (m *MockTransport) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *MockTransport) Notify(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = fn
}

// Inject queues data as received bytes and fires the arrival callback on
// the caller's goroutine.
func (m *MockTransport) Inject(data []byte) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, data...)
	fn := m.notify
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// InjectLine injects line followed by a newline.
func (m *MockTransport) InjectLine(line string) {
	m.Inject([]byte(line + "\n"))
}

// Written returns a copy of every frame written, one entry per Write call.
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	for i, f := range m.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Frames decodes every written frame. Undecodable writes are skipped.
func (m *MockTransport) Frames() []servopid.Frame {
	var frames []servopid.Frame
	for _, raw := range m.Written() {
		if f, err := servopid.DecodeFrame(raw); err == nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// Lines returns every line written with WriteLine.
func (m *MockTransport) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// ClearWritten forgets recorded frames and lines.
func (m *MockTransport) ClearWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
	m.lines = nil
}

// Closed reports whether the transport was closed after being opened.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
