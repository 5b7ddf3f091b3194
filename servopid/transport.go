package servopid

import "io"

// Transport is a byte channel to the controller. Implementations must be
// safe for concurrent use: Notify callbacks fire on the transport's own
// goroutine while the engine writes from others.
type Transport interface {
	io.WriteCloser

	// Open connects the channel. Calling Close on a transport that is not
	// open is a no-op.
	Open() error

	// WriteLine writes line followed by the newline terminator.
	WriteLine(line string) error

	// ReadExisting drains and returns all bytes received so far.
	ReadExisting() []byte

	// IsOpen reports whether the channel is open.
	IsOpen() bool

	// Notify registers fn to be called whenever new bytes are available.
	// Passing nil unregisters.
	Notify(fn func())
}

// Dialer creates the transport for a connection target. The target is an
// opaque identifier chosen by the application, e.g. a serial port name.
type Dialer func(target string) (Transport, error)
