package transports

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.uber.org/atomic"
)

// Serial line defaults used by the controller firmware.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
	readChunk          = 256
)

// SerialConfig holds configuration for a serial port transport.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Logger      *zerolog.Logger
}

// SerialTransport implements servopid.Transport over a hardware serial
// port. A reader goroutine collects incoming bytes and fires the arrival
// callback.
type SerialTransport struct {
	cfg  SerialConfig
	mode *serial.Mode
	log  zerolog.Logger

	mu     sync.Mutex
	port   serial.Port
	buf    []byte
	notify func()

	isOpen atomic.Bool
	wg     sync.WaitGroup
}

// NewSerial creates a closed serial transport for cfg.Port, 8N1.
func NewSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &SerialTransport{
		cfg: cfg,
		mode: &serial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		log: logger.With().Str("port", cfg.Port).Logger(),
	}, nil
}

func (t *SerialTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}

	port, err := serial.Open(t.cfg.Port, t.mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.SetReadTimeout(t.cfg.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	t.port = port
	t.buf = nil
	t.isOpen.Store(true)

	t.wg.Add(1)
	go t.readLoop(port)
	return nil
}

func (t *SerialTransport) readLoop(port serial.Port) {
	defer t.wg.Done()

	chunk := make([]byte, readChunk)
	for t.isOpen.Load() {
		n, err := port.Read(chunk)
		if err != nil {
			if t.isOpen.Load() {
				t.log.Error().Err(err).Msg("Serial read failed")
				t.isOpen.Store(false)
			}
			return
		}
		if n == 0 {
			continue
		}

		t.mu.Lock()
		t.buf = append(t.buf, chunk[:n]...)
		fn := t.notify
		t.mu.Unlock()

		if fn != nil {
			fn()
		}
	}
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.buf = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	t.isOpen.Store(false)
	err := port.Close()
	t.wg.Wait()
	return err
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return 0, ErrNotOpen
	}
	return port.Write(p)
}

func (t *SerialTransport) WriteLine(line string) error {
	_, err := t.Write([]byte(line + "\n"))
	return err
}

func (t *SerialTransport) ReadExisting() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := t.buf
	t.buf = nil
	return data
}

func (t *SerialTransport) IsOpen() bool {
	return t.isOpen.Load()
}

func (t *SerialTransport) Notify(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notify = fn
}

// PortName returns the serial port name.
func (t *SerialTransport) PortName() string {
	return t.cfg.Port
}
