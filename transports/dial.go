package transports

import (
	"errors"

	"github.com/hipsterbrown/servopid/servopid"
)

// Fixed connection targets. Any other target is a serial port name.
const (
	TargetMock      = "Mock"
	TargetSimulator = "Simulator"
)

// ErrNoEmulator is returned when dialing the simulator without an emulator.
var ErrNoEmulator = errors.New("no emulator configured")

// Dialer maps connection targets to transports.
type Dialer struct {
	// Emulator builds the emulator behind the "Simulator" target.
	Emulator func() Emulator

	// Mock is returned for the "Mock" target. A fresh mock is used if nil.
	Mock *MockTransport

	// Serial is the template for serial ports; Port is taken from the target.
	Serial SerialConfig
}

// Dial returns a closed transport for target.
func (d Dialer) Dial(target string) (servopid.Transport, error) {
	switch target {
	case "":
		return nil, servopid.ErrNoTarget
	case TargetMock:
		if d.Mock != nil {
			return d.Mock, nil
		}
		return NewMock(), nil
	case TargetSimulator:
		if d.Emulator == nil {
			return nil, ErrNoEmulator
		}
		return NewSimulator(d.Emulator(), 0), nil
	default:
		cfg := d.Serial
		cfg.Port = target
		t, err := NewSerial(cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Dial returns a closed transport for target using default settings.
func Dial(target string) (servopid.Transport, error) {
	return Dialer{}.Dial(target)
}
