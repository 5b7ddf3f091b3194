package transports

import (
	"io"
	"sync"
	"time"
)

// SimulatorTick is the period at which the emulated controller is stepped.
const SimulatorTick = 10 * time.Millisecond

// Emulator is an in-process controller emulator. Writes feed its UART
// receive side; Read drains whatever it has transmitted and returns 0 when
// nothing is pending.
type Emulator interface {
	io.ReadWriter

	// Step advances the emulated firmware by one tick.
	Step()

	// EEPROM returns the emulated non-volatile memory.
	EEPROM() []byte

	// PWM returns the on/off counts of the emulated PWM outputs.
	PWM() (on, off []uint16)
}

// Snapshot is a readback of emulator state for display.
type Snapshot struct {
	EEPROM []byte   `json:"eeprom"`
	PWMOn  []uint16 `json:"pwm_on"`
	PWMOff []uint16 `json:"pwm_off"`
}

// SimulatorTransport implements servopid.Transport on top of an Emulator.
// While open, a ticker goroutine steps the emulator and surfaces its
// output.
type SimulatorTransport struct {
	tick time.Duration

	mu     sync.Mutex
	emu    Emulator
	buf    []byte
	notify func()
	open   bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewSimulator wraps emu. A zero tick uses SimulatorTick.
func NewSimulator(emu Emulator, tick time.Duration) *SimulatorTransport {
	if tick <= 0 {
		tick = SimulatorTick
	}
	return &SimulatorTransport{emu: emu, tick: tick}
}

func (s *SimulatorTransport) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	s.open = true
	s.buf = nil
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stop)
	return nil
}

func (s *SimulatorTransport) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *SimulatorTransport) step() {
	chunk := make([]byte, readChunk)

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.emu.Step()
	received := 0
	for {
		n, err := s.emu.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			received += n
		}
		if n == 0 || err != nil {
			break
		}
	}
	fn := s.notify
	s.mu.Unlock()

	if received > 0 && fn != nil {
		fn()
	}
}

func (s *SimulatorTransport) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	s.buf = nil
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *SimulatorTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, ErrNotOpen
	}
	return s.emu.Write(p)
}

func (s *SimulatorTransport) WriteLine(line string) error {
	_, err := s.Write([]byte(line + "\n"))
	return err
}

func (s *SimulatorTransport) ReadExisting() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.buf
	s.buf = nil
	return data
}

func (s *SimulatorTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *SimulatorTransport) Notify(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Snapshot returns a copy of the emulator's EEPROM and PWM state.
func (s *SimulatorTransport) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	on, off := s.emu.PWM()
	return Snapshot{
		EEPROM: append([]byte(nil), s.emu.EEPROM()...),
		PWMOn:  append([]uint16(nil), on...),
		PWMOff: append([]uint16(nil), off...),
	}
}
