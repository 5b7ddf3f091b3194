package servopid

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/hipsterbrown/servopid/model"
)

// DefaultPollInterval is the telemetry polling period.
const DefaultPollInterval = 50 * time.Millisecond

// Phase is the engine's position in the connect and discovery sequence.
type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseOpening
	PhaseAwaitingReset
	PhaseDiscovering
	PhaseSynced
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseOpening:
		return "opening"
	case PhaseAwaitingReset:
		return "awaiting_reset"
	case PhaseDiscovering:
		return "discovering"
	case PhaseSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// EngineConfig holds configuration for creating a new Engine.
type EngineConfig struct {
	// Dialer creates the transport for the model's target. Required.
	Dialer Dialer

	// PollInterval is the telemetry polling period. Default is 50ms.
	PollInterval time.Duration

	// Logger receives protocol logs. Defaults to the global zerolog logger.
	Logger *zerolog.Logger

	// Metrics records protocol counters. Optional.
	Metrics *Metrics

	// QueueSize bounds lines waiting for the engine goroutine. Default is 256.
	QueueSize int
}

// Engine keeps a model.App in sync with a controller. Inbound lines are
// applied to the model on a single engine goroutine, in arrival order;
// local model edits are encoded and written as they happen.
type Engine struct {
	dial    Dialer
	poll    time.Duration
	log     zerolog.Logger
	metrics *Metrics

	// connMu serializes Connect and Close.
	connMu sync.Mutex

	// mu guards the transport, the framer feed and the write path.
	mu        sync.Mutex
	transport Transport
	target    string
	session   chan struct{} // closed when transport is detached
	closed    bool
	framer    LineFramer

	modelMu  sync.Mutex
	model    *model.App
	unsubApp func()
	unsubCh  map[*model.Channel]func()

	phase       atomic.Int32
	connected   atomic.Bool
	pollEnabled atomic.Bool

	clockMu sync.Mutex
	resetAt time.Time
	pinned  *float32

	work chan func()
	done chan struct{}
	wg   sync.WaitGroup
}

// NewEngine creates an engine and starts its goroutine. Attach a model
// with SetModel; release resources with Close.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	e := &Engine{
		dial:    cfg.Dialer,
		poll:    cfg.PollInterval,
		log:     logger.With().Str("component", "servopid").Logger(),
		metrics: cfg.Metrics,
		unsubCh: make(map[*model.Channel]func()),
		work:    make(chan func(), cfg.QueueSize),
		done:    make(chan struct{}),
	}

	e.wg.Add(1)
	go e.run()
	return e
}

// Phase returns the current protocol phase.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Connected reports whether a transport is open.
func (e *Engine) Connected() bool {
	return e.connected.Load()
}

// Model returns the observed model.
func (e *Engine) Model() *model.App {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	return e.model
}

// SetModel attaches the engine to m, dropping every subscription on the
// previous model, and connects to m's target. A nil m disconnects.
func (e *Engine) SetModel(m *model.App) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrEngineClosed
	}

	e.modelMu.Lock()
	e.unsubscribeLocked()
	e.model = m
	if m != nil {
		e.subscribeLocked(m)
	}
	e.modelMu.Unlock()

	if m != nil {
		e.logSendErr(e.SetRegulator(m.PidEnabled()), OpEnableRegulator)
		e.pollEnabled.Store(m.PollTelemetry())
	}
	return e.Connect()
}

// Connect (re)opens the transport for the model's target. A failed open
// leaves the engine disconnected; there is no retry.
func (e *Engine) Connect() error {
	e.connMu.Lock()
	defer e.connMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	prev, prevTarget := e.detachLocked()
	e.mu.Unlock()
	_ = closeTransport(prev, prevTarget)

	m := e.Model()
	if m == nil {
		return nil
	}
	m.SetConnected(false)

	target := m.Target()
	if target == "" {
		return nil
	}

	e.setPhase(PhaseOpening)

	t, err := e.open(target)
	if err != nil {
		e.setPhase(PhaseDisconnected)
		e.metrics.connect(false)
		e.log.Warn().Err(err).Str("target", target).Msg("Failed to open port")
		return &CommError{Op: "open", Target: target, Err: err}
	}

	e.mu.Lock()
	e.transport = t
	e.target = target
	e.session = make(chan struct{})
	e.framer.Reset()
	e.restartClock()
	e.setPhase(PhaseAwaitingReset)
	e.log.Info().Str("target", target).Msg("Sending: " + ResetLine)
	if err := t.WriteLine(ResetLine); err != nil {
		e.log.Warn().Err(err).Str("target", target).Msg("Failed to send reset")
	}
	t.Notify(func() { e.onArrival(t) })
	e.mu.Unlock()

	e.connected.Store(true)
	e.metrics.connect(true)
	m.SetConnected(true)

	// Bytes that arrived before Notify was registered.
	e.onArrival(t)

	e.RetrieveAll()
	return nil
}

func (e *Engine) open(target string) (Transport, error) {
	if e.dial == nil {
		return nil, ErrNoTarget
	}
	t, err := e.dial(target)
	if err != nil {
		return nil, err
	}
	if err := t.Open(); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// Close stops polling, closes the transport, discards buffered input and
// detaches from the model. It must not be called from a model observer.
func (e *Engine) Close() error {
	e.connMu.Lock()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.connMu.Unlock()
		return nil
	}
	e.closed = true
	t, target := e.detachLocked()
	e.mu.Unlock()
	e.connMu.Unlock()

	err := closeTransport(t, target)

	close(e.done)
	e.wg.Wait()

	e.modelMu.Lock()
	e.unsubscribeLocked()
	m := e.model
	e.model = nil
	e.modelMu.Unlock()

	if m != nil {
		m.SetConnected(false)
	}
	return err
}

// detachLocked unhooks the current transport and returns it for closing.
// The transport must be closed after e.mu is released: its delivery
// goroutine may be waiting on e.mu inside onArrival, and Close joins it.
func (e *Engine) detachLocked() (Transport, string) {
	t, target := e.transport, e.target
	e.transport = nil
	if e.session != nil {
		close(e.session)
		e.session = nil
	}
	e.framer.Reset()
	e.connected.Store(false)
	e.setPhase(PhaseDisconnected)
	return t, target
}

func closeTransport(t Transport, target string) error {
	if t == nil {
		return nil
	}
	t.Notify(nil)
	if err := t.Close(); err != nil {
		return &CommError{Op: "close", Target: target, Err: err}
	}
	return nil
}

// Invoke runs fn on the engine goroutine and waits for it. Model edits made
// this way are serialized with inbound message application. It must not be
// called from the engine goroutine itself.
func (e *Engine) Invoke(fn func()) error {
	finished := make(chan struct{})
	if !e.enqueue(func() {
		defer close(finished)
		fn()
	}) {
		return ErrEngineClosed
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrEngineClosed
	}
}

func (e *Engine) enqueue(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.work <- fn:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case fn := <-e.work:
			fn()
		case <-ticker.C:
			e.pollTelemetry()
		}
	}
}

func (e *Engine) pollTelemetry() {
	if !e.connected.Load() || !e.pollEnabled.Load() {
		return
	}
	m := e.Model()
	if m == nil {
		return
	}
	n := m.NumChannels()
	if n == 0 {
		return
	}
	if err := e.Send(OpGetServoData, ServoDataPayload(n)...); err != nil {
		e.log.Warn().Err(err).Msg("Poll failed")
	}
}

func (e *Engine) setPhase(p Phase) {
	old := Phase(e.phase.Swap(int32(p)))
	if old != p {
		e.log.Debug().
			Str("from", old.String()).
			Str("to", p.String()).
			Msg("Phase changed")
	}
}

// Clock

func (e *Engine) restartClock() {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	e.resetAt = time.Now()
	e.pinned = nil
}

// Elapsed returns the sample timestamp in seconds: the pinned value if one
// is set, otherwise the time since the last reset was sent.
func (e *Engine) Elapsed() float32 {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	if e.pinned != nil {
		return *e.pinned
	}
	if e.resetAt.IsZero() {
		return 0
	}
	return float32(time.Since(e.resetAt).Seconds())
}

// PinElapsed overrides Elapsed with a fixed value until UnpinElapsed or the
// next connect.
func (e *Engine) PinElapsed(v float32) {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	e.pinned = &v
}

// UnpinElapsed restores the running clock.
func (e *Engine) UnpinElapsed() {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	e.pinned = nil
}
