// Package model holds the observable state kept in sync with a PID servo
// controller: the channel collection, global variables and connection flags.
package model

import (
	"errors"
	"fmt"
	"sync"
)

// MaxChannels is the largest channel count a controller may report.
const MaxChannels = 16

// ErrTooManyChannels is returned when a channel count exceeds MaxChannels.
var ErrTooManyChannels = errors.New("too many channels")

// AppField identifies an application-level change.
type AppField int

const (
	FieldTarget AppField = iota + 1
	FieldConnected
	FieldPidEnabled
	FieldPollTelemetry
	FieldLoopTiming
	FieldChannels
	FieldGlobal
)

func (f AppField) String() string {
	switch f {
	case FieldTarget:
		return "target"
	case FieldConnected:
		return "connected"
	case FieldPidEnabled:
		return "pid_enabled"
	case FieldPollTelemetry:
		return "poll_telemetry"
	case FieldLoopTiming:
		return "loop_timing"
	case FieldChannels:
		return "channels"
	case FieldGlobal:
		return "global"
	default:
		return fmt.Sprintf("app_field(%d)", int(f))
	}
}

// AppEvent describes one change on the App. Global and Value are set for
// FieldGlobal; Removed and Added are set for FieldChannels.
type AppEvent struct {
	Field   AppField
	Origin  Origin
	Global  GlobalVar
	Value   float32
	Removed []*Channel
	Added   []*Channel
}

// LoopTiming is the controller's regulation loop period statistics.
type LoopTiming struct {
	DeltaTime    float32 `json:"dt"`
	MinDeltaTime float32 `json:"min_dt"`
	MaxDeltaTime float32 `json:"max_dt"`
}

// App is the root of the synchronized state. It is owned by the composing
// application; engines hold a reference and observe it.
type App struct {
	mu            sync.RWMutex
	channels      []*Channel
	globals       Globals
	target        string
	connected     bool
	pidEnabled    bool
	pollTelemetry bool
	timing        LoopTiming

	obs observers[AppEvent]
}

// NewApp returns an empty model with telemetry polling enabled.
func NewApp() *App {
	return &App{pollTelemetry: true}
}

// Subscribe registers fn for app-level changes.
func (a *App) Subscribe(fn func(AppEvent)) func() {
	return a.obs.subscribe(fn)
}

// Channels

// Channels returns the channels in id order.
func (a *App) Channels() []*Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Channel, len(a.channels))
	copy(out, a.channels)
	return out
}

// NumChannels returns the size of the channel collection.
func (a *App) NumChannels() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.channels)
}

// Channel returns the channel with the given id.
func (a *App) Channel(id int) (*Channel, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id < 0 || id >= len(a.channels) {
		return nil, false
	}
	return a.channels[id], true
}

// ResetChannels replaces the collection with n fresh channels numbered
// 0..n-1. The model is left untouched when n is out of range.
func (a *App) ResetChannels(n int, origin Origin) error {
	if n < 0 || n > MaxChannels {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyChannels, n, MaxChannels)
	}

	added := make([]*Channel, n)
	for i := range added {
		added[i] = NewChannel(i)
	}

	a.mu.Lock()
	removed := a.channels
	a.channels = added
	a.mu.Unlock()

	a.obs.notify(AppEvent{
		Field:   FieldChannels,
		Origin:  origin,
		Removed: removed,
		Added:   append([]*Channel(nil), added...),
	})
	return nil
}

// Global variables

// Globals returns a snapshot of all global variables.
func (a *App) Globals() Globals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.globals
}

// Global returns the value of one variable.
func (a *App) Global(v GlobalVar) float32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.globals.Get(v)
}

// SetGlobal sets one variable as a local edit.
func (a *App) SetGlobal(v GlobalVar, value float32) {
	a.UpdateGlobals(OriginLocal, func(g *Globals) {
		g.Set(v, value)
	})
}

// UpdateGlobals applies fn as one batch and reports each changed variable
// tagged with origin.
func (a *App) UpdateGlobals(origin Origin, fn func(g *Globals)) {
	a.mu.Lock()
	old := a.globals
	fn(&a.globals)
	cur := a.globals
	a.mu.Unlock()

	for i := range cur {
		if !sameFloat(old[i], cur[i]) {
			a.obs.notify(AppEvent{Field: FieldGlobal, Origin: origin, Global: GlobalVar(i), Value: cur[i]})
		}
	}
}

// Flags

// Target returns the connection target identifier.
func (a *App) Target() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.target
}

// SetTarget changes the connection target. Observers reconnect on change.
func (a *App) SetTarget(target string) {
	a.setFlag(FieldTarget, OriginLocal, func() bool {
		if a.target == target {
			return false
		}
		a.target = target
		return true
	})
}

// Connected reports whether a transport is open.
func (a *App) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// SetConnected records the transport state.
func (a *App) SetConnected(connected bool) {
	a.setFlag(FieldConnected, OriginDevice, func() bool {
		if a.connected == connected {
			return false
		}
		a.connected = connected
		return true
	})
}

// PidEnabled reports whether regulation is enabled.
func (a *App) PidEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pidEnabled
}

// SetPidEnabled enables or disables regulation on the device.
func (a *App) SetPidEnabled(enabled bool) {
	a.setFlag(FieldPidEnabled, OriginLocal, func() bool {
		if a.pidEnabled == enabled {
			return false
		}
		a.pidEnabled = enabled
		return true
	})
}

// PollTelemetry reports whether telemetry is polled periodically.
func (a *App) PollTelemetry() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pollTelemetry
}

// SetPollTelemetry toggles periodic telemetry polling.
func (a *App) SetPollTelemetry(poll bool) {
	a.setFlag(FieldPollTelemetry, OriginLocal, func() bool {
		if a.pollTelemetry == poll {
			return false
		}
		a.pollTelemetry = poll
		return true
	})
}

// LoopTiming returns the last reported loop timing.
func (a *App) LoopTiming() LoopTiming {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.timing
}

// SetLoopTiming records loop timing reported by the device.
func (a *App) SetLoopTiming(t LoopTiming) {
	a.setFlag(FieldLoopTiming, OriginDevice, func() bool {
		if a.timing == t {
			return false
		}
		a.timing = t
		return true
	})
}

func (a *App) setFlag(field AppField, origin Origin, apply func() bool) {
	a.mu.Lock()
	changed := apply()
	a.mu.Unlock()

	if changed {
		a.obs.notify(AppEvent{Field: field, Origin: origin})
	}
}
