package model

import (
	"fmt"
	"math"
	"sync"
)

// ChannelField identifies one scalar of a channel, or a recorded sample.
type ChannelField int

const (
	FieldP ChannelField = iota + 1
	FieldI
	FieldD
	FieldDLambda
	FieldSetPoint
	FieldInputMin
	FieldInputMax

	FieldInput
	FieldOutput
	FieldIntegrator
	FieldDFiltered

	FieldSample
)

var channelFieldNames = map[ChannelField]string{
	FieldP:          "p",
	FieldI:          "i",
	FieldD:          "d",
	FieldDLambda:    "d_lambda",
	FieldSetPoint:   "set_point",
	FieldInputMin:   "input_min",
	FieldInputMax:   "input_max",
	FieldInput:      "input",
	FieldOutput:     "output",
	FieldIntegrator: "integrator",
	FieldDFiltered:  "d_filtered",
	FieldSample:     "sample",
}

func (f ChannelField) String() string {
	if name, ok := channelFieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Tunable reports whether the field is a parameter the host may write.
func (f ChannelField) Tunable() bool {
	return f >= FieldP && f <= FieldInputMax
}

// Params are the tunable scalars of one PID channel.
type Params struct {
	P        float32 `json:"p"`
	I        float32 `json:"i"`
	D        float32 `json:"d"`
	DLambda  float32 `json:"d_lambda"`
	SetPoint float32 `json:"set_point"`
	InputMin float32 `json:"input_min"`
	InputMax float32 `json:"input_max"`
}

// DefaultParams returns the values a freshly discovered channel starts with.
func DefaultParams() Params {
	return Params{DLambda: 1, InputMin: 1}
}

func (p *Params) field(f ChannelField) *float32 {
	switch f {
	case FieldP:
		return &p.P
	case FieldI:
		return &p.I
	case FieldD:
		return &p.D
	case FieldDLambda:
		return &p.DLambda
	case FieldSetPoint:
		return &p.SetPoint
	case FieldInputMin:
		return &p.InputMin
	case FieldInputMax:
		return &p.InputMax
	}
	return nil
}

// Get returns the value of a tunable field, or false if f is not tunable.
func (p Params) Get(f ChannelField) (float32, bool) {
	if ptr := p.field(f); ptr != nil {
		return *ptr, true
	}
	return 0, false
}

// Telemetry is the live state reported by the regulator.
type Telemetry struct {
	Input      float32 `json:"input"`
	Output     float32 `json:"output"`
	Integrator float32 `json:"integrator"`
	DFiltered  float32 `json:"d_filtered"`
}

func (t *Telemetry) field(f ChannelField) *float32 {
	switch f {
	case FieldInput:
		return &t.Input
	case FieldOutput:
		return &t.Output
	case FieldIntegrator:
		return &t.Integrator
	case FieldDFiltered:
		return &t.DFiltered
	}
	return nil
}

// ChannelEvent describes one change on a channel.
type ChannelEvent struct {
	Channel *Channel
	Field   ChannelField
	Value   float32
	Origin  Origin
}

// Channel is one PID-controlled actuator: tunables, telemetry and a
// trailing window of samples for plotting.
type Channel struct {
	id int

	mu        sync.RWMutex
	params    Params
	telemetry Telemetry
	series    Series

	obs observers[ChannelEvent]
}

// NewChannel creates a channel with default parameters.
func NewChannel(id int) *Channel {
	return &Channel{
		id:     id,
		params: DefaultParams(),
	}
}

// ID returns the channel index assigned at discovery.
func (c *Channel) ID() int {
	return c.id
}

// Params returns a snapshot of the tunables.
func (c *Channel) Params() Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// Telemetry returns a snapshot of the live values.
func (c *Channel) Telemetry() Telemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.telemetry
}

// Series returns a copy of the sample window.
func (c *Channel) Series() Series {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.series.clone()
}

// Subscribe registers fn for every change on this channel and returns a
// function that removes the registration.
func (c *Channel) Subscribe(fn func(ChannelEvent)) func() {
	return c.obs.subscribe(fn)
}

// Tunables

// SetParam sets one tunable as a local edit.
func (c *Channel) SetParam(f ChannelField, v float32) error {
	if !f.Tunable() {
		return fmt.Errorf("channel %d: %s is not tunable", c.id, f)
	}
	c.Update(OriginLocal, func(p *Params, _ *Telemetry) {
		*p.field(f) = v
	})
	return nil
}

// SetP sets the proportional gain.
func (c *Channel) SetP(v float32) { _ = c.SetParam(FieldP, v) }

// SetI sets the integral gain.
func (c *Channel) SetI(v float32) { _ = c.SetParam(FieldI, v) }

// SetD sets the derivative gain.
func (c *Channel) SetD(v float32) { _ = c.SetParam(FieldD, v) }

// SetDLambda sets the derivative filter coefficient.
func (c *Channel) SetDLambda(v float32) { _ = c.SetParam(FieldDLambda, v) }

// SetSetPoint sets the regulation target.
func (c *Channel) SetSetPoint(v float32) { _ = c.SetParam(FieldSetPoint, v) }

// SetInputRange sets both input bounds in one batch.
func (c *Channel) SetInputRange(lo, hi float32) {
	c.Update(OriginLocal, func(p *Params, _ *Telemetry) {
		p.InputMin = lo
		p.InputMax = hi
	})
}

// Update applies fn to the channel state as one batch. Every field that
// changed is reported to observers once, tagged with origin.
func (c *Channel) Update(origin Origin, fn func(p *Params, t *Telemetry)) {
	c.mu.Lock()
	oldP, oldT := c.params, c.telemetry
	fn(&c.params, &c.telemetry)
	newP, newT := c.params, c.telemetry
	c.mu.Unlock()

	var events []ChannelEvent
	for f := FieldP; f <= FieldInputMax; f++ {
		if a, b := *oldP.field(f), *newP.field(f); !sameFloat(a, b) {
			events = append(events, ChannelEvent{Channel: c, Field: f, Value: b, Origin: origin})
		}
	}
	for f := FieldInput; f <= FieldDFiltered; f++ {
		if a, b := *oldT.field(f), *newT.field(f); !sameFloat(a, b) {
			events = append(events, ChannelEvent{Channel: c, Field: f, Value: b, Origin: origin})
		}
	}

	for _, ev := range events {
		c.obs.notify(ev)
	}
}

// Samples

// RecordSample appends the current set-point, input and output at the
// given elapsed time.
func (c *Channel) RecordSample(elapsed float32) {
	c.mu.Lock()
	c.series.add(elapsed, c.params.SetPoint, c.telemetry.Input, c.telemetry.Output)
	c.mu.Unlock()

	c.obs.notify(ChannelEvent{Channel: c, Field: FieldSample, Value: elapsed, Origin: OriginDevice})
}

func sameFloat(a, b float32) bool {
	if a == b {
		return true
	}
	return math.IsNaN(float64(a)) && math.IsNaN(float64(b))
}
