package servopid

import (
	"github.com/hipsterbrown/servopid/model"
)

// Send encodes and writes one command frame. It is a no-op while no
// transport is open.
func (e *Engine) Send(op Opcode, payload ...byte) error {
	frame, err := Encode(op, payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeLocked(op, frame)
}

func (e *Engine) writeLocked(op Opcode, frame []byte) error {
	if e.transport == nil || !e.transport.IsOpen() {
		return nil
	}
	if _, err := e.transport.Write(frame); err != nil {
		return &CommError{Op: "write", Target: e.target, Err: err}
	}

	e.metrics.frameSent(op)
	if op != OpGetServoData {
		e.log.Debug().
			Str("opcode", op.String()).
			Hex("frame", frame).
			Msg("Sent")
	}
	return nil
}

// Reset writes the reset line. The controller answers with "RST ACK".
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil || !e.transport.IsOpen() {
		return nil
	}
	if err := e.transport.WriteLine(ResetLine); err != nil {
		return &CommError{Op: "write", Target: e.target, Err: err}
	}
	return nil
}

// Parameters

// SetServoParam writes one tunable of one channel.
func (e *Engine) SetServoParam(channel int, param ServoParam, value float32) error {
	return e.Send(OpSetServoParamFloat, ServoParamPayload(channel, param, value)...)
}

// SetRegulator enables or disables regulation on the controller.
func (e *Engine) SetRegulator(enabled bool) error {
	return e.Send(OpEnableRegulator, EnableRegulatorPayload(enabled)...)
}

// SetGlobal writes one global variable.
func (e *Engine) SetGlobal(v model.GlobalVar, value float32) error {
	return e.Send(OpSetGlobalVar, GlobalVarPayload(v, value)...)
}

// Requests

// RequestCount asks for the channel count ("NS").
func (e *Engine) RequestCount() error {
	return e.Send(OpGetNumServos)
}

// RequestParams asks for every channel's tunables ("SP" per channel).
func (e *Engine) RequestParams() error {
	return e.Send(OpGetServoParams)
}

// RequestData asks for telemetry of the first count channels ("SD" per
// channel).
func (e *Engine) RequestData(count int) error {
	return e.Send(OpGetServoData, ServoDataPayload(count)...)
}

// RequestGlobals asks for the global variables ("GV").
func (e *Engine) RequestGlobals() error {
	return e.Send(OpGetGlobalVars)
}

// RetrieveAll requests the channel count and the global variables. The
// count reply drives discovery of every channel.
func (e *Engine) RetrieveAll() {
	e.logSendErr(e.RequestCount(), OpGetNumServos)
	e.logSendErr(e.RequestGlobals(), OpGetGlobalVars)
}

// Persistence

// SaveEEPROM stores the controller's current settings.
func (e *Engine) SaveEEPROM() error {
	return e.Send(OpSaveEeprom)
}

// LoadEEPROM restores the stored settings. Call RetrieveAll afterwards to
// refresh the model.
func (e *Engine) LoadEEPROM() error {
	return e.Send(OpLoadEeprom)
}

// ResetToDefault restores the firmware defaults.
func (e *Engine) ResetToDefault() error {
	return e.Send(OpResetToDefault)
}

// CalibrateAnalogInput starts input range calibration on the controller.
func (e *Engine) CalibrateAnalogInput() error {
	return e.Send(OpCalibrateAnalogInput)
}
