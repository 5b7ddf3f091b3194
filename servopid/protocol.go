// Package servopid keeps a model of a PID servo controller in sync with the
// device over a byte stream: binary command frames go out, newline
// delimited text messages come back.
package servopid

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hipsterbrown/servopid/model"
)

// Opcode is the command byte of an outbound frame.
type Opcode byte

// Command opcodes understood by the controller firmware.
const (
	OpNoOp Opcode = iota
	OpSetServoParamFloat
	OpEnableRegulator
	OpGetNumServos
	OpGetServoParams
	OpGetServoData
	OpSetGlobalVar
	OpGetGlobalVars
	OpLoadEeprom
	OpSaveEeprom
	OpResetToDefault
	OpCalibrateAnalogInput
)

var opcodeNames = [...]string{
	OpNoOp:                 "NoOp",
	OpSetServoParamFloat:   "SetServoParamFloat",
	OpEnableRegulator:      "EnableRegulator",
	OpGetNumServos:         "GetNumServos",
	OpGetServoParams:       "GetServoParams",
	OpGetServoData:         "GetServoData",
	OpSetGlobalVar:         "SetGlobalVar",
	OpGetGlobalVars:        "GetGlobalVars",
	OpLoadEeprom:           "LoadEeprom",
	OpSaveEeprom:           "SaveEeprom",
	OpResetToDefault:       "ResetToDefault",
	OpCalibrateAnalogInput: "CalibrateAnalogInput",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", byte(op))
}

// Frame layout limits.
const (
	frameHeaderLen = 2 // length byte + opcode
	MaxFrameLen    = 0xFF
	MaxPayload     = MaxFrameLen - frameHeaderLen
)

// FullBurst is the GetServoData count that asks for every channel at once.
// It seeds telemetry right after discovery.
const FullBurst byte = 0x80

// ResetLine is the text command that restarts the controller's protocol.
const ResetLine = "RST"

// byteOrder is the controller's native order for multi-byte values.
var byteOrder = binary.LittleEndian

// Frame is one outbound command.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// Len returns the value of the frame's length byte.
func (f Frame) Len() int {
	return len(f.Payload) + frameHeaderLen
}

// MarshalBinary encodes the frame.
func (f Frame) MarshalBinary() ([]byte, error) {
	return Encode(f.Opcode, f.Payload)
}

// Encode constructs a wire frame: [length][opcode][payload...] where length
// counts the payload plus the two header bytes.
func Encode(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayload)
	}

	buf := make([]byte, 0, frameHeaderLen+len(payload))
	buf = append(buf, byte(len(payload)+frameHeaderLen), byte(op))
	buf = append(buf, payload...)
	return buf, nil
}

// DecodeFrame parses one complete wire frame.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < frameHeaderLen {
		return Frame{}, ErrShortFrame
	}

	length := int(data[0])
	if length < frameHeaderLen || length != len(data) {
		return Frame{}, fmt.Errorf("%w: length byte %d, have %d bytes", ErrLengthMismatch, length, len(data))
	}

	f := Frame{Opcode: Opcode(data[1])}
	if length > frameHeaderLen {
		f.Payload = make([]byte, length-frameHeaderLen)
		copy(f.Payload, data[frameHeaderLen:])
	}
	return f, nil
}

// EncodeFloat converts a float32 to bytes in controller byte order.
func EncodeFloat(v float32) []byte {
	buf := make([]byte, 4)
	byteOrder.PutUint32(buf, math.Float32bits(v))
	return buf
}

// DecodeFloat converts bytes in controller byte order to a float32.
func DecodeFloat(data []byte) float32 {
	if len(data) < 4 {
		return 0
	}
	return math.Float32frombits(byteOrder.Uint32(data))
}

// EncodeInt converts an int32 to bytes in controller byte order.
func EncodeInt(v int32) []byte {
	buf := make([]byte, 4)
	byteOrder.PutUint32(buf, uint32(v))
	return buf
}

// Payload builders

// ServoParamPayload builds the SetServoParamFloat payload.
func ServoParamPayload(channel int, param ServoParam, value float32) []byte {
	payload := make([]byte, 0, 6)
	payload = append(payload, byte(channel), byte(param))
	return append(payload, EncodeFloat(value)...)
}

// EnableRegulatorPayload builds the EnableRegulator payload.
func EnableRegulatorPayload(enabled bool) []byte {
	if enabled {
		return []byte{1}
	}
	return []byte{0}
}

// ServoDataPayload builds the GetServoData payload for count channels.
func ServoDataPayload(count int) []byte {
	return []byte{byte(count)}
}

// GlobalVarPayload builds the SetGlobalVar payload. Integer variables are
// sent as int32, the rest as float32.
func GlobalVarPayload(v model.GlobalVar, value float32) []byte {
	payload := make([]byte, 0, 5)
	payload = append(payload, byte(v))
	if v.Integer() {
		return append(payload, EncodeInt(int32(math.Round(float64(value))))...)
	}
	return append(payload, EncodeFloat(value)...)
}
