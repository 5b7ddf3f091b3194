package servopid

import (
	"strconv"
	"strings"

	"github.com/hipsterbrown/servopid/model"
)

// MessageKind tags an inbound message variant.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindDeltaTime
	KindNumServos
	KindServoParams
	KindServoData
	KindGlobalVars
	KindError
	KindAck
	KindLog
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindDeltaTime:   "dt",
	KindNumServos:   "ns",
	KindServoParams: "sp",
	KindServoData:   "sd",
	KindGlobalVars:  "gv",
	KindError:       "err",
	KindAck:         "ack",
	KindLog:         "log",
}

func (k MessageKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Message is one decoded inbound line.
type Message interface {
	Kind() MessageKind
}

// DeltaTime reports the regulation loop period: "DT <dt> <minDt> <maxDt>".
type DeltaTime struct {
	DT, MinDT, MaxDT float32
}

// NumServos reports the channel count: "NS <count>".
type NumServos struct {
	Count int
}

// ServoParams reports one channel's tunables: "SP <id> <P> <I> <D> <DLambda> <SetPoint>".
type ServoParams struct {
	Channel  int
	P        float32
	I        float32
	D        float32
	DLambda  float32
	SetPoint float32
}

// ServoData reports one channel's telemetry: "SD <id> <Input> <Output> <Integrator> <DFiltered>".
type ServoData struct {
	Channel    int
	Input      float32
	Output     float32
	Integrator float32
	DFiltered  float32
}

// GlobalVars reports the global variables:
// "GV <NumServos> <PidEnabled> <PidMaxIntegratorStore> <ServoMinAngle> <ServoMaxAngle> <DeadbandMaxDeviation>".
type GlobalVars struct {
	NumServos             int
	PidEnabled            int
	PidMaxIntegratorStore float32
	ServoMinAngle         float32
	ServoMaxAngle         float32
	DeadbandMaxDeviation  float32
}

// ErrorNotice is a device error: "ERR: <text>".
type ErrorNotice struct {
	Text string
}

// Ack is "RST ACK" or "OK".
type Ack struct {
	Text string
}

// LogNotice is a device log line: "LOG: <text>".
type LogNotice struct {
	Text string
}

// Unknown is any line with an unrecognized prefix.
type Unknown struct {
	Line string
}

func (DeltaTime) Kind() MessageKind   { return KindDeltaTime }
func (NumServos) Kind() MessageKind   { return KindNumServos }
func (ServoParams) Kind() MessageKind { return KindServoParams }
func (ServoData) Kind() MessageKind   { return KindServoData }
func (GlobalVars) Kind() MessageKind  { return KindGlobalVars }
func (ErrorNotice) Kind() MessageKind { return KindError }
func (Ack) Kind() MessageKind         { return KindAck }
func (LogNotice) Kind() MessageKind   { return KindLog }
func (Unknown) Kind() MessageKind     { return KindUnknown }

// Apply stores the values into a global variable table.
func (m GlobalVars) Apply(g *model.Globals) {
	g.Set(model.GlobalNumServos, float32(m.NumServos))
	g.Set(model.GlobalPidEnabled, float32(m.PidEnabled))
	g.Set(model.GlobalPidMaxIntegratorStore, m.PidMaxIntegratorStore)
	g.Set(model.GlobalServoMinAngle, m.ServoMinAngle)
	g.Set(model.GlobalServoMaxAngle, m.ServoMaxAngle)
	g.Set(model.GlobalDeadbandMaxDeviation, m.DeadbandMaxDeviation)
}

// Line prefixes.
const (
	prefixDeltaTime   = "DT "
	prefixNumServos   = "NS "
	prefixServoParams = "SP "
	prefixServoData   = "SD "
	prefixGlobalVars  = "GV "
	prefixError       = "ERR: "
	prefixLog         = "LOG: "
	lineResetAck      = "RST ACK"
	lineOK            = "OK"
)

// Decode interprets one line received from the controller. Numeric fields
// are parsed independently of locale. A malformed line yields a
// *ParseError and never panics; unrecognized lines decode to Unknown.
func Decode(line string) (Message, error) {
	switch {
	case strings.HasPrefix(line, prefixDeltaTime):
		return decodeDeltaTime(line)
	case strings.HasPrefix(line, prefixNumServos):
		return decodeNumServos(line)
	case strings.HasPrefix(line, prefixServoParams):
		return decodeServoParams(line)
	case strings.HasPrefix(line, prefixServoData):
		return decodeServoData(line)
	case strings.HasPrefix(line, prefixGlobalVars):
		return decodeGlobalVars(line)
	case strings.HasPrefix(line, prefixError):
		return ErrorNotice{Text: strings.TrimPrefix(line, prefixError)}, nil
	case strings.HasPrefix(line, prefixLog):
		return LogNotice{Text: strings.TrimPrefix(line, prefixLog)}, nil
	case line == lineResetAck || line == lineOK:
		return Ack{Text: line}, nil
	default:
		return Unknown{Line: line}, nil
	}
}

// tokens splits a line on single spaces and checks the field count,
// including the prefix token.
type tokens struct {
	line  string
	parts []string
	err   error
}

func tokenize(line string, want int) *tokens {
	t := &tokens{line: line, parts: strings.Split(line, " ")}
	if len(t.parts) != want {
		t.err = &ParseError{Line: line, Err: ErrTokenCount}
	}
	return t
}

func (t *tokens) float(i int, field string) float32 {
	if t.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(t.parts[i], 32)
	if err != nil {
		t.err = &ParseError{Line: t.line, Field: field, Err: ErrMalformed}
		return 0
	}
	return float32(v)
}

func (t *tokens) integer(i int, field string) int {
	if t.err != nil {
		return 0
	}
	v, err := strconv.Atoi(t.parts[i])
	if err != nil {
		t.err = &ParseError{Line: t.line, Field: field, Err: ErrMalformed}
		return 0
	}
	return v
}

func (t *tokens) channel(i int) int {
	id := t.integer(i, "id")
	if t.err == nil && (id < 0 || id >= model.MaxChannels) {
		t.err = &ParseError{Line: t.line, Field: "id", Err: ErrInvalidIndex}
	}
	return id
}

func decodeDeltaTime(line string) (Message, error) {
	t := tokenize(line, 4)
	m := DeltaTime{
		DT:    t.float(1, "dt"),
		MinDT: t.float(2, "minDt"),
		MaxDT: t.float(3, "maxDt"),
	}
	if t.err != nil {
		return nil, t.err
	}
	return m, nil
}

func decodeNumServos(line string) (Message, error) {
	t := tokenize(line, 2)
	m := NumServos{Count: t.integer(1, "count")}
	if t.err != nil {
		return nil, t.err
	}
	return m, nil
}

func decodeServoParams(line string) (Message, error) {
	t := tokenize(line, 7)
	m := ServoParams{
		Channel:  t.channel(1),
		P:        t.float(2, "P"),
		I:        t.float(3, "I"),
		D:        t.float(4, "D"),
		DLambda:  t.float(5, "DLambda"),
		SetPoint: t.float(6, "SetPoint"),
	}
	if t.err != nil {
		return nil, t.err
	}
	return m, nil
}

func decodeServoData(line string) (Message, error) {
	t := tokenize(line, 6)
	m := ServoData{
		Channel:    t.channel(1),
		Input:      t.float(2, "Input"),
		Output:     t.float(3, "Output"),
		Integrator: t.float(4, "Integrator"),
		DFiltered:  t.float(5, "DFiltered"),
	}
	if t.err != nil {
		return nil, t.err
	}
	return m, nil
}

func decodeGlobalVars(line string) (Message, error) {
	t := tokenize(line, 7)
	m := GlobalVars{
		NumServos:             t.integer(1, "NumServos"),
		PidEnabled:            t.integer(2, "PidEnabled"),
		PidMaxIntegratorStore: t.float(3, "PidMaxIntegratorStore"),
		ServoMinAngle:         t.float(4, "ServoMinAngle"),
		ServoMaxAngle:         t.float(5, "ServoMaxAngle"),
		DeadbandMaxDeviation:  t.float(6, "DeadbandMaxDeviation"),
	}
	if t.err != nil {
		return nil, t.err
	}
	return m, nil
}
