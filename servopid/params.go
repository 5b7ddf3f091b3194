package servopid

import (
	"sort"
	"strings"

	"github.com/hipsterbrown/servopid/model"
)

// ServoParam is the parameter id used by SetServoParamFloat.
type ServoParam byte

// Servo parameter ids per the controller firmware.
const (
	ParamNone ServoParam = iota
	ParamP
	ParamI
	ParamD
	ParamDLambda
	ParamSetPoint
	ParamInputMin
	ParamInputMax
)

// ParamInfo describes one writable channel parameter.
type ParamInfo struct {
	Name  string
	ID    ServoParam
	Field model.ChannelField
}

var servoParams = []ParamInfo{
	{Name: "p", ID: ParamP, Field: model.FieldP},
	{Name: "i", ID: ParamI, Field: model.FieldI},
	{Name: "d", ID: ParamD, Field: model.FieldD},
	{Name: "d_lambda", ID: ParamDLambda, Field: model.FieldDLambda},
	{Name: "set_point", ID: ParamSetPoint, Field: model.FieldSetPoint},
	{Name: "input_min", ID: ParamInputMin, Field: model.FieldInputMin},
	{Name: "input_max", ID: ParamInputMax, Field: model.FieldInputMax},
}

var (
	paramsByName  = make(map[string]ParamInfo)
	paramsByField = make(map[model.ChannelField]ParamInfo)
)

func init() {
	for _, info := range servoParams {
		paramsByName[info.Name] = info
		paramsByField[info.Field] = info
	}
}

func (p ServoParam) String() string {
	for _, info := range servoParams {
		if info.ID == p {
			return info.Name
		}
	}
	return "none"
}

// LookupServoParam returns a parameter by its name ("p", "set_point", ...).
func LookupServoParam(name string) (ParamInfo, bool) {
	info, ok := paramsByName[strings.ToLower(strings.TrimSpace(name))]
	return info, ok
}

// ParamForField returns the wire parameter a model field maps to.
func ParamForField(f model.ChannelField) (ParamInfo, bool) {
	info, ok := paramsByField[f]
	return info, ok
}

// ListServoParams returns all parameter names sorted.
func ListServoParams() []string {
	names := make([]string, 0, len(paramsByName))
	for name := range paramsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
