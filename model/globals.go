package model

import (
	"fmt"
	"strings"
)

// GlobalVar enumerates the controller-wide variables. The numeric values
// match the device's variable ids.
type GlobalVar uint8

const (
	GlobalNumServos GlobalVar = iota
	GlobalPidEnabled
	GlobalPidMaxIntegratorStore
	GlobalAnalogInputRange // reserved, the firmware ignores it
	GlobalServoMinAngle
	GlobalServoMaxAngle
	GlobalDeadbandMaxDeviation

	NumGlobalVars = int(GlobalDeadbandMaxDeviation) + 1
)

var globalVarNames = [NumGlobalVars]string{
	"num_servos",
	"pid_enabled",
	"pid_max_integrator_store",
	"analog_input_range",
	"servo_min_angle",
	"servo_max_angle",
	"deadband_max_deviation",
}

func (v GlobalVar) String() string {
	if v.Valid() {
		return globalVarNames[v]
	}
	return fmt.Sprintf("global(%d)", uint8(v))
}

// Valid reports whether v is a known variable.
func (v GlobalVar) Valid() bool {
	return int(v) < NumGlobalVars
}

// Integer reports whether the device stores v as an integer.
func (v GlobalVar) Integer() bool {
	return v == GlobalNumServos || v == GlobalPidEnabled
}

// ParseGlobalVar resolves a variable by its snake_case name.
func ParseGlobalVar(name string) (GlobalVar, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range globalVarNames {
		if n == name {
			return GlobalVar(i), true
		}
	}
	return 0, false
}

// AllGlobalVars lists every variable in id order.
func AllGlobalVars() []GlobalVar {
	out := make([]GlobalVar, NumGlobalVars)
	for i := range out {
		out[i] = GlobalVar(i)
	}
	return out
}

// Globals is the value table for all global variables.
type Globals [NumGlobalVars]float32

// Get returns the value of v, or zero for unknown variables.
func (g *Globals) Get(v GlobalVar) float32 {
	if !v.Valid() {
		return 0
	}
	return g[v]
}

// Set stores value for v; unknown variables are ignored.
func (g *Globals) Set(v GlobalVar, value float32) {
	if v.Valid() {
		g[v] = value
	}
}

// Map returns the table keyed by variable name.
func (g Globals) Map() map[string]float32 {
	out := make(map[string]float32, NumGlobalVars)
	for i, value := range g {
		out[globalVarNames[i]] = value
	}
	return out
}
