package thorlabs

import (
	"fmt"
	"sort"
	"strings"
)

// Scale converts physical units (mm, mm/s, mm/s^2) to controller counts
type Scale struct {
	Position     float64 `yaml:"Position" koanf:"Position"`
	Velocity     float64 `yaml:"Velocity" koanf:"Velocity"`
	Acceleration float64 `yaml:"Acceleration" koanf:"Acceleration"`

	// Stepper is true for stepper motor controllers (KST101, TST001),
	// which use a different status message than the DC servo controllers
	Stepper bool `yaml:"Stepper" koanf:"Stepper"`
}

// z8 is shared by all of the Z8 series DC servo actuators driven by a KDC101
var z8 = Scale{Position: 34554.96, Velocity: 772981.3692, Acceleration: 263.8443072}

// Stages maps stage and actuator part numbers to their scale
var Stages = map[string]Scale{
	"MTS50-Z8": z8,
	"MTS25-Z8": z8,
	"Z825":     z8,
	"Z825B":    z8,
	"Z812":     z8,
	"Z812B":    z8,
	"Z806":     z8,
	"LTS150":   {Position: 409600, Velocity: 21987328, Acceleration: 4506, Stepper: true},
	"LTS300":   {Position: 409600, Velocity: 21987328, Acceleration: 4506, Stepper: true},
	"LST150":   {Position: 409600, Velocity: 21987328, Acceleration: 4506, Stepper: true},
}

// MetersPerCount is the length of one position count in meters
func (s Scale) MetersPerCount() float64 {
	return 1e-3 / s.Position
}

// LookupStage returns the scale of a stage by part number, ignoring case
func LookupStage(part string) (Scale, error) {
	if s, ok := Stages[strings.ToUpper(part)]; ok {
		return s, nil
	}
	known := make([]string, 0, len(Stages))
	for k := range Stages {
		known = append(known, k)
	}
	sort.Strings(known)
	return Scale{}, fmt.Errorf("unknown stage %q, known stages are %v", part, known)
}
