// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package axis holds the per-axis homing configuration.
package axis

import (
	"fmt"
	"math"
)

// Axis identifies a logical axis.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

// Count is the number of logical axes.
const Count = 3

// All is the bitmask of all axes.
const All = 1<<X | 1<<Y | 1<<Z

// Section names in the config file, one per axis.
var sections = [Count]string{"alpha", "beta", "gamma"}

func (a Axis) String() string {
	return string(a.Letter())
}

// Letter returns the command letter for the axis.
func (a Axis) Letter() byte {
	return 'X' + byte(a)
}

// Bit returns the bitmask for the axis.
func (a Axis) Bit() uint8 {
	return 1 << uint(a)
}

// In returns true if the axis is present in the mask.
func (a Axis) In(mask uint8) bool {
	return mask&a.Bit() != 0
}

// Direction is the direction an axis moves to reach its home switch.
type Direction int

const (
	HomeToMin Direction = iota
	HomeToMax
)

func (d Direction) String() string {
	if d == HomeToMax {
		return "max"
	}
	return "min"
}

// Toward returns the stepper direction flag that moves the axis toward
// its home switch. A true flag drives a motor toward the minimum end.
func (d Direction) Toward() bool {
	return d == HomeToMin
}

// Away returns the stepper direction flag that moves the axis away
// from its home switch.
func (d Direction) Away() bool {
	return !d.Toward()
}

// Sign is +1 when homing to min, -1 when homing to max.
func (d Direction) Sign() int {
	if d == HomeToMax {
		return -1
	}
	return 1
}

// Config is the homing configuration of a single axis.
// Rates are in steps per second, distances in steps unless noted.
type Config struct {
	Axis       Axis
	Name       string    // Config section name
	MinPin     string    // Pin spec of the min endstop
	MaxPin     string    // Pin spec of the max endstop
	Stepper    []int     // Step, dir, enable GPIOs
	StepsPerMM float64
	FastRate   float64
	SlowRate   float64
	Retract    uint32
	Home       Direction
	Min, Max   float64 // Travel limits (mm)
	Position   float64 // Logical position after homing (mm), before the offset
	Trim       int32   // Sign adjusted by home direction
	Offset     float64 // Home offset (mm)
}

// Homeable returns true if the endstop on the home side is connected.
func (c *Config) Homeable() bool {
	return Connected(c.HomePin())
}

// HomePin returns the pin spec of the endstop on the home side.
func (c *Config) HomePin() string {
	if c.Home == HomeToMax {
		return c.MaxPin
	}
	return c.MinPin
}

// Steps converts millimetres to steps, rounded to the nearest step.
func (c *Config) Steps(mm float64) int32 {
	return int32(math.Round(mm * c.StepsPerMM))
}

// TrimMM returns the trim in millimetres, where a positive value
// is away from the home switch.
func (c *Config) TrimMM() float64 {
	// Zero trim on a max-homing axis would otherwise be -0.
	if c.Trim == 0 || c.StepsPerMM <= 0 {
		return 0
	}
	return float64(c.Trim) / c.StepsPerMM * float64(c.Home.Sign())
}

// SetTrimMM stores a trim given in millimetres.
func (c *Config) SetTrimMM(mm float64) {
	c.Trim = c.Steps(mm) * int32(c.Home.Sign())
}

// HomedPosition is the logical position the axis is reset to after homing.
func (c *Config) HomedPosition() float64 {
	return c.Position + c.Offset
}

// Settings is the complete homing configuration.
type Settings struct {
	Enabled       bool
	Axes          [Count]*Config
	Debounce      uint32  // Consecutive samples required to trigger
	CoreXY        bool
	Delta         bool
	Acceleration  float64 // mm/s^2
	TickFrequency float64 // Governor ticks per second
	MinStepRate   uint32  // Lowest step rate applied by the governor
	Pins          string  // Endstop pin backend
}

// Axis returns the configuration of an axis.
func (s *Settings) Axis(a Axis) *Config {
	return s.Axes[a]
}

// Validate checks the settings for values that make homing impossible.
func (s *Settings) Validate() error {
	for _, c := range s.Axes {
		if c == nil {
			return fmt.Errorf("missing axis config")
		}
		homed := c.Homeable()
		if s.Delta && !homed {
			return fmt.Errorf("%s: delta homing requires a %s endstop", c.Name, c.Home)
		}
		if homed && c.StepsPerMM <= 0 {
			return fmt.Errorf("%s: steps_per_mm must be positive (%g)", c.Name, c.StepsPerMM)
		}
		if c.FastRate < 0 || c.SlowRate < 0 {
			return fmt.Errorf("%s: negative homing rate", c.Name)
		}
	}
	if s.TickFrequency <= 0 {
		return fmt.Errorf("acceleration_ticks_per_second must be positive (%g)", s.TickFrequency)
	}
	return nil
}

// Default returns settings for a Cartesian machine with min endstops
// on GPIOs 17, 27 and 22, and 80/80/400 steps per mm.
func Default() *Settings {
	s := &Settings{
		Enabled:       true,
		Acceleration:  defAcceleration,
		TickFrequency: defTicks,
		MinStepRate:   defMinRate,
		Pins:          "sysfs",
	}
	pins := [Count]string{"17", "27", "22"}
	spm := [Count]float64{80, 80, 400}
	for i := range s.Axes {
		a := Axis(i)
		s.Axes[i] = &Config{
			Axis:       a,
			Name:       sections[i],
			MinPin:     pins[i],
			MaxPin:     notConnected,
			StepsPerMM: spm[i],
			FastRate:   defFast[i],
			SlowRate:   defSlow[i],
			Retract:    uint32(defRetract[i]),
			Home:       HomeToMin,
			Max:        defMax,
		}
	}
	return s
}
