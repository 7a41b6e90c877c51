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

package axis

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aamcrae/config"
)

const notConnected = "nc"

// Defaults for the legacy step based settings, per axis.
var (
	defFast    = [Count]float64{4000, 4000, 6400}
	defSlow    = [Count]float64{2000, 2000, 3200}
	defRetract = [Count]float64{400, 400, 1600}
)

const (
	defMax          = 200.0
	defAcceleration = 100.0
	defTicks        = 1000.0
	defMinRate      = 20
)

// Connected returns false if the pin spec names no pin.
func Connected(pin string) bool {
	p := strings.TrimSpace(pin)
	return p != "" && !strings.EqualFold(p, notConnected)
}

// LoadFile reads the settings from a config file.
func LoadFile(file string) (*Settings, error) {
	conf, err := config.ParseFile(file)
	if err != nil {
		return nil, err
	}
	return Load(conf)
}

// Load reads and validates the homing settings from a parsed config.
// Sample config:
//  [endstops]
//  debounce_count=2           # Samples required to trigger an endstop
//  corexy_homing=false
//  delta_homing=false
//  pins=sysfs                 # Endstop input backend, sysfs or rpio
//  [motion]
//  acceleration=1000          # mm/s^2
//  acceleration_ticks_per_second=1000
//  minimum_steps_per_second=20
//  [alpha]                    # X axis, beta is Y and gamma is Z
//  min_endstop=17^            # GPIO, ^ for pull-up, ! to invert, nc if none
//  max_endstop=nc
//  stepper=5,6,13             # step, dir and enable GPIOs
//  steps_per_mm=80
//  fast_homing_rate_mm_s=50
//  slow_homing_rate_mm_s=25
//  homing_retract_mm=5
//  homing_direction=home_to_min
//  min=0
//  max=200
//  trim=0
func Load(conf *config.Config) (*Settings, error) {
	s := new(Settings)
	g := conf.GetSection("endstops")
	var err error
	if s.Enabled, err = getBool(g, "enable", true); err != nil {
		return nil, err
	}
	deb, err := getNumber(g, "debounce_count", 0)
	if err != nil {
		return nil, err
	}
	if deb < 0 {
		return nil, fmt.Errorf("debounce_count: negative value")
	}
	s.Debounce = uint32(deb)
	if s.CoreXY, err = getBool(g, "corexy_homing", false); err != nil {
		return nil, err
	}
	if s.Delta, err = getBool(g, "delta_homing", false); err != nil {
		return nil, err
	}
	s.Pins = getString(g, "pins", "sysfs")
	m := conf.GetSection("motion")
	if s.Acceleration, err = getNumber(m, "acceleration", defAcceleration); err != nil {
		return nil, err
	}
	if s.TickFrequency, err = getNumber(m, "acceleration_ticks_per_second", defTicks); err != nil {
		return nil, err
	}
	minRate, err := getNumber(m, "minimum_steps_per_second", defMinRate)
	if err != nil {
		return nil, err
	}
	s.MinStepRate = uint32(minRate)
	for i := range s.Axes {
		s.Axes[i], err = axisConfig(conf, Axis(i))
		if err != nil {
			return nil, err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// axisConfig reads the section for one axis. The mm based rate and
// retract settings override the older step based ones.
func axisConfig(conf *config.Config, a Axis) (*Config, error) {
	name := sections[a]
	s := conf.GetSection(name)
	c := &Config{Axis: a, Name: name}
	c.MinPin = getString(s, "min_endstop", notConnected)
	c.MaxPin = getString(s, "max_endstop", notConnected)
	if st := getString(s, "stepper", ""); st != "" {
		var pins [3]int
		n, err := s.Parse("stepper", "%d,%d,%d", &pins[0], &pins[1], &pins[2])
		if err != nil {
			return nil, fmt.Errorf("%s: stepper: %v", name, err)
		}
		if n != 3 {
			return nil, fmt.Errorf("%s: stepper: argument count", name)
		}
		c.Stepper = pins[:]
	}
	var err error
	if c.StepsPerMM, err = getNumber(s, "steps_per_mm", 0); err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	fast, err := getNumber(s, "fast_homing_rate", defFast[a])
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	slow, err := getNumber(s, "slow_homing_rate", defSlow[a])
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	retract, err := getNumber(s, "homing_retract", defRetract[a])
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	if c.StepsPerMM > 0 {
		if fast, err = mmSetting(s, "fast_homing_rate_mm_s", fast, c.StepsPerMM); err != nil {
			return nil, fmt.Errorf("%s: %v", name, err)
		}
		if slow, err = mmSetting(s, "slow_homing_rate_mm_s", slow, c.StepsPerMM); err != nil {
			return nil, fmt.Errorf("%s: %v", name, err)
		}
		if retract, err = mmSetting(s, "homing_retract_mm", retract, c.StepsPerMM); err != nil {
			return nil, fmt.Errorf("%s: %v", name, err)
		}
	}
	c.FastRate = fast
	c.SlowRate = slow
	if retract < 0 {
		return nil, fmt.Errorf("%s: homing_retract: negative value", name)
	}
	c.Retract = uint32(math.Round(retract))
	switch dir := getString(s, "homing_direction", "home_to_min"); dir {
	case "home_to_min":
		c.Home = HomeToMin
	case "home_to_max":
		c.Home = HomeToMax
	default:
		return nil, fmt.Errorf("%s: homing_direction: unknown value %q", name, dir)
	}
	if c.Min, err = getNumber(s, "min", 0); err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	if c.Max, err = getNumber(s, "max", defMax); err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	if c.Home == HomeToMin {
		c.Position = c.Min
	} else {
		c.Position = c.Max
	}
	trim, err := getNumber(s, "trim", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	c.SetTrimMM(trim)
	return c, nil
}

// mmSetting reads a setting given in mm (or mm/s) and converts it to steps,
// defaulting to the step based value.
func mmSetting(s *config.Section, key string, steps, spm float64) (float64, error) {
	mm, err := getNumber(s, key, steps/spm)
	if err != nil {
		return 0, err
	}
	return mm * spm, nil
}

// getString returns the value of key, or def if the section or key is absent.
func getString(s *config.Section, key, def string) string {
	if s == nil {
		return def
	}
	v, err := s.GetArg(key)
	if err != nil {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func getNumber(s *config.Section, key string, def float64) (float64, error) {
	if getString(s, key, "") == "" {
		return def, nil
	}
	var v float64
	n, err := s.Parse(key, "%g", &v)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", key, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("%s: argument count", key)
	}
	return v, nil
}

func getBool(s *config.Section, key string, def bool) (bool, error) {
	v := getString(s, key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %v", key, err)
	}
	return b, nil
}
