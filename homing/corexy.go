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

package homing

import (
	"log"
	"math"

	"github.com/aamcrae/endstops/axis"
)

// CoreXY motors are named after the axis index of their stepper.
// X = (A + B) / 2 and Y = (A - B) / 2, where A is the X motor.
const xyMotors = 1<<axis.X | 1<<axis.Y

// Dominant returns the single motor and its direction flag that moves
// the carriage diagonally toward both the X and Y home switches.
func Dominant(x, y axis.Direction) (axis.Axis, bool) {
	switch {
	case x == axis.HomeToMin && y == axis.HomeToMin:
		return axis.X, true
	case x == axis.HomeToMin && y == axis.HomeToMax:
		return axis.Y, true
	case x == axis.HomeToMax && y == axis.HomeToMin:
		return axis.Y, false
	}
	return axis.X, false
}

// corexy returns the phases that home a CoreXY machine, along with the
// mask of motors driven. Z homes directly after X and Y.
func (c *Controller) corexy(axes uint8) ([]phase, uint8) {
	var p []phase
	var motors uint8
	xy := axes & xyMotors
	if xy != 0 {
		motors = xyMotors
	}
	if xy == xyMotors {
		p = append(p, &diagonal{})
	}
	st := c.m.Settings
	if axis.X.In(axes) {
		d := st.Axis(axis.X).Home.Toward()
		p = append(p, c.coupled(axis.X, d, d)...)
	}
	if axis.Y.In(axes) {
		d := st.Axis(axis.Y).Home.Toward()
		p = append(p, c.coupled(axis.Y, d, !d)...)
	}
	if axis.Z.In(axes) {
		p = append(p, c.direct(axis.Z.Bit())...)
		motors |= axis.Z.Bit()
	}
	return p, motors
}

// coupled returns the phases that home one axis by driving both motors.
func (c *Controller) coupled(a axis.Axis, da, db bool) []phase {
	dirs := [2]bool{da, db}
	return []phase{
		&pair{status: SeekFast, target: a, dirs: dirs},
		&pair{status: Retract, target: a, dirs: dirs},
		&pair{status: SeekSlow, target: a, dirs: dirs},
	}
}

// diagonal turns the single motor that moves toward both the X and Y
// switches, and stops it when either switch triggers.
type diagonal struct {
	motor axis.Axis
}

func (p *diagonal) state() Status {
	return SeekFast
}

func (p *diagonal) start(s *Session) {
	st := s.c.m.Settings
	m, dir := Dominant(st.Axis(axis.X).Home, st.Axis(axis.Y).Home)
	p.motor = m
	s.sampler.Reset()
	// The carriage covers more ground on the diagonal.
	s.c.drive(m, st.Axis(m).FastRate*math.Sqrt2, dir, unbounded)
}

func (p *diagonal) poll(s *Session) bool {
	// Both samplers are updated on every iteration.
	x := s.sampler.Triggered(axis.X)
	y := s.sampler.Triggered(axis.Y)
	if !x && !y {
		return false
	}
	s.c.stop(p.motor)
	log.Printf("homing: diagonal stopped (X %v, Y %v)", x, y)
	return true
}

// pair is one stage of homing a CoreXY axis, with both motors driven
// in the given directions.
type pair struct {
	status Status
	target axis.Axis
	dirs   [2]bool
}

func (p *pair) state() Status {
	return p.status
}

func (p *pair) start(s *Session) {
	ac := s.c.m.Settings.Axis(p.target)
	switch p.status {
	case SeekFast, SeekSlow:
		rate := ac.FastRate
		if p.status == SeekSlow {
			rate = ac.SlowRate
		}
		s.sampler.Reset()
		s.c.drive(axis.X, rate, p.dirs[0], unbounded)
		s.c.drive(axis.Y, rate, p.dirs[1], unbounded)
	case Retract:
		s.c.drive(axis.X, ac.SlowRate, !p.dirs[0], ac.Retract)
		s.c.drive(axis.Y, ac.SlowRate, !p.dirs[1], ac.Retract)
	}
}

func (p *pair) poll(s *Session) bool {
	if p.status == Retract {
		return !s.c.moving(xyMotors)
	}
	if !s.sampler.Triggered(p.target) {
		return false
	}
	s.c.stop(axis.X)
	s.c.stop(axis.Y)
	log.Printf("%s: endstop triggered (%s)", p.target, p.status)
	return true
}
