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

	"github.com/aamcrae/endstops/axis"
)

// direct returns the phases that home Cartesian and delta axes.
// Each axis is driven by its own motor toward its own endstop.
func (c *Controller) direct(axes uint8) []phase {
	if axes == 0 {
		return nil
	}
	p := []phase{
		&seek{status: SeekFast, axes: axes},
		&retract{axes: axes},
		&seek{status: SeekSlow, axes: axes},
	}
	if c.m.Settings.Delta {
		p = append(p, &trim{axes: axes})
	}
	return p
}

// seek drives each axis toward its endstop until every one has triggered.
// An axis is stopped as soon as its own endstop triggers.
type seek struct {
	status  Status
	axes    uint8
	latched uint8 // Axes that have triggered
}

func (p *seek) state() Status {
	return p.status
}

func (p *seek) start(s *Session) {
	s.sampler.Reset()
	p.latched = 0
	each(p.axes, func(a axis.Axis) {
		ac := s.c.m.Settings.Axis(a)
		rate := ac.FastRate
		if p.status == SeekSlow {
			rate = ac.SlowRate
		}
		s.c.drive(a, rate, ac.Home.Toward(), unbounded)
	})
}

func (p *seek) poll(s *Session) bool {
	each(p.axes&^p.latched, func(a axis.Axis) {
		if s.sampler.Triggered(a) {
			p.latched |= a.Bit()
			s.c.stop(a)
			log.Printf("%s: endstop triggered (%s)", a, p.status)
		}
	})
	return p.latched == p.axes
}

// retract backs each axis off its endstop by the retract distance.
type retract struct {
	axes uint8
}

func (p *retract) state() Status {
	return Retract
}

func (p *retract) start(s *Session) {
	each(p.axes, func(a axis.Axis) {
		ac := s.c.m.Settings.Axis(a)
		s.c.drive(a, ac.SlowRate, ac.Home.Away(), ac.Retract)
	})
}

func (p *retract) poll(s *Session) bool {
	return !s.c.moving(p.axes)
}

// trim moves each delta tower by its trim after the slow seek.
// A positive trim moves away from the endstop.
type trim struct {
	axes uint8
}

func (p *trim) state() Status {
	return TrimAdjust
}

func (p *trim) start(s *Session) {
	each(p.axes, func(a axis.Axis) {
		ac := s.c.m.Settings.Axis(a)
		if ac.Trim == 0 {
			return
		}
		dir := ac.Home.Away()
		if ac.Trim < 0 {
			dir = !dir
		}
		s.c.drive(a, ac.SlowRate, dir, uint32(abs(ac.Trim)))
	})
}

func (p *trim) poll(s *Session) bool {
	return !s.c.moving(p.axes)
}

// moving returns true if any motor in the mask is moving.
func (c *Controller) moving(motors uint8) bool {
	for i := 0; i < axis.Count; i++ {
		if a := axis.Axis(i); a.In(motors) && c.m.Steppers[a].Moving() {
			return true
		}
	}
	return false
}
