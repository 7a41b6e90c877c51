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
	"context"
	"log"
	"sync/atomic"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/endstop"
)

// phase is one step of a homing cycle.
// start issues the moves; poll runs one iteration and returns true when
// the phase is complete.
type phase interface {
	state() Status
	start(s *Session)
	poll(s *Session) bool
}

// Session is a single homing cycle, from the accepted request until
// the state machine returns to Idle.
type Session struct {
	c       *Controller
	axes    uint8
	motors  uint8
	sampler *endstop.Sampler
	phases  []phase
	index   int
	started bool
	done    bool
}

// Start begins a homing cycle for the requested axes (a bitmask, 0 for all).
// It waits for the motion queue to drain and powers the motors, and
// returns a session that must be polled until it reports completion.
func (c *Controller) Start(requested uint8) (*Session, error) {
	if !c.m.Settings.Enabled {
		return nil, ErrDisabled
	}
	if c.session != nil || c.Status() != Idle {
		return nil, ErrBusy
	}
	if c.m.Queue != nil {
		c.m.Queue.WaitForEmpty()
	}
	s := new(Session)
	s.c = c
	s.axes = c.Eligible(requested)
	s.sampler = endstop.NewSampler(c.m.Pins, c.m.Settings)
	if c.m.Power != nil {
		c.m.Power.EnableMotors()
	}
	if c.m.Settings.CoreXY {
		s.phases, s.motors = c.corexy(s.axes)
	} else {
		s.phases = c.direct(s.axes)
		s.motors = s.axes
	}
	log.Printf("homing: start %s (%d phases)", maskString(s.axes), len(s.phases))
	atomic.StoreUint32(&c.motors, uint32(s.motors))
	c.session = s
	return s, nil
}

// Home runs a complete homing cycle, calling idle between iterations.
// It blocks until every requested axis has homed; there is no timeout,
// so an endstop that never triggers blocks until ctx is cancelled.
// A cancelled cycle stops the motors and does not reset any position.
// Home returns the mask of axes that were homed.
func (c *Controller) Home(ctx context.Context, requested uint8, idle func()) (uint8, error) {
	s, err := c.Start(requested)
	if err != nil {
		return 0, err
	}
	done := ctx.Done()
	for !s.Poll() {
		if idle != nil {
			idle()
		}
		select {
		case <-done:
			s.Cancel()
			return 0, ctx.Err()
		default:
		}
	}
	return s.axes, nil
}

// Axes returns the mask of axes being homed.
func (s *Session) Axes() uint8 {
	return s.axes
}

// Done returns true once the session has finished or been cancelled.
func (s *Session) Done() bool {
	return s.done
}

// Poll advances the session by one iteration, and returns true once
// the cycle is complete and the axis positions have been reset.
func (s *Session) Poll() bool {
	if s.done {
		return true
	}
	for s.index < len(s.phases) {
		p := s.phases[s.index]
		if !s.started {
			s.started = true
			s.c.setStatus(p.state())
			p.start(s)
			return false
		}
		if !p.poll(s) {
			return false
		}
		s.index++
		s.started = false
	}
	s.finish()
	return true
}

// Cancel stops the motors of the session and returns to Idle.
func (s *Session) Cancel() {
	if s.done {
		return
	}
	each(s.motors, s.c.stop)
	s.end()
	log.Printf("homing: cancelled %s", maskString(s.axes))
}

func (s *Session) finish() {
	s.end()
	st := s.c.m.Settings
	for i := 0; i < axis.Count; i++ {
		a := axis.Axis(i)
		if !a.In(s.axes) {
			continue
		}
		pos := st.Axis(a).HomedPosition()
		if s.c.m.Robot != nil {
			s.c.m.Robot.ResetAxisPosition(pos, a)
		}
		log.Printf("%s: homed, position %.3f", a, pos)
	}
}

func (s *Session) end() {
	s.done = true
	s.c.setStatus(Idle)
	atomic.StoreUint32(&s.c.motors, 0)
	s.c.session = nil
}

// each calls f for every axis in the mask.
func each(mask uint8, f func(a axis.Axis)) {
	for i := 0; i < axis.Count; i++ {
		if a := axis.Axis(i); a.In(mask) {
			f(a)
		}
	}
}

func maskString(mask uint8) string {
	s := ""
	each(mask, func(a axis.Axis) {
		s += a.String()
	})
	if s == "" {
		return "none"
	}
	return s
}
