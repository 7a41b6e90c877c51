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

// Package homing drives axes to their endstops.
//
// A homing cycle is a Session: a fixed sequence of phases chosen by the
// machine topology. Each phase starts its moves and is then polled, one
// sampling iteration per poll, until it completes. The blocking Home call
// polls the session and yields to an idle callback between polls.
// An acceleration governor (Tick) runs from a separate fixed rate timer
// and ramps the step rates of the moving motors toward the feed rates
// set by the active phase.
package homing

import (
	"errors"
	"log"
	"math"
	"sync/atomic"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/endstop"
)

var (
	ErrBusy     = errors.New("homing: cycle already running")
	ErrDisabled = errors.New("homing: endstops disabled")
)

// Status is the state of the homing state machine.
type Status int32

const (
	Idle Status = iota
	SeekFast
	Retract
	SeekSlow
	TrimAdjust
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case SeekFast:
		return "seek-fast"
	case Retract:
		return "retract"
	case SeekSlow:
		return "seek-slow"
	case TrimAdjust:
		return "trim"
	}
	return "unknown"
}

// unbounded is the step count used when seeking an endstop.
const unbounded = 10000000

// Stepper is a motor driven by the controller.
// Move with a true direction drives the motor toward the minimum end.
// Move with zero steps stops the motor.
// Implementations must allow the rate methods to be called concurrently
// with Move and Moving.
type Stepper interface {
	Moving() bool
	StepsPerSecond() uint32
	SetSpeed(rate uint32)
	Move(dir bool, steps uint32)
}

// Queue is the motion queue, which must be empty before homing.
type Queue interface {
	WaitForEmpty()
}

// Positioner owns the logical axis positions.
type Positioner interface {
	ResetAxisPosition(pos float64, a axis.Axis)
}

// Power turns on the motor drivers.
type Power interface {
	EnableMotors()
}

// Ticker is implemented by components driven by a periodic timer.
type Ticker interface {
	Tick()
}

// Machine holds the collaborators used by the controller.
// Queue, Robot and Power may be nil.
type Machine struct {
	Settings *axis.Settings
	Steppers [axis.Count]Stepper
	Pins     *endstop.Pins
	Queue    Queue
	Robot    Positioner
	Power    Power
}

// Controller runs homing cycles and the acceleration governor.
type Controller struct {
	m         *Machine
	status    int32              // Status, read by the governor
	motors    uint32             // Motors driven by the active session
	feed      [axis.Count]uint32 // Target step rate per motor
	increment [axis.Count]uint32 // Governor step rate increase per tick
	session   *Session           // Owned by the caller of Start
}

// NewController creates a controller for the machine.
func NewController(m *Machine) (*Controller, error) {
	if m.Settings == nil {
		return nil, errors.New("homing: no settings")
	}
	if err := m.Settings.Validate(); err != nil {
		return nil, err
	}
	for i, st := range m.Steppers {
		if st == nil {
			return nil, errors.New("homing: no stepper for " + axis.Axis(i).String())
		}
	}
	c := new(Controller)
	c.m = m
	if c.m.Pins == nil {
		c.m.Pins = endstop.NewPins()
	}
	s := m.Settings
	for i, ac := range s.Axes {
		c.increment[i] = uint32(math.Floor(s.Acceleration / s.TickFrequency * ac.StepsPerMM))
	}
	return c, nil
}

// Status returns the current state of the state machine.
func (c *Controller) Status() Status {
	return Status(atomic.LoadInt32(&c.status))
}

func (c *Controller) setStatus(s Status) {
	if old := Status(atomic.SwapInt32(&c.status, int32(s))); old != s {
		log.Printf("homing: %s -> %s", old, s)
	}
}

// FeedRate returns the target step rate of a motor.
func (c *Controller) FeedRate(a axis.Axis) uint32 {
	return atomic.LoadUint32(&c.feed[a])
}

// Settings returns the settings used by the controller.
func (c *Controller) Settings() *axis.Settings {
	return c.m.Settings
}

// Stepper returns the motor of an axis.
func (c *Controller) Stepper(a axis.Axis) Stepper {
	return c.m.Steppers[a]
}

// Raw returns the instantaneous state of the home endstop of an axis.
func (c *Controller) Raw(a axis.Axis) bool {
	return c.pin(a).Get()
}

func (c *Controller) pin(a axis.Axis) endstop.Pin {
	return c.m.Pins.Relevant(a, c.m.Settings.Axis(a).Home)
}

// Eligible returns the mask of axes that a home request will move.
// With no axes requested, all axes are homed. Axes without a connected
// home endstop are skipped, except on a delta where all towers home together.
func (c *Controller) Eligible(requested uint8) uint8 {
	if c.m.Settings.Delta {
		return axis.All
	}
	all := requested&axis.All == 0
	var mask uint8
	for i := 0; i < axis.Count; i++ {
		a := axis.Axis(i)
		if (all || a.In(requested)) && c.pin(a).Connected() {
			mask |= a.Bit()
		}
	}
	return mask
}

// RawMove moves a motor by a signed number of steps at a fixed rate,
// outside of any homing cycle. A zero step move stops the motor.
func (c *Controller) RawMove(a axis.Axis, steps int32, rate uint32) {
	st := c.m.Steppers[a]
	st.SetSpeed(rate)
	st.Move(steps < 0, uint32(abs(steps)))
}

// drive sets the feed rate of a motor and starts it from rest.
func (c *Controller) drive(a axis.Axis, rate float64, dir bool, steps uint32) {
	atomic.StoreUint32(&c.feed[a], uint32(math.Floor(rate)))
	st := c.m.Steppers[a]
	st.SetSpeed(0)
	st.Move(dir, steps)
}

// stop stops a motor if it is moving.
func (c *Controller) stop(a axis.Axis) {
	if st := c.m.Steppers[a]; st.Moving() {
		st.Move(false, 0)
	}
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
