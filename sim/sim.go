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

// Package sim simulates the motors and endstop switches of a machine,
// so that homing cycles can run without hardware.
// Time only advances when Advance is called, so runs are repeatable.
package sim

import (
	"math"
	"sync"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/endstop"
)

// Kinematics selects how motor positions map to carriage positions.
type Kinematics int

const (
	Cartesian Kinematics = iota
	CoreXY
	Delta
)

func (k Kinematics) String() string {
	switch k {
	case CoreXY:
		return "corexy"
	case Delta:
		return "delta"
	}
	return "cartesian"
}

// Motor acts like a stepper motor driver. Steps are taken when the
// simulation advances, at the current step rate.
// A true direction decreases the step position.
type Motor struct {
	mu        sync.Mutex
	name      string
	position  int64   // Absolute step position
	dir       bool    // Current direction
	remaining uint32  // Steps left in the current move
	rate      uint32  // Steps per second
	frac      float64 // Part step carried between advances
	steps     uint64  // Total steps taken
	moves     int     // Number of moves issued
}

// NewMotor creates a motor at a step position.
func NewMotor(name string, pos int64) *Motor {
	m := new(Motor)
	m.name = name
	m.position = pos
	return m
}

// Move starts a move of steps in a direction, replacing any current move.
// Zero steps stops the motor.
func (m *Motor) Move(dir bool, steps uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dir = dir
	m.remaining = steps
	m.frac = 0
	if steps != 0 {
		m.moves++
	}
}

// Moving returns true if the motor has steps remaining.
func (m *Motor) Moving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining != 0
}

// SetSpeed sets the step rate.
func (m *Motor) SetSpeed(rate uint32) {
	m.mu.Lock()
	m.rate = rate
	m.mu.Unlock()
}

// StepsPerSecond returns the step rate.
func (m *Motor) StepsPerSecond() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// GetStep returns the current step position.
func (m *Motor) GetStep() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Steps returns the total number of steps taken.
func (m *Motor) Steps() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps
}

// Moves returns the number of moves that have been started.
func (m *Motor) Moves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moves
}

// advance steps the motor for dt seconds, and returns the signed steps taken.
func (m *Motor) advance(dt float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remaining == 0 || m.rate == 0 {
		return 0
	}
	m.frac += float64(m.rate) * dt
	n := uint32(m.frac)
	m.frac -= float64(n)
	if n > m.remaining {
		n = m.remaining
	}
	m.remaining -= n
	if m.remaining == 0 {
		m.frac = 0
	}
	m.steps += uint64(n)
	d := int64(n)
	if m.dir {
		d = -d
	}
	m.position += d
	return d
}

// Switch is an endstop that closes when the carriage reaches a limit.
type Switch struct {
	m     *Machine
	a     axis.Axis
	limit float64 // mm
	max   bool
}

// Connected always returns true.
func (s *Switch) Connected() bool {
	return true
}

// Get returns true if the carriage is at or past the limit.
func (s *Switch) Get() bool {
	p := s.m.Position(s.a)
	if s.max {
		return p >= s.limit
	}
	return p <= s.limit
}

// Point is a sample of the carriage positions.
type Point struct {
	Time float64
	Pos  [axis.Count]float64
}

// Machine is a set of simulated motors and the switches at the
// travel limits of each axis.
type Machine struct {
	Kinematics Kinematics
	Motors     [axis.Count]*Motor
	Step       float64 // Seconds per Advance when driven by Idle
	Trace      []Point // Positions after each Advance, if tracing

	settings *axis.Settings
	pins     *endstop.Pins
	now      float64
	tracing  bool
	resets   uint8
	homed    [axis.Count]float64
	powered  int
}

// New creates a machine with the carriage at start (mm), and a switch
// at every travel limit with a connected pin in the settings.
func New(s *axis.Settings, k Kinematics, start [axis.Count]float64) *Machine {
	m := new(Machine)
	m.Kinematics = k
	m.Step = 0.001
	m.settings = s
	var steps [axis.Count]int64
	for i, c := range s.Axes {
		steps[i] = int64(math.Round(start[i] * c.StepsPerMM))
	}
	if k == CoreXY {
		x, y := steps[axis.X], steps[axis.Y]
		steps[axis.X] = x + y
		steps[axis.Y] = x - y
	}
	for i := range m.Motors {
		m.Motors[i] = NewMotor(axis.Axis(i).String(), steps[i])
	}
	m.pins = endstop.NewPins()
	for i, c := range s.Axes {
		a := axis.Axis(i)
		if axis.Connected(c.MinPin) {
			m.pins.Min[i] = &Switch{m: m, a: a, limit: c.Min}
		}
		if axis.Connected(c.MaxPin) {
			m.pins.Max[i] = &Switch{m: m, a: a, limit: c.Max, max: true}
		}
	}
	return m
}

// Pins returns the simulated endstops.
func (m *Machine) Pins() *endstop.Pins {
	return m.pins
}

// Position returns the carriage position of an axis in mm.
func (m *Machine) Position(a axis.Axis) float64 {
	var st int64
	if m.Kinematics == CoreXY && a != axis.Z {
		pa := m.Motors[axis.X].GetStep()
		pb := m.Motors[axis.Y].GetStep()
		if a == axis.X {
			st = pa + pb
		} else {
			st = pa - pb
		}
		return float64(st) / 2 / m.settings.Axis(a).StepsPerMM
	}
	st = m.Motors[a].GetStep()
	return float64(st) / m.settings.Axis(a).StepsPerMM
}

// Positions returns the carriage positions of all axes.
func (m *Machine) Positions() [axis.Count]float64 {
	var p [axis.Count]float64
	for i := range p {
		p[i] = m.Position(axis.Axis(i))
	}
	return p
}

// Advance runs the motors for dt seconds.
func (m *Machine) Advance(dt float64) {
	for _, mt := range m.Motors {
		mt.advance(dt)
	}
	m.now += dt
	if m.tracing {
		m.Trace = append(m.Trace, Point{Time: m.now, Pos: m.Positions()})
	}
}

// Now returns the simulated time in seconds.
func (m *Machine) Now() float64 {
	return m.now
}

// Record enables recording of the carriage positions.
func (m *Machine) Record() {
	m.tracing = true
	m.Trace = append(m.Trace, Point{Time: m.now, Pos: m.Positions()})
}

// Idle returns a function that advances the simulation by one step
// and then calls each ticker, to be used as the homing idle callback.
func (m *Machine) Idle(tickers ...func()) func() {
	return func() {
		m.Advance(m.Step)
		for _, t := range tickers {
			t()
		}
	}
}

// ResetAxisPosition records the logical position set after homing.
func (m *Machine) ResetAxisPosition(pos float64, a axis.Axis) {
	m.homed[a] = pos
	m.resets |= a.Bit()
}

// Homed returns the mask of axes that have had their position reset,
// and the positions they were reset to.
func (m *Machine) Homed() (uint8, [axis.Count]float64) {
	return m.resets, m.homed
}

// EnableMotors counts the requests to power the motors.
func (m *Machine) EnableMotors() {
	m.powered++
}

// Powered returns the number of times the motors were enabled.
func (m *Machine) Powered() int {
	return m.powered
}

// WaitForEmpty returns immediately, as there is no motion queue.
func (m *Machine) WaitForEmpty() {
}
