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
	"math"
	"sync/atomic"
	"testing"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/sim"
)

func TestDominant(t *testing.T) {
	lo, hi := axis.HomeToMin, axis.HomeToMax
	tests := []struct {
		x, y  axis.Direction
		motor axis.Axis
		dir   bool
	}{
		{lo, lo, axis.X, true},
		{lo, hi, axis.Y, true},
		{hi, lo, axis.Y, false},
		{hi, hi, axis.X, false},
	}
	for _, tc := range tests {
		m, d := Dominant(tc.x, tc.y)
		if m != tc.motor || d != tc.dir {
			t.Errorf("Dominant(%s, %s) = %s/%v, want %s/%v", tc.x, tc.y, m, d, tc.motor, tc.dir)
		}
	}
}

// poll runs the session until done returns true.
func poll(t *testing.T, sess *Session, idle func(), done func() bool) {
	t.Helper()
	for n := 0; !done(); n++ {
		if n > 200000 {
			t.Fatalf("session stalled")
		}
		idle()
		sess.Poll()
	}
}

func TestCoreXYMinMax(t *testing.T) {
	dirs := [axis.Count]axis.Direction{axis.HomeToMin, axis.HomeToMax, axis.HomeToMin}
	s := settings(axis.X.Bit()|axis.Y.Bit(), dirs)
	s.CoreXY = true
	s.Debounce = 1
	c, m := newController(t, s, sim.CoreXY, [axis.Count]float64{120, 100, 0})
	sess, err := c.Start(0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Axes() != axis.X.Bit()|axis.Y.Bit() {
		t.Errorf("axes %03b, want XY", sess.Axes())
	}
	sess.Poll()
	want := uint32(math.Floor(s.Axis(axis.Y).FastRate * math.Sqrt2))
	if f := c.FeedRate(axis.Y); f != want {
		t.Errorf("diagonal feed rate %d, want %d", f, want)
	}
	if f := c.FeedRate(axis.X); f != 0 {
		t.Errorf("X motor feed rate %d during diagonal, want 0", f)
	}
	if !m.Motors[axis.Y].Moving() || m.Motors[axis.X].Moving() {
		t.Errorf("diagonal should only turn the Y motor")
	}
	idle := m.Idle(c.Tick)
	poll(t, sess, idle, func() bool { return sess.index > 0 })
	if n := m.Motors[axis.X].Steps(); n != 0 {
		t.Errorf("X motor took %d steps during diagonal", n)
	}
	if y := m.Position(axis.Y); !near(y, 200) {
		t.Errorf("diagonal stopped with Y at %g, want 200", y)
	}
	poll(t, sess, idle, sess.Done)
	if p := m.Positions(); !near(p[axis.X], 0) || !near(p[axis.Y], 200) {
		t.Errorf("carriage at %v, want X 0 Y 200", p)
	}
	mask, pos := m.Homed()
	if mask != axis.X.Bit()|axis.Y.Bit() || pos[axis.X] != 0 || pos[axis.Y] != 200 {
		t.Errorf("reset %03b to %v, want X 0 Y 200", mask, pos)
	}
	if m.Motors[axis.Z].Moves() != 0 {
		t.Errorf("Z motor moved")
	}
}

func TestCoreXYHomeAll(t *testing.T) {
	s := settings(axis.All, allMin)
	s.CoreXY = true
	s.Debounce = 2
	c, m := newController(t, s, sim.CoreXY, [axis.Count]float64{80, 30, 10})
	if homed := home(t, c, m, 0, nil); homed != axis.All {
		t.Errorf("homed %03b, want all", homed)
	}
	for i, p := range m.Positions() {
		if !near(p, 0) {
			t.Errorf("%s: carriage at %g, want 0", axis.Axis(i), p)
		}
	}
}

func TestCoreXYSingleAxis(t *testing.T) {
	s := settings(axis.All, allMin)
	s.CoreXY = true
	c, m := newController(t, s, sim.CoreXY, [axis.Count]float64{80, 30, 10})
	if homed := home(t, c, m, axis.Y.Bit(), nil); homed != axis.Y.Bit() {
		t.Errorf("homed %03b, want Y", homed)
	}
	p := m.Positions()
	if !near(p[axis.Y], 0) || !near(p[axis.X], 80) || p[axis.Z] != 10 {
		t.Errorf("carriage at %v, want X 80 Y 0 Z 10", p)
	}
}

func TestGovernorRamp(t *testing.T) {
	s := settings(axis.X.Bit(), allMin)
	s.Acceleration = 1000
	s.TickFrequency = 1000
	s.MinStepRate = 0
	c, m := newController(t, s, sim.Cartesian, [axis.Count]float64{50, 0, 0})
	x := m.Motors[axis.X]
	c.setStatus(SeekFast)
	atomic.StoreUint32(&c.motors, uint32(axis.X.Bit()))
	atomic.StoreUint32(&c.feed[axis.X], 1000)
	x.Move(true, 100000)
	for k := uint32(1); k <= 20; k++ {
		c.Tick()
		want := k * 80
		if want > 1000 {
			want = 1000
		}
		if got := x.StepsPerSecond(); got != want {
			t.Errorf("tick %d: rate %d, want %d", k, got, want)
		}
	}
	// A rate above the feed rate is cut to the feed rate.
	x.SetSpeed(5000)
	c.Tick()
	if got := x.StepsPerSecond(); got != 1000 {
		t.Errorf("rate %d after overspeed, want 1000", got)
	}
}

func TestGovernorFloor(t *testing.T) {
	s := settings(axis.X.Bit(), allMin)
	s.Acceleration = 1000
	s.TickFrequency = 1000
	s.MinStepRate = 100
	c, m := newController(t, s, sim.Cartesian, [axis.Count]float64{50, 0, 0})
	x := m.Motors[axis.X]
	c.setStatus(SeekFast)
	atomic.StoreUint32(&c.motors, uint32(axis.X.Bit()))
	atomic.StoreUint32(&c.feed[axis.X], 1000)
	x.Move(true, 100000)
	for _, want := range []uint32{100, 180, 260} {
		c.Tick()
		if got := x.StepsPerSecond(); got != want {
			t.Errorf("rate %d, want %d", got, want)
		}
	}
	// The floor applies even when the feed rate is lower.
	atomic.StoreUint32(&c.feed[axis.X], 10)
	c.Tick()
	if got := x.StepsPerSecond(); got != 100 {
		t.Errorf("rate %d with low feed, want 100", got)
	}
}

func TestGovernorRampLimit(t *testing.T) {
	s := settings(axis.X.Bit(), allMin)
	s.Acceleration = 1000
	s.TickFrequency = 1000
	s.MinStepRate = 0
	c, m := newController(t, s, sim.Cartesian, [axis.Count]float64{50, 0, 0})
	x := m.Motors[axis.X]
	c.setStatus(SeekFast)
	atomic.StoreUint32(&c.motors, uint32(axis.X.Bit()))
	atomic.StoreUint32(&c.feed[axis.X], math.MaxUint32)
	x.Move(true, 100000)
	x.SetSpeed(math.MaxUint32 - 5)
	c.Tick()
	if got := x.StepsPerSecond(); got != math.MaxUint32 {
		t.Errorf("rate %d, want %d", got, uint32(math.MaxUint32))
	}
}

func TestGovernorIgnores(t *testing.T) {
	s := settings(axis.X.Bit()|axis.Y.Bit(), allMin)
	c, m := newController(t, s, sim.Cartesian, [axis.Count]float64{50, 50, 0})
	x, y := m.Motors[axis.X], m.Motors[axis.Y]
	atomic.StoreUint32(&c.feed[axis.X], 1000)
	atomic.StoreUint32(&c.feed[axis.Y], 1000)
	x.Move(true, 100)
	y.Move(true, 100)
	// Idle.
	c.Tick()
	if x.StepsPerSecond() != 0 || y.StepsPerSecond() != 0 {
		t.Errorf("governor changed rates while idle")
	}
	// Motors outside the session.
	c.setStatus(SeekFast)
	atomic.StoreUint32(&c.motors, uint32(axis.X.Bit()))
	c.Tick()
	if y.StepsPerSecond() != 0 {
		t.Errorf("governor changed the rate of a motor outside the session")
	}
	if x.StepsPerSecond() == 0 {
		t.Errorf("governor did not ramp the session motor")
	}
	// Stopped motors.
	x.Move(false, 0)
	x.SetSpeed(0)
	c.Tick()
	if x.StepsPerSecond() != 0 {
		t.Errorf("governor changed the rate of a stopped motor")
	}
	c.setStatus(Idle)
}
