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

package endstop

import (
	"testing"

	"github.com/aamcrae/endstops/axis"
)

// script is a pin that returns a fixed sequence of samples, repeating the last one.
type script struct {
	samples []bool
	n       int
}

func (s *script) Connected() bool { return true }

func (s *script) Get() bool {
	if len(s.samples) == 0 {
		return false
	}
	v := s.samples[len(s.samples)-1]
	if s.n < len(s.samples) {
		v = s.samples[s.n]
	}
	s.n++
	return v
}

func newSampler(threshold uint32, samples ...bool) (*Sampler, *script) {
	st := axis.Default()
	st.Debounce = threshold
	pins := NewPins()
	sc := &script{samples: samples}
	pins.Min[axis.X] = sc
	return NewSampler(pins, st), sc
}

// first returns the 1-based sample at which the sampler first triggers, or 0.
func first(s *Sampler, samples int) int {
	for i := 1; i <= samples; i++ {
		if s.Triggered(axis.X) {
			return i
		}
	}
	return 0
}

func TestDebounceThreshold(t *testing.T) {
	tests := []struct {
		threshold uint32
		samples   []bool
		want      int
	}{
		{0, []bool{true}, 1},
		{1, []bool{true}, 1},
		{2, []bool{true}, 2},
		{5, []bool{true}, 5},
		{3, []bool{true, true, false, true, true, true}, 6},
		{3, []bool{true, false, true, false, true, false}, 0},
		{4, []bool{false, false, true}, 6},
		{2, []bool{false}, 0},
	}
	for _, tt := range tests {
		s, _ := newSampler(tt.threshold, tt.samples...)
		if got := first(s, 10); got != tt.want {
			t.Errorf("threshold %d, samples %v: triggered at %d, want %d", tt.threshold, tt.samples, got, tt.want)
		}
	}
}

func TestDebounceReset(t *testing.T) {
	s, _ := newSampler(3, true, true, false, true)
	s.Triggered(axis.X)
	s.Triggered(axis.X)
	if c := s.Count(axis.X); c != 2 {
		t.Errorf("count = %d, want 2", c)
	}
	if s.Triggered(axis.X) {
		t.Errorf("released switch reported as triggered")
	}
	if c := s.Count(axis.X); c != 0 {
		t.Errorf("count after release = %d, want 0", c)
	}
}

func TestDebounceSaturates(t *testing.T) {
	s, _ := newSampler(2, true)
	for i := 0; i < 100; i++ {
		s.Triggered(axis.X)
	}
	if c := s.Count(axis.X); c != 2 {
		t.Errorf("count = %d, want 2", c)
	}
	if !s.Triggered(axis.X) {
		t.Errorf("held switch should stay triggered")
	}
}

func TestRelevantPin(t *testing.T) {
	pins := NewPins()
	mx := &script{samples: []bool{true}}
	pins.Max[axis.Y] = mx
	if pins.Relevant(axis.Y, axis.HomeToMin).Connected() {
		t.Errorf("Y min should not be connected")
	}
	if p := pins.Relevant(axis.Y, axis.HomeToMax); p != Pin(mx) {
		t.Errorf("Y max pin not selected")
	}
	pins.Min[axis.Z] = nil
	if pins.Relevant(axis.Z, axis.HomeToMin).Get() {
		t.Errorf("nil pin should read as released")
	}
}
