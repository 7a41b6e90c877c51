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
	"github.com/aamcrae/endstops/axis"
)

// Sampler debounces the home endstops of all axes.
// Each call to Triggered reads the raw pin once. An asserted pin
// increments the axis counter, and the axis is reported as triggered
// once the counter reaches the threshold; a released pin clears the
// counter. A threshold of 0 triggers on the first asserted sample.
// The counters are not safe for concurrent use, and belong to the
// loop that polls the switches.
type Sampler struct {
	pins      *Pins
	dirs      [axis.Count]axis.Direction
	threshold uint32
	count     [axis.Count]uint32
}

// NewSampler creates a Sampler reading the relevant pin of each axis.
func NewSampler(pins *Pins, s *axis.Settings) *Sampler {
	sm := new(Sampler)
	sm.pins = pins
	sm.threshold = s.Debounce
	for i, c := range s.Axes {
		sm.dirs[i] = c.Home
	}
	return sm
}

// Triggered samples the axis endstop and returns true once the
// debounced signal is asserted.
func (s *Sampler) Triggered(a axis.Axis) bool {
	if !s.pins.Relevant(a, s.dirs[a]).Get() {
		s.count[a] = 0
		return false
	}
	// Saturate so that a switch held closed cannot wrap the counter.
	if s.count[a] < s.threshold || s.count[a] == 0 {
		s.count[a]++
	}
	return s.count[a] >= s.threshold
}

// Count returns the current count of consecutive asserted samples.
func (s *Sampler) Count(a axis.Axis) uint32 {
	return s.count[a]
}

// Reset clears all counters.
func (s *Sampler) Reset() {
	s.count = [axis.Count]uint32{}
}

// Raw returns the instantaneous state of the home endstop of an axis,
// without debouncing.
func (s *Sampler) Raw(a axis.Axis) bool {
	return s.pins.Relevant(a, s.dirs[a]).Get()
}
