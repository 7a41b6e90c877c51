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

// Package endstop reads endstop switches and filters their signals.
package endstop

import (
	"github.com/aamcrae/endstops/axis"
)

// Pin is a boolean input from an endstop switch.
type Pin interface {
	Connected() bool
	Get() bool // true if the switch is asserted
}

// NotConnected is a Pin with no switch attached.
type NotConnected struct{}

func (NotConnected) Connected() bool { return false }
func (NotConnected) Get() bool       { return false }

// Pins holds the min and max endstops of each axis.
type Pins struct {
	Min [axis.Count]Pin
	Max [axis.Count]Pin
}

// NewPins returns a set of pins with nothing connected.
func NewPins() *Pins {
	p := new(Pins)
	for i := range p.Min {
		p.Min[i] = NotConnected{}
		p.Max[i] = NotConnected{}
	}
	return p
}

// Relevant returns the endstop that the axis homes against.
func (p *Pins) Relevant(a axis.Axis, d axis.Direction) Pin {
	var pin Pin
	if d == axis.HomeToMax {
		pin = p.Max[a]
	} else {
		pin = p.Min[a]
	}
	if pin == nil {
		return NotConnected{}
	}
	return pin
}
