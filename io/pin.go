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

// Package io connects endstop switches and stepper drivers to GPIO pins.
package io

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	gpio "github.com/aamcrae/gpio"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/endstop"
)

// Pin backends.
const (
	Sysfs = "sysfs"
	Rpio  = "rpio"
)

// PinSpec is a parsed endstop pin spec, such as "17^!".
// A trailing ^ enables the pull-up, and ! inverts the input.
type PinSpec struct {
	Number int
	PullUp bool
	Invert bool
}

func (p PinSpec) String() string {
	s := strconv.Itoa(p.Number)
	if p.PullUp {
		s += "^"
	}
	if p.Invert {
		s += "!"
	}
	return s
}

// ParsePin parses a pin spec. ok is false if the spec names no pin.
func ParsePin(spec string) (p PinSpec, ok bool, err error) {
	if !axis.Connected(spec) {
		return p, false, nil
	}
	s := strings.TrimSpace(spec)
	for len(s) > 0 {
		if c := s[len(s)-1]; c == '^' {
			p.PullUp = true
		} else if c == '!' {
			p.Invert = true
		} else {
			break
		}
		s = s[:len(s)-1]
	}
	p.Number, err = strconv.Atoi(s)
	if err != nil || p.Number < 0 {
		return p, false, fmt.Errorf("%s: illegal pin", spec)
	}
	return p, true, nil
}

// SysfsPin is an endstop read through the sysfs GPIO interface.
type SysfsPin struct {
	mu     sync.Mutex
	spec   PinSpec
	g      *gpio.Gpio
	failed bool
}

// NewSysfsPin opens a GPIO as an endstop input.
func NewSysfsPin(p PinSpec) (*SysfsPin, error) {
	if p.PullUp {
		log.Printf("gpio%d: pull-up not available with sysfs", p.Number)
	}
	g, err := gpio.Pin(p.Number)
	if err != nil {
		return nil, fmt.Errorf("gpio%d: %v", p.Number, err)
	}
	s := new(SysfsPin)
	s.spec = p
	s.g = g
	return s, nil
}

func (s *SysfsPin) Connected() bool {
	return true
}

// Get reads the pin. A read error is logged once and reads as released.
func (s *SysfsPin) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.g.Get()
	if err != nil {
		if !s.failed {
			log.Printf("gpio%d: %v", s.spec.Number, err)
			s.failed = true
		}
		return false
	}
	s.failed = false
	return (v != 0) != s.spec.Invert
}

func (s *SysfsPin) Close() {
	s.g.Close()
}

// RpioPin is an endstop read through the BCM2835 GPIO registers.
// rpio.Open must have been called.
type RpioPin struct {
	spec PinSpec
	pin  rpio.Pin
}

// NewRpioPin sets up a GPIO as an endstop input.
func NewRpioPin(p PinSpec) *RpioPin {
	r := &RpioPin{spec: p, pin: rpio.Pin(p.Number)}
	r.pin.Input()
	if p.PullUp {
		r.pin.PullUp()
	}
	return r
}

func (r *RpioPin) Connected() bool {
	return true
}

func (r *RpioPin) Get() bool {
	return (r.pin.Read() == rpio.High) != r.spec.Invert
}

func (r *RpioPin) Close() {
	r.pin.PullOff()
}

type closer interface {
	Close()
}

// Endstops is the set of endstop inputs opened from the settings.
type Endstops struct {
	Pins    *endstop.Pins
	backend string
	open    []closer
}

// OpenEndstops opens the min and max endstop of every axis using
// the configured backend. Unconnected pins are left as NotConnected.
func OpenEndstops(s *axis.Settings) (*Endstops, error) {
	e := new(Endstops)
	e.Pins = endstop.NewPins()
	e.backend = s.Pins
	switch s.Pins {
	case Sysfs:
	case Rpio:
		if err := rpio.Open(); err != nil {
			return nil, fmt.Errorf("rpio: %v", err)
		}
	default:
		return nil, fmt.Errorf("pins: unknown backend %q", s.Pins)
	}
	for i, c := range s.Axes {
		var err error
		if e.Pins.Min[i], err = e.openPin(c.MinPin); err != nil {
			e.Close()
			return nil, fmt.Errorf("%s: min_endstop: %v", c.Name, err)
		}
		if e.Pins.Max[i], err = e.openPin(c.MaxPin); err != nil {
			e.Close()
			return nil, fmt.Errorf("%s: max_endstop: %v", c.Name, err)
		}
	}
	return e, nil
}

func (e *Endstops) openPin(spec string) (endstop.Pin, error) {
	p, ok, err := ParsePin(spec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return endstop.NotConnected{}, nil
	}
	if e.backend == Rpio {
		r := NewRpioPin(p)
		e.open = append(e.open, r)
		return r, nil
	}
	sp, err := NewSysfsPin(p)
	if err != nil {
		return nil, err
	}
	e.open = append(e.open, sp)
	return sp, nil
}

// Close releases all of the pins.
func (e *Endstops) Close() {
	for _, c := range e.open {
		c.Close()
	}
	e.open = nil
	if e.backend == Rpio {
		rpio.Close()
	}
}
