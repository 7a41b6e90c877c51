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

package io

import (
	"fmt"
	"sync/atomic"
	"time"

	gpio "github.com/aamcrae/gpio"
)

const stepperQueueSize = 4 // Size of queue for requests

// Idle delay while the step rate is zero.
const stallDelay = time.Millisecond

// Setter is an interface for setting an output value on a GPIO
type Setter interface {
	Set(int) error
}

type msg struct {
	dir   bool
	steps uint32
	sync  chan bool
}

// Stepper represents a stepper motor driver with step, direction and
// enable inputs.
// All actual stepping is done in a background goroutine. A move runs
// until its steps are done or it is replaced by another move.
// The step rate may be changed at any time, and applies from the next step.
// The current step number is maintained as an absolute number, referenced from
// 0 when the stepper is first initialised. A true direction decrements it.
type Stepper struct {
	name              string
	step, dir, enable Setter    // Pins for controlling outputs
	mChan             chan msg  // channel for message requests
	stopChan          chan bool // channel for signalling resets.
	rate              uint32    // Steps per second
	moving            int32     // 1 while a move is in progress
	current           int64     // Current step number as an absolute number
}

// NewStepper creates and initialises a Stepper. enable may be nil.
func NewStepper(name string, step, dir, enable Setter) *Stepper {
	s := new(Stepper)
	s.name = name
	s.step = step
	s.dir = dir
	s.enable = enable
	s.mChan = make(chan msg, stepperQueueSize)
	s.stopChan = make(chan bool)
	go s.handler()
	return s
}

// OpenStepper opens the step, direction and enable GPIOs of a driver.
func OpenStepper(name string, pins []int) (*Stepper, error) {
	if len(pins) != 3 {
		return nil, fmt.Errorf("%s: stepper needs step, dir and enable pins", name)
	}
	var gp [3]*gpio.Gpio
	for i, p := range pins {
		g, err := gpio.OutputPin(p)
		if err != nil {
			for _, o := range gp[:i] {
				o.Close()
			}
			return nil, fmt.Errorf("%s: gpio%d: %v", name, p, err)
		}
		gp[i] = g
	}
	return NewStepper(name, gp[0], gp[1], gp[2]), nil
}

// Close stops the motor and frees any resources.
func (s *Stepper) Close() {
	s.Stop()
	close(s.mChan)
	close(s.stopChan)
}

// GetStep returns the current step number, which is an accumulative
// signed value representing the steps moved, with 0 as the starting location.
func (s *Stepper) GetStep() int64 {
	return atomic.LoadInt64(&s.current)
}

// Moving returns true while a move is in progress.
func (s *Stepper) Moving() bool {
	return atomic.LoadInt32(&s.moving) != 0
}

// SetSpeed sets the step rate in steps per second.
func (s *Stepper) SetSpeed(rate uint32) {
	atomic.StoreUint32(&s.rate, rate)
}

// StepsPerSecond returns the current step rate.
func (s *Stepper) StepsPerSecond() uint32 {
	return atomic.LoadUint32(&s.rate)
}

// Enable turns the motor driver on or off. The enable input is active low.
func (s *Stepper) Enable(on bool) error {
	if s.enable == nil {
		return nil
	}
	if on {
		return s.enable.Set(0)
	}
	return s.enable.Set(1)
}

// Move aborts any current move, and starts moving the motor the
// number of steps in the direction given. A true direction moves toward
// the minimum. Zero steps just stops the motor.
func (s *Stepper) Move(dir bool, steps uint32) {
	s.Stop()
	if steps == 0 {
		return
	}
	atomic.StoreInt32(&s.moving, 1)
	s.mChan <- msg{dir: dir, steps: steps}
}

// Stop aborts any current stepping, and flushes all queued requests.
func (s *Stepper) Stop() {
	s.stopChan <- true
	s.Wait()
}

// Wait waits for all requests to complete
func (s *Stepper) Wait() {
	c := make(chan bool)
	s.mChan <- msg{sync: c}
	<-c
}

// goroutine handler
// Listens on message channel, and runs the motor.
func (s *Stepper) handler() {
	for {
		select {
		case m := <-s.mChan:
			// Request to step the motor
			if m.steps != 0 {
				done := s.run(m.dir, m.steps)
				atomic.StoreInt32(&s.moving, 0)
				if done {
					return
				}
			}
			if m.sync != nil {
				// If sync channel is present, signal it.
				m.sync <- true
				close(m.sync)
			}
		case stop := <-s.stopChan:
			// Request to stop and flush all requests
			s.flush()
			if !stop {
				return
			}
		}
	}
}

// run pulses the step output at the current rate until the steps
// are done or a stop is received. It returns true if the
// stepper has been closed.
func (s *Stepper) run(dir bool, steps uint32) bool {
	inc := int64(1)
	d := 1
	if dir {
		inc = -1
		d = 0
	}
	s.dir.Set(d)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	for steps > 0 {
		delay := stallDelay
		if r := atomic.LoadUint32(&s.rate); r > 0 {
			delay = time.Second / time.Duration(r)
		}
		timer.Reset(delay)
		select {
		case stop := <-s.stopChan:
			s.flush()
			// A closed channel kills the handler.
			return !stop
		case <-timer.C:
		}
		if atomic.LoadUint32(&s.rate) == 0 {
			continue
		}
		s.step.Set(1)
		s.step.Set(0)
		atomic.AddInt64(&s.current, inc)
		steps--
	}
	return false
}

// Flush all remaining actions from message channel.
func (s *Stepper) flush() {
	for {
		select {
		case m, ok := <-s.mChan:
			if !ok {
				return
			}
			if m.steps != 0 {
				atomic.StoreInt32(&s.moving, 0)
			}
			if m.sync != nil {
				m.sync <- true
				close(m.sync)
			}
		default:
			return
		}
	}
}

// Drivers is a set of steppers that are powered together.
type Drivers []*Stepper

// EnableMotors turns on all of the drivers.
func (d Drivers) EnableMotors() {
	for _, s := range d {
		if s != nil {
			s.Enable(true)
		}
	}
}

// Close closes all of the drivers.
func (d Drivers) Close() {
	for _, s := range d {
		if s != nil {
			s.Enable(false)
			s.Close()
		}
	}
}
