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

// Program to watch an endstop input, with and without debouncing

package main

import (
	"flag"
	"log"
	"time"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/endstop"
	"github.com/aamcrae/endstops/io"
)

var pin = flag.String("pin", "17^", "Endstop pin spec")
var backend = flag.String("backend", io.Sysfs, "Pin backend, sysfs or rpio")
var debounce = flag.Uint("debounce", 3, "Debounce count")
var period = flag.Duration("period", time.Millisecond, "Sampling period")

func main() {
	flag.Parse()
	s := axis.Default()
	s.Pins = *backend
	s.Debounce = uint32(*debounce)
	for _, c := range s.Axes {
		c.MinPin = "nc"
	}
	s.Axis(axis.X).MinPin = *pin
	e, err := io.OpenEndstops(s)
	if err != nil {
		log.Fatalf("Pin %s: %v", *pin, err)
	}
	defer e.Close()
	sm := endstop.NewSampler(e.Pins, s)
	var raw, triggered bool
	for {
		r := sm.Raw(axis.X)
		t := sm.Triggered(axis.X)
		if r != raw || t != triggered {
			log.Printf("pin %s raw = %v, debounced = %v (count %d)\n", *pin, r, t, sm.Count(axis.X))
			raw, triggered = r, t
		}
		time.Sleep(*period)
	}
}
