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

// Program to demonstrate how to drive a step/dir stepper driver.

package main

import (
	"flag"
	"log"
	"time"

	"github.com/aamcrae/endstops/io"
)

var stepPin = flag.Int("step", 5, "GPIO pin for the step input")
var dirPin = flag.Int("dir", 6, "GPIO pin for the direction input")
var enablePin = flag.Int("enable", 13, "GPIO pin for the enable input")
var rate = flag.Uint("rate", 1600, "Steps per second")
var steps = flag.Uint("steps", 3200, "Steps")

func main() {
	flag.Parse()
	st, err := io.OpenStepper("demo", []int{*stepPin, *dirPin, *enablePin})
	if err != nil {
		log.Fatalf("Stepper: %v", err)
	}
	defer st.Close()
	if err := st.Enable(true); err != nil {
		log.Fatalf("Enable: %v", err)
	}
	defer st.Enable(false)
	st.SetSpeed(uint32(*rate))
	now := time.Now()
	dir := false
	for i := 0; i < 4; i++ {
		st.Move(dir, uint32(*steps))
		for st.Moving() {
			time.Sleep(10 * time.Millisecond)
		}
		log.Printf("Moved %d steps, position %d", *steps, st.GetStep())
		dir = !dir
	}
	// Start a long move, and stop it part way.
	st.Move(true, uint32(*steps)*10)
	time.Sleep(time.Second)
	log.Printf("Stopping")
	st.Move(false, 0)
	log.Printf("Elapsed = %s, position = %d\n", time.Now().Sub(now), st.GetStep())
}
