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

// Calibration utility for endstops and stepper travel

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/command"
	"github.com/aamcrae/endstops/homing"
	"github.com/aamcrae/endstops/io"
)

var configFile = flag.String("config", "endstops.conf", "Configuration file")
var rate = flag.Int("rate", 3200, "Step rate for raw moves")

func main() {
	flag.Parse()
	s, err := axis.LoadFile(*configFile)
	if err != nil {
		log.Fatalf("%s: %v", *configFile, err)
	}
	ends, err := io.OpenEndstops(s)
	if err != nil {
		log.Fatalf("Endstops: %v", err)
	}
	defer ends.Close()
	var drivers io.Drivers
	m := &homing.Machine{Settings: s, Pins: ends.Pins}
	for i, ac := range s.Axes {
		st, err := io.OpenStepper(ac.Name, ac.Stepper)
		if err != nil {
			log.Fatalf("%s: %v", ac.Name, err)
		}
		drivers = append(drivers, st)
		m.Steppers[i] = st
	}
	defer drivers.Close()
	m.Power = drivers
	c, err := homing.NewController(m)
	if err != nil {
		log.Fatalf("Controller: %v", err)
	}
	// Raw moves are not ramped, so the governor only runs while homing.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		t := time.NewTicker(time.Duration(float64(time.Second) / s.TickFrequency))
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.Tick()
			case <-ctx.Done():
				return
			}
		}
	}()
	h := command.NewHandler(c, func() { time.Sleep(time.Millisecond) })
	drivers.EnableMotors()
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Enter command ('help' for help) ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		var a byte
		var steps int
		switch {
		case text == "help":
			fmt.Println("  help - print help")
			fmt.Println("  s - show endstops and step positions")
			fmt.Println("  x|y|z [-]NNN - move axis steps")
			fmt.Println("  G28, M119, M206, M503, M665, M666, M910 - commands")
			fmt.Println("  q - quit")
		case text == "q":
			return
		case text == "s":
			h.Exec(ctx, "M119", os.Stdout)
			for i, st := range drivers {
				fmt.Printf("%s: step %d\n", axis.Axis(i), st.GetStep())
			}
		case len(text) > 0 && (text[0] == 'G' || text[0] == 'M' || text[0] == 'g' || text[0] == 'm'):
			if err := h.Exec(ctx, text, os.Stdout); errors.Is(err, command.ErrUnhandled) {
				fmt.Printf("%s: not supported\n", text)
			} else if err != nil {
				fmt.Printf("%s: %v\n", text, err)
			}
		default:
			n, err := fmt.Sscanf(text, "%c %d", &a, &steps)
			if err != nil || n != 2 || a < 'x' || a > 'z' {
				fmt.Printf("Unrecognised input\n")
				continue
			}
			ax := axis.Axis(a - 'x')
			fmt.Printf("Moving %s %d steps\n", ax, steps)
			c.RawMove(ax, int32(steps), uint32(*rate))
			for c.Stepper(ax).Moving() {
				time.Sleep(10 * time.Millisecond)
			}
		}
	}
}
