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

// Simulator for homing cycles

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fogleman/gg"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/command"
	"github.com/aamcrae/endstops/homing"
	"github.com/aamcrae/endstops/sim"
)

var configFile = flag.String("config", "", "Configuration file (default built in settings)")
var kinematics = flag.String("kinematics", "cartesian", "Machine kinematics, cartesian, corexy or delta")
var startX = flag.Float64("x", 100, "Starting X position (mm)")
var startY = flag.Float64("y", 100, "Starting Y position (mm)")
var startZ = flag.Float64("z", 100, "Starting Z position (mm)")
var debounce = flag.Int("debounce", -1, "Override the debounce count")
var trace = flag.String("trace", "homing.png", "Position trace image, empty to disable")

var colours = [axis.Count][3]float64{{1, 0, 0}, {0, 0.6, 0}, {0, 0, 1}}

func main() {
	flag.Parse()
	s := axis.Default()
	if *configFile != "" {
		var err error
		if s, err = axis.LoadFile(*configFile); err != nil {
			log.Fatalf("%s: %v", *configFile, err)
		}
	}
	var k sim.Kinematics
	switch *kinematics {
	case "cartesian":
	case "corexy":
		k = sim.CoreXY
		s.CoreXY = true
	case "delta":
		k = sim.Delta
		s.Delta = true
	default:
		log.Fatalf("%s: unknown kinematics", *kinematics)
	}
	if *debounce >= 0 {
		s.Debounce = uint32(*debounce)
	}
	m := sim.New(s, k, [axis.Count]float64{*startX, *startY, *startZ})
	mc := &homing.Machine{Settings: s, Pins: m.Pins(), Queue: m, Robot: m, Power: m}
	for i, mt := range m.Motors {
		mc.Steppers[i] = mt
	}
	c, err := homing.NewController(mc)
	if err != nil {
		log.Fatalf("Controller: %v", err)
	}
	// The governor runs at its configured rate in simulated time.
	m.Step = 1 / s.TickFrequency
	h := command.NewHandler(c, m.Idle(c.Tick))
	m.Record()
	args := flag.Args()
	if len(args) == 0 {
		args = []string{"G28"}
	}
	for _, l := range args {
		fmt.Printf("> %s\n", l)
		w := bufio.NewWriter(os.Stdout)
		if err := h.Exec(context.Background(), l, w); err != nil {
			fmt.Fprintf(w, "!! %v\n", err)
		}
		w.Flush()
	}
	mask, pos := m.Homed()
	var b strings.Builder
	for i := range pos {
		a := axis.Axis(i)
		if a.In(mask) {
			fmt.Fprintf(&b, " %s=%.3f", a, pos[i])
		}
	}
	fmt.Printf("Homed%s in %.3f seconds, carriage at %.3f\n", b.String(), m.Now(), m.Positions())
	if *trace != "" {
		if err := plot(m, s).SavePNG(*trace); err != nil {
			log.Fatalf("%s: %v", *trace, err)
		}
		fmt.Printf("Trace written to %s\n", *trace)
	}
}

// plot draws the carriage position of each axis against time.
func plot(m *sim.Machine, s *axis.Settings) *gg.Context {
	const w, h, margin = 800, 400, 30
	c := gg.NewContext(w, h)
	c.SetRGB(1, 1, 1)
	c.Clear()
	lo, hi := 0.0, 1.0
	for _, ac := range s.Axes {
		if ac.Min < lo {
			lo = ac.Min
		}
		if ac.Max > hi {
			hi = ac.Max
		}
	}
	end := m.Now()
	if end <= 0 {
		end = 1
	}
	px := func(t float64) float64 {
		return margin + t/end*(w-2*margin)
	}
	py := func(p float64) float64 {
		return h - margin - (p-lo)/(hi-lo)*(h-2*margin)
	}
	c.SetRGB(0, 0, 0)
	c.SetLineWidth(1)
	c.DrawLine(margin, py(lo), w-margin, py(lo))
	c.DrawLine(margin, py(lo), margin, py(hi))
	c.Stroke()
	c.DrawString(fmt.Sprintf("%.2fs", end), w-margin-40, h-10)
	c.DrawString(fmt.Sprintf("%.0fmm", hi), 2, py(hi)+10)
	for i := 0; i < axis.Count; i++ {
		col := colours[i]
		c.SetRGB(col[0], col[1], col[2])
		c.SetLineWidth(2)
		for j, p := range m.Trace {
			if j == 0 {
				c.MoveTo(px(p.Time), py(p.Pos[i]))
			} else {
				c.LineTo(px(p.Time), py(p.Pos[i]))
			}
		}
		c.Stroke()
		c.DrawString(axis.Axis(i).String(), w-margin+5, margin+float64(15*i))
	}
	return c
}
