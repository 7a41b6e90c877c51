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

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/homing"
)

// ErrUnhandled is returned for commands that are not handled here,
// so that the dispatcher can offer them elsewhere.
var ErrUnhandled = errors.New("command: unhandled")

// Default step rate for M910 raw moves.
const defaultRawRate = 200 * 16

// Handler executes commands against a homing controller.
// It is not safe for concurrent use.
type Handler struct {
	c    *homing.Controller
	idle func()
}

// NewHandler creates a handler. idle is called between homing iterations.
func NewHandler(c *homing.Controller, idle func()) *Handler {
	return &Handler{c: c, idle: idle}
}

// Exec parses and handles a line, writing any reply to w.
func (h *Handler) Exec(ctx context.Context, line string, w io.Writer) error {
	cmd, err := Parse(line)
	if err != nil || cmd == nil {
		return err
	}
	return h.Handle(ctx, cmd, w)
}

// Handle executes a command, writing any reply to w.
func (h *Handler) Handle(ctx context.Context, cmd *Command, w io.Writer) error {
	if cmd.Kind == 'G' {
		if cmd.Code == 28 {
			return h.home(ctx, cmd)
		}
		return ErrUnhandled
	}
	switch cmd.Code {
	case 119:
		h.status(w)
	case 206:
		h.offset(cmd, w)
	case 500, 503:
		h.dump(w)
	case 665:
		h.maxZ(cmd, w)
	case 666:
		h.trim(cmd, w)
	case 910:
		h.rawMove(cmd, w)
	default:
		return ErrUnhandled
	}
	return nil
}

// home runs a homing cycle. With no axis letters, or on a delta,
// all axes are homed.
func (h *Handler) home(ctx context.Context, cmd *Command) error {
	var requested uint8
	if !h.c.Settings().Delta {
		for _, a := range axes {
			if cmd.Has(a.Letter()) {
				requested |= a.Bit()
			}
		}
	}
	homed, err := h.c.Home(ctx, requested, h.idle)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	log.Printf("%s: homed %03b", cmd, homed)
	return nil
}

var axes = [axis.Count]axis.Axis{axis.X, axis.Y, axis.Z}

// status reports the raw state of the home endstops.
func (h *Handler) status(w io.Writer) {
	s := h.c.Settings()
	for i, a := range axes {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		fmt.Fprintf(w, "%s %s:%d", a, s.Axis(a).Home, b2i(h.c.Raw(a)))
	}
	fmt.Fprintln(w)
}

func (h *Handler) offset(cmd *Command, w io.Writer) {
	s := h.c.Settings()
	for _, a := range axes {
		if v, ok := cmd.Value(a.Letter()); ok {
			s.Axis(a).Offset = v
		}
	}
	fmt.Fprintf(w, "X %5.3f Y %5.3f Z %5.3f\n", s.Axis(axis.X).Offset, s.Axis(axis.Y).Offset, s.Axis(axis.Z).Offset)
}

// dump writes the settings as commands that restore them.
func (h *Handler) dump(w io.Writer) {
	s := h.c.Settings()
	x, y, z := s.Axis(axis.X), s.Axis(axis.Y), s.Axis(axis.Z)
	fmt.Fprintf(w, ";Home offset (mm):\nM206 X%1.2f Y%1.2f Z%1.2f\n", x.Offset, y.Offset, z.Offset)
	if s.Delta {
		fmt.Fprintf(w, ";Trim (mm):\nM666 X%1.2f Y%1.2f Z%1.2f\n", x.TrimMM(), y.TrimMM(), z.TrimMM())
		fmt.Fprintf(w, ";Max Z\nM665 Z%1.2f\n", z.Position)
	}
}

// maxZ sets the position Z is reset to after homing.
func (h *Handler) maxZ(cmd *Command, w io.Writer) {
	z := h.c.Settings().Axis(axis.Z)
	if v, ok := cmd.Value('Z'); ok {
		z.Position = v
	}
	fmt.Fprintf(w, "Max Z %8.3f\n", z.Position)
}

// trim sets the trim of each axis in mm. The reply holds the trims
// in mm and in steps.
func (h *Handler) trim(cmd *Command, w io.Writer) {
	s := h.c.Settings()
	var mm [axis.Count]float64
	for i, a := range axes {
		c := s.Axis(a)
		mm[i] = c.TrimMM()
		if v, ok := cmd.Value(a.Letter()); ok {
			mm[i] = v
			c.SetTrimMM(v)
		}
	}
	fmt.Fprintf(w, "X %5.3f (%d) Y %5.3f (%d) Z %5.3f (%d)\n",
		mm[0], s.Axis(axis.X).Trim, mm[1], s.Axis(axis.Y).Trim, mm[2], s.Axis(axis.Z).Trim)
}

// rawMove moves motors by a number of steps, outside of homing.
func (h *Handler) rawMove(cmd *Command, w io.Writer) {
	f := int32(defaultRawRate)
	if v, ok := cmd.Value('F'); ok {
		f = truncate(v)
	}
	var steps [axis.Count]int32
	for i, a := range axes {
		if !cmd.Has(a.Letter()) {
			continue
		}
		steps[i] = truncate(cmd.Get(a.Letter(), 0))
		rate := f
		if rate < 0 {
			rate = 0
		}
		h.c.RawMove(a, steps[i], uint32(rate))
	}
	fmt.Fprintf(w, "Moved X %d Y %d Z %d F %d steps\n", steps[0], steps[1], steps[2], f)
}

func truncate(v float64) int32 {
	v = math.Trunc(v)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < -math.MaxInt32 {
		return -math.MaxInt32
	}
	return int32(v)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
