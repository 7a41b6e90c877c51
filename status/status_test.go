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

package status

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/homing"
	"github.com/aamcrae/endstops/sim"
)

func newController(t *testing.T) (*homing.Controller, *sim.Machine) {
	t.Helper()
	s := axis.Default()
	s.Axis(axis.Z).MinPin = "nc"
	m := sim.New(s, sim.Cartesian, [axis.Count]float64{0, 50, 50})
	mc := &homing.Machine{Settings: s, Pins: m.Pins()}
	for i, mt := range m.Motors {
		mc.Steppers[i] = mt
	}
	c, err := homing.NewController(mc)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, m
}

func TestTake(t *testing.T) {
	c, _ := newController(t)
	c.RawMove(axis.Y, 100, 500)
	s := Take(c)
	if s.Status != "idle" {
		t.Errorf("status %q, want idle", s.Status)
	}
	x, y, z := s.Axes[axis.X], s.Axes[axis.Y], s.Axes[axis.Z]
	if !x.Endstop || y.Endstop || z.Endstop {
		t.Errorf("endstops %v/%v/%v, want X only", x.Endstop, y.Endstop, z.Endstop)
	}
	if !y.Moving || y.Rate != 500 || x.Moving {
		t.Errorf("Y moving %v at %d, X moving %v", y.Moving, y.Rate, x.Moving)
	}
	if z.Homed || !x.Homed || x.Home != "min" || x.Name != "X" {
		t.Errorf("axis details wrong: %+v %+v", x, z)
	}
}

func TestServer(t *testing.T) {
	c, _ := newController(t)
	srv := httptest.NewServer(NewServer(c, 10*time.Millisecond).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	var s Snapshot
	err = json.NewDecoder(resp.Body).Decode(&s)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Status != "idle" || !s.Axes[axis.X].Endstop {
		t.Errorf("snapshot %+v", s)
	}

	resp, err = http.Get(srv.URL + "/endstops.png")
	if err != nil {
		t.Fatalf("GET /endstops.png: %v", err)
	}
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != rowSize*(axis.Count+1) {
		t.Errorf("image size %v", b)
	}
}

func TestStream(t *testing.T) {
	c, _ := newController(t)
	srv := httptest.NewServer(NewServer(c, 10*time.Millisecond).Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+srv.URL[4:]+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var s Snapshot
		if err := conn.ReadJSON(&s); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if s.Axes[axis.Y].Name != "Y" {
			t.Errorf("snapshot %d: %+v", i, s)
		}
	}
}

func TestRender(t *testing.T) {
	var s Snapshot
	s.Status = "seek-fast"
	s.Axes[0] = Axis{Name: "X", Home: "min", Homed: true, Feed: 4000, Rate: 8000}
	img := Render(s)
	if b := img.Bounds(); b.Dx() != width {
		t.Errorf("width %d, want %d", b.Dx(), width)
	}
	// A rate above the feed rate fills the bar and no more.
	r, g, b, _ := img.At(barStart+barLen-2, rowSize+rowSize/2).RGBA()
	if r != 0 || g != 0 || b == 0 {
		t.Errorf("bar end colour %d/%d/%d, want blue", r, g, b)
	}
	r, g, b, _ = img.At(barStart+barLen+5, rowSize+rowSize/2).RGBA()
	if r == 0 || g == 0 || b == 0 {
		t.Errorf("past bar colour %d/%d/%d, want white", r, g, b)
	}
}
