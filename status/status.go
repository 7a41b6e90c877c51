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

// Package status serves the state of the endstops and the homing
// controller over HTTP, as JSON, as an image and as a websocket stream.
package status

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/fogleman/gg"
	"github.com/gorilla/websocket"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/homing"
)

// Axis is the state of one axis.
type Axis struct {
	Name    string `json:"name"`
	Home    string `json:"home"`
	Homed   bool   `json:"homeable"`
	Endstop bool   `json:"endstop"`
	Feed    uint32 `json:"feed_rate"`
	Rate    uint32 `json:"step_rate"`
	Moving  bool   `json:"moving"`
}

// Snapshot is the state of the controller at a point in time.
type Snapshot struct {
	Status string           `json:"status"`
	Axes   [axis.Count]Axis `json:"axes"`
}

// Take reads a snapshot from the controller. Only the state that may be
// read while a homing cycle is running is included.
func Take(c *homing.Controller) Snapshot {
	var s Snapshot
	s.Status = c.Status().String()
	st := c.Settings()
	for i := range s.Axes {
		a := axis.Axis(i)
		ac := st.Axis(a)
		m := c.Stepper(a)
		s.Axes[i] = Axis{
			Name:    a.String(),
			Home:    ac.Home.String(),
			Homed:   ac.Homeable(),
			Endstop: c.Raw(a),
			Feed:    c.FeedRate(a),
			Rate:    m.StepsPerSecond(),
			Moving:  m.Moving(),
		}
	}
	return s
}

const (
	width    = 360
	rowSize  = 40
	barStart = 110
	barLen   = 230
)

// Render draws the snapshot as an image, one row per axis, with the
// endstop state and the step rate relative to the feed rate.
func Render(s Snapshot) image.Image {
	c := gg.NewContext(width, rowSize*(axis.Count+1))
	c.SetRGB(1, 1, 1)
	c.Clear()
	c.SetRGB(0, 0, 0)
	c.DrawString("homing: "+s.Status, 10, 24)
	for i, a := range s.Axes {
		y := float64(rowSize * (i + 1))
		mid := y + rowSize/2
		c.SetRGB(0, 0, 0)
		c.DrawString(fmt.Sprintf("%s %s", a.Name, a.Home), 10, mid+4)
		switch {
		case !a.Homed:
			c.SetRGB(0.7, 0.7, 0.7)
		case a.Endstop:
			c.SetRGB(0.9, 0, 0)
		default:
			c.SetRGB(0, 0.7, 0)
		}
		c.DrawCircle(80, mid, 8)
		c.Fill()
		c.SetRGB(0.85, 0.85, 0.85)
		c.DrawRectangle(barStart, mid-6, barLen, 12)
		c.Fill()
		if a.Feed > 0 {
			f := float64(a.Rate) / float64(a.Feed)
			if f > 1 {
				f = 1
			}
			c.SetRGB(0, 0, 1)
			c.DrawRectangle(barStart, mid-6, barLen*f, 12)
			c.Fill()
		}
	}
	return c.Image()
}

// Server serves the controller status.
type Server struct {
	c        *homing.Controller
	period   time.Duration
	upgrader websocket.Upgrader
}

// NewServer creates a status server. Websocket clients are sent a
// snapshot every period.
func NewServer(c *homing.Controller, period time.Duration) *Server {
	s := &Server{c: c, period: period}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return s
}

// Handler returns the HTTP handler for the status pages.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.status)
	mux.HandleFunc("/endstops.png", s.picture)
	mux.HandleFunc("/ws", s.stream)
	return mux
}

// Run starts the server on the port. It only returns on error.
func (s *Server) Run(port int) error {
	url := fmt.Sprintf(":%d", port)
	log.Printf("Starting status server on %s", url)
	server := &http.Server{Addr: url, Handler: s.Handler()}
	return server.ListenAndServe()
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Take(s.c)); err != nil {
		log.Printf("status: %v", err)
	}
}

func (s *Server) picture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, Render(Take(s.c))); err != nil {
		log.Printf("Error writing image: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// stream sends snapshots to a websocket client until it goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}
	defer conn.Close()
	done := make(chan struct{})
	go func() {
		// Incoming messages are discarded; a read error means the client has gone.
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("ws: %v", err)
				}
				return
			}
		}
	}()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(Take(s.c)); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-done:
			return
		}
	}
}
