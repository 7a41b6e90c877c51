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

// Endstops homing daemon

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	goio "io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tarm/serial"

	"github.com/aamcrae/endstops/axis"
	"github.com/aamcrae/endstops/command"
	"github.com/aamcrae/endstops/homing"
	"github.com/aamcrae/endstops/io"
	"github.com/aamcrae/endstops/status"
)

var configFile = flag.String("config", "endstops.conf", "Configuration file")
var serialPort = flag.String("serial", "", "Serial device for commands (default stdin)")
var baud = flag.Int("baud", 115200, "Serial baud rate")
var port = flag.Int("port", 8080, "Status server port number, 0 to disable")
var refresh = flag.Duration("refresh", 250*time.Millisecond, "Status stream refresh period")
var sample = flag.Duration("sample", time.Millisecond, "Endstop sampling period while homing")

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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go governor(ctx, c, s.TickFrequency)
	if *port != 0 {
		go func() {
			log.Fatal(status.NewServer(c, *refresh).Run(*port))
		}()
	}
	rw, err := commandPort()
	if err != nil {
		log.Fatalf("%s: %v", *serialPort, err)
	}
	h := command.NewHandler(c, func() {
		time.Sleep(*sample)
	})
	var busy sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, h, rw, &busy)
	}()
	select {
	case <-ctx.Done():
		log.Printf("Shutting down")
	case <-done:
	}
	// Wait for any command in progress to see the cancel.
	busy.Lock()
}

// governor runs the acceleration governor at a fixed rate.
func governor(ctx context.Context, t homing.Ticker, freq float64) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / freq))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Tick()
		case <-ctx.Done():
			return
		}
	}
}

type stdio struct {
	goio.Reader
	goio.Writer
}

// commandPort opens the serial port, or uses stdin and stdout.
func commandPort() (goio.ReadWriter, error) {
	if *serialPort == "" {
		return stdio{os.Stdin, os.Stdout}, nil
	}
	return serial.OpenPort(&serial.Config{Name: *serialPort, Baud: *baud})
}

// run reads and executes commands, replying "ok" after each line.
func run(ctx context.Context, h *command.Handler, rw goio.ReadWriter, busy *sync.Mutex) {
	scanner := bufio.NewScanner(rw)
	w := bufio.NewWriter(rw)
	for scanner.Scan() {
		busy.Lock()
		err := h.Exec(ctx, scanner.Text(), w)
		busy.Unlock()
		switch {
		case errors.Is(err, command.ErrUnhandled):
			fmt.Fprintf(w, "!! unknown command: %s\n", scanner.Text())
		case err != nil:
			fmt.Fprintf(w, "!! %v\n", err)
		}
		fmt.Fprintln(w, "ok")
		w.Flush()
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Command port: %v", err)
	}
}
