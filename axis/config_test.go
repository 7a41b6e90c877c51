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

package axis

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, lines ...string) string {
	t.Helper()
	f := filepath.Join(t.TempDir(), "endstops.conf")
	if err := os.WriteFile(f, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("%s: %v", f, err)
	}
	return f
}

func TestLoadMillimetreSettings(t *testing.T) {
	f := writeConfig(t,
		"[endstops]",
		"debounce_count=2",
		"[motion]",
		"acceleration=1000",
		"acceleration_ticks_per_second=500",
		"minimum_steps_per_second=40",
		"[alpha]",
		"min_endstop=17",
		"steps_per_mm=80",
		"fast_homing_rate_mm_s=20",
		"slow_homing_rate_mm_s=5",
		"homing_retract_mm=3",
		"[beta]",
		"max_endstop=27",
		"steps_per_mm=100",
		"homing_direction=home_to_max",
		"max=250",
		"[gamma]",
		"min_endstop=nc",
	)
	s, err := LoadFile(f)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.Debounce != 2 {
		t.Errorf("Debounce = %d, want 2", s.Debounce)
	}
	if s.Acceleration != 1000 || s.TickFrequency != 500 || s.MinStepRate != 40 {
		t.Errorf("motion = %g/%g/%d, want 1000/500/40", s.Acceleration, s.TickFrequency, s.MinStepRate)
	}
	x := s.Axis(X)
	if x.FastRate != 1600 || x.SlowRate != 400 || x.Retract != 240 {
		t.Errorf("X rates = %g/%g/%d, want 1600/400/240", x.FastRate, x.SlowRate, x.Retract)
	}
	if !x.Homeable() || x.Home != HomeToMin || x.Position != 0 {
		t.Errorf("X home = %v/%v/%g, want homeable min at 0", x.Homeable(), x.Home, x.Position)
	}
	y := s.Axis(Y)
	if y.Home != HomeToMax || y.Position != 250 || !y.Homeable() {
		t.Errorf("Y home = %v at %g (homeable %v), want max at 250", y.Home, y.Position, y.Homeable())
	}
	// Legacy step defaults carried through the mm conversion.
	if y.FastRate != 4000 || y.SlowRate != 2000 || y.Retract != 400 {
		t.Errorf("Y rates = %g/%g/%d, want 4000/2000/400", y.FastRate, y.SlowRate, y.Retract)
	}
	if s.Axis(Z).Homeable() {
		t.Errorf("Z should not be homeable with an unconnected endstop")
	}
}

func TestLoadLegacySteps(t *testing.T) {
	f := writeConfig(t,
		"[alpha]",
		"min_endstop=17",
		"steps_per_mm=80",
		"fast_homing_rate=3200",
		"homing_retract=160",
	)
	s, err := LoadFile(f)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	x := s.Axis(X)
	if x.FastRate != 3200 || x.Retract != 160 {
		t.Errorf("X = %g/%d, want 3200/160", x.FastRate, x.Retract)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"zero steps", []string{"[alpha]", "min_endstop=17", "steps_per_mm=0"}},
		{"negative steps", []string{"[gamma]", "min_endstop=22", "steps_per_mm=-5"}},
		{"direction", []string{"[alpha]", "homing_direction=sideways"}},
		{"delta needs endstops", []string{"[endstops]", "delta_homing=true", "[alpha]", "min_endstop=17", "steps_per_mm=80"}},
		{"bool", []string{"[endstops]", "corexy_homing=maybe"}},
		{"ticks", []string{"[motion]", "acceleration_ticks_per_second=0"}},
	}
	for _, tt := range tests {
		if _, err := LoadFile(writeConfig(t, tt.lines...)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestTrimRoundTrip(t *testing.T) {
	for _, dir := range []Direction{HomeToMin, HomeToMax} {
		c := &Config{StepsPerMM: 80, Home: dir}
		for _, v := range []float64{0.5, -1.234, 0.01, 2} {
			c.SetTrimMM(v)
			want := int32(math.Round(v*80)) * int32(dir.Sign())
			if c.Trim != want {
				t.Errorf("%v: trim %g mm = %d steps, want %d", dir, v, c.Trim, want)
			}
			if got := c.TrimMM(); math.Abs(got-v) > 0.5/80 {
				t.Errorf("%v: trim %g mm read back as %g", dir, v, got)
			}
		}
	}
}

func TestZeroTrim(t *testing.T) {
	for _, dir := range []Direction{HomeToMin, HomeToMax} {
		c := &Config{StepsPerMM: 80, Home: dir}
		if got := c.TrimMM(); got != 0 || math.Signbit(got) {
			t.Errorf("%v: zero trim = %g, want 0", dir, got)
		}
	}
}

func TestConnected(t *testing.T) {
	tests := map[string]bool{"nc": false, "NC": false, "": false, " ": false, "17": true, "1.24^!": true}
	for pin, want := range tests {
		if got := Connected(pin); got != want {
			t.Errorf("Connected(%q) = %v, want %v", pin, got, want)
		}
	}
}

func TestDirection(t *testing.T) {
	if !HomeToMin.Toward() || HomeToMin.Away() {
		t.Errorf("home to min should move toward min")
	}
	if HomeToMax.Toward() || !HomeToMax.Away() {
		t.Errorf("home to max should move away from min")
	}
	if HomeToMin.String() != "min" || HomeToMax.String() != "max" {
		t.Errorf("labels = %s/%s", HomeToMin, HomeToMax)
	}
	if !Y.In(X.Bit()|Y.Bit()) || Z.In(X.Bit()|Y.Bit()) {
		t.Errorf("mask membership wrong")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default: %v", err)
	}
}
