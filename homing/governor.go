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

package homing

import (
	"sync/atomic"

	"github.com/aamcrae/endstops/axis"
)

// Tick runs one step of the acceleration governor. Each moving motor
// of the active session has its step rate raised toward the feed rate by
// the per-tick increment, and clamped to the feed rate and the
// minimum step rate.
func (c *Controller) Tick() {
	if c.Status() == Idle {
		return
	}
	motors := uint8(atomic.LoadUint32(&c.motors))
	floor := c.m.Settings.MinStepRate
	each(motors, func(a axis.Axis) {
		st := c.m.Steppers[a]
		if !st.Moving() {
			return
		}
		target := atomic.LoadUint32(&c.feed[a])
		cur := st.StepsPerSecond()
		if cur < target {
			if inc := c.increment[a]; target-cur < inc {
				cur = target
			} else {
				cur += inc
			}
		} else if cur > target {
			cur = target
		}
		if cur < floor {
			cur = floor
		}
		st.SetSpeed(cur)
	})
}
