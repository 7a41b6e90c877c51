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

// Package command parses and executes the homing related commands.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// Command is a parsed command line such as "G28 X Y".
type Command struct {
	Kind byte // 'G' or 'M'
	Code int
	args map[byte]arg
}

type arg struct {
	set   bool // A value followed the letter
	value float64
}

func (c *Command) String() string {
	return fmt.Sprintf("%c%d", c.Kind, c.Code)
}

// Has returns true if the letter is present, with or without a value.
func (c *Command) Has(letter byte) bool {
	_, ok := c.args[letter]
	return ok
}

// Value returns the value following a letter. ok is false if the
// letter is absent or has no value.
func (c *Command) Value(letter byte) (v float64, ok bool) {
	a, ok := c.args[letter]
	return a.value, ok && a.set
}

// Get returns the value following a letter, or def.
func (c *Command) Get(letter byte, def float64) float64 {
	if v, ok := c.Value(letter); ok {
		return v
	}
	return def
}

// Parse parses a command line. Anything after a ';' is a comment.
// A blank line returns a nil Command.
func Parse(line string) (*Command, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	words, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("%q: %v", line, err)
	}
	if len(words) == 0 {
		return nil, nil
	}
	c := new(Command)
	w := strings.ToUpper(words[0])
	c.Kind = w[0]
	if c.Kind != 'G' && c.Kind != 'M' {
		return nil, fmt.Errorf("%s: unknown command", words[0])
	}
	if c.Code, err = strconv.Atoi(w[1:]); err != nil {
		return nil, fmt.Errorf("%s: bad command number", words[0])
	}
	c.args = make(map[byte]arg)
	for _, w := range words[1:] {
		l := w[0]
		if l >= 'a' && l <= 'z' {
			l -= 'a' - 'A'
		}
		if l < 'A' || l > 'Z' {
			return nil, fmt.Errorf("%s: %s: not a letter", c, w)
		}
		var a arg
		if len(w) > 1 {
			if a.value, err = strconv.ParseFloat(w[1:], 64); err != nil {
				return nil, fmt.Errorf("%s: %s: bad value", c, w)
			}
			a.set = true
		}
		c.args[l] = a
	}
	return c, nil
}
