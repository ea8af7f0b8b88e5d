/* Copyright 2025 Corkboard Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package clock provides an abstract layer over the standard time package
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is an interface to the standard library time.
// It is used to implement a real or a mock clock. The latter is used in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run after the duration d elapses.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled function. Stop cancels the timer and
// reports whether it was still pending.
type Timer interface {
	Stop() bool
}

type clock struct{}

func (c *clock) Now() time.Time {
	return time.Now()
}

func (c *clock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Mock is a mock instance of clock. Timers scheduled through it fire
// synchronously when SetNow advances past their deadline.
type Mock struct {
	mu          sync.Mutex
	currentTime time.Time
	timers      []*mockTimer
}

type mockTimer struct {
	clock   *Mock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	pending := !t.stopped && !t.fired
	t.stopped = true

	return pending
}

// SetNow sets the current time for the mock clock and fires, in deadline
// order, every pending timer whose deadline has passed. Timers scheduled by
// a firing callback are held until the next call to SetNow.
func (c *Mock) SetNow(t time.Time) {
	c.mu.Lock()
	c.currentTime = t

	var due []*mockTimer
	var remaining []*mockTimer
	for _, tm := range c.timers {
		if !tm.stopped && !tm.at.After(t) {
			tm.fired = true
			due = append(due, tm)
		} else if !tm.stopped {
			remaining = append(remaining, tm)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, tm := range due {
		tm.f()
	}
}

// Advance moves the mock clock forward by d.
func (c *Mock) Advance(d time.Duration) {
	c.SetNow(c.Now().Add(d))
}

// Now returns the current time
func (c *Mock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

// AfterFunc registers f to fire once the mock clock advances past d from now.
func (c *Mock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm := &mockTimer{clock: c, at: c.currentTime.Add(d), f: f}
	c.timers = append(c.timers, tm)

	return tm
}

// New returns an instance of a real clock
func New() Clock {
	return &clock{}
}

// NewMock returns an instance of a mock clock
func NewMock() *Mock {
	return &Mock{
		currentTime: time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC),
	}
}
