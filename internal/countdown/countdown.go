/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package countdown provides a one second resolution countdown timer used to gate OTP resends.
package countdown

import (
	"sync"
	"time"
)

// Tick is the interval at which the remaining value is decremented.
const Tick = time.Second

// Option configures a Timer.
type Option func(*Timer)

// WithOnChange registers a callback invoked with every new remaining value.
// The callback runs on the timer goroutine and must not call back into Start, Reset or Stop.
func WithOnChange(fn func(remaining int)) Option {
	return func(t *Timer) {
		t.onChange = fn
	}
}

// Timer counts down from a duration in whole seconds and stops at zero.
type Timer struct {
	mu        sync.Mutex
	duration  int
	remaining int
	stop      chan struct{}
	done      chan struct{}

	notifyMu sync.Mutex
	onChange func(int)
	changes  chan int
}

// New returns a stopped timer whose original duration is the given number of seconds.
func New(duration int, opts ...Option) *Timer {
	t := &Timer{
		duration: max(duration, 0),
		changes:  make(chan int, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start sets the remaining value to seconds, records it as the original duration and starts
// decrementing. A running countdown is restarted.
func (t *Timer) Start(seconds int) {
	seconds = max(seconds, 0)

	t.mu.Lock()
	prevDone := t.cancelLocked()
	t.duration = seconds
	t.remaining = seconds
	if seconds > 0 {
		stop := make(chan struct{})
		done := make(chan struct{})
		t.stop, t.done = stop, done
		go t.run(stop, done)
	}
	t.mu.Unlock()

	if prevDone != nil {
		<-prevDone
	}
	t.publish(seconds)
}

// Reset restarts the countdown from the original duration.
func (t *Timer) Reset() {
	t.mu.Lock()
	d := t.duration
	t.mu.Unlock()
	t.Start(d)
}

// Stop cancels the countdown, keeping the current remaining value.
// It returns once the timer goroutine has exited.
func (t *Timer) Stop() {
	t.mu.Lock()
	done := t.cancelLocked()
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Remaining returns the current remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Duration returns the original duration in seconds.
func (t *Timer) Duration() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Running reports whether the countdown is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Changes returns a channel holding the most recent remaining value.
// Intermediate values are dropped when the receiver falls behind.
func (t *Timer) Changes() <-chan int {
	return t.changes
}

func (t *Timer) cancelLocked() chan struct{} {
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	done := t.done
	t.stop, t.done = nil, nil
	return done
}

func (t *Timer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		select {
		case <-stop:
			t.mu.Unlock()
			return
		default:
		}
		t.remaining--
		v := t.remaining
		if v == 0 {
			t.stop, t.done = nil, nil
		}
		t.mu.Unlock()

		t.publish(v)
		if v == 0 {
			return
		}
	}
}

func (t *Timer) publish(v int) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	if t.onChange != nil {
		t.onChange(v)
	}
	select {
	case <-t.changes:
	default:
	}
	t.changes <- v
}
