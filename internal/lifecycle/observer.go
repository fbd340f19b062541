// Package lifecycle models the host application's foreground/background
// transitions as a single typed event source.
//
// Components that care about focus changes subscribe here instead of wiring
// ad hoc listeners. The daemon itself learns about transitions from the host
// app via the control API.
package lifecycle

import (
	"sync"
)

// State is the application's focus state.
type State string

const (
	Foreground State = "foreground"
	Background State = "background"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool { return s == Foreground || s == Background }

// Transition is delivered to subscribers on every state change.
type Transition struct {
	From State
	To   State
}

// Observer fans lifecycle transitions out to subscribers. The zero state is
// Foreground; reporting the current state again is a no-op.
type Observer struct {
	mu    sync.Mutex
	state State
	subs  map[chan Transition]struct{}
}

func NewObserver() *Observer {
	return &Observer{
		state: Foreground,
		subs:  make(map[chan Transition]struct{}),
	}
}

// State returns the last reported state.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Report records a state change and notifies subscribers. Duplicate reports
// of the current state are ignored. Sends happen under the mutex so a
// concurrent cancel never closes a channel mid-send.
func (o *Observer) Report(s State) {
	if !s.Valid() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if s == o.state {
		return
	}
	tr := Transition{From: o.state, To: s}
	o.state = s
	for ch := range o.subs {
		select {
		case ch <- tr:
		default:
			// Slow subscribers miss intermediate transitions; the next
			// report supersedes them anyway.
		}
	}
}

// Subscribe returns a channel of transitions and a cancel function. Cancel
// closes the channel, so a goroutine ranging over it exits.
func (o *Observer) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, 4)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	o.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, ch)
			close(ch)
			o.mu.Unlock()
		})
	}
	return ch, cancel
}
