// Package hotkey provides a global dictation toggle using gohook.
// The first press of the combo starts a session, the next press stops
// it.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType indicates whether dictation should start or stop.
type EventType int

const (
	// EventStart signals that dictation should begin.
	EventStart EventType = iota
	// EventStop signals that dictation should end.
	EventStop
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages the global toggle combo.
type Listener struct {
	keys []string
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	active bool
}

// NewListener creates a Listener for the given key combo. keys are
// lowercase key names, e.g. ["ctrl", "shift", "d"].
func NewListener(keys []string) *Listener {
	return &Listener{
		keys: keys,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives toggle events. It is closed
// when Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// SetActive overrides the toggle state, for when a session stops on its
// own (silence auto-stop) rather than via the hotkey.
func (l *Listener) SetActive(active bool) {
	l.mu.Lock()
	l.active = active
	l.mu.Unlock()
}

// Start begins listening for the global combo. Blocks until Stop is
// called; run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.active {
			select {
			case l.ch <- Event{Type: EventStop}:
			default: // don't block the hook thread
			}
			l.active = false
		} else {
			select {
			case l.ch <- Event{Type: EventStart}:
			default:
			}
			l.active = true
		}
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the listener. Safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
