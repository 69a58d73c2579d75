// Package worklog buffers log events recorded inside one in-flight unit
// of work (a request, a job run) so the whole group can be flushed into
// the application reservoir with the unit's final sampling priority.
package worklog

import (
	"sync"

	"github.com/google/uuid"

	"github.com/canopymon/canopy/internal/event"
)

// Listener receives unit-of-work lifecycle callbacks from the host
// runtime. The harvest service implements it; the lifecycle source that
// detects unit boundaries lives outside this subsystem.
type Listener interface {
	UnitStarted(u *Unit)
	UnitFinished(u *Unit, priority float32)
	UnitCancelled(u *Unit, priority float32)
}

// Unit is one in-flight unit of work. Its buffer is consumed exactly
// once, at completion; afterwards the unit records nothing.
type Unit struct {
	ID      string
	AppName string

	events   chan *event.Event
	overflow func(*event.Event)

	// mu orders Record against Flush: once Flush drains under the
	// lock, no later Record can enqueue into the dead buffer.
	mu      sync.Mutex
	flushed bool
}

// NewUnit creates a unit whose buffer holds at most capacity events.
// When the buffer is full, further events are handed to overflow so
// they reach the application reservoir instead of being dropped.
func NewUnit(appName string, capacity int, overflow func(*event.Event)) *Unit {
	if capacity < 1 {
		capacity = 1
	}
	return &Unit{
		ID:       uuid.NewString(),
		AppName:  appName,
		events:   make(chan *event.Event, capacity),
		overflow: overflow,
	}
}

// Record buffers one event, falling back to the overflow path when the
// buffer is full or the unit has already completed. It never blocks.
func (u *Unit) Record(ev *event.Event) {
	u.mu.Lock()
	if u.flushed {
		u.mu.Unlock()
		u.overflow(ev)
		return
	}
	select {
	case u.events <- ev:
		u.mu.Unlock()
	default:
		// Too many events cached on this unit, send directly to the
		// application reservoir.
		u.mu.Unlock()
		u.overflow(ev)
	}
}

// Flush drains the buffer, stamping every event with the unit's final
// priority. Only the first call returns events; the unit keeps nothing
// past it.
func (u *Unit) Flush(priority float32) []*event.Event {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.flushed {
		return nil
	}
	u.flushed = true

	drained := make([]*event.Event, 0, len(u.events))
	for {
		select {
		case ev := <-u.events:
			ev.Priority = priority
			drained = append(drained, ev)
		default:
			return drained
		}
	}
}

// Active reports whether the unit can still accept buffered events.
func (u *Unit) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.flushed
}

// Len reports the number of buffered events.
func (u *Unit) Len() int {
	return len(u.events)
}
