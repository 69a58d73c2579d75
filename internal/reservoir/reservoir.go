// Package reservoir implements the bounded random sample of log events
// held for one application between harvests.
package reservoir

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/canopymon/canopy/internal/event"
)

// Reservoir keeps at most capacity events out of everything offered to
// it, using classic unweighted reservoir sampling (Algorithm R): once
// full, a new event is admitted with probability capacity/seen and
// replaces a uniformly chosen victim. Admission is uniform so that
// low-priority diagnostic events are never systematically discarded;
// priority only orders the drained batch presented to the collector.
//
// Safe for unbounded concurrent Add calls. DrainAndReset is the single
// synchronization point with the harvester: an Add lands either in the
// drained batch or in the fresh reservoir, never in between.
type Reservoir struct {
	mu       sync.Mutex
	capacity int
	seen     int64
	events   []*event.Event
	rng      *rand.Rand
}

// Batch is the result of draining a reservoir: the sampled events in
// priority order plus the total number offered since the last drain.
type Batch struct {
	Events []*event.Event
	Seen   int64
}

func New(capacity int) *Reservoir {
	if capacity < 0 {
		capacity = 0
	}
	return &Reservoir{
		capacity: capacity,
		events:   make([]*event.Event, 0, capacity),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add offers one event. The offered count always advances, even when
// the event is not retained, so sampling loss can be reported.
func (r *Reservoir) Add(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(ev)
}

func (r *Reservoir) addLocked(ev *event.Event) {
	r.seen++
	if r.capacity <= 0 {
		return
	}
	if len(r.events) < r.capacity {
		r.events = append(r.events, ev)
		return
	}
	if r.rng.Int63n(r.seen) < int64(r.capacity) {
		r.events[r.rng.Intn(r.capacity)] = ev
	}
}

// DrainAndReset atomically removes and returns everything held, leaving
// an empty reservoir of the same capacity behind. The returned batch is
// sorted by priority, highest first.
func (r *Reservoir) DrainAndReset() Batch {
	r.mu.Lock()
	batch := Batch{Events: r.events, Seen: r.seen}
	r.events = make([]*event.Event, 0, r.capacity)
	r.seen = 0
	r.mu.Unlock()

	sort.SliceStable(batch.Events, func(i, j int) bool {
		return batch.Events[i].Priority > batch.Events[j].Priority
	})
	return batch
}

// MergeBack re-offers a previously drained batch after a retryable send
// failure. Each event goes through the same admission rule as a fresh
// Add, so old and newly arrived events stay statistically fair.
func (r *Reservoir) MergeBack(batch Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range batch.Events {
		r.addLocked(ev)
	}
}

// SetCapacity applies a reloaded sample limit. Shrinking evicts random
// events until the retained set fits.
func (r *Reservoir) SetCapacity(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity = capacity
	for len(r.events) > capacity {
		victim := r.rng.Intn(len(r.events))
		last := len(r.events) - 1
		r.events[victim] = r.events[last]
		r.events = r.events[:last]
	}
}

func (r *Reservoir) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Seen reports the number of events offered since the last drain,
// including ones that were evicted.
func (r *Reservoir) Seen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen
}

func (r *Reservoir) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}
