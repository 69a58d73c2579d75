package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/canopymon/canopy/internal/reservoir"
)

func TestGetOrCreateSingleInstanceUnderConcurrency(t *testing.T) {
	t.Parallel()

	reg := New()
	const goroutines = 32

	results := make([]*reservoir.Reservoir, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = reg.GetOrCreate("app", 100)
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different reservoir instance", i)
		}
	}
}

func TestEnabledCachesLookup(t *testing.T) {
	t.Parallel()

	reg := New()
	var lookups atomic.Int64
	lookup := func(string) bool {
		lookups.Add(1)
		return true
	}

	for i := 0; i < 5; i++ {
		if !reg.Enabled("app", lookup) {
			t.Fatalf("enabled = false, want true")
		}
	}
	if lookups.Load() != 1 {
		t.Fatalf("lookups = %d, want 1", lookups.Load())
	}

	reg.Invalidate("app")
	reg.Enabled("app", lookup)
	if lookups.Load() != 2 {
		t.Fatalf("lookups after invalidate = %d, want 2", lookups.Load())
	}
}

func TestRemoveDiscardsReservoir(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.GetOrCreate("app", 10)
	reg.Remove("app")
	if reg.Get("app") != nil {
		t.Fatalf("reservoir survived Remove")
	}
}

func TestClearDiscardsEverything(t *testing.T) {
	t.Parallel()

	reg := New()
	reg.GetOrCreate("a", 10)
	reg.GetOrCreate("b", 10)
	reg.Clear()
	if names := reg.AppNames(); len(names) != 0 {
		t.Fatalf("apps after clear = %v, want none", names)
	}
}

func TestPendingEventsSumsReservoirs(t *testing.T) {
	t.Parallel()

	reg := New()
	a := reg.GetOrCreate("a", 10)
	b := reg.GetOrCreate("b", 10)
	for i := 0; i < 3; i++ {
		a.Add(nil)
	}
	b.Add(nil)

	if got := reg.PendingEvents(); got != 4 {
		t.Fatalf("pending = %d, want 4", got)
	}
}
