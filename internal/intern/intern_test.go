package intern

import (
	"fmt"
	"testing"
	"time"
)

func TestInternReturnsCanonicalValue(t *testing.T) {
	t.Parallel()

	table := New(10, time.Minute)
	first := table.Intern("warn")
	second := table.Intern("warn")
	if first != "warn" || second != "warn" {
		t.Fatalf("interned values = %q, %q, want \"warn\"", first, second)
	}
	if table.Len() != 1 {
		t.Fatalf("len = %d, want 1", table.Len())
	}
}

func TestCapacityBound(t *testing.T) {
	t.Parallel()

	table := New(2, time.Minute)
	for i := 0; i < 5; i++ {
		table.Intern(fmt.Sprintf("value-%d", i))
	}
	if table.Len() > 2 {
		t.Fatalf("len = %d, want <= 2", table.Len())
	}
}

func TestPurgeEmptiesTable(t *testing.T) {
	t.Parallel()

	table := New(10, time.Minute)
	table.Intern("a")
	table.Intern("b")
	table.Purge()
	if table.Len() != 0 {
		t.Fatalf("len after purge = %d, want 0", table.Len())
	}
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()

	table := New(0, 0)
	table.Intern("x")
	if table.Len() != 1 {
		t.Fatalf("len = %d, want 1", table.Len())
	}
}
