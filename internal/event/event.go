package event

import (
	"math"
	"math/rand"
	"time"
)

// Event is a single captured log record. The timestamp is the capture
// time, never the send time. Attributes are fixed at construction;
// Priority is back-filled once when the owning unit of work ends.
type Event struct {
	Timestamp  time.Time
	Attributes map[string]any
	Priority   float32
}

// NewPriority returns a sampling priority in [0.0, 1.0) truncated to six
// decimal places so equal priorities compare stably across components.
func NewPriority() float32 {
	return float32(math.Trunc(float64(rand.Float32())*1e6) / 1e6)
}
