// Package metrics records supportability measurements for the harvest
// pipeline. Sinks are fire-and-forget: they must never block or panic
// back into the caller's path.
package metrics

import "time"

// Sink receives supportability measurements from the harvester.
type Sink interface {
	// RecordHarvest counts one successful send: events shipped, total
	// events offered since the last harvest, and the send duration.
	RecordHarvest(appName string, sent int, seen int64, duration time.Duration)
	// RecordDropped counts events lost to sampling or discarded batches.
	RecordDropped(appName string, dropped int)
	// RecordAPICall counts one RecordLogEvent invocation.
	RecordAPICall()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordHarvest(string, int, int64, time.Duration) {}
func (Nop) RecordDropped(string, int)                       {}
func (Nop) RecordAPICall()                                  {}
