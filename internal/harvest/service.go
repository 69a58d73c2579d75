// Package harvest owns log event capture and periodic shipping for
// every monitored application. Producers record events without ever
// touching network I/O; transmission happens only on the harvest
// scheduler's own goroutines.
package harvest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canopymon/canopy/internal/config"
	"github.com/canopymon/canopy/internal/event"
	"github.com/canopymon/canopy/internal/intern"
	"github.com/canopymon/canopy/internal/metrics"
	"github.com/canopymon/canopy/internal/registry"
	"github.com/canopymon/canopy/internal/reservoir"
	"github.com/canopymon/canopy/internal/transport"
	"github.com/canopymon/canopy/internal/worklog"
)

type Options struct {
	Logger     *slog.Logger
	Provider   config.Provider
	Sender     transport.Sender
	Sink       metrics.Sink
	Strings    *intern.Table
	Policy     event.Policy
	DefaultApp string
}

// Service is the log sender: it validates and buffers log events per
// application and per unit of work, and drains each application's
// reservoir once per harvest period. It implements worklog.Listener so
// the unit-of-work lifecycle source can hand completed buffers over.
type Service struct {
	logger     *slog.Logger
	provider   config.Provider
	sender     transport.Sender
	sink       metrics.Sink
	strings    *intern.Table
	policy     event.Policy
	defaultApp string

	apps      *registry.Registry
	scheduler *Scheduler

	enabled    atomic.Bool
	maxSamples atomic.Int64
	stopped    atomic.Bool

	eventsSent    atomic.Int64
	eventsSeen    atomic.Int64
	eventsDropped atomic.Int64
	lastHarvest   atomic.Int64
	lastStatus    atomic.Value
}

func NewService(opts Options) *Service {
	s := &Service{
		logger:     opts.Logger,
		provider:   opts.Provider,
		sender:     opts.Sender,
		sink:       opts.Sink,
		strings:    opts.Strings,
		policy:     opts.Policy,
		defaultApp: opts.DefaultApp,
		apps:       registry.New(),
	}
	s.scheduler = NewScheduler(opts.Logger)
	s.lastStatus.Store("idle")

	appCfg := opts.Provider.AppConfig(opts.DefaultApp)
	s.enabled.Store(appCfg.Enabled)
	s.maxSamples.Store(int64(appCfg.MaxSamplesStored))

	// A config change invalidates the cached per-app flag; the next
	// access re-reads the provider.
	opts.Provider.OnChange(func(appName string, cfg config.AppConfig) {
		s.apps.Invalidate(appName)
		s.enabled.Store(cfg.Enabled)
		s.maxSamples.Store(int64(cfg.MaxSamplesStored))
	})
	return s
}

// Enabled reports the service-wide switch.
func (s *Service) Enabled() bool {
	return s.enabled.Load() && !s.stopped.Load()
}

// MaxSamplesStored is the reservoir capacity currently in effect.
func (s *Service) MaxSamplesStored() int {
	return int(s.maxSamples.Load())
}

// RecordLogEvent captures one log record. Inside an active unit of work
// the event joins that unit's buffer and inherits its final priority;
// otherwise it goes straight into the default application's reservoir.
// Never blocks on I/O.
func (s *Service) RecordLogEvent(ctx context.Context, attributes map[string]any) {
	if !s.Enabled() {
		s.logger.Debug("log event not collected, log sending not enabled")
		return
	}
	s.sink.RecordAPICall()

	if unit, ok := worklog.FromContext(ctx); ok && unit.Active() {
		unit.Record(event.New(attributes, s.policy, s.strings, s.logger))
		return
	}

	appName := s.defaultApp
	if !s.enabledForApp(appName) {
		// No health cost in retaining a reservoir for a disabled app.
		s.apps.Remove(appName)
		return
	}
	s.createAndStore(appName, attributes)
}

// StoreEvent places an already-constructed event into appName's
// reservoir. Used for unit buffer overflow and by external sources
// that build events themselves.
func (s *Service) StoreEvent(appName string, ev *event.Event) {
	if !s.Enabled() {
		return
	}
	s.reservoirFor(appName).Add(ev)
}

func (s *Service) createAndStore(appName string, attributes map[string]any) {
	s.reservoirFor(appName).Add(event.New(attributes, s.policy, s.strings, s.logger))
	s.logger.Debug("log event added", "app", appName)
}

func (s *Service) reservoirFor(appName string) *reservoir.Reservoir {
	return s.apps.GetOrCreate(appName, s.MaxSamplesStored())
}

// NewUnit builds the buffer for one starting unit of work. Overflow
// past the buffer capacity falls through to the application reservoir
// so nothing is dropped silently.
func (s *Service) NewUnit(appName string) *worklog.Unit {
	if appName == "" {
		appName = s.defaultApp
	}
	return worklog.NewUnit(appName, s.MaxSamplesStored(), func(ev *event.Event) {
		s.StoreEvent(appName, ev)
	})
}

// UnitStarted implements worklog.Listener.
func (s *Service) UnitStarted(*worklog.Unit) {}

// UnitFinished flushes the completed unit's events into its
// application's reservoir with the unit's final priority.
func (s *Service) UnitFinished(u *worklog.Unit, priority float32) {
	s.storeUnitEvents(u, priority)
}

// UnitCancelled behaves like UnitFinished: events buffered on a
// cancelled unit still have diagnostic value.
func (s *Service) UnitCancelled(u *worklog.Unit, priority float32) {
	s.storeUnitEvents(u, priority)
}

func (s *Service) storeUnitEvents(u *worklog.Unit, priority float32) {
	events := u.Flush(priority)
	if len(events) == 0 {
		return
	}
	res := s.reservoirFor(u.AppName)
	for _, ev := range events {
		res.Add(ev)
	}
}

func (s *Service) enabledForApp(appName string) bool {
	return s.apps.Enabled(appName, func(name string) bool {
		return s.provider.AppConfig(name).Enabled
	})
}

// HarvestEvents drains appName's reservoir and transmits the batch.
// On retryable failure the batch merges back into the now-current
// reservoir; on permanent or unexpected failure it is discarded and
// counted as lost. Disabled apps short-circuit and lose their
// reservoir entry.
func (s *Service) HarvestEvents(ctx context.Context, appName string) {
	if !s.enabledForApp(appName) {
		s.apps.Remove(appName)
		return
	}
	limit := s.MaxSamplesStored()
	if limit <= 0 {
		if res := s.apps.Get(appName); res != nil {
			res.SetCapacity(0)
			res.DrainAndReset()
		}
		return
	}

	res := s.apps.Get(appName)
	if res == nil {
		return
	}
	res.SetCapacity(limit)
	batch := res.DrainAndReset()
	if len(batch.Events) == 0 {
		return
	}

	start := time.Now()
	err := s.sender.SendLogEvents(ctx, appName, limit, batch.Seen, batch.Events)
	duration := time.Since(start)

	switch transport.Classify(err) {
	case transport.Success:
		s.recordHarvestSuccess(appName, batch, duration)
	case transport.RetryableFailure:
		s.logger.Debug("unable to send log events, merging batch into next harvest",
			"app", appName, "events", len(batch.Events), "error", err)
		res.MergeBack(batch)
		s.markHarvest("retry")
	default:
		s.logger.Debug("unable to send log events, dropping batch",
			"app", appName, "events", len(batch.Events), "error", err)
		s.sink.RecordDropped(appName, len(batch.Events))
		s.eventsDropped.Add(int64(len(batch.Events)))
		s.markHarvest("dropped")
	}
}

func (s *Service) recordHarvestSuccess(appName string, batch reservoir.Batch, duration time.Duration) {
	sent := len(batch.Events)
	s.sink.RecordHarvest(appName, sent, batch.Seen, duration)
	s.eventsSent.Add(int64(sent))
	s.eventsSeen.Add(batch.Seen)
	if lost := batch.Seen - int64(sent); lost > 0 {
		s.sink.RecordDropped(appName, int(lost))
		s.eventsDropped.Add(lost)
		s.logger.Debug("dropped log events to sampling",
			"app", appName, "dropped", lost, "seen", batch.Seen)
	}
	s.markHarvest("ok")
}

func (s *Service) markHarvest(status string) {
	s.lastHarvest.Store(time.Now().UnixMilli())
	s.lastStatus.Store(status)
}

// HarvestPending drains every app once. Used at shutdown so buffered
// events get one final send attempt.
func (s *Service) HarvestPending(ctx context.Context) {
	for _, appName := range s.apps.AppNames() {
		s.HarvestEvents(ctx, appName)
	}
}

// AddHarvestable registers a periodic harvest task for appName with the
// given report period.
func (s *Service) AddHarvestable(appName string, period time.Duration) {
	h := NewHarvestable(s, appName, period, s.MaxSamplesStored())
	s.scheduler.Register(h)
}

// ClearReservoir discards pending events for one app, or for all apps
// when appName is empty.
func (s *Service) ClearReservoir(appName string) {
	if appName == "" {
		s.apps.Clear()
		return
	}
	if res := s.apps.Get(appName); res != nil {
		res.DrainAndReset()
	}
}

// Stop halts scheduling and clears all registries and caches. In-flight
// sends finish or fail on their own; they are not awaited here.
func (s *Service) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.scheduler.Stop()
	s.apps.Clear()
	s.strings.Purge()
}

// Snapshot summarizes runtime state for the health endpoint.
type Snapshot struct {
	AppsTracked       int
	PendingEvents     int
	EventsSent        int64
	EventsSeen        int64
	EventsDropped     int64
	LastHarvestMillis int64
	LastHarvestStatus string
}

func (s *Service) Snapshot() Snapshot {
	status, _ := s.lastStatus.Load().(string)
	return Snapshot{
		AppsTracked:       len(s.apps.AppNames()),
		PendingEvents:     s.apps.PendingEvents(),
		EventsSent:        s.eventsSent.Load(),
		EventsSeen:        s.eventsSeen.Load(),
		EventsDropped:     s.eventsDropped.Load(),
		LastHarvestMillis: s.lastHarvest.Load(),
		LastHarvestStatus: status,
	}
}
