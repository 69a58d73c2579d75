package harvest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/canopymon/canopy/internal/config"
	"github.com/canopymon/canopy/internal/event"
	"github.com/canopymon/canopy/internal/intern"
	"github.com/canopymon/canopy/internal/metrics"
	"github.com/canopymon/canopy/internal/transport"
	"github.com/canopymon/canopy/internal/worklog"
)

type sendCall struct {
	appName  string
	capacity int
	seen     int64
	events   []*event.Event
}

type stubSender struct {
	mu    sync.Mutex
	err   error
	calls []sendCall
}

func (s *stubSender) SendLogEvents(_ context.Context, appName string, capacity int, seen int64, events []*event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sendCall{appName: appName, capacity: capacity, seen: seen, events: events})
	return s.err
}

func (s *stubSender) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubSender) lastCall() sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type stubSink struct {
	mu      sync.Mutex
	dropped map[string]int
	sent    map[string]int
}

func newStubSink() *stubSink {
	return &stubSink{dropped: make(map[string]int), sent: make(map[string]int)}
}

func (s *stubSink) RecordHarvest(appName string, sent int, _ int64, _ time.Duration) {
	s.mu.Lock()
	s.sent[appName] += sent
	s.mu.Unlock()
}

func (s *stubSink) RecordDropped(appName string, dropped int) {
	s.mu.Lock()
	s.dropped[appName] += dropped
	s.mu.Unlock()
}

func (s *stubSink) RecordAPICall() {}

func (s *stubSink) droppedFor(appName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped[appName]
}

func newTestService(sender transport.Sender, sink metrics.Sink, maxSamples int) (*Service, *config.Static) {
	provider := config.NewStatic(&config.Config{
		AppName:           "app",
		LogSendingEnabled: true,
		MaxSamplesStored:  maxSamples,
	})
	svc := NewService(Options{
		Logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Provider:   provider,
		Sender:     sender,
		Sink:       sink,
		Strings:    intern.New(100, time.Minute),
		Policy:     event.DefaultPolicy(),
		DefaultApp: "app",
	})
	return svc, provider
}

func recordN(svc *Service, n int) {
	for i := 0; i < n; i++ {
		svc.RecordLogEvent(context.Background(), map[string]any{"message": "m", "n": i})
	}
}

func TestRecordOutsideUnitGoesToReservoir(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	recordN(svc, 3)
	if pending := svc.Snapshot().PendingEvents; pending != 3 {
		t.Fatalf("pending = %d, want 3", pending)
	}
}

func TestHarvestSendsDrainedBatch(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	recordN(svc, 5)
	svc.HarvestEvents(context.Background(), "app")

	if sender.callCount() != 1 {
		t.Fatalf("sends = %d, want 1", sender.callCount())
	}
	call := sender.lastCall()
	if call.appName != "app" || call.capacity != 100 || call.seen != 5 || len(call.events) != 5 {
		t.Fatalf("send call = %+v", call)
	}
	if pending := svc.Snapshot().PendingEvents; pending != 0 {
		t.Fatalf("pending after harvest = %d, want 0", pending)
	}
}

func TestHarvestEmptyReservoirSkipsSend(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	recordN(svc, 1)
	svc.HarvestEvents(context.Background(), "app")
	svc.HarvestEvents(context.Background(), "app")

	if sender.callCount() != 1 {
		t.Fatalf("sends = %d, want 1 (empty drain must short-circuit)", sender.callCount())
	}
}

func TestDisabledAppHarvestRemovesReservoir(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, provider := newTestService(sender, metrics.Nop{}, 100)

	recordN(svc, 3)
	provider.SetAppConfig("app", config.AppConfig{Enabled: false, MaxSamplesStored: 100})
	svc.HarvestEvents(context.Background(), "app")

	if sender.callCount() != 0 {
		t.Fatalf("sends = %d, want 0", sender.callCount())
	}
	snapshot := svc.Snapshot()
	if snapshot.AppsTracked != 0 || snapshot.PendingEvents != 0 {
		t.Fatalf("residual state after disable: %+v", snapshot)
	}
}

func TestPermanentFailureDropsBatch(t *testing.T) {
	t.Parallel()

	sender := &stubSender{err: &transport.HTTPError{StatusCode: 400}}
	sink := newStubSink()
	svc, _ := newTestService(sender, sink, 100)

	recordN(svc, 7)
	svc.HarvestEvents(context.Background(), "app")

	if pending := svc.Snapshot().PendingEvents; pending != 0 {
		t.Fatalf("pending after permanent failure = %d, want 0", pending)
	}
	if got := sink.droppedFor("app"); got != 7 {
		t.Fatalf("dropped counter = %d, want 7", got)
	}
}

func TestRetryableFailureMergesBack(t *testing.T) {
	t.Parallel()

	sender := &stubSender{err: &transport.HTTPError{StatusCode: 503}}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	recordN(svc, 4)
	svc.HarvestEvents(context.Background(), "app")

	if pending := svc.Snapshot().PendingEvents; pending != 4 {
		t.Fatalf("pending after retryable failure = %d, want 4", pending)
	}

	sender.setErr(nil)
	svc.HarvestEvents(context.Background(), "app")
	call := sender.lastCall()
	if len(call.events) != 4 || call.seen != 4 {
		t.Fatalf("retried send = %+v, want 4 events seen 4", call)
	}
}

func TestCapacityZeroDiscardsAndSkipsSend(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, provider := newTestService(sender, metrics.Nop{}, 100)

	recordN(svc, 3)
	provider.SetAppConfig("app", config.AppConfig{Enabled: true, MaxSamplesStored: 0})
	svc.HarvestEvents(context.Background(), "app")

	if sender.callCount() != 0 {
		t.Fatalf("sends = %d, want 0", sender.callCount())
	}
	if pending := svc.Snapshot().PendingEvents; pending != 0 {
		t.Fatalf("pending = %d, want 0", pending)
	}
}

func TestUnitFlushAppliesPriority(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	unit := svc.NewUnit("")
	ctx := worklog.NewContext(context.Background(), unit)
	svc.RecordLogEvent(ctx, map[string]any{"message": "a"})
	svc.RecordLogEvent(ctx, map[string]any{"message": "b"})

	if pending := svc.Snapshot().PendingEvents; pending != 0 {
		t.Fatalf("events reached reservoir before unit completion: %d", pending)
	}

	svc.UnitFinished(unit, 0.8125)
	svc.HarvestEvents(context.Background(), "app")

	call := sender.lastCall()
	if len(call.events) != 2 {
		t.Fatalf("events sent = %d, want 2", len(call.events))
	}
	for _, ev := range call.events {
		if ev.Priority != 0.8125 {
			t.Fatalf("priority = %v, want 0.8125", ev.Priority)
		}
	}
}

func TestCancelledUnitStillFlushes(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	unit := svc.NewUnit("")
	ctx := worklog.NewContext(context.Background(), unit)
	svc.RecordLogEvent(ctx, map[string]any{"message": "m"})

	svc.UnitCancelled(unit, 0.25)
	if pending := svc.Snapshot().PendingEvents; pending != 1 {
		t.Fatalf("pending after cancel = %d, want 1", pending)
	}
}

func TestUnitBufferOverflowFallsBackToReservoir(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 2)

	unit := svc.NewUnit("")
	ctx := worklog.NewContext(context.Background(), unit)
	for i := 0; i < 3; i++ {
		svc.RecordLogEvent(ctx, map[string]any{"n": i})
	}

	// The third event must land in the reservoir, not vanish.
	if pending := svc.Snapshot().PendingEvents; pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}
}

func TestStopClearsAllState(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	recordN(svc, 5)
	svc.Stop()

	snapshot := svc.Snapshot()
	if snapshot.AppsTracked != 0 || snapshot.PendingEvents != 0 {
		t.Fatalf("residual state after stop: %+v", snapshot)
	}

	recordN(svc, 1)
	if pending := svc.Snapshot().PendingEvents; pending != 0 {
		t.Fatalf("record accepted after stop")
	}
}

func TestHarvestPendingDrainsEveryApp(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	svc, _ := newTestService(sender, metrics.Nop{}, 100)

	svc.StoreEvent("a", event.New(map[string]any{"m": 1}, event.DefaultPolicy(), intern.New(10, time.Minute), slog.New(slog.NewJSONHandler(io.Discard, nil))))
	svc.StoreEvent("b", event.New(map[string]any{"m": 2}, event.DefaultPolicy(), intern.New(10, time.Minute), slog.New(slog.NewJSONHandler(io.Discard, nil))))

	svc.HarvestPending(context.Background())
	if sender.callCount() != 2 {
		t.Fatalf("sends = %d, want 2", sender.callCount())
	}
}
