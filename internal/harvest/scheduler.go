package harvest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// harvestTimeout bounds one drain-and-send cycle. Independent of the
// scheduler context so shutdown does not cancel an in-flight send.
const harvestTimeout = 30 * time.Second

// Scheduler runs one goroutine per registered harvestable, ticking at
// that harvestable's report period. Producers never run on these
// goroutines, so transmission latency cannot leak into application
// code.
type Scheduler struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	stopped bool
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Register starts periodic harvesting for h. Registering the same app
// name again replaces the previous task.
func (s *Scheduler) Register(h *Harvestable) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if cancel, ok := s.cancels[h.AppName()]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancels[h.AppName()] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, h)
}

// Unregister stops periodic harvesting for appName. Any pending
// reservoir is left in place.
func (s *Scheduler) Unregister(appName string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[appName]; ok {
		cancel()
		delete(s.cancels, appName)
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, h *Harvestable) {
	defer s.wg.Done()

	period := h.Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	// The drain-and-send runs on its own goroutine so this loop only
	// ever waits on the ticker and ctx. Stop therefore returns without
	// awaiting an in-flight send; inFlight skips ticks while a send for
	// this app is still outstanding so harvests never overlap.
	var inFlight atomic.Bool

	s.logger.Debug("harvest task started", "app", h.AppName(), "period", period)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("harvest task stopped", "app", h.AppName())
			return
		case <-ticker.C:
			if p := h.Period(); p != period {
				period = p
				ticker.Reset(period)
			}
			if !inFlight.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer inFlight.Store(false)
				harvestCtx, cancel := context.WithTimeout(context.Background(), harvestTimeout)
				defer cancel()
				h.Harvest(harvestCtx)
			}()
		}
	}
}

// Stop cancels every harvest task and waits for the ticker goroutines
// to exit. In-flight sends run detached on their own contexts and are
// not awaited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
