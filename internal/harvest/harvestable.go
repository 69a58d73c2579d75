package harvest

import (
	"context"
	"sync"
	"time"
)

const DefaultPeriod = 5 * time.Second

// Harvestable is one registered periodic harvest task: one application,
// one report period, one sample limit. The scheduler drives it; the
// collector may reconfigure it between periods.
type Harvestable struct {
	svc     *Service
	appName string

	mu     sync.Mutex
	period time.Duration
	limit  int
}

func NewHarvestable(svc *Service, appName string, period time.Duration, limit int) *Harvestable {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Harvestable{
		svc:     svc,
		appName: appName,
		period:  period,
		limit:   limit,
	}
}

func (h *Harvestable) AppName() string {
	return h.appName
}

// Configure applies a new report period and sample limit. The limit
// takes effect service-wide at the next harvest; the period at the next
// tick.
func (h *Harvestable) Configure(period time.Duration, limit int) {
	h.mu.Lock()
	if period > 0 {
		h.period = period
	}
	h.limit = limit
	h.mu.Unlock()
	h.svc.maxSamples.Store(int64(limit))
}

func (h *Harvestable) Period() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.period
}

// Harvest runs one drain-and-send cycle for this app.
func (h *Harvestable) Harvest(ctx context.Context) {
	h.svc.HarvestEvents(ctx, h.appName)
}
