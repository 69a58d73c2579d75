package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/canopymon/canopy/internal/config"
	"github.com/canopymon/canopy/internal/event"
	"github.com/canopymon/canopy/internal/harvest"
	"github.com/canopymon/canopy/internal/intern"
	"github.com/canopymon/canopy/internal/metrics"
	"github.com/canopymon/canopy/internal/server"
	"github.com/canopymon/canopy/internal/tailer"
	"github.com/canopymon/canopy/internal/transport"
)

// Runtime wires the harvest pipeline together and owns its lifecycle.
type Runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	version   string
	startedAt time.Time

	provider   *config.Static
	service    *harvest.Service
	httpServer *http.Server
	bgCancel   context.CancelFunc
	bgGroup    *errgroup.Group
}

func New(cfg *config.Config, logger *slog.Logger, version string) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
	}
}

func (r *Runtime) Run(ctx context.Context) error {
	r.provider = config.NewStatic(r.cfg)
	strings := intern.New(r.cfg.InternCacheSize, r.cfg.InternCacheTTL)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	sink := metrics.NewPrometheus(promRegistry)

	var sender transport.Sender
	if r.cfg.CollectorEndpoint != "" {
		sender = transport.NewClient(r.cfg.CollectorEndpoint, r.cfg.SendTimeout)
	} else {
		r.logger.Warn("no collector endpoint configured, harvested log events will be discarded")
		sender = transport.Discard{}
	}

	r.service = harvest.NewService(harvest.Options{
		Logger:     r.logger,
		Provider:   r.provider,
		Sender:     sender,
		Sink:       sink,
		Strings:    strings,
		Policy:     event.DefaultPolicy(),
		DefaultApp: r.cfg.AppName,
	})
	r.service.AddHarvestable(r.cfg.AppName, r.cfg.HarvestInterval)
	r.logger.Info("log harvest scheduled",
		"app", r.cfg.AppName,
		"period", r.cfg.HarvestInterval,
		"max_samples", r.cfg.MaxSamplesStored,
	)

	healthHandler := server.NewHealthHandler(r.startedAt, r.version, r.service, r.cfg.CollectorEndpoint == "")
	logHandlers := server.NewLogHandlers(r.service)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	r.httpServer = server.New(":"+r.cfg.Port, healthHandler.ServeHTTP, logHandlers, metricsHandler)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	r.bgCancel = bgCancel
	r.bgGroup, bgCtx = errgroup.WithContext(bgCtx)
	if r.cfg.TailPath != "" {
		tail := tailer.New(r.cfg.TailPath, r.cfg.TailPollInterval, r.service)
		r.bgGroup.Go(func() error {
			return tail.Run(bgCtx)
		})
		r.logger.Info("tailing log file", "path", r.cfg.TailPath)
	}

	serverErr := make(chan error, 1)
	go func() {
		r.logger.Info("listening", "addr", ":"+r.cfg.Port)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
		return r.shutdown(context.Background())
	}
}

func (r *Runtime) shutdown(ctx context.Context) error {
	var joined error

	if r.httpServer != nil {
		httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := r.httpServer.Shutdown(httpCtx); err != nil {
			joined = errors.Join(joined, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if r.bgCancel != nil {
		r.bgCancel()
		done := make(chan error, 1)
		go func() {
			done <- r.bgGroup.Wait()
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				joined = errors.Join(joined, fmt.Errorf("background loops: %w", err))
			}
		case <-time.After(3 * time.Second):
			joined = errors.Join(joined, errors.New("background loop shutdown timeout"))
		}
	}

	if r.service != nil {
		// One last drain so buffered events get a send attempt, then
		// clear everything. In-flight sends are not awaited.
		harvestCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		r.service.HarvestPending(harvestCtx)
		cancel()
		r.service.Stop()
	}

	snapshot := harvest.Snapshot{}
	if r.service != nil {
		snapshot = r.service.Snapshot()
	}
	r.logger.Info("shutdown complete",
		"events_sent", snapshot.EventsSent,
		"events_dropped", snapshot.EventsDropped,
		"uptime", time.Since(r.startedAt).String(),
	)
	return joined
}
