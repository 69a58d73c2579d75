package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/canopymon/canopy/internal/hardening"
	"github.com/canopymon/canopy/internal/harvest"
)

type SnapshotProvider interface {
	Snapshot() harvest.Snapshot
}

type HealthResponse struct {
	Status            string   `json:"status"`
	UptimeSeconds     int64    `json:"uptime_seconds"`
	Version           string   `json:"version"`
	AppsTracked       int      `json:"apps_tracked"`
	PendingEvents     int      `json:"pending_events"`
	EventsSeen        int64    `json:"events_seen"`
	EventsSent        int64    `json:"events_sent"`
	EventsDropped     int64    `json:"events_dropped"`
	LastHarvestTime   *int64   `json:"last_harvest_time"`
	LastHarvestStatus string   `json:"last_harvest_status"`
	RSSBytes          int64    `json:"rss_bytes"`
	GeneratedAt       string   `json:"generated_at"`
	Warnings          []string `json:"warnings,omitempty"`
}

type HealthHandler struct {
	startTime       time.Time
	version         string
	snapshotter     SnapshotProvider
	sendingDisabled bool
}

func NewHealthHandler(start time.Time, version string, snapshotter SnapshotProvider, sendingDisabled bool) *HealthHandler {
	return &HealthHandler{
		startTime:       start,
		version:         version,
		snapshotter:     snapshotter,
		sendingDisabled: sendingDisabled,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.snapshotter.Snapshot()

	resp := HealthResponse{
		Status:            "ok",
		UptimeSeconds:     int64(time.Since(h.startTime).Seconds()),
		Version:           h.version,
		AppsTracked:       snapshot.AppsTracked,
		PendingEvents:     snapshot.PendingEvents,
		EventsSeen:        snapshot.EventsSeen,
		EventsSent:        snapshot.EventsSent,
		EventsDropped:     snapshot.EventsDropped,
		LastHarvestStatus: snapshot.LastHarvestStatus,
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if snapshot.LastHarvestMillis > 0 {
		ts := snapshot.LastHarvestMillis
		resp.LastHarvestTime = &ts
	}
	if h.sendingDisabled {
		resp.LastHarvestStatus = "disabled"
	}

	if rss, err := hardening.CurrentRSSBytes(); err == nil {
		resp.RSSBytes = rss
	} else {
		resp.Warnings = append(resp.Warnings, "rss_unavailable")
	}
	if resp.LastHarvestStatus == "dropped" {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
