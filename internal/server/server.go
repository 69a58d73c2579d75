package server

import (
	"net/http"
	"time"
)

func New(addr string, healthHandler http.HandlerFunc, logHandlers *LogHandlers, metricsHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	if logHandlers != nil {
		mux.HandleFunc("POST /v1/logs", logHandlers.PostLogs)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
