package server

import (
	"context"
	"encoding/json"
	"net/http"
)

// Recorder is the capture entry point for logs arriving over HTTP.
type Recorder interface {
	RecordLogEvent(ctx context.Context, attributes map[string]any)
}

type LogHandlers struct {
	recorder Recorder
}

type logRequest struct {
	Logs []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"logs"`
}

func NewLogHandlers(recorder Recorder) *LogHandlers {
	return &LogHandlers{recorder: recorder}
}

func (h *LogHandlers) PostLogs(w http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Logs) == 0 {
		http.Error(w, "logs are required", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, entry := range req.Logs {
		if len(entry.Attributes) == 0 {
			continue
		}
		h.recorder.RecordLogEvent(r.Context(), entry.Attributes)
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"accepted": accepted})
}
